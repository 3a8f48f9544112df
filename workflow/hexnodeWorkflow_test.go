package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/prestonprussell/ITLicensingBreakdown/config"
	"github.com/prestonprussell/ITLicensingBreakdown/models"
	"github.com/shopspring/decimal"
)

func hexnodeExport(usernames ...string) models.SourceFile {
	rows := make([]map[string]string, 0, len(usernames))
	for _, username := range usernames {
		rows = append(rows, map[string]string{"Username": username})
	}
	return models.SourceFile{Name: "devices.csv", Headers: []string{"Username"}, Rows: rows}
}

func TestBuildHexnodeRows_PerDeviceChargeWithAliases(t *testing.T) {
	cfg := config.DefaultAllocationConfig()
	file := hexnodeExport("Canton", "Default User", "Tampa")

	rows, summary, warnings := buildHexnodeRows(file, cfg)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if summary.RowsIngested != 3 {
		t.Fatalf("ingested = %d, want 3", summary.RowsIngested)
	}
	if rows[1].Branch != "Home Office" {
		t.Fatalf("Default User mapped to %q, want Home Office", rows[1].Branch)
	}
	for _, row := range rows {
		if !row.Amount.Equal(decimal.NewFromFloat(2.00)) {
			t.Fatalf("device charge = %s, want 2.00", row.Amount)
		}
		if row.License != cfg.Hexnode.DefaultLicense {
			t.Fatalf("license = %q", row.License)
		}
	}
}

func TestBuildHexnodeRows_BlankUsernameSkipped(t *testing.T) {
	cfg := config.DefaultAllocationConfig()
	file := hexnodeExport("Canton", "  ", "Tampa")

	rows, summary, warnings := buildHexnodeRows(file, cfg)
	if len(rows) != 2 || summary.RowsSkipped != 1 {
		t.Fatalf("rows=%d skipped=%d, want 2 and 1", len(rows), summary.RowsSkipped)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "row 3") {
		t.Fatalf("warnings = %v", warnings)
	}
}

func TestHexnodeStrategy_NoInvoiceWarnsAndSkipsAdjustment(t *testing.T) {
	input := &RunInput{
		Vendor: models.VendorTypeHexnode,
		Files:  []models.SourceFile{hexnodeExport("Canton", "Tampa")},
	}

	result, err := hexnodeStrategy{}.Allocate(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reconciliation != nil {
		t.Fatalf("reconciliation without an invoice: %+v", result.Reconciliation)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "No invoice uploaded") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want no-invoice warning", result.Warnings)
	}
	if !result.GrandTotal.Equal(decimal.NewFromFloat(4.00)) {
		t.Fatalf("grand total = %s, want 4.00", result.GrandTotal)
	}
}

func TestHexnodeStrategy_DeviceCountMismatchWarns(t *testing.T) {
	billed := 5
	total := decimal.NewFromFloat(10.00)
	input := &RunInput{
		Vendor: models.VendorTypeHexnode,
		Files:  []models.SourceFile{hexnodeExport("Canton", "Tampa")},
		Invoice: &models.Invoice{
			InvoiceTotal:      &total,
			BilledDeviceCount: &billed,
		},
	}

	result, err := hexnodeStrategy{}.Allocate(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "Invoice says 5 devices, but the export has 2 rows") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want device-count warning", result.Warnings)
	}
	// The $6 gap between billed and exported devices reconciles onto the
	// Home Office device-license row, so the breakdown still hits $10.
	if !result.GrandTotal.Equal(total) {
		t.Fatalf("grand total = %s, want invoice total %s", result.GrandTotal, total)
	}
	if result.Reconciliation == nil || !result.Reconciliation.HomeOfficeAdjustment.Equal(decimal.NewFromFloat(6.00)) {
		t.Fatalf("reconciliation = %+v, want 6.00 adjustment", result.Reconciliation)
	}
}
