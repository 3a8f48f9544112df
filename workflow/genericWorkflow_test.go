package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/prestonprussell/ITLicensingBreakdown/models"
	"github.com/shopspring/decimal"
)

func genericInput() *RunInput {
	return &RunInput{
		Vendor: models.VendorTypeGeneric,
		Files: []models.SourceFile{
			{
				Name:    "charges.csv",
				Headers: []string{"Branch", "License", "Amount"},
				Rows: []map[string]string{
					{"Branch": "Tampa", "License": "Photoshop", "Amount": "$5.00"},
					{"Branch": "Canton", "License": "Acrobat Pro", "Amount": "$10.00"},
					{"Branch": "Canton", "License": "Acrobat Pro", "Amount": "$2.50"},
				},
			},
		},
	}
}

func TestRunAllocation_GenericAggregates(t *testing.T) {
	result, err := RunAllocation(context.Background(), genericInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Vendor != models.VendorTypeGeneric {
		t.Fatalf("vendor = %s", result.Vendor)
	}
	if result.CorrelationId == "" {
		t.Fatal("correlation id not assigned")
	}
	if !result.GrandTotal.Equal(decimal.NewFromFloat(17.50)) {
		t.Fatalf("grand total = %s, want 17.50", result.GrandTotal)
	}
	if len(result.Summary) != 2 {
		t.Fatalf("summary = %+v, want 2 aggregated rows", result.Summary)
	}
	if result.Reconciliation != nil {
		t.Fatalf("generic mode reconciled: %+v", result.Reconciliation)
	}
}

func TestRunAllocation_SameInputProducesIdenticalCSV(t *testing.T) {
	first, err := RunAllocation(context.Background(), genericInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := RunAllocation(context.Background(), genericInput())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if again.BreakdownCSV != first.BreakdownCSV {
			t.Fatalf("run %d produced a different csv:\n%s\nvs\n%s", i, again.BreakdownCSV, first.BreakdownCSV)
		}
	}
}

func TestRunAllocation_GenericWithInvoiceWarnsOnly(t *testing.T) {
	input := genericInput()
	total := decimal.NewFromInt(100)
	input.Invoice = &models.Invoice{Filename: "bill.pdf", InvoiceTotal: &total}

	result, err := RunAllocation(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "generic mode does not reconcile") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want reference-only warning", result.Warnings)
	}
	if !result.GrandTotal.Equal(decimal.NewFromFloat(17.50)) {
		t.Fatalf("grand total = %s, invoice total must not leak in", result.GrandTotal)
	}
}

func TestRunAllocation_UnknownVendorFails(t *testing.T) {
	_, err := RunAllocation(context.Background(), &RunInput{Vendor: models.VendorType("sentinelone")})
	if err == nil {
		t.Fatal("expected error for unknown vendor")
	}
}

func TestValidateRunInput_MandatoryPieces(t *testing.T) {
	cases := []struct {
		name  string
		input *RunInput
	}{
		{"generic without files", &RunInput{Vendor: models.VendorTypeGeneric}},
		{"hexnode without files", &RunInput{Vendor: models.VendorTypeHexnode}},
		{"adobe without invoice", &RunInput{
			Vendor: models.VendorTypeAdobe,
			Files:  []models.SourceFile{{Name: "a.csv"}},
		}},
		{"adobe invoice without pricing", &RunInput{
			Vendor:  models.VendorTypeAdobe,
			Files:   []models.SourceFile{{Name: "a.csv"}},
			Invoice: &models.Invoice{},
		}},
		{"integricom invoice without line items", &RunInput{
			Vendor:  models.VendorTypeIntegricom,
			Files:   []models.SourceFile{{Name: "a.csv"}},
			Invoice: &models.Invoice{},
		}},
		{"support invoice without blocks", &RunInput{
			Vendor:  models.VendorTypeIntegricomSupport,
			Invoice: &models.Invoice{},
		}},
	}
	for _, c := range cases {
		if err := validateRunInput(c.input); err == nil {
			t.Fatalf("%s: expected error, got nil", c.name)
		}
	}
}
