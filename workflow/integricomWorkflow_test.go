package workflow

import (
	"strings"
	"testing"

	"github.com/prestonprussell/ITLicensingBreakdown/config"
	"github.com/prestonprussell/ITLicensingBreakdown/models"
	"github.com/shopspring/decimal"
)

func integricomLine(canonical string, qty int64, unitPrice, amount float64) models.InvoiceLineItem {
	return models.InvoiceLineItem{
		Description:   canonical,
		CanonicalName: canonical,
		Quantity:      decimal.NewFromInt(qty),
		UnitPrice:     decimal.NewFromFloat(unitPrice),
		Amount:        decimal.NewFromFloat(amount),
	}
}

func TestBuildIntegricomAllocations_DynamicLineFollowsLicenseHolders(t *testing.T) {
	cfg := config.DefaultAllocationConfig()
	users := []models.IntegricomExportUser{
		{Email: "a@example.com", LastName: "Adams", DefaultBranch: "Canton", Licenses: []string{"Microsoft 365 Business Premium"}},
		{Email: "b@example.com", LastName: "Baker", DefaultBranch: "Tampa", Licenses: []string{"Microsoft 365 F3"}},
		{Email: "c@example.com", LastName: "Cole", DefaultBranch: "Acworth", Licenses: []string{"Power BI Pro"}},
	}
	profiles := models.ProfileMap{
		"a@example.com": {Email: "a@example.com", Branch: "Canton"},
		"b@example.com": {Email: "b@example.com", Branch: "Tampa"},
		"c@example.com": {Email: "c@example.com", Branch: "Acworth"},
	}
	lines := []models.InvoiceLineItem{integricomLine("Workstation", 2, 25.00, 50.00)}

	allocation := buildIntegricomAllocations(users, profiles, lines, nil, cfg)
	if len(allocation.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", allocation.Warnings)
	}
	// Business Premium and F3 both count as Workstation; Power BI Pro does not.
	if len(allocation.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(allocation.Rows))
	}
	for _, row := range allocation.Rows {
		if row.License != "Workstation" || !row.Amount.Equal(decimal.NewFromFloat(25.00)) {
			t.Fatalf("row = %+v", row)
		}
	}
	if !allocation.UserRows[0].UserTotal.Equal(decimal.NewFromFloat(25.00)) {
		t.Fatalf("Adams total = %s, want 25.00", allocation.UserRows[0].UserTotal)
	}
	if allocation.UserRows[2].Email != "c@example.com" || !allocation.UserRows[2].UserTotal.IsZero() {
		t.Fatalf("Cole row = %+v, want zero total", allocation.UserRows[2])
	}
}

func TestBuildIntegricomAllocations_QuantityMismatchGoesToHomeOffice(t *testing.T) {
	cfg := config.DefaultAllocationConfig()
	users := []models.IntegricomExportUser{
		{Email: "a@example.com", DefaultBranch: "Canton", Licenses: []string{"Microsoft 365 Business Premium"}},
	}
	profiles := models.ProfileMap{"a@example.com": {Email: "a@example.com", Branch: "Canton"}}
	// Invoice bills 3 units but only one export user holds the license.
	lines := []models.InvoiceLineItem{integricomLine("Workstation", 3, 25.00, 75.00)}

	allocation := buildIntegricomAllocations(users, profiles, lines, nil, cfg)
	if len(allocation.Warnings) != 1 || !strings.Contains(allocation.Warnings[0], "invoice quantity is 3, matched users are 1") {
		t.Fatalf("warnings = %v", allocation.Warnings)
	}

	var delta *models.NormalizedRow
	for i := range allocation.Rows {
		if allocation.Rows[i].AllocationType == models.AllocationTypeInvoiceDelta {
			delta = &allocation.Rows[i]
		}
	}
	if delta == nil || delta.Branch != cfg.HomeOffice || !delta.Amount.Equal(decimal.NewFromFloat(50.00)) {
		t.Fatalf("delta row = %+v, want 50.00 on Home Office", delta)
	}
	if len(allocation.NonUserRows) != 1 || allocation.NonUserRows[0].AllocationType != models.AllocationTypeInvoiceDelta {
		t.Fatalf("non-user rows = %+v", allocation.NonUserRows)
	}
}

func TestAllocateFixedLine_ForcedHomeOffice(t *testing.T) {
	cfg := config.DefaultAllocationConfig()
	line := integricomLine("Dark Web Monitoring", 1, 49.00, 49.00)

	rows, warnings, prompts := allocateFixedLine(line, "1:Dark Web Monitoring", nil, cfg)
	if len(rows) != 1 || rows[0].Branch != cfg.HomeOffice || !rows[0].Amount.Equal(decimal.NewFromFloat(49.00)) {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].AllocationType != models.AllocationTypeForcedHomeOffice {
		t.Fatalf("allocation type = %s, want Forced Home Office", rows[0].AllocationType)
	}
	if len(warnings) != 0 || len(prompts) != 0 {
		t.Fatalf("warnings=%v prompts=%v", warnings, prompts)
	}
}

func TestAllocateFixedLine_TemplateSequenceOneUnitPerBranch(t *testing.T) {
	cfg := config.DefaultAllocationConfig()
	branches := cfg.Integricom.TemplateSequences["NetWatch360 Managed Firewall"]
	qty := int64(len(branches))
	unit := 35.00
	line := integricomLine("NetWatch360 Managed Firewall", qty, unit, unit*float64(qty))

	rows, warnings, prompts := allocateFixedLine(line, "2:NetWatch360 Managed Firewall", nil, cfg)
	if len(prompts) != 0 || len(warnings) != 0 {
		t.Fatalf("warnings=%v prompts=%v", warnings, prompts)
	}
	if len(rows) != len(branches) {
		t.Fatalf("got %d rows, want %d", len(rows), len(branches))
	}
	for i, row := range rows {
		if row.Branch != branches[i] || !row.Amount.Equal(decimal.NewFromFloat(unit)) {
			t.Fatalf("row %d = %+v, want %s at %.2f", i, row, branches[i], unit)
		}
	}
}

func TestAllocateFixedLine_ExtraTemplateUnitsPrompt(t *testing.T) {
	cfg := config.DefaultAllocationConfig()
	branches := cfg.Integricom.TemplateSequences["NetWatch360 Managed Firewall"]
	qty := int64(len(branches)) + 2
	unit := 35.00
	line := integricomLine("NetWatch360 Managed Firewall", qty, unit, unit*float64(qty))
	lineKey := "2:NetWatch360 Managed Firewall"

	rows, warnings, prompts := allocateFixedLine(line, lineKey, nil, cfg)
	if len(prompts) != 2 {
		t.Fatalf("got %d prompts, want 2", len(prompts))
	}
	if prompts[0].PromptIndex != 1 || prompts[1].PromptIndex != 2 {
		t.Fatalf("prompt indices = %d, %d", prompts[0].PromptIndex, prompts[1].PromptIndex)
	}
	for _, branch := range branches {
		if containsString(prompts[0].AvailableBranches, branch) {
			t.Fatalf("already-assigned branch %s offered as available", branch)
		}
	}

	// While prompts are open the remainder must stay unallocated, so the
	// allocated rows cover exactly the template branches.
	allocated := decimal.Zero
	for _, row := range rows {
		allocated = allocated.Add(row.Amount)
	}
	wantAllocated := decimal.NewFromFloat(unit).Mul(decimal.NewFromInt(int64(len(branches))))
	if !allocated.Equal(wantAllocated) {
		t.Fatalf("allocated %s while prompts pending, want %s", allocated, wantAllocated)
	}

	found := false
	for _, w := range warnings {
		if strings.Contains(w, "2 extra branch assignment(s) required") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want pending-prompt warning", warnings)
	}
}

func TestAllocateFixedLine_AnswersFinalizeExtraUnits(t *testing.T) {
	cfg := config.DefaultAllocationConfig()
	branches := cfg.Integricom.TemplateSequences["NetWatch360 Managed Firewall"]
	qty := int64(len(branches)) + 1
	unit := 35.00
	line := integricomLine("NetWatch360 Managed Firewall", qty, unit, unit*float64(qty))
	lineKey := "2:NetWatch360 Managed Firewall"

	answers := map[string]string{promptKey(lineKey, 1): "Sugar Hill"}
	rows, _, prompts := allocateFixedLine(line, lineKey, answers, cfg)
	if len(prompts) != 0 {
		t.Fatalf("prompts remain after valid answer: %+v", prompts)
	}

	total := decimal.Zero
	sugarHill := false
	for _, row := range rows {
		total = total.Add(row.Amount)
		if row.Branch == "Sugar Hill" {
			sugarHill = true
		}
	}
	if !sugarHill {
		t.Fatal("answered branch did not receive its unit")
	}
	if !total.Equal(line.Amount) {
		t.Fatalf("allocated %s, want full line amount %s", total, line.Amount)
	}
}

func TestAllocateFixedLine_AlreadyAssignedAnswerReprompts(t *testing.T) {
	cfg := config.DefaultAllocationConfig()
	branches := cfg.Integricom.TemplateSequences["NetWatch360 Managed Firewall"]
	qty := int64(len(branches)) + 1
	unit := 35.00
	line := integricomLine("NetWatch360 Managed Firewall", qty, unit, unit*float64(qty))
	lineKey := "2:NetWatch360 Managed Firewall"

	// Answering with a branch the template already covered must not double
	// that branch; the prompt comes back carrying a validation error.
	answers := map[string]string{promptKey(lineKey, 1): branches[0]}
	rows, warnings, prompts := allocateFixedLine(line, lineKey, answers, cfg)
	if len(prompts) != 1 {
		t.Fatalf("got %d prompts, want the rejected prompt back", len(prompts))
	}
	if prompts[0].ValidationError != branches[0]+" is already assigned for this charge." {
		t.Fatalf("validation error = %q", prompts[0].ValidationError)
	}
	if prompts[0].Branch != branches[0] {
		t.Fatalf("rejected prompt should echo the submitted branch, got %q", prompts[0].Branch)
	}

	count := 0
	for _, row := range rows {
		if row.Branch == branches[0] {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("branch %s charged %d times, want 1", branches[0], count)
	}

	found := false
	for _, w := range warnings {
		if strings.Contains(w, "already assigned") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want already-assigned warning", warnings)
	}
}

func TestAllocateFixedLine_ShortQuantityUsesTemplatePrefix(t *testing.T) {
	cfg := config.DefaultAllocationConfig()
	branches := cfg.Integricom.TemplateSequences["NetWatch360 Managed Firewall"]
	unit := 35.00
	line := integricomLine("NetWatch360 Managed Firewall", 3, unit, unit*3)

	rows, warnings, prompts := allocateFixedLine(line, "2:NetWatch360 Managed Firewall", nil, cfg)
	if len(prompts) != 0 {
		t.Fatalf("unexpected prompts: %+v", prompts)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i := 0; i < 3; i++ {
		if rows[i].Branch != branches[i] {
			t.Fatalf("row %d branch = %s, want %s", i, rows[i].Branch, branches[i])
		}
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "used the first 3 branches") {
		t.Fatalf("warnings = %v", warnings)
	}
}

func TestAllocateFixedLine_FixedSplitRemainderToHomeOffice(t *testing.T) {
	cfg := config.DefaultAllocationConfig()
	line := integricomLine("Firewall Security Subscription Main Office", 1, 120.00, 120.00)

	rows, _, _ := allocateFixedLine(line, "3:Firewall Security Subscription Main Office", nil, cfg)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want Sugar Hill share plus Home Office remainder", len(rows))
	}
	if rows[0].Branch != "Sugar Hill" || !rows[0].Amount.Equal(decimal.NewFromFloat(97.00)) {
		t.Fatalf("share row = %+v", rows[0])
	}
	if rows[1].Branch != cfg.HomeOffice || !rows[1].Amount.Equal(decimal.NewFromFloat(23.00)) {
		t.Fatalf("remainder row = %+v", rows[1])
	}
}

func TestAllocateFixedLine_FixedSplitBelowBaselineFallsToHomeOffice(t *testing.T) {
	cfg := config.DefaultAllocationConfig()
	line := integricomLine("Firewall Security Subscription Main Office", 1, 50.00, 50.00)

	rows, warnings, _ := allocateFixedLine(line, "3:Firewall Security Subscription Main Office", nil, cfg)
	if len(rows) != 1 || rows[0].Branch != cfg.HomeOffice || !rows[0].Amount.Equal(decimal.NewFromFloat(50.00)) {
		t.Fatalf("rows = %+v", rows)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "below expected split baseline") {
		t.Fatalf("warnings = %v", warnings)
	}
}

func TestAllocateFixedLine_SingleBranch(t *testing.T) {
	cfg := config.DefaultAllocationConfig()
	line := integricomLine("Project Plan 3", 1, 30.00, 30.00)

	rows, _, _ := allocateFixedLine(line, "4:Project Plan 3", nil, cfg)
	if len(rows) != 1 || rows[0].Branch != "Sugar Hill" {
		t.Fatalf("rows = %+v, want Sugar Hill", rows)
	}
}

func TestAllocateFixedLine_UnmodeledLineWarnsAndDefaults(t *testing.T) {
	cfg := config.DefaultAllocationConfig()
	line := integricomLine("Mystery One-Off Charge", 1, 12.00, 12.00)

	rows, warnings, _ := allocateFixedLine(line, "5:Mystery One-Off Charge", nil, cfg)
	if len(rows) != 1 || rows[0].Branch != cfg.HomeOffice {
		t.Fatalf("rows = %+v", rows)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "no allocation rule configured") {
		t.Fatalf("warnings = %v", warnings)
	}
}

func TestGroupNonUserRows_PivotsAndSorts(t *testing.T) {
	raw := []models.NonUserRow{
		{Branch: "Tampa", License: "x", AllocationType: models.AllocationTypeFixedTemplate, TotalAmount: decimal.NewFromInt(1)},
		{Branch: "Canton", License: "x", AllocationType: models.AllocationTypeFixedTemplate, TotalAmount: decimal.NewFromInt(2)},
		{Branch: "Canton", License: "x", AllocationType: models.AllocationTypeFixedTemplate, TotalAmount: decimal.NewFromInt(3)},
	}
	grouped := groupNonUserRows(raw)
	if len(grouped) != 2 {
		t.Fatalf("got %d rows, want 2", len(grouped))
	}
	if grouped[0].Branch != "Canton" || !grouped[0].TotalAmount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("grouped[0] = %+v", grouped[0])
	}
}
