package workflow

import (
	"sort"

	"github.com/prestonprussell/ITLicensingBreakdown/models"
	"github.com/prestonprussell/ITLicensingBreakdown/models/reports"
	"github.com/prestonprussell/ITLicensingBreakdown/utils"
	"github.com/shopspring/decimal"
)

// Reconcile ties a breakdown back to the invoice: the adjustment is
// invoiceTotal minus the sum of allocated rows, negative when the rows
// overshoot. After the adjustment lands on Home Office the grand total
// equals the invoice total exactly.
func Reconcile(baseTotal, invoiceTotal decimal.Decimal) models.ReconciliationResult {
	return models.ReconciliationResult{
		BaseTotal:            utils.Round2(baseTotal),
		InvoiceTotal:         utils.Round2(invoiceTotal),
		HomeOfficeAdjustment: utils.Round2(invoiceTotal.Sub(baseTotal)),
	}
}

// ApplyHomeOfficeAdjustment adds the reconciliation delta onto the Home
// Office row carrying the vendor's adjustment license, creating the row if
// absent. A zero adjustment leaves the breakdown untouched.
func ApplyHomeOfficeAdjustment(summary []reports.BreakdownRow, adjustment decimal.Decimal, licenseName, homeOffice string) []reports.BreakdownRow {
	if adjustment.IsZero() {
		return summary
	}

	updated := make([]reports.BreakdownRow, len(summary))
	copy(updated, summary)

	found := false
	for i := range updated {
		if updated[i].Branch == homeOffice && updated[i].License == licenseName {
			updated[i].TotalAmount = utils.Round2(updated[i].TotalAmount.Add(adjustment))
			found = true
			break
		}
	}
	if !found {
		updated = append(updated, reports.BreakdownRow{
			Branch:      homeOffice,
			License:     licenseName,
			TotalAmount: utils.Round2(adjustment),
		})
	}

	sort.Slice(updated, func(i, j int) bool {
		if updated[i].Branch != updated[j].Branch {
			return updated[i].Branch < updated[j].Branch
		}
		return updated[i].License < updated[j].License
	})
	return updated
}
