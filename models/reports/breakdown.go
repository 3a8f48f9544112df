package reports

import (
	"encoding/csv"
	"sort"
	"strings"

	"github.com/prestonprussell/ITLicensingBreakdown/models"
	"github.com/prestonprussell/ITLicensingBreakdown/utils"
	"github.com/shopspring/decimal"
)

// BreakdownRow is one (branch, license) bucket of the final allocation.
type BreakdownRow struct {
	Branch      string          `json:"branch"`
	License     string          `json:"license"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// BranchTotal is the per-branch rollup of a breakdown.
type BranchTotal struct {
	Branch      string          `json:"branch"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// BuildBreakdown aggregates normalized rows into the (branch, license)
// pivot, sorted by branch then license so identical inputs always produce
// identical output.
func BuildBreakdown(rows []models.NormalizedRow) []BreakdownRow {
	grouped := map[string]decimal.Decimal{}
	labels := map[string][2]string{}
	for _, row := range rows {
		key := row.Branch + "\x00" + row.License
		grouped[key] = grouped[key].Add(row.Amount)
		labels[key] = [2]string{row.Branch, row.License}
	}

	summary := make([]BreakdownRow, 0, len(grouped))
	for key, total := range grouped {
		summary = append(summary, BreakdownRow{
			Branch:      labels[key][0],
			License:     labels[key][1],
			TotalAmount: utils.Round2(total),
		})
	}
	sort.Slice(summary, func(i, j int) bool {
		if summary[i].Branch != summary[j].Branch {
			return summary[i].Branch < summary[j].Branch
		}
		return summary[i].License < summary[j].License
	})
	return summary
}

// BuildBranchTotals rolls a breakdown up to one row per branch, sorted.
func BuildBranchTotals(summary []BreakdownRow) []BranchTotal {
	grouped := map[string]decimal.Decimal{}
	for _, row := range summary {
		grouped[row.Branch] = grouped[row.Branch].Add(row.TotalAmount)
	}

	totals := make([]BranchTotal, 0, len(grouped))
	for branch, total := range grouped {
		totals = append(totals, BranchTotal{Branch: branch, TotalAmount: utils.Round2(total)})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Branch < totals[j].Branch })
	return totals
}

// GrandTotal sums a breakdown to the cent.
func GrandTotal(summary []BreakdownRow) decimal.Decimal {
	total := decimal.Zero
	for _, row := range summary {
		total = total.Add(row.TotalAmount)
	}
	return utils.Round2(total)
}

// BreakdownCSV renders the export text: the per-branch/license table first,
// then a blank line and the branch rollup with a grand-total line. Amounts
// are plain decimals with two places and no currency symbols, so the file
// re-imports cleanly.
func BreakdownCSV(summary []BreakdownRow) string {
	branchTotals := BuildBranchTotals(summary)

	var buffer strings.Builder
	writer := csv.NewWriter(&buffer)

	_ = writer.Write([]string{"Branch", "License", "Total Amount"})
	for _, row := range summary {
		_ = writer.Write([]string{row.Branch, row.License, row.TotalAmount.StringFixed(2)})
	}

	_ = writer.Write([]string{})
	_ = writer.Write([]string{"Branch", "Total"})
	for _, row := range branchTotals {
		_ = writer.Write([]string{row.Branch, row.TotalAmount.StringFixed(2)})
	}
	_ = writer.Write([]string{"Grand Total", GrandTotal(summary).StringFixed(2)})

	writer.Flush()
	return buffer.String()
}
