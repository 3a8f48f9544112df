package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/prestonprussell/ITLicensingBreakdown/config"
	"github.com/prestonprussell/ITLicensingBreakdown/utils"
	"github.com/shopspring/decimal"
)

// SourceFile is one uploaded tabular file after CSV/XLSX decoding: ordered
// headers plus row maps keyed by the original header text.
type SourceFile struct {
	Name    string
	Headers []string
	Rows    []map[string]string
}

// NormalizedRow is the vendor-agnostic charge row every strategy consumes.
type NormalizedRow struct {
	SourceFile     string          `json:"source_file"`
	Branch         string          `json:"branch"`
	License        string          `json:"license"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Amount         decimal.Decimal `json:"amount"`
	AllocationType AllocationType  `json:"allocation_type,omitempty"`
}

// FileSummary reports how much of a file survived normalization.
type FileSummary struct {
	Filename     string `json:"filename"`
	RowsIngested int    `json:"rows_ingested"`
	RowsSkipped  int    `json:"rows_skipped"`
}

const (
	UnmappedBranch  = "UNMAPPED_BRANCH"
	UnmappedLicense = "UNMAPPED_LICENSE"
)

// NormalizeRows maps a decoded file onto NormalizedRow using the configured
// header aliases. A row with no derivable amount (no amount cell and no
// quantity x unit price pair) is skipped and counted, never silently
// dropped; warnings reference spreadsheet line numbers, so the first data
// row is line 2.
func NormalizeRows(file SourceFile) ([]NormalizedRow, FileSummary, []string) {
	cfg := config.GetAllocationConfig()
	summary := FileSummary{Filename: file.Name}
	warnings := []string{}

	branchCol, hasBranchCol := utils.MatchHeader(file.Headers, cfg.HeaderAliases["branch"])
	licenseCol, hasLicenseCol := utils.MatchHeader(file.Headers, cfg.HeaderAliases["license"])
	amountCol, hasAmountCol := utils.MatchHeader(file.Headers, cfg.HeaderAliases["amount"])
	quantityCol, hasQuantityCol := utils.MatchHeader(file.Headers, cfg.HeaderAliases["quantity"])
	unitPriceCol, hasUnitPriceCol := utils.MatchHeader(file.Headers, cfg.HeaderAliases["unit_price"])

	if !hasBranchCol {
		warnings = append(warnings, fmt.Sprintf("%s: no branch column found; using %s", file.Name, UnmappedBranch))
	}
	if !hasLicenseCol {
		warnings = append(warnings, fmt.Sprintf("%s: no license column found; using %s", file.Name, UnmappedLicense))
	}

	rows := make([]NormalizedRow, 0, len(file.Rows))
	for i, raw := range file.Rows {
		lineNumber := i + 2

		row := NormalizedRow{
			SourceFile: file.Name,
			Branch:     UnmappedBranch,
			License:    UnmappedLicense,
		}
		if hasBranchCol {
			if branch := utils.NormalizeText(raw[branchCol]); branch != "" {
				row.Branch = branch
			}
		}
		if hasLicenseCol {
			if license := utils.NormalizeText(raw[licenseCol]); license != "" {
				row.License = license
			}
		}
		hasQuantity, hasUnitPrice := false, false
		if hasQuantityCol {
			if qty, ok := parseQuantity(raw[quantityCol]); ok {
				row.Quantity = qty
				hasQuantity = true
			}
		}
		if hasUnitPriceCol {
			if price, ok := utils.ParseMoney(raw[unitPriceCol]); ok {
				row.UnitPrice = price
				hasUnitPrice = true
			}
		}

		amount, ok := decimal.Zero, false
		if hasAmountCol {
			amount, ok = utils.ParseMoney(raw[amountCol])
		}
		// A parsed zero still counts: qty 0 rows are ingested with amount 0.
		if !ok && hasQuantity && hasUnitPrice {
			amount, ok = row.Quantity.Mul(row.UnitPrice), true
		}
		if !ok {
			summary.RowsSkipped++
			warnings = append(warnings, fmt.Sprintf("%s line %d: no parseable amount; row skipped", file.Name, lineNumber))
			continue
		}

		row.Amount = utils.Round2(amount)
		rows = append(rows, row)
		summary.RowsIngested++
	}
	return rows, summary, warnings
}

// parseQuantity accepts plain integers and decimals, with thousands
// separators tolerated.
func parseQuantity(cell string) (decimal.Decimal, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(cell), ",", "")
	if cleaned == "" {
		return decimal.Zero, false
	}
	if _, err := strconv.ParseFloat(cleaned, 64); err != nil {
		return decimal.Zero, false
	}
	qty, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return qty, true
}

// SumAmounts is the base total of a normalized row set.
func SumAmounts(rows []NormalizedRow) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount)
	}
	return total
}
