package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/prestonprussell/ITLicensingBreakdown/config"
	"github.com/prestonprussell/ITLicensingBreakdown/models"
	"github.com/prestonprussell/ITLicensingBreakdown/utils"
)

// hexnodeStrategy charges a flat per-device rate: every device row in the
// MDM export becomes one charge against the branch named in its Username
// column. The invoice, when supplied, drives the Home Office reconciliation
// and a billed-device sanity check.
type hexnodeStrategy struct{}

func (hexnodeStrategy) Allocate(ctx context.Context, input *RunInput) (*RunResult, error) {
	cfg := config.GetAllocationConfig()
	result := newRunResult()

	deviceCount := 0
	allRows := []models.NormalizedRow{}
	for _, file := range input.Files {
		rows, summary, warnings := buildHexnodeRows(file, cfg)
		allRows = append(allRows, rows...)
		deviceCount += len(rows)
		result.Files = append(result.Files, summary)
		result.Warnings = append(result.Warnings, warnings...)
	}

	if input.Invoice == nil {
		result.Warnings = append(result.Warnings, "No invoice uploaded. Home Office add-on adjustment was not applied.")
	} else if input.Invoice.BilledDeviceCount != nil && *input.Invoice.BilledDeviceCount != deviceCount {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"Invoice says %d devices, but the export has %d rows.", *input.Invoice.BilledDeviceCount, deviceCount))
	}

	// The adjustment rides on the device license itself rather than a
	// separate synthetic label; Hexnode overage is more of the same product.
	finishBreakdown(result, allRows, input.Invoice, cfg.Hexnode.DefaultLicense)
	return result, nil
}

// buildHexnodeRows maps one MDM export file onto charge rows: one device,
// one per-device charge. The Username column doubles as the branch name,
// with configured aliases folding shared accounts into Home Office.
func buildHexnodeRows(file models.SourceFile, cfg *config.AllocationConfig) ([]models.NormalizedRow, models.FileSummary, []string) {
	summary := models.FileSummary{Filename: file.Name}
	warnings := []string{}

	usernameCol, ok := utils.MatchHeader(file.Headers, []string{"username", "branch", "location", "site"})
	if !ok {
		return nil, summary, []string{fmt.Sprintf("%s: could not find Username/Branch column for Hexnode export.", file.Name)}
	}

	rows := make([]models.NormalizedRow, 0, len(file.Rows))
	for i, raw := range file.Rows {
		lineNumber := i + 2
		rawBranch := strings.TrimSpace(raw[usernameCol])
		if rawBranch == "" {
			summary.RowsSkipped++
			warnings = append(warnings, fmt.Sprintf("%s: row %d skipped (blank Username/Branch).", file.Name, lineNumber))
			continue
		}

		branch := rawBranch
		if mapped, aliased := cfg.Hexnode.BranchAliases[rawBranch]; aliased {
			branch = mapped
		}
		rows = append(rows, models.NormalizedRow{
			SourceFile: file.Name,
			Branch:     branch,
			License:    cfg.Hexnode.DefaultLicense,
			Amount:     cfg.Hexnode.PerDeviceCost,
		})
		summary.RowsIngested++
	}
	return rows, summary, warnings
}
