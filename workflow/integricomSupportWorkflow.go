package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/prestonprussell/ITLicensingBreakdown/config"
	"github.com/prestonprussell/ITLicensingBreakdown/models"
)

// integricomSupportStrategy allocates billed support hours block by block:
// the confidence scorer guesses a branch from each block's charge summary,
// anything below the review threshold defaults to Home Office and is flagged,
// and operator answers override the scorer outright.
type integricomSupportStrategy struct{}

func (integricomSupportStrategy) Allocate(ctx context.Context, input *RunInput) (*RunResult, error) {
	cfg := config.GetAllocationConfig()
	result := newRunResult()

	rows, supportRows, warnings := buildSupportAllocations(input.Invoice.SupportBlocks, input.SupportAnswers, cfg)
	result.Warnings = append(result.Warnings, warnings...)
	result.SupportRows = supportRows
	result.SupportBranchOptions = cfg.Integricom.KnownBranches(cfg.HomeOffice)

	for _, row := range supportRows {
		if row.NeedsReview {
			result.NeedsSupportReview = true
			result.Message = "Some support blocks were defaulted to Home Office with low confidence. " +
				"Review the branch column, then analyze again."
			break
		}
	}

	finishBreakdown(result, rows, input.Invoice, cfg.Integricom.SupportAdjustmentLicense)
	return result, nil
}

// buildSupportAllocations scores every billable block and applies operator
// overrides. Overridden blocks carry confidence "user" and never re-flag;
// review rows sort flagged-first so the operator sees open questions on top.
func buildSupportAllocations(
	blocks []models.SupportBlock,
	supportAnswers []models.SupportAnswer,
	cfg *config.AllocationConfig,
) ([]models.NormalizedRow, []models.SupportReviewRow, []string) {
	answers := map[string]string{}
	for _, answer := range supportAnswers {
		rowKey := strings.TrimSpace(answer.RowKey)
		if rowKey == "" {
			continue
		}
		answers[rowKey] = strings.TrimSpace(answer.Branch)
	}

	threshold := needsReviewThreshold(cfg)
	rows := []models.NormalizedRow{}
	supportRows := []models.SupportReviewRow{}
	warnings := []string{}
	unresolvedReviews := 0

	for _, block := range blocks {
		inferredBranch, confidence, reason := ScoreChargeSummary(block.ChargeSummary, cfg)

		branch := inferredBranch
		answered := false
		if submitted, ok := answers[block.RowKey]; ok {
			answered = true
			if submitted != "" {
				branch = submitted
			}
			confidence = models.ConfidenceUser
			reason = "Branch set by user."
		}

		needsReview := !answered && confidence.Rank() < threshold.Rank()
		if needsReview {
			branch = cfg.HomeOffice
			unresolvedReviews++
		}

		rows = append(rows, models.NormalizedRow{
			SourceFile:     "invoice",
			Branch:         branch,
			License:        fmt.Sprintf("Support: %s", block.ChargeSummary),
			Amount:         block.Amount,
			AllocationType: models.AllocationTypeBranchTethered,
		})
		supportRows = append(supportRows, models.SupportReviewRow{
			RowKey:           block.RowKey,
			ChargeSummary:    block.ChargeSummary,
			BillableEntries:  block.BillableEntries,
			BillableHours:    block.BillableHours,
			Amount:           block.Amount,
			Branch:           branch,
			Confidence:       confidence,
			AssignmentReason: reason,
			NeedsReview:      needsReview,
		})
	}

	if unresolvedReviews > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"%d support block(s) defaulted to Home Office due to low-confidence matching. Review recommended.",
			unresolvedReviews))
	}

	sort.SliceStable(supportRows, func(i, j int) bool {
		if supportRows[i].NeedsReview != supportRows[j].NeedsReview {
			return supportRows[i].NeedsReview
		}
		return supportRows[i].ChargeSummary < supportRows[j].ChargeSummary
	})
	return rows, supportRows, warnings
}
