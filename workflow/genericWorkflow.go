package workflow

import (
	"context"
	"fmt"

	"github.com/prestonprussell/ITLicensingBreakdown/models"
)

// genericStrategy is the pass-through mode: normalize every file and
// aggregate. No directory, no invoice, no reconciliation.
type genericStrategy struct{}

func (genericStrategy) Allocate(ctx context.Context, input *RunInput) (*RunResult, error) {
	result := newRunResult()

	allRows := []models.NormalizedRow{}
	for _, file := range input.Files {
		rows, summary, warnings := models.NormalizeRows(file)
		allRows = append(allRows, rows...)
		result.Files = append(result.Files, summary)
		result.Warnings = append(result.Warnings, warnings...)
	}

	if input.Invoice != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"%s: invoice kept as reference; generic mode does not reconcile.", input.Invoice.Filename))
	}

	finishBreakdown(result, allRows, nil, "")
	return result, nil
}

// newRunResult pre-allocates every slice so JSON renders [] instead of null.
func newRunResult() *RunResult {
	return &RunResult{
		NewUsers:      []models.UserAllocationRow{},
		UserRows:      []models.UserAllocationRow{},
		NonUserRows:   []models.NonUserRow{},
		BranchPrompts: []models.BranchAssignmentPrompt{},
		SupportRows:   []models.SupportReviewRow{},
		MissingUsers:  []models.DirectoryUser{},
		Files:         []models.FileSummary{},
		Warnings:      []string{},
	}
}
