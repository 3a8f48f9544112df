package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prestonprussell/ITLicensingBreakdown/appctx"
	"github.com/prestonprussell/ITLicensingBreakdown/config"
	"github.com/prestonprussell/ITLicensingBreakdown/models"
	"github.com/prestonprussell/ITLicensingBreakdown/models/reports"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RunInput is one allocation run: the vendor mode, the decoded uploads, the
// parsed invoice, and any prior-round answers. Resubmitting the same input
// with the same answers produces a byte-identical breakdown.
type RunInput struct {
	Vendor  models.VendorType
	Files   []models.SourceFile
	Invoice *models.Invoice

	// Prior-round answers for re-entrant runs.
	UserEdits      []models.UserEdit
	BranchAnswers  []models.BranchAssignmentAnswer
	SupportAnswers []models.SupportAnswer

	CorrelationId string
}

// RunResult is everything a run produces. When a review flag is set the
// breakdown, totals and CSV are withheld (empty) so partial numbers never
// leak out.
type RunResult struct {
	Vendor        models.VendorType `json:"vendor_type"`
	CorrelationId string            `json:"correlation_id"`

	NeedsUserEnrichment   bool   `json:"needs_user_enrichment"`
	NeedsBranchAssignment bool   `json:"needs_non_user_branch_assignment"`
	NeedsSupportReview    bool   `json:"needs_support_review"`
	Message               string `json:"message,omitempty"`

	NewUsers             []models.UserAllocationRow      `json:"new_users"`
	UserRows             []models.UserAllocationRow      `json:"user_rows"`
	NonUserRows          []models.NonUserRow             `json:"non_user_rows"`
	BranchPrompts        []models.BranchAssignmentPrompt `json:"non_user_branch_prompts"`
	SupportRows          []models.SupportReviewRow       `json:"support_rows"`
	SupportBranchOptions []string                        `json:"support_branch_options,omitempty"`
	MissingUsers         []models.DirectoryUser          `json:"missing_users"`

	Files          []models.FileSummary         `json:"files"`
	Summary        []reports.BreakdownRow       `json:"summary"`
	BranchTotals   []reports.BranchTotal        `json:"branch_totals"`
	GrandTotal     decimal.Decimal              `json:"grand_total"`
	Reconciliation *models.ReconciliationResult `json:"reconciliation"`
	Warnings       []string                     `json:"warnings"`
	BreakdownCSV   string                       `json:"breakdown_csv"`
}

// Strategy is one vendor allocation mode.
type Strategy interface {
	Allocate(ctx context.Context, input *RunInput) (*RunResult, error)
}

func strategyFor(vendor models.VendorType) (Strategy, error) {
	switch vendor {
	case models.VendorTypeGeneric:
		return genericStrategy{}, nil
	case models.VendorTypeHexnode:
		return hexnodeStrategy{}, nil
	case models.VendorTypeAdobe:
		return adobeStrategy{}, nil
	case models.VendorTypeIntegricom:
		return integricomStrategy{}, nil
	case models.VendorTypeIntegricomSupport:
		return integricomSupportStrategy{}, nil
	}
	_, err := models.ParseVendorType(string(vendor))
	if err == nil {
		err = fmt.Errorf("no strategy registered for vendor_type %q", vendor)
	}
	return nil, err
}

// RunAllocation validates the run structurally, picks the vendor strategy
// and executes it. Structural failures (missing mandatory files or invoice)
// are fatal input errors, not warnings.
func RunAllocation(ctx context.Context, input *RunInput) (*RunResult, error) {
	if input.CorrelationId == "" {
		input.CorrelationId = uuid.NewString()
	}
	ctx = appctx.Set(ctx, appctx.ContextKeyCorrelationId, input.CorrelationId)
	ctx = appctx.Set(ctx, appctx.ContextKeyVendor, string(input.Vendor))

	strategy, err := strategyFor(input.Vendor)
	if err != nil {
		return nil, err
	}
	if err := validateRunInput(input); err != nil {
		return nil, err
	}

	logger := config.GetLogger()
	logger.WithFields(logrus.Fields{
		"vendor":         input.Vendor,
		"correlation_id": input.CorrelationId,
		"files":          len(input.Files),
	}).Info("allocation run started")

	result, err := strategy.Allocate(ctx, input)
	if err != nil {
		config.LogError(logger, "mainWorkflow.go", "RunAllocation", "Allocate", input.Vendor, err)
		return nil, err
	}

	result.Vendor = input.Vendor
	result.CorrelationId = input.CorrelationId
	logger.WithFields(logrus.Fields{
		"vendor":         input.Vendor,
		"correlation_id": input.CorrelationId,
		"grand_total":    result.GrandTotal,
		"warnings":       len(result.Warnings),
	}).Info("allocation run finished")
	return result, nil
}

func validateRunInput(input *RunInput) error {
	switch input.Vendor {
	case models.VendorTypeGeneric, models.VendorTypeHexnode:
		if len(input.Files) == 0 {
			return errors.New("at least one export file is required")
		}
	case models.VendorTypeAdobe:
		if len(input.Files) == 0 {
			return errors.New("at least one export file is required")
		}
		if input.Invoice == nil {
			return errors.New("adobe mode requires an invoice upload")
		}
		if len(input.Invoice.PerLicenseCost) == 0 {
			return errors.New("could not parse adobe invoice line-item pricing")
		}
	case models.VendorTypeIntegricom:
		if len(input.Files) == 0 {
			return errors.New("at least one export file is required")
		}
		if input.Invoice == nil {
			return errors.New("integricom mode requires an invoice upload")
		}
		if len(input.Invoice.LineItems) == 0 {
			return errors.New("could not parse integricom invoice line items")
		}
	case models.VendorTypeIntegricomSupport:
		if input.Invoice == nil {
			return errors.New("integricom support mode requires an invoice upload")
		}
		if len(input.Invoice.SupportBlocks) == 0 {
			return errors.New("could not parse billable support blocks (Bill=Y) from invoice")
		}
	}
	return nil
}

// finishBreakdown computes the shared tail of every resolved run: pivot,
// optional reconciliation against the invoice total, rollups and CSV text.
func finishBreakdown(result *RunResult, rows []models.NormalizedRow, invoice *models.Invoice, adjustmentLicense string) {
	cfg := config.GetAllocationConfig()
	summary := reports.BuildBreakdown(rows)

	if invoice != nil && invoice.InvoiceTotal != nil && adjustmentLicense != "" {
		baseTotal := reports.GrandTotal(summary)
		reconciliation := Reconcile(baseTotal, *invoice.InvoiceTotal)
		summary = ApplyHomeOfficeAdjustment(summary, reconciliation.HomeOfficeAdjustment, adjustmentLicense, cfg.HomeOffice)
		result.Reconciliation = &reconciliation
	} else if invoice != nil && invoice.InvoiceTotal == nil && adjustmentLicense != "" {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Could not extract a total from invoice %s; the Home Office adjustment was not applied.", invoice.Filename))
	}

	result.Summary = summary
	result.BranchTotals = reports.BuildBranchTotals(summary)
	result.GrandTotal = reports.GrandTotal(summary)
	result.BreakdownCSV = reports.BreakdownCSV(summary)
}
