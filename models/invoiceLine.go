package models

import (
	"regexp"
	"strings"

	"github.com/prestonprussell/ITLicensingBreakdown/config"
	"github.com/prestonprussell/ITLicensingBreakdown/utils"
	"github.com/shopspring/decimal"
)

// Invoice is the parsed vendor bill, already reduced to structured data by
// the caller (line items for Integricom, per-license prices for Adobe, a
// billed device count for Hexnode). InvoiceTotal is nil when the caller
// could not extract one; a nil total means "no reconciliation", never an
// implicit zero.
type Invoice struct {
	Filename          string                     `json:"filename"`
	InvoiceNumber     string                     `json:"invoice_number"`
	InvoiceTotal      *decimal.Decimal           `json:"invoice_total"`
	PerLicenseCost    map[string]decimal.Decimal `json:"per_license_cost,omitempty"`
	LineItems         []InvoiceLineItem          `json:"line_items,omitempty"`
	SupportBlocks     []SupportBlock             `json:"support_blocks,omitempty"`
	BilledDeviceCount *int                       `json:"billed_device_count,omitempty"`
}

// InvoiceLineItem is one charge line of an Integricom invoice.
type InvoiceLineItem struct {
	Description   string          `json:"description"`
	CanonicalName string          `json:"canonical_name"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Amount        decimal.Decimal `json:"amount"`
}

// SupportBlock is one billable "Charge To" block of a support-hours invoice.
// RowKey is stable across reruns of the same invoice so user answers can be
// replayed.
type SupportBlock struct {
	RowKey          string          `json:"row_key"`
	ChargeSummary   string          `json:"charge_summary"`
	BillableEntries int             `json:"billable_entries"`
	BillableHours   decimal.Decimal `json:"billable_hours"`
	Amount          decimal.Decimal `json:"amount"`
}

// BranchAssignmentPrompt asks the operator where one extra invoice unit
// (beyond the branch template) belongs. Keyed by (LineKey, PromptIndex).
type BranchAssignmentPrompt struct {
	LineKey                 string          `json:"line_key"`
	PromptIndex             int             `json:"prompt_index"`
	License                 string          `json:"license"`
	UnitPrice               decimal.Decimal `json:"unit_price"`
	Quantity                int             `json:"quantity"`
	AlreadyAssignedBranches []string        `json:"already_assigned_branches"`
	AvailableBranches       []string        `json:"available_branches"`
	Branch                  string          `json:"branch"`
	ValidationError         string          `json:"validation_error"`
}

// SupportReviewRow is the operator-facing view of one support block after
// scoring and any user override.
type SupportReviewRow struct {
	RowKey           string          `json:"row_key"`
	ChargeSummary    string          `json:"charge_summary"`
	BillableEntries  int             `json:"billable_entries"`
	BillableHours    decimal.Decimal `json:"billable_hours"`
	Amount           decimal.Decimal `json:"amount"`
	Branch           string          `json:"branch"`
	Confidence       ConfidenceLevel `json:"confidence"`
	AssignmentReason string          `json:"assignment_reason"`
	NeedsReview      bool            `json:"needs_review"`
}

// UserAllocationRow is the operator-facing per-user view of a per-user
// allocation run. KnownUser is false until the directory has a branch.
type UserAllocationRow struct {
	Email       string          `json:"email"`
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	Branch      string          `json:"branch"`
	LicenseList string          `json:"license_list"`
	UserTotal   decimal.Decimal `json:"user_total"`
	KnownUser   bool            `json:"known_user"`
}

// NonUserRow is one (branch, license, allocation type) bucket of charges
// that did not flow through a user: fixed branch items and invoice deltas.
type NonUserRow struct {
	Branch         string          `json:"branch"`
	License        string          `json:"license"`
	AllocationType AllocationType  `json:"allocation_type"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

// ReconciliationResult records how the breakdown was tied back to the
// invoice total.
type ReconciliationResult struct {
	BaseTotal            decimal.Decimal `json:"base_total"`
	InvoiceTotal         decimal.Decimal `json:"invoice_total"`
	HomeOfficeAdjustment decimal.Decimal `json:"home_office_adjustment"`
}

// UserEdit is one prior-round user branch assignment, keyed by email.
type UserEdit struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Branch    string `json:"branch" validate:"required"`
}

// BranchAssignmentAnswer answers one BranchAssignmentPrompt.
type BranchAssignmentAnswer struct {
	LineKey     string `json:"line_key"`
	PromptIndex int    `json:"prompt_index"`
	Branch      string `json:"branch"`
}

// SupportAnswer overrides the branch of one support block.
type SupportAnswer struct {
	RowKey string `json:"row_key"`
	Branch string `json:"branch"`
}

var directTagPattern = regexp.MustCompile(`(?i)\s*\(DIRECT[^)]*\)\s*`)

// normalizeProductName folds export product-name noise: DIRECT purchase
// tags, en dashes, runs of whitespace, case.
func normalizeProductName(value string) string {
	cleaned := directTagPattern.ReplaceAllString(value, "")
	return strings.ToLower(utils.NormalizeText(cleaned))
}

func matchProductPattern(normalized string, patterns []config.ProductPattern) (string, bool) {
	for _, pattern := range patterns {
		matched := true
		for _, token := range pattern.Contains {
			if !strings.Contains(normalized, token) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		for _, token := range pattern.Excludes {
			if strings.Contains(normalized, token) {
				matched = false
				break
			}
		}
		if matched {
			return pattern.Canonical, true
		}
	}
	return "", false
}

// CanonicalAdobeProduct maps an export product token to its canonical
// license name: exact alias first, then the configured contains patterns.
// Unrecognized products return ok=false so the caller can warn once.
func CanonicalAdobeProduct(value string, cfg *config.AllocationConfig) (string, bool) {
	normalized := normalizeProductName(value)
	if normalized == "" {
		return "", false
	}
	if canonical, ok := cfg.Adobe.ProductAliases[normalized]; ok {
		return canonical, true
	}
	return matchProductPattern(normalized, cfg.Adobe.ProductPatterns)
}

// CanonicalIntegricomLine maps a free-text invoice line description to the
// canonical name allocation rules key on. Descriptions with no configured
// pattern pass through normalized, so unmodeled charges still aggregate.
func CanonicalIntegricomLine(description string, cfg *config.AllocationConfig) string {
	normalized := strings.ToLower(utils.NormalizeText(description))
	if canonical, ok := matchProductPattern(normalized, cfg.Integricom.LinePatterns); ok {
		return canonical
	}
	return utils.NormalizeText(description)
}
