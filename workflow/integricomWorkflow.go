package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/prestonprussell/ITLicensingBreakdown/config"
	"github.com/prestonprussell/ITLicensingBreakdown/models"
	"github.com/prestonprussell/ITLicensingBreakdown/utils"
	"github.com/shopspring/decimal"
)

// integricomStrategy allocates the MSP invoice: per-user licensing lines
// follow the users holding the matching license tokens, fixed lines follow
// configured branch templates, and extra template units beyond the sequence
// come back as branch-assignment prompts instead of guesses.
type integricomStrategy struct{}

func (integricomStrategy) Allocate(ctx context.Context, input *RunInput) (*RunResult, error) {
	cfg := config.GetAllocationConfig()
	result := newRunResult()

	exportUsers := []models.IntegricomExportUser{}
	for _, file := range input.Files {
		users, rowsSkipped, warnings := models.ExtractIntegricomUsers(file)
		exportUsers = append(exportUsers, users...)
		result.Files = append(result.Files, models.FileSummary{
			Filename:     file.Name,
			RowsIngested: len(users),
			RowsSkipped:  rowsSkipped,
		})
		result.Warnings = append(result.Warnings, warnings...)
	}

	if err := applyUserEdits(ctx, models.VendorTypeIntegricom, input.UserEdits); err != nil {
		return nil, err
	}
	if err := seedExportUsers(ctx, exportUsers); err != nil {
		return nil, err
	}
	profiles, err := models.ProfileMapFor(ctx, models.VendorTypeIntegricom)
	if err != nil {
		return nil, err
	}

	allocation := buildIntegricomAllocations(exportUsers, profiles, input.Invoice.LineItems, input.BranchAnswers, cfg)
	result.Warnings = append(result.Warnings, allocation.Warnings...)
	result.UserRows = allocation.UserRows
	result.NonUserRows = allocation.NonUserRows
	result.BranchPrompts = allocation.Prompts

	observedEmails := make([]string, 0, len(exportUsers))
	for _, user := range exportUsers {
		observedEmails = append(observedEmails, user.Email)
	}
	missing, err := models.FindMissingDirectoryUsers(ctx, models.VendorTypeIntegricom, observedEmails)
	if err != nil {
		return nil, err
	}
	result.MissingUsers = missing

	result.NeedsUserEnrichment = len(allocation.UnresolvedEmails) > 0
	result.NeedsBranchAssignment = len(allocation.Prompts) > 0
	if result.NeedsUserEnrichment || result.NeedsBranchAssignment {
		unresolved := map[string]bool{}
		for _, email := range allocation.UnresolvedEmails {
			unresolved[email] = true
		}
		for _, row := range allocation.UserRows {
			if unresolved[row.Email] {
				result.NewUsers = append(result.NewUsers, row)
			}
		}

		messageParts := []string{}
		if result.NeedsUserEnrichment {
			messageParts = append(messageParts, "Some users are missing a branch.")
		}
		if result.NeedsBranchAssignment {
			messageParts = append(messageParts, "Some branch-tethered charges need branch assignments.")
		}
		messageParts = append(messageParts, "Enter missing values, then analyze again.")
		result.Message = strings.Join(messageParts, " ")
		return result, nil
	}

	observed := make([]models.DirectoryObservation, 0, len(exportUsers))
	for _, user := range exportUsers {
		observed = append(observed, models.DirectoryObservation{
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
		})
	}
	if err := models.TouchSeenDirectoryUsers(ctx, models.VendorTypeIntegricom, observed); err != nil {
		return nil, err
	}

	finishBreakdown(result, allocation.Rows, input.Invoice, cfg.Integricom.AdjustmentLicense)
	return result, nil
}

// seedExportUsers creates directory records for first-time export users with
// their export-derived default branch. Existing records are untouched.
func seedExportUsers(ctx context.Context, users []models.IntegricomExportUser) error {
	batch := make([]models.DirectoryUserInput, 0, len(users))
	seen := map[string]bool{}
	for _, user := range users {
		if user.Email == "" || seen[user.Email] {
			continue
		}
		seen[user.Email] = true
		batch = append(batch, models.DirectoryUserInput{
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Branch:    user.DefaultBranch,
		})
	}
	if len(batch) == 0 {
		return nil
	}
	return models.SeedDirectoryUsers(ctx, models.VendorTypeIntegricom, batch)
}

// integricomAllocation is the output of the pure allocation core.
type integricomAllocation struct {
	Rows             []models.NormalizedRow
	UserRows         []models.UserAllocationRow
	NonUserRows      []models.NonUserRow
	Warnings         []string
	UnresolvedEmails []string
	Prompts          []models.BranchAssignmentPrompt
}

// buildIntegricomAllocations walks the invoice line by line. Dynamic lines
// charge each matching export user one unit price and push the unmatched
// remainder to Home Office as an Invoice Delta. Everything else goes
// through the fixed-line allocator.
func buildIntegricomAllocations(
	users []models.IntegricomExportUser,
	profiles models.ProfileMap,
	invoiceLines []models.InvoiceLineItem,
	branchAnswers []models.BranchAssignmentAnswer,
	cfg *config.AllocationConfig,
) integricomAllocation {
	allocation := integricomAllocation{
		Rows:             []models.NormalizedRow{},
		UserRows:         []models.UserAllocationRow{},
		NonUserRows:      []models.NonUserRow{},
		Warnings:         []string{},
		UnresolvedEmails: []string{},
		Prompts:          []models.BranchAssignmentPrompt{},
	}

	answers := map[string]string{}
	for _, answer := range branchAnswers {
		lineKey := strings.TrimSpace(answer.LineKey)
		if lineKey == "" || answer.PromptIndex < 1 {
			continue
		}
		answers[promptKey(lineKey, answer.PromptIndex)] = strings.TrimSpace(answer.Branch)
	}

	userRowsMap := map[string]*models.UserAllocationRow{}
	userLicenses := map[string][]string{}
	for _, user := range users {
		if user.Email == "" {
			continue
		}
		profile, known := profiles[user.Email]
		branch := profile.Branch
		if branch == "" {
			branch = user.DefaultBranch
		}
		firstName := user.FirstName
		lastName := user.LastName
		if known {
			if firstName == "" {
				firstName = profile.FirstName
			}
			if lastName == "" {
				lastName = profile.LastName
			}
		}

		userRowsMap[user.Email] = &models.UserAllocationRow{
			Email:     user.Email,
			FirstName: firstName,
			LastName:  lastName,
			Branch:    branch,
			KnownUser: known && profile.Branch != "",
		}
		if branch == "" && !containsString(allocation.UnresolvedEmails, user.Email) {
			allocation.UnresolvedEmails = append(allocation.UnresolvedEmails, user.Email)
		}
	}

	nonUserRaw := []models.NonUserRow{}
	for lineIndex, line := range invoiceLines {
		lineKey := fmt.Sprintf("%d:%s", lineIndex+1, line.CanonicalName)

		if tokens, dynamic := cfg.Integricom.DynamicLicenses[line.CanonicalName]; dynamic {
			matchedCount := 0
			for _, user := range users {
				if !userHoldsAny(user, tokens) {
					continue
				}
				matchedCount++
				entry, ok := userRowsMap[user.Email]
				if !ok {
					continue
				}
				if !containsString(userLicenses[user.Email], line.CanonicalName) {
					userLicenses[user.Email] = append(userLicenses[user.Email], line.CanonicalName)
				}
				entry.UserTotal = entry.UserTotal.Add(line.UnitPrice)
				if entry.Branch != "" {
					allocation.Rows = append(allocation.Rows, models.NormalizedRow{
						SourceFile:     "invoice",
						Branch:         entry.Branch,
						License:        line.CanonicalName,
						Amount:         line.UnitPrice,
						AllocationType: models.AllocationTypePerUser,
					})
				}
			}

			invoiceQty := int(line.Quantity.IntPart())
			if matchedCount != invoiceQty {
				allocation.Warnings = append(allocation.Warnings, fmt.Sprintf(
					"%s: invoice quantity is %d, matched users are %d; difference allocated to Home Office.",
					line.CanonicalName, invoiceQty, matchedCount))
			}

			allocatedTotal := utils.Round2(line.UnitPrice.Mul(decimal.NewFromInt(int64(matchedCount))))
			remainder := utils.Round2(line.Amount.Sub(allocatedTotal))
			if !remainder.IsZero() {
				allocation.Rows = append(allocation.Rows, models.NormalizedRow{
					SourceFile:     "invoice",
					Branch:         cfg.HomeOffice,
					License:        line.CanonicalName,
					Amount:         remainder,
					AllocationType: models.AllocationTypeInvoiceDelta,
				})
				nonUserRaw = append(nonUserRaw, models.NonUserRow{
					Branch:         cfg.HomeOffice,
					License:        line.CanonicalName,
					AllocationType: models.AllocationTypeInvoiceDelta,
					TotalAmount:    remainder,
				})
			}
			continue
		}

		fixedRows, fixedWarnings, prompts := allocateFixedLine(line, lineKey, answers, cfg)
		allocation.Rows = append(allocation.Rows, fixedRows...)
		for _, row := range fixedRows {
			nonUserRaw = append(nonUserRaw, models.NonUserRow{
				Branch:         row.Branch,
				License:        row.License,
				AllocationType: row.AllocationType,
				TotalAmount:    row.Amount,
			})
		}
		allocation.Warnings = append(allocation.Warnings, fixedWarnings...)
		allocation.Prompts = append(allocation.Prompts, prompts...)
	}

	allocation.NonUserRows = groupNonUserRows(nonUserRaw)

	for email, entry := range userRowsMap {
		entry.LicenseList = strings.Join(userLicenses[email], ", ")
		entry.UserTotal = utils.Round2(entry.UserTotal)
		allocation.UserRows = append(allocation.UserRows, *entry)
	}
	sort.Slice(allocation.UserRows, func(i, j int) bool {
		a, b := allocation.UserRows[i], allocation.UserRows[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.Email < b.Email
	})

	return allocation
}

func promptKey(lineKey string, promptIndex int) string {
	return fmt.Sprintf("%s#%d", lineKey, promptIndex)
}

func userHoldsAny(user models.IntegricomExportUser, tokens []string) bool {
	for _, token := range tokens {
		for _, held := range user.Licenses {
			if held == token {
				return true
			}
		}
	}
	return false
}

// allocateFixedLine distributes one non-dynamic invoice line: forced Home
// Office sets, single-branch lines, fixed dollar splits, and branch
// template sequences at one unit per branch. Template lines with more units
// than branches emit prompts; while any prompt is pending the remainder is
// withheld so an unanswered unit never lands on Home Office by default.
func allocateFixedLine(
	line models.InvoiceLineItem,
	lineKey string,
	answers map[string]string,
	cfg *config.AllocationConfig,
) ([]models.NormalizedRow, []string, []models.BranchAssignmentPrompt) {
	rows := []models.NormalizedRow{}
	warnings := []string{}
	prompts := []models.BranchAssignmentPrompt{}

	qty := int(line.Quantity.IntPart())
	unit := utils.Round2(line.UnitPrice)
	total := utils.Round2(line.Amount)

	addTypedRow := func(branch string, amount decimal.Decimal, allocationType models.AllocationType) {
		amount = utils.Round2(amount)
		if amount.IsZero() {
			return
		}
		if branch == "" {
			branch = cfg.HomeOffice
		}
		rows = append(rows, models.NormalizedRow{
			SourceFile:     "invoice",
			Branch:         branch,
			License:        line.CanonicalName,
			Amount:         amount,
			AllocationType: allocationType,
		})
	}
	addRow := func(branch string, amount decimal.Decimal) {
		addTypedRow(branch, amount, models.AllocationTypeFixedTemplate)
	}

	knownBranches := cfg.Integricom.KnownBranches(cfg.HomeOffice)
	addPrompt := func(promptIndex int, assigned []string, submitted, validationError string) {
		available := []string{}
		for _, branch := range knownBranches {
			if !containsString(assigned, branch) {
				available = append(available, branch)
			}
		}
		prompts = append(prompts, models.BranchAssignmentPrompt{
			LineKey:                 lineKey,
			PromptIndex:             promptIndex,
			License:                 line.CanonicalName,
			UnitPrice:               unit,
			Quantity:                qty,
			AlreadyAssignedBranches: append([]string{}, assigned...),
			AvailableBranches:       available,
			Branch:                  submitted,
			ValidationError:         validationError,
		})
	}

	allocateByUnitSequence := func(branches []string) {
		assignedUnits := qty
		if assignedUnits < 0 {
			assignedUnits = 0
		}
		if assignedUnits > len(branches) {
			assignedUnits = len(branches)
		}
		assignedOrder := append([]string{}, branches[:assignedUnits]...)
		for _, branch := range assignedOrder {
			addRow(branch, unit)
		}

		if qty < len(branches) {
			warnings = append(warnings, fmt.Sprintf(
				"%s: invoice quantity is %d; template allocation used the first %d branches.",
				line.CanonicalName, qty, assignedUnits))
		}

		extraUnits := qty - len(branches)
		for promptIndex := 1; promptIndex <= extraUnits; promptIndex++ {
			submitted := answers[promptKey(lineKey, promptIndex)]
			if submitted == "" {
				addPrompt(promptIndex, assignedOrder, "", "")
				continue
			}
			if containsString(assignedOrder, submitted) {
				warnings = append(warnings, fmt.Sprintf(
					"%s: branch '%s' is already assigned; choose a different branch for extra license %d.",
					line.CanonicalName, submitted, promptIndex))
				addPrompt(promptIndex, assignedOrder, submitted,
					fmt.Sprintf("%s is already assigned for this charge.", submitted))
				continue
			}
			addRow(submitted, unit)
			assignedOrder = append(assignedOrder, submitted)
		}

		if len(prompts) > 0 {
			warnings = append(warnings, fmt.Sprintf(
				"%s: %d extra branch assignment(s) required before this charge can be finalized.",
				line.CanonicalName, len(prompts)))
			return
		}

		assignedAmount := utils.Round2(unit.Mul(decimal.NewFromInt(int64(len(assignedOrder)))))
		remainder := utils.Round2(total.Sub(assignedAmount))
		if !remainder.IsZero() {
			addRow(cfg.HomeOffice, remainder)
		}
	}

	if containsString(cfg.Integricom.ForcedHomeOffice, line.CanonicalName) {
		addTypedRow(cfg.HomeOffice, total, models.AllocationTypeForcedHomeOffice)
		return rows, warnings, prompts
	}

	if branches, ok := cfg.Integricom.TemplateSequences[line.CanonicalName]; ok {
		allocateByUnitSequence(branches)
		return rows, warnings, prompts
	}

	if shares, ok := cfg.Integricom.FixedSplits[line.CanonicalName]; ok {
		sharesTotal := decimal.Zero
		for _, share := range shares {
			sharesTotal = sharesTotal.Add(share.Amount)
		}
		if total.GreaterThanOrEqual(sharesTotal) {
			for _, share := range shares {
				addRow(share.Branch, share.Amount)
			}
			addRow(cfg.HomeOffice, total.Sub(sharesTotal))
		} else {
			addRow(cfg.HomeOffice, total)
			warnings = append(warnings, fmt.Sprintf(
				"%s: invoice amount was below expected split baseline; allocated entirely to Home Office.",
				line.CanonicalName))
		}
		return rows, warnings, prompts
	}

	if branch, ok := cfg.Integricom.SingleBranch[line.CanonicalName]; ok {
		addRow(branch, total)
		return rows, warnings, prompts
	}

	addRow(cfg.HomeOffice, total)
	warnings = append(warnings, fmt.Sprintf(
		"%s: no allocation rule configured; amount allocated to Home Office.", line.CanonicalName))
	return rows, warnings, prompts
}

// groupNonUserRows pivots non-user charges into one row per (branch,
// license, allocation type), sorted for stable output.
func groupNonUserRows(raw []models.NonUserRow) []models.NonUserRow {
	grouped := map[string]*models.NonUserRow{}
	for _, row := range raw {
		key := row.Branch + "\x00" + row.License + "\x00" + string(row.AllocationType)
		if entry, ok := grouped[key]; ok {
			entry.TotalAmount = entry.TotalAmount.Add(row.TotalAmount)
		} else {
			copied := row
			grouped[key] = &copied
		}
	}

	rows := make([]models.NonUserRow, 0, len(grouped))
	for _, entry := range grouped {
		entry.TotalAmount = utils.Round2(entry.TotalAmount)
		rows = append(rows, *entry)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Branch != rows[j].Branch {
			return rows[i].Branch < rows[j].Branch
		}
		if rows[i].License != rows[j].License {
			return rows[i].License < rows[j].License
		}
		return rows[i].AllocationType < rows[j].AllocationType
	})
	return rows
}
