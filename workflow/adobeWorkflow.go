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

// adobeStrategy allocates Adobe charges per user: each product a user holds
// costs that product's invoice unit price against the user's directory
// branch. Users without a branch stall the run (needs_user_enrichment)
// rather than being guessed into a bucket.
type adobeStrategy struct{}

func (adobeStrategy) Allocate(ctx context.Context, input *RunInput) (*RunResult, error) {
	cfg := config.GetAllocationConfig()
	result := newRunResult()

	exportUsers := []models.AdobeExportUser{}
	for _, file := range input.Files {
		users, rowsSkipped, warnings := models.ExtractAdobeUsers(file)
		exportUsers = append(exportUsers, users...)
		result.Files = append(result.Files, models.FileSummary{
			Filename:     file.Name,
			RowsIngested: len(users),
			RowsSkipped:  rowsSkipped,
		})
		result.Warnings = append(result.Warnings, warnings...)
	}

	if err := applyUserEdits(ctx, models.VendorTypeAdobe, input.UserEdits); err != nil {
		return nil, err
	}
	profiles, err := models.ProfileMapFor(ctx, models.VendorTypeAdobe)
	if err != nil {
		return nil, err
	}

	allRows, userRows, warnings, unresolvedEmails := buildAdobeUserAllocations(exportUsers, profiles, input.Invoice.PerLicenseCost, cfg)
	result.Warnings = append(result.Warnings, warnings...)
	result.UserRows = userRows

	observedEmails := make([]string, 0, len(exportUsers))
	for _, user := range exportUsers {
		observedEmails = append(observedEmails, user.Email)
	}
	missing, err := models.FindMissingDirectoryUsers(ctx, models.VendorTypeAdobe, observedEmails)
	if err != nil {
		return nil, err
	}
	result.MissingUsers = missing

	// Unresolved users hold back the whole breakdown: a partial summary
	// with silently-missing people is worse than no summary.
	if len(unresolvedEmails) > 0 {
		unresolved := map[string]bool{}
		for _, email := range unresolvedEmails {
			unresolved[email] = true
		}
		for _, row := range userRows {
			if unresolved[row.Email] {
				result.NewUsers = append(result.NewUsers, row)
			}
		}
		result.NeedsUserEnrichment = true
		result.Message = "Some users are missing a branch. Enter branch values, then analyze again."
		return result, nil
	}

	if err := touchObserved(ctx, models.VendorTypeAdobe, exportUsers); err != nil {
		return nil, err
	}

	finishBreakdown(result, allRows, input.Invoice, cfg.Adobe.AdjustmentLicense)
	return result, nil
}

// buildAdobeUserAllocations is the pure allocation core: join export users
// to directory branches and price each held product from the invoice.
// Unknown products and products with no invoice price are warned once each
// and skipped.
func buildAdobeUserAllocations(
	users []models.AdobeExportUser,
	profiles models.ProfileMap,
	perLicenseCost map[string]decimal.Decimal,
	cfg *config.AllocationConfig,
) ([]models.NormalizedRow, []models.UserAllocationRow, []string, []string) {
	rows := []models.NormalizedRow{}
	warnings := []string{}
	unresolvedEmails := []string{}
	warnedUnknownProduct := map[string]bool{}
	warnedMissingCost := map[string]bool{}
	userRowsMap := map[string]*models.UserAllocationRow{}
	userLicenses := map[string][]string{}
	emailOrder := []string{}

	for _, user := range users {
		if user.Email == "" {
			continue
		}

		profile, known := profiles[user.Email]
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

		entry, seen := userRowsMap[user.Email]
		if !seen {
			entry = &models.UserAllocationRow{
				Email:     user.Email,
				FirstName: firstName,
				LastName:  lastName,
				Branch:    profile.Branch,
				KnownUser: profile.Branch != "",
			}
			userRowsMap[user.Email] = entry
			emailOrder = append(emailOrder, user.Email)
		} else {
			if entry.FirstName == "" {
				entry.FirstName = firstName
			}
			if entry.LastName == "" {
				entry.LastName = lastName
			}
		}

		for _, token := range user.Products {
			canonical, ok := models.CanonicalAdobeProduct(token, cfg)
			if !ok {
				if !warnedUnknownProduct[token] {
					warnings = append(warnings, fmt.Sprintf("Unrecognized Adobe product '%s' skipped.", token))
					warnedUnknownProduct[token] = true
				}
				continue
			}

			if !containsString(userLicenses[user.Email], canonical) {
				userLicenses[user.Email] = append(userLicenses[user.Email], canonical)
			}

			cost, priced := perLicenseCost[canonical]
			if !priced {
				if !warnedMissingCost[canonical] {
					warnings = append(warnings, fmt.Sprintf("No invoice price found for '%s'; charges skipped.", canonical))
					warnedMissingCost[canonical] = true
				}
				continue
			}

			entry.UserTotal = entry.UserTotal.Add(cost)
			if entry.Branch != "" {
				rows = append(rows, models.NormalizedRow{
					SourceFile:     user.SourceFile,
					Branch:         entry.Branch,
					License:        canonical,
					Amount:         cost,
					AllocationType: models.AllocationTypePerUser,
				})
			}
		}

		if entry.Branch == "" && !containsString(unresolvedEmails, user.Email) {
			unresolvedEmails = append(unresolvedEmails, user.Email)
		}
	}

	userRows := make([]models.UserAllocationRow, 0, len(emailOrder))
	for _, email := range emailOrder {
		entry := userRowsMap[email]
		entry.LicenseList = strings.Join(userLicenses[email], ", ")
		entry.UserTotal = utils.Round2(entry.UserTotal)
		userRows = append(userRows, *entry)
	}
	sort.Slice(userRows, func(i, j int) bool {
		if userRows[i].LastName != userRows[j].LastName {
			return userRows[i].LastName < userRows[j].LastName
		}
		if userRows[i].FirstName != userRows[j].FirstName {
			return userRows[i].FirstName < userRows[j].FirstName
		}
		return userRows[i].Email < userRows[j].Email
	})

	return rows, userRows, warnings, unresolvedEmails
}

// applyUserEdits persists prior-round branch assignments before allocation.
// Edits with a blank branch are dropped rather than failing the batch.
func applyUserEdits(ctx context.Context, vendor models.VendorType, edits []models.UserEdit) error {
	batch := make([]models.DirectoryUserInput, 0, len(edits))
	for _, edit := range edits {
		if edit.Branch == "" {
			continue
		}
		batch = append(batch, models.DirectoryUserInput{
			Email:     edit.Email,
			FirstName: edit.FirstName,
			LastName:  edit.LastName,
			Branch:    edit.Branch,
		})
	}
	if len(batch) == 0 {
		return nil
	}
	return models.UpsertDirectoryUsers(ctx, vendor, batch)
}

func touchObserved(ctx context.Context, vendor models.VendorType, users []models.AdobeExportUser) error {
	observed := make([]models.DirectoryObservation, 0, len(users))
	for _, user := range users {
		observed = append(observed, models.DirectoryObservation{
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
		})
	}
	return models.TouchSeenDirectoryUsers(ctx, vendor, observed)
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
