package models

import (
	"fmt"
	"strings"

	"github.com/prestonprussell/ITLicensingBreakdown/config"
	"github.com/prestonprussell/ITLicensingBreakdown/utils"
)

// AdobeExportUser is one row of the Adobe admin-console export: a user and
// the product tokens assigned to them.
type AdobeExportUser struct {
	SourceFile string   `json:"source_file"`
	Email      string   `json:"email"`
	FirstName  string   `json:"first_name"`
	LastName   string   `json:"last_name"`
	Products   []string `json:"products"`
}

// IntegricomExportUser is one row of the M365 user export: a user, their
// office location, and the license tokens on their account.
type IntegricomExportUser struct {
	SourceFile    string   `json:"source_file"`
	Email         string   `json:"email"`
	FirstName     string   `json:"first_name"`
	LastName      string   `json:"last_name"`
	Office        string   `json:"office"`
	DefaultBranch string   `json:"default_branch"`
	Licenses      []string `json:"licenses"`
}

// ExtractAdobeUsers pulls per-user product assignments out of a decoded
// Adobe export. Email and Team Products columns are mandatory; a file
// without them is rejected with a warning instead of guessed at.
func ExtractAdobeUsers(file SourceFile) ([]AdobeExportUser, int, []string) {
	emailCol, hasEmail := utils.MatchHeader(file.Headers, []string{"email", "user_email"})
	firstNameCol, hasFirstName := utils.MatchHeader(file.Headers, []string{"first_name", "first", "given_name"})
	lastNameCol, hasLastName := utils.MatchHeader(file.Headers, []string{"last_name", "last", "surname", "family_name"})
	productsCol, hasProducts := utils.MatchHeader(file.Headers, []string{"team_products", "products", "product", "licenses", "license"})

	if !hasEmail || !hasProducts {
		return nil, 0, []string{
			fmt.Sprintf("%s: expected Adobe export columns (Email, Team Products) were not found.", file.Name),
		}
	}

	users := make([]AdobeExportUser, 0, len(file.Rows))
	warnings := []string{}
	rowsSkipped := 0

	for i, row := range file.Rows {
		lineNumber := i + 2
		email := NormalizeEmail(row[emailCol])
		if email == "" {
			rowsSkipped++
			warnings = append(warnings, fmt.Sprintf("%s: row %d skipped (missing email).", file.Name, lineNumber))
			continue
		}

		user := AdobeExportUser{
			SourceFile: file.Name,
			Email:      email,
			Products:   splitTokens(row[productsCol], ","),
		}
		if hasFirstName {
			user.FirstName = strings.TrimSpace(row[firstNameCol])
		}
		if hasLastName {
			user.LastName = strings.TrimSpace(row[lastNameCol])
		}
		users = append(users, user)
	}
	return users, rowsSkipped, warnings
}

// ExtractIntegricomUsers pulls per-user license assignments out of a decoded
// M365 export. External guest accounts (#EXT# principals) and unlicensed
// accounts are skipped and counted, never allocated.
func ExtractIntegricomUsers(file SourceFile) ([]IntegricomExportUser, int, []string) {
	cfg := config.GetAllocationConfig()

	emailCol, hasEmail := utils.MatchHeader(file.Headers, []string{"user_principal_name", "user_principal", "email", "user_email"})
	firstNameCol, hasFirstName := utils.MatchHeader(file.Headers, []string{"first_name", "first", "given_name"})
	lastNameCol, hasLastName := utils.MatchHeader(file.Headers, []string{"last_name", "last", "surname", "family_name"})
	officeCol, hasOffice := utils.MatchHeader(file.Headers, []string{"office", "branch", "location", "site"})
	licensesCol, hasLicenses := utils.MatchHeader(file.Headers, []string{"licenses", "license", "products"})

	if !hasEmail || !hasLicenses {
		return nil, 0, []string{
			fmt.Sprintf("%s: expected columns (User principal name, Licenses) were not found.", file.Name),
		}
	}

	users := make([]IntegricomExportUser, 0, len(file.Rows))
	warnings := []string{}
	rowsSkipped := 0

	for i, row := range file.Rows {
		lineNumber := i + 2
		email := NormalizeEmail(row[emailCol])
		if email == "" {
			rowsSkipped++
			warnings = append(warnings, fmt.Sprintf("%s: row %d skipped (missing email).", file.Name, lineNumber))
			continue
		}
		if strings.Contains(email, "#ext#") {
			rowsSkipped++
			continue
		}

		licensesRaw := strings.TrimSpace(row[licensesCol])
		if licensesRaw == "" || strings.EqualFold(licensesRaw, "unlicensed") {
			rowsSkipped++
			continue
		}
		tokens := splitTokens(licensesRaw, "+")
		if len(tokens) == 0 {
			rowsSkipped++
			continue
		}

		office := ""
		if hasOffice {
			office = strings.TrimSpace(row[officeCol])
		}

		user := IntegricomExportUser{
			SourceFile:    file.Name,
			Email:         email,
			Office:        office,
			DefaultBranch: NormalizeIntegricomBranch(office, cfg),
			Licenses:      tokens,
		}
		if hasFirstName {
			user.FirstName = strings.TrimSpace(row[firstNameCol])
		}
		if hasLastName {
			user.LastName = strings.TrimSpace(row[lastNameCol])
		}
		users = append(users, user)
	}
	return users, rowsSkipped, warnings
}

// NormalizeIntegricomBranch maps an export office location to a directory
// branch. Blank and corporate offices fold into Home Office.
func NormalizeIntegricomBranch(office string, cfg *config.AllocationConfig) string {
	raw := strings.TrimSpace(office)
	if mapped, ok := cfg.Integricom.BranchAliases[raw]; ok {
		return mapped
	}
	if raw == "" {
		return cfg.HomeOffice
	}
	return raw
}

func splitTokens(value, separator string) []string {
	tokens := []string{}
	for _, token := range strings.Split(value, separator) {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			tokens = append(tokens, trimmed)
		}
	}
	return tokens
}
