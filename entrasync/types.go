package entrasync

import "github.com/prestonprussell/ITLicensingBreakdown/models"

// Member is one identity-provider account with its canonical licenses and
// the branch derived from its office location.
type Member struct {
	Email     string
	FirstName string
	LastName  string
	Branch    string
	Licenses  []string
}

// MemberSource lists the current directory members of the identity
// provider. The Graph client is the production implementation; tests use
// fakes.
type MemberSource interface {
	FetchMembers() (*MemberSet, error)
}

// MemberSet is the raw scan result of one provider listing.
type MemberSet struct {
	Members           []Member
	UsersScanned      int
	SkippedExternal   int
	SkippedUnlicensed int
	UnknownSkuParts   []string
	Warnings          []string
}

// SyncResult reports what a directory sync did. Partial progress counts:
// Synced reflects rows actually written even when the run ended in error.
// MissingUsers lists active directory records the provider no longer has;
// they stay active until someone deactivates them explicitly.
type SyncResult struct {
	Synced            int                    `json:"synced"`
	UsersScanned      int                    `json:"users_scanned"`
	SkippedExternal   int                    `json:"users_skipped_external"`
	SkippedUnlicensed int                    `json:"users_skipped_unlicensed"`
	UnknownSkuParts   []string               `json:"unknown_sku_parts"`
	MissingUsers      []models.DirectoryUser `json:"missing_users"`
	Warnings          []string               `json:"warnings"`
}
