package entrasync

import (
	"context"

	"github.com/prestonprussell/ITLicensingBreakdown/config"
	"github.com/prestonprussell/ITLicensingBreakdown/models"
	"github.com/sirupsen/logrus"
)

// SyncDirectory pulls the current provider members into the Integricom
// Identity Directory. New members are created with their provider-derived
// branch; existing records only get a last-seen touch and name backfill, so
// a branch an operator typed in is never clobbered by a sync.
//
// Best-effort: counts reflect how far the run got even when it errors out.
func SyncDirectory(ctx context.Context, source MemberSource) (*SyncResult, error) {
	logger := config.GetLogger()

	set, err := source.FetchMembers()
	if err != nil {
		config.LogError(logger, "worker.go", "SyncDirectory", "FetchMembers", nil, err)
		return &SyncResult{UnknownSkuParts: []string{}, MissingUsers: []models.DirectoryUser{}, Warnings: []string{}}, err
	}

	result := &SyncResult{
		UsersScanned:      set.UsersScanned,
		SkippedExternal:   set.SkippedExternal,
		SkippedUnlicensed: set.SkippedUnlicensed,
		UnknownSkuParts:   set.UnknownSkuParts,
		MissingUsers:      []models.DirectoryUser{},
		Warnings:          set.Warnings,
	}

	existing, err := models.ListDirectoryUsers(ctx, models.VendorTypeIntegricom, false)
	if err != nil {
		return result, err
	}

	newcomers := []models.DirectoryUserInput{}
	observed := []models.DirectoryObservation{}
	for _, member := range set.Members {
		if _, known := existing[member.Email]; known {
			observed = append(observed, models.DirectoryObservation{
				Email:     member.Email,
				FirstName: member.FirstName,
				LastName:  member.LastName,
			})
			continue
		}
		newcomers = append(newcomers, models.DirectoryUserInput{
			Email:     member.Email,
			FirstName: member.FirstName,
			LastName:  member.LastName,
			Branch:    member.Branch,
		})
	}

	if len(newcomers) > 0 {
		if err := models.SeedDirectoryUsers(ctx, models.VendorTypeIntegricom, newcomers); err != nil {
			return result, err
		}
		result.Synced += len(newcomers)
	}
	if len(observed) > 0 {
		if err := models.TouchSeenDirectoryUsers(ctx, models.VendorTypeIntegricom, observed); err != nil {
			return result, err
		}
		result.Synced += len(observed)
	}

	observedEmails := make([]string, 0, len(set.Members))
	for _, member := range set.Members {
		observedEmails = append(observedEmails, member.Email)
	}
	diff, err := models.DiffDirectory(ctx, models.VendorTypeIntegricom, observedEmails)
	if err != nil {
		return result, err
	}
	result.MissingUsers = diff.Missing

	logger.WithFields(logrus.Fields{
		"synced":             result.Synced,
		"users_scanned":      result.UsersScanned,
		"skipped_external":   result.SkippedExternal,
		"skipped_unlicensed": result.SkippedUnlicensed,
		"unknown_skus":       len(result.UnknownSkuParts),
		"missing_users":      len(result.MissingUsers),
	}).Info("entra directory sync finished")
	return result, nil
}
