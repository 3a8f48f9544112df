package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/prestonprussell/ITLicensingBreakdown/config"
	"github.com/prestonprussell/ITLicensingBreakdown/utils"
	"gorm.io/gorm"
)

// DirectoryUser is the persistent identity record behind every per-user
// allocation. Records are soft-deleted (IsActive=false) so historical
// breakdowns stay attributable; they are never physically removed.
//
// Timestamp semantics:
//   - LastSeenAt moves only when the user is observed in a vendor export.
//   - UpdatedAt moves only on an explicit edit (save/deactivate).
type DirectoryUser struct {
	ID         int        `gorm:"primary_key" json:"id"`
	Vendor     VendorType `gorm:"uniqueIndex:idx_vendor_email;size:40;not null" json:"vendor"`
	Email      string     `gorm:"uniqueIndex:idx_vendor_email;size:255;not null" json:"email"`
	FirstName  string     `gorm:"size:100" json:"first_name"`
	LastName   string     `gorm:"size:100" json:"last_name"`
	Branch     string     `gorm:"size:100;not null" json:"branch"`
	IsActive   *bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastSeenAt *time.Time `json:"last_seen_at"`
}

// DirectoryUserInput is one row of a save batch.
type DirectoryUserInput struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Branch    string `json:"branch" validate:"required"`
}

// DirectoryObservation is a sighting of a user in an export; it carries no
// branch because observation must never overwrite a human-entered branch.
type DirectoryObservation struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// DirectoryProfile is the read-side projection strategies join against.
type DirectoryProfile struct {
	Email     string
	FirstName string
	LastName  string
	Branch    string
}

type ProfileMap map[string]DirectoryProfile

// DirectoryDiff is the result of comparing the directory against a freshly
// observed member set.
type DirectoryDiff struct {
	New     []string        `json:"new"`
	Missing []DirectoryUser `json:"missing"`
}

var validate = validator.New()

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateDirectoryBatch checks a whole save batch before anything touches
// the database: blank email, invalid email, blank branch, or a duplicate
// email within the batch rejects the batch entirely.
func validateDirectoryBatch(batch []DirectoryUserInput) error {
	if len(batch) == 0 {
		return errors.New("save batch is empty")
	}
	seen := make(map[string]bool, len(batch))
	for i := range batch {
		batch[i].Email = NormalizeEmail(batch[i].Email)
		batch[i].Branch = strings.TrimSpace(batch[i].Branch)
		batch[i].FirstName = strings.TrimSpace(batch[i].FirstName)
		batch[i].LastName = strings.TrimSpace(batch[i].LastName)

		if err := validate.Struct(&batch[i]); err != nil {
			return fmt.Errorf("row %d (%s): email and branch are required", i+1, batch[i].Email)
		}
		if seen[batch[i].Email] {
			return fmt.Errorf("duplicate email %s in save batch", batch[i].Email)
		}
		seen[batch[i].Email] = true
	}
	return nil
}

// acquireDirectoryLock serializes directory writes per vendor using a MySQL
// advisory lock. GET_LOCK is connection-scoped, so this must run on the same
// *gorm.DB connection as the write transaction.
func acquireDirectoryLock(tx *gorm.DB, vendor VendorType) error {
	lockName := fmt.Sprintf("directory:%s", vendor)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire directory lock for vendor=%s", vendor)
	}
	return nil
}

func releaseDirectoryLock(tx *gorm.DB, vendor VendorType) {
	lockName := fmt.Sprintf("directory:%s", vendor)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// obtainRedisDirectoryLock layers a best-effort cross-instance Redis lock
// on top of the advisory lock. Correctness never depends on it.
func obtainRedisDirectoryLock(ctx context.Context, vendor VendorType) func() {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}
	}
	lock, err := locker.Obtain(ctx, fmt.Sprintf("directory:%s", vendor), 30*time.Second, nil)
	if err != nil {
		if !errors.Is(err, redislock.ErrNotObtained) {
			config.LogError(config.GetLogger(), "directoryUser.go", "obtainRedisDirectoryLock", "Obtain", vendor, err)
		}
		return func() {}
	}
	return func() { _ = lock.Release(context.Background()) }
}

// ListDirectoryUsers returns the directory for one vendor keyed by email.
func ListDirectoryUsers(ctx context.Context, vendor VendorType, activeOnly bool) (map[string]DirectoryUser, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Where("vendor = ?", vendor)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var records []DirectoryUser
	if err := query.Order("email").Find(&records).Error; err != nil {
		return nil, err
	}

	users := make(map[string]DirectoryUser, len(records))
	for _, record := range records {
		email := NormalizeEmail(record.Email)
		if email == "" {
			continue
		}
		record.Email = email
		users[email] = record
	}
	return users, nil
}

// ProfileMapFor loads the active-directory join view for strategies.
func ProfileMapFor(ctx context.Context, vendor VendorType) (ProfileMap, error) {
	users, err := ListDirectoryUsers(ctx, vendor, true)
	if err != nil {
		return nil, err
	}
	profiles := make(ProfileMap, len(users))
	for email, user := range users {
		profiles[email] = DirectoryProfile{
			Email:     email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Branch:    strings.TrimSpace(user.Branch),
		}
	}
	return profiles, nil
}

// UpsertDirectoryUsers writes an explicit edit batch atomically: the whole
// batch is validated first and either every row persists or none does.
// Reactivates soft-deleted records. Does not move LastSeenAt.
func UpsertDirectoryUsers(ctx context.Context, vendor VendorType, batch []DirectoryUserInput) error {
	if err := validateDirectoryBatch(batch); err != nil {
		return err
	}

	release := obtainRedisDirectoryLock(ctx, vendor)
	defer release()

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := acquireDirectoryLock(tx, vendor); err != nil {
			return err
		}
		defer releaseDirectoryLock(tx, vendor)

		now := time.Now().UTC()
		for _, input := range batch {
			var existing DirectoryUser
			err := tx.Where("vendor = ? AND email = ?", vendor, input.Email).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				record := DirectoryUser{
					Vendor:    vendor,
					Email:     input.Email,
					FirstName: input.FirstName,
					LastName:  input.LastName,
					Branch:    input.Branch,
					IsActive:  utils.NewTrue(),
					UpdatedAt: now,
				}
				if err := tx.Create(&record).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				updates := map[string]interface{}{
					"first_name": input.FirstName,
					"last_name":  input.LastName,
					"branch":     input.Branch,
					"is_active":  true,
					"updated_at": now,
				}
				if err := tx.Model(&existing).Updates(updates).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// SeedDirectoryUsers creates records for users first observed in an export,
// with the export-derived default branch. Existing records are left alone so
// human edits are never clobbered by an upload.
func SeedDirectoryUsers(ctx context.Context, vendor VendorType, batch []DirectoryUserInput) error {
	if err := validateDirectoryBatch(batch); err != nil {
		return err
	}

	release := obtainRedisDirectoryLock(ctx, vendor)
	defer release()

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := acquireDirectoryLock(tx, vendor); err != nil {
			return err
		}
		defer releaseDirectoryLock(tx, vendor)

		now := time.Now().UTC()
		for _, input := range batch {
			var count int64
			if err := tx.Model(&DirectoryUser{}).
				Where("vendor = ? AND email = ?", vendor, input.Email).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			record := DirectoryUser{
				Vendor:     vendor,
				Email:      input.Email,
				FirstName:  input.FirstName,
				LastName:   input.LastName,
				Branch:     input.Branch,
				IsActive:   utils.NewTrue(),
				UpdatedAt:  now,
				LastSeenAt: &now,
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// TouchSeenDirectoryUsers records export sightings: LastSeenAt moves, blank
// names are backfilled, branch and UpdatedAt are untouched.
func TouchSeenDirectoryUsers(ctx context.Context, vendor VendorType, observed []DirectoryObservation) error {
	if len(observed) == 0 {
		return nil
	}

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := acquireDirectoryLock(tx, vendor); err != nil {
			return err
		}
		defer releaseDirectoryLock(tx, vendor)

		now := time.Now().UTC()
		for _, sighting := range observed {
			email := NormalizeEmail(sighting.Email)
			if email == "" {
				continue
			}
			err := tx.Exec(`
				UPDATE directory_users
				SET first_name = CASE WHEN ? <> '' AND first_name = '' THEN ? ELSE first_name END,
				    last_name  = CASE WHEN ? <> '' AND last_name = ''  THEN ? ELSE last_name END,
				    is_active = 1,
				    last_seen_at = ?
				WHERE vendor = ? AND email = ?`,
				strings.TrimSpace(sighting.FirstName), strings.TrimSpace(sighting.FirstName),
				strings.TrimSpace(sighting.LastName), strings.TrimSpace(sighting.LastName),
				now, vendor, email,
			).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// DeactivateDirectoryUsers soft-deletes a batch of emails atomically and
// returns how many records changed.
func DeactivateDirectoryUsers(ctx context.Context, vendor VendorType, emails []string) (int, error) {
	normalized := make([]string, 0, len(emails))
	for _, email := range emails {
		if e := NormalizeEmail(email); e != "" {
			normalized = append(normalized, e)
		}
	}
	if len(normalized) == 0 {
		return 0, errors.New("no valid emails in deactivate batch")
	}
	normalized = utils.UniqueSlice(normalized)

	release := obtainRedisDirectoryLock(ctx, vendor)
	defer release()

	var affected int64
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := acquireDirectoryLock(tx, vendor); err != nil {
			return err
		}
		defer releaseDirectoryLock(tx, vendor)

		result := tx.Model(&DirectoryUser{}).
			Where("vendor = ? AND email IN ?", vendor, normalized).
			Updates(map[string]interface{}{
				"is_active":  false,
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	})
	if err == nil && affected == 0 {
		return 0, utils.ErrorRecordNotFound
	}
	return int(affected), err
}

// FindMissingDirectoryUsers returns active users absent from the observed
// email set: the stale/departed-account signal. Omission never deactivates;
// deactivation stays an explicit call.
func FindMissingDirectoryUsers(ctx context.Context, vendor VendorType, observedEmails []string) ([]DirectoryUser, error) {
	users, err := ListDirectoryUsers(ctx, vendor, true)
	if err != nil {
		return nil, err
	}
	return diffObserved(users, observedEmails).Missing, nil
}

// DiffDirectory compares the directory against a freshly observed member set.
func DiffDirectory(ctx context.Context, vendor VendorType, observedEmails []string) (*DirectoryDiff, error) {
	users, err := ListDirectoryUsers(ctx, vendor, true)
	if err != nil {
		return nil, err
	}
	return diffObserved(users, observedEmails), nil
}

// diffObserved splits the loaded active directory against an observed email
// set. Missing users are reported as-is; nothing here flips IsActive.
func diffObserved(users map[string]DirectoryUser, observedEmails []string) *DirectoryDiff {
	diff := &DirectoryDiff{New: []string{}, Missing: []DirectoryUser{}}
	observed := make(map[string]bool, len(observedEmails))
	for _, email := range observedEmails {
		e := NormalizeEmail(email)
		if e == "" {
			continue
		}
		observed[e] = true
		if _, known := users[e]; !known {
			diff.New = append(diff.New, e)
		}
	}
	diff.New = utils.UniqueSlice(diff.New)

	for email, user := range users {
		if !observed[email] {
			diff.Missing = append(diff.Missing, user)
		}
	}
	sortDirectoryUsers(diff.Missing)
	return diff
}

func sortDirectoryUsers(users []DirectoryUser) {
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
}
