package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/barazo-forum/barazo-api-sub003/directory"
	"github.com/barazo-forum/barazo-api-sub003/models"
	"github.com/barazo-forum/barazo-api-sub003/tracker"
)

// upstream account status values
const (
	accountStatusDeleted   = "deleted"
	accountStatusTakendown = "takendown"
)

// IdentityHandler reacts to identity and account events from the stream:
// handle changes, reversible status changes, and full account deletion.
type IdentityHandler struct {
	DB       *gorm.DB
	Logger   *slog.Logger
	Resolver directory.Resolver
	Tracker  *tracker.Store
}

// HandleIdentity refreshes the identity's handle from the directory. The
// event's own handle field is advisory; the directory is authoritative.
func (h *IdentityHandler) HandleIdentity(ctx context.Context, did, eventHandle string) error {
	h.Resolver.Purge(did)

	handle := eventHandle
	if ident, err := h.Resolver.Lookup(ctx, did); err != nil {
		h.Logger.Warn("directory lookup failed during handle update, using event handle", "did", did, "err", err)
	} else if ident.Handle != "" {
		handle = ident.Handle
	}
	if handle == "" {
		return nil
	}

	res := h.DB.WithContext(ctx).Model(&models.User{}).
		Where("did = ?", did).
		Update("handle", handle)
	if res.Error != nil {
		return fmt.Errorf("updating handle for %s: %w", did, res.Error)
	}
	identityEventsCounter.WithLabelValues("identity").Inc()
	return nil
}

// HandleAccount dispatches on account status. Deletion is the only hard,
// cascading multi-table purge outside normal content flows; deactivation and
// takedown are reversible and only recorded.
func (h *IdentityHandler) HandleAccount(ctx context.Context, did string, active bool, status string) error {
	identityEventsCounter.WithLabelValues("account").Inc()

	if active {
		return h.setAccountStatus(ctx, did, models.AccountStatusActive)
	}

	switch status {
	case accountStatusDeleted:
		return h.purgeAccount(ctx, did)
	case accountStatusTakendown:
		return h.setAccountStatus(ctx, did, models.AccountStatusTakendown)
	default:
		return h.setAccountStatus(ctx, did, models.AccountStatusDeactivated)
	}
}

func (h *IdentityHandler) setAccountStatus(ctx context.Context, did, status string) error {
	res := h.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "did"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"status": status}),
	}).Create(&models.User{Did: did, Status: status})
	if res.Error != nil {
		return fmt.Errorf("recording account status for %s: %w", did, res.Error)
	}
	return nil
}

// purgeAccount removes every row tied to the identity in one transaction:
// content (with dependents), trust, preferences, notifications, moderation
// queue entries, and the user stub itself.
func (h *IdentityHandler) purgeAccount(ctx context.Context, did string) error {
	h.Logger.Info("purging deleted account", "did", did)

	err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		topicUris := func() *gorm.DB {
			return tx.Model(&models.Topic{}).Select("uri").Where("author_did = ?", did)
		}
		replyUris := func() *gorm.DB {
			return tx.Model(&models.Reply{}).Select("uri").Where(
				"author_did = ? OR root_uri IN (?)", did, topicUris(),
			)
		}

		if err := tx.Where(
			"author_did = ? OR subject_uri IN (?) OR subject_uri IN (?)",
			did, topicUris(), replyUris(),
		).Delete(&models.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where(
			"author_did = ? OR subject_uri IN (?) OR subject_uri IN (?)",
			did, topicUris(), replyUris(),
		).Delete(&models.ModerationQueueItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("author_did = ? OR root_uri IN (?)", did, topicUris()).
			Delete(&models.Reply{}).Error; err != nil {
			return err
		}
		if err := tx.Where("author_did = ?", did).Delete(&models.Topic{}).Error; err != nil {
			return err
		}
		if err := tx.Where("for_did = ? OR actor_did = ?", did, did).
			Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		if err := tx.Where("did = ?", did).Delete(&models.UserPreference{}).Error; err != nil {
			return err
		}
		if err := tx.Where("did = ?", did).Delete(&models.AccountTrust{}).Error; err != nil {
			return err
		}
		if err := tx.Where("did = ?", did).Delete(&models.TrackedRepo{}).Error; err != nil {
			return err
		}
		return tx.Where("did = ?", did).Delete(&models.User{}).Error
	})
	if err != nil {
		return fmt.Errorf("purging account %s: %w", did, err)
	}

	// the row is already gone with the transaction; only the in-memory set
	// still needs updating
	h.Tracker.Forget(did)
	accountsPurgedCounter.Inc()
	return nil
}
