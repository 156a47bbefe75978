// Package moderation resolves held content. It is the write-side of the
// administrative review surface: approving an item releases the content and
// feeds the author's per-community trust counters.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/barazo-forum/barazo-api-sub003/antispam"
	"github.com/barazo-forum/barazo-api-sub003/models"
)

var ErrItemNotFound = errors.New("moderation queue item not found")

type Queue struct {
	DB       *gorm.DB
	Logger   *slog.Logger
	Settings *antispam.SettingsLoader
}

func NewQueue(db *gorm.DB, settings *antispam.SettingsLoader, logger *slog.Logger) *Queue {
	return &Queue{DB: db, Logger: logger, Settings: settings}
}

func (q *Queue) ListPending(ctx context.Context, community string, limit int) ([]models.ModerationQueueItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var items []models.ModerationQueueItem
	err := q.DB.WithContext(ctx).
		Where("community = ? AND status = ?", community, models.StatusPending).
		Order("created_at ASC").Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("listing pending items: %w", err)
	}
	return items, nil
}

// Approve releases the held content and credits the author. Crossing the
// community's auto-trust threshold marks the account trusted; that flag is
// monotone and nothing in this package ever clears it.
func (q *Queue) Approve(ctx context.Context, itemID uint, reviewerDid string) error {
	settingsThreshold := func(community string) int64 {
		s, err := q.Settings.Load(ctx, community)
		if err != nil {
			q.Logger.Warn("failed to load settings during approval, skipping trust promotion", "community", community, "err", err)
			return 0
		}
		return s.AutoTrustApprovedPosts
	}

	return q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := q.resolveItem(tx, itemID, reviewerDid, models.StatusApproved)
		if err != nil {
			return err
		}

		// counter increments happen in the store, so concurrent approvals
		// for the same author cannot lose updates
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "did"}, {Name: "community"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"approved_post_count": gorm.Expr("approved_post_count + 1"),
				"updated_at":          time.Now().UTC(),
			}),
		}).Create(&models.AccountTrust{
			Did:               item.AuthorDid,
			Community:         item.Community,
			ApprovedPostCount: 1,
		}).Error; err != nil {
			return fmt.Errorf("crediting approved post: %w", err)
		}

		threshold := settingsThreshold(item.Community)
		if threshold > 0 {
			now := time.Now().UTC()
			if err := tx.Model(&models.AccountTrust{}).
				Where("did = ? AND community = ? AND is_trusted = ? AND approved_post_count >= ?",
					item.AuthorDid, item.Community, false, threshold).
				Updates(map[string]interface{}{"is_trusted": true, "trusted_at": now}).Error; err != nil {
				return fmt.Errorf("promoting account trust: %w", err)
			}
		}
		return nil
	})
}

// Reject marks the item and its content rejected. The content row stays in
// place for audit; the read side never lists non-approved content.
func (q *Queue) Reject(ctx context.Context, itemID uint, reviewerDid string) error {
	return q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := q.resolveItem(tx, itemID, reviewerDid, models.StatusRejected)
		return err
	})
}

// Requeue puts a previously-reviewed item back in the pending queue.
func (q *Queue) Requeue(ctx context.Context, itemID uint, reviewerDid string) error {
	return q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := q.resolveItem(tx, itemID, reviewerDid, models.StatusPending)
		return err
	})
}

// resolveItem moves a queue item (and its content row) to the given status.
func (q *Queue) resolveItem(tx *gorm.DB, itemID uint, reviewerDid, status string) (*models.ModerationQueueItem, error) {
	var item models.ModerationQueueItem
	if err := tx.First(&item, "id = ?", itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	if err := tx.Model(&models.ModerationQueueItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"status":      status,
			"reviewed_by": reviewerDid,
			"reviewed_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("updating queue item: %w", err)
	}

	model, ok := contentModelFor(item.SubjectType)
	if !ok {
		return nil, fmt.Errorf("unknown subject type %q on item %d", item.SubjectType, item.ID)
	}
	if err := tx.Model(model).
		Where("uri = ?", item.SubjectUri).
		Update("moderation_status", status).Error; err != nil {
		return nil, fmt.Errorf("updating content status: %w", err)
	}

	reviewActionsCounter.WithLabelValues(status).Inc()
	return &item, nil
}

func contentModelFor(subjectType string) (interface{}, bool) {
	switch subjectType {
	case "topic":
		return &models.Topic{}, true
	case "reply":
		return &models.Reply{}, true
	case "reaction":
		return &models.Reaction{}, true
	default:
		return nil, false
	}
}
