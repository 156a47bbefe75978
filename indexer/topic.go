package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/barazo-forum/barazo-api-sub003/models"
)

type TopicRecord struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Community string   `json:"community"`
	Category  string   `json:"category,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"createdAt"`
}

func parseTopicRecord(raw json.RawMessage) (*TopicRecord, error) {
	var rec TopicRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecord, err)
	}
	if rec.Title == "" {
		return nil, fmt.Errorf("%w: topic missing title", ErrInvalidRecord)
	}
	if rec.Community == "" {
		return nil, fmt.Errorf("%w: topic missing community", ErrInvalidRecord)
	}
	return &rec, nil
}

type TopicIndexer struct {
	*Indexer
}

func (t *TopicIndexer) HandleCreate(ctx context.Context, rc *RecordContext) error {
	rec, err := parseTopicRecord(rc.Record)
	if err != nil {
		return err
	}
	rc.qualified()

	dec, err := t.evaluateGate(ctx, rc, rec.Community, "topic", rec.Title, rec.Content)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	topic := models.Topic{
		Uri:              rc.Uri(),
		Cid:              rc.Cid,
		AuthorDid:        rc.Did,
		Community:        rec.Community,
		Title:            rec.Title,
		Content:          rec.Content,
		Category:         rec.Category,
		Tags:             strings.Join(rec.Tags, ","),
		LastActivityAt:   now,
		ModerationStatus: statusForDecision(dec),
		RecordCreatedAt:  parseRecordTime(rec.CreatedAt),
		IndexedAt:        now,
	}

	// the row and its moderation hold commit together, so a crash between
	// them can never strand approved-looking content without a queue item
	var inserted bool
	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&topic)
		if res.Error != nil {
			return fmt.Errorf("inserting topic: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// replayed event, row already indexed
			return nil
		}
		inserted = true
		if dec.Held {
			return t.enqueueHold(tx, rc, rec.Community, "topic", dec)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if inserted {
		recordsIndexedCounter.WithLabelValues("topic", "create").Inc()
	}
	return nil
}

func (t *TopicIndexer) HandleUpdate(ctx context.Context, rc *RecordContext) error {
	rec, err := parseTopicRecord(rc.Record)
	if err != nil {
		return err
	}

	res := t.db.WithContext(ctx).Model(&models.Topic{}).
		Where("uri = ? AND cid != ?", rc.Uri(), rc.Cid).
		Updates(map[string]interface{}{
			"cid":        rc.Cid,
			"title":      rec.Title,
			"content":    rec.Content,
			"category":   rec.Category,
			"tags":       strings.Join(rec.Tags, ","),
			"indexed_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("updating topic: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		recordsIndexedCounter.WithLabelValues("topic", "update").Inc()
	}
	return nil
}

// HandleDelete removes the topic and every dependent reply and reaction in a
// single transaction, so no reply ever references a missing root.
func (t *TopicIndexer) HandleDelete(ctx context.Context, rc *RecordContext) error {
	uri := rc.Uri()

	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		replyUris := tx.Model(&models.Reply{}).Select("uri").Where("root_uri = ?", uri)
		if err := tx.Where("subject_uri IN (?)", replyUris).Delete(&models.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("subject_uri = ?", uri).Delete(&models.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("subject_uri IN (?)", tx.Model(&models.Reply{}).Select("uri").Where("root_uri = ?", uri)).Delete(&models.ModerationQueueItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("root_uri = ?", uri).Delete(&models.Reply{}).Error; err != nil {
			return err
		}
		if err := tx.Where("subject_uri = ?", uri).Delete(&models.ModerationQueueItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Topic{}, "uri = ?", uri).Error
	})
	if err != nil {
		return fmt.Errorf("deleting topic %s: %w", uri, err)
	}
	recordsIndexedCounter.WithLabelValues("topic", "delete").Inc()
	return nil
}
