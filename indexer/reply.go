package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/barazo-forum/barazo-api-sub003/models"
)

// StrongRef is a uri+cid reference to another record.
type StrongRef struct {
	Uri string `json:"uri"`
	Cid string `json:"cid,omitempty"`
}

type ReplyRecord struct {
	Content   string     `json:"content"`
	Root      StrongRef  `json:"root"`
	Parent    *StrongRef `json:"parent,omitempty"`
	CreatedAt string     `json:"createdAt"`
}

func parseReplyRecord(raw json.RawMessage) (*ReplyRecord, error) {
	var rec ReplyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecord, err)
	}
	if rec.Content == "" {
		return nil, fmt.Errorf("%w: reply missing content", ErrInvalidRecord)
	}
	if rec.Root.Uri == "" {
		return nil, fmt.Errorf("%w: reply missing root ref", ErrInvalidRecord)
	}
	return &rec, nil
}

type ReplyIndexer struct {
	*Indexer
}

func (r *ReplyIndexer) HandleCreate(ctx context.Context, rc *RecordContext) error {
	rec, err := parseReplyRecord(rc.Record)
	if err != nil {
		return err
	}

	// the root topic carries the community and gets the counter bump; the
	// upstream log is causally ordered per repo, but cross-repo replies can
	// still reference topics we never indexed
	var root models.Topic
	if err := r.db.WithContext(ctx).First(&root, "uri = ?", rec.Root.Uri).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.logger.Warn("skipping reply to unknown topic", "did", rc.Did, "root", rec.Root.Uri)
			recordsSkippedCounter.WithLabelValues("reply", "unknown_root").Inc()
			return nil
		}
		return fmt.Errorf("loading root topic: %w", err)
	}
	rc.qualified()

	dec, err := r.evaluateGate(ctx, rc, root.Community, "reply", "", rec.Content)
	if err != nil {
		return err
	}

	parentUri := rec.Root.Uri
	if rec.Parent != nil && rec.Parent.Uri != "" {
		parentUri = rec.Parent.Uri
	}

	now := time.Now().UTC()
	reply := models.Reply{
		Uri:              rc.Uri(),
		Cid:              rc.Cid,
		AuthorDid:        rc.Did,
		Content:          rec.Content,
		RootUri:          rec.Root.Uri,
		ParentUri:        parentUri,
		ModerationStatus: statusForDecision(dec),
		RecordCreatedAt:  parseRecordTime(rec.CreatedAt),
		IndexedAt:        now,
	}

	// the insert, the counter bump, and any moderation hold commit as one
	// unit, so a crash mid-way never leaves a reply the counters or the
	// queue don't know about
	var inserted bool
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reply)
		if res.Error != nil {
			return fmt.Errorf("inserting reply: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// replayed event, counters already applied
			return nil
		}
		inserted = true

		// atomic in the store, correct under concurrent replies
		if err := tx.Model(&models.Topic{}).
			Where("uri = ?", root.Uri).
			Updates(map[string]interface{}{
				"reply_count":      gorm.Expr("reply_count + 1"),
				"last_activity_at": now,
			}).Error; err != nil {
			return fmt.Errorf("bumping reply count: %w", err)
		}

		if dec.Held {
			return r.enqueueHold(tx, rc, root.Community, "reply", dec)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	recordsIndexedCounter.WithLabelValues("reply", "create").Inc()

	if !dec.Held && rc.Live && root.AuthorDid != rc.Did {
		r.notifier.AddReply(ctx, root.AuthorDid, rc.Did, reply.Uri)
	}
	return nil
}

func (r *ReplyIndexer) HandleUpdate(ctx context.Context, rc *RecordContext) error {
	rec, err := parseReplyRecord(rc.Record)
	if err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&models.Reply{}).
		Where("uri = ? AND cid != ?", rc.Uri(), rc.Cid).
		Updates(map[string]interface{}{
			"cid":        rc.Cid,
			"content":    rec.Content,
			"indexed_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("updating reply: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		recordsIndexedCounter.WithLabelValues("reply", "update").Inc()
	}
	return nil
}

func (r *ReplyIndexer) HandleDelete(ctx context.Context, rc *RecordContext) error {
	uri := rc.Uri()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reply models.Reply
		if err := tx.First(&reply, "uri = ?", uri).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// duplicate or out-of-order delete, nothing to do
				return nil
			}
			return err
		}

		if err := tx.Where("subject_uri = ?", uri).Delete(&models.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("subject_uri = ?", uri).Delete(&models.ModerationQueueItem{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Reply{}, "uri = ?", uri).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Topic{}).
			Where("uri = ?", reply.RootUri).
			Update("reply_count", floorDecrExpr("reply_count")).Error; err != nil {
			return err
		}
		recordsIndexedCounter.WithLabelValues("reply", "delete").Inc()
		return nil
	})
}
