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

type ReactionRecord struct {
	Subject   StrongRef `json:"subject"`
	Kind      string    `json:"kind"`
	CreatedAt string    `json:"createdAt"`
}

func parseReactionRecord(raw json.RawMessage) (*ReactionRecord, error) {
	var rec ReactionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecord, err)
	}
	if rec.Subject.Uri == "" {
		return nil, fmt.Errorf("%w: reaction missing subject ref", ErrInvalidRecord)
	}
	if rec.Kind == "" {
		return nil, fmt.Errorf("%w: reaction missing kind", ErrInvalidRecord)
	}
	return &rec, nil
}

type ReactionIndexer struct {
	*Indexer
}

// resolveSubject finds the topic or reply a reaction points at, returning the
// community it belongs to and its author.
func (x *ReactionIndexer) resolveSubject(ctx context.Context, subjectUri string) (community, authorDid string, isTopic bool, err error) {
	var topic models.Topic
	err = x.db.WithContext(ctx).First(&topic, "uri = ?", subjectUri).Error
	if err == nil {
		return topic.Community, topic.AuthorDid, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", false, err
	}

	var reply models.Reply
	if err = x.db.WithContext(ctx).First(&reply, "uri = ?", subjectUri).Error; err != nil {
		return "", "", false, err
	}
	var root models.Topic
	if err = x.db.WithContext(ctx).First(&root, "uri = ?", reply.RootUri).Error; err != nil {
		return "", "", false, err
	}
	return root.Community, reply.AuthorDid, false, nil
}

func (x *ReactionIndexer) HandleCreate(ctx context.Context, rc *RecordContext) error {
	rec, err := parseReactionRecord(rc.Record)
	if err != nil {
		return err
	}

	community, subjectAuthor, isTopic, err := x.resolveSubject(ctx, rec.Subject.Uri)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			x.logger.Warn("skipping reaction to unknown subject", "did", rc.Did, "subject", rec.Subject.Uri)
			recordsSkippedCounter.WithLabelValues("reaction", "unknown_subject").Inc()
			return nil
		}
		return fmt.Errorf("resolving reaction subject: %w", err)
	}
	rc.qualified()

	dec, err := x.evaluateGate(ctx, rc, community, "reaction", "", "")
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	reaction := models.Reaction{
		Uri:              rc.Uri(),
		Cid:              rc.Cid,
		AuthorDid:        rc.Did,
		SubjectUri:       rec.Subject.Uri,
		Kind:             rec.Kind,
		ModerationStatus: statusForDecision(dec),
		RecordCreatedAt:  parseRecordTime(rec.CreatedAt),
		IndexedAt:        now,
	}

	// insert, counter bump, and any moderation hold commit as one unit
	var inserted bool
	err = x.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the unique index also de-duplicates re-reactions under new rkeys
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reaction)
		if res.Error != nil {
			return fmt.Errorf("inserting reaction: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		inserted = true

		if err := x.bumpReactionCountTx(tx, rec.Subject.Uri, isTopic, gorm.Expr("reaction_count + 1")); err != nil {
			return err
		}

		if dec.Held {
			return x.enqueueHold(tx, rc, community, "reaction", dec)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	recordsIndexedCounter.WithLabelValues("reaction", "create").Inc()

	if !dec.Held && rc.Live && subjectAuthor != rc.Did {
		x.notifier.AddReaction(ctx, subjectAuthor, rc.Did, rec.Subject.Uri)
	}
	return nil
}

// reactions are immutable; an update event carrying the same uri is absorbed
// by re-running create semantics
func (x *ReactionIndexer) HandleUpdate(ctx context.Context, rc *RecordContext) error {
	return x.HandleCreate(ctx, rc)
}

func (x *ReactionIndexer) HandleDelete(ctx context.Context, rc *RecordContext) error {
	uri := rc.Uri()

	return x.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reaction models.Reaction
		if err := tx.First(&reaction, "uri = ?", uri).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if err := tx.Delete(&models.Reaction{}, "uri = ?", uri).Error; err != nil {
			return err
		}

		// figure out which table the subject lives in; a missing subject
		// means it was already cascaded away
		var isTopic bool
		var topic models.Topic
		err := tx.First(&topic, "uri = ?", reaction.SubjectUri).Error
		switch {
		case err == nil:
			isTopic = true
		case errors.Is(err, gorm.ErrRecordNotFound):
			var reply models.Reply
			if err := tx.First(&reply, "uri = ?", reaction.SubjectUri).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil
				}
				return err
			}
		default:
			return err
		}

		if err := x.bumpReactionCountTx(tx, reaction.SubjectUri, isTopic, floorDecrExpr("reaction_count")); err != nil {
			return err
		}
		recordsIndexedCounter.WithLabelValues("reaction", "delete").Inc()
		return nil
	})
}

func (x *ReactionIndexer) bumpReactionCountTx(tx *gorm.DB, subjectUri string, isTopic bool, expr clause.Expr) error {
	var model interface{} = &models.Reply{}
	if isTopic {
		model = &models.Topic{}
	}
	if err := tx.Model(model).Where("uri = ?", subjectUri).
		Update("reaction_count", expr).Error; err != nil {
		return fmt.Errorf("adjusting reaction count: %w", err)
	}
	return nil
}
