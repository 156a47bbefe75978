// Package indexer translates validated firehose records into relational
// writes. Each collection has a dedicated indexer behind a shared contract;
// all writes are idempotent so at-least-once delivery from the stream never
// double-applies counters or duplicates rows.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/barazo-forum/barazo-api-sub003/antispam"
	"github.com/barazo-forum/barazo-api-sub003/directory"
	"github.com/barazo-forum/barazo-api-sub003/models"
)

// Record collections this instance indexes. The set is closed: the dispatch
// switch in ForCollection is the single place a new collection gets added.
const (
	CollectionTopic    = "forum.barazo.topic"
	CollectionReply    = "forum.barazo.reply"
	CollectionReaction = "forum.barazo.reaction"
)

// ErrInvalidRecord marks payloads that fail per-collection validation. The
// dispatcher skips these with a warning instead of failing the stream.
var ErrInvalidRecord = errors.New("invalid record payload")

// RecordContext carries one decoded stream op through an indexer.
type RecordContext struct {
	Did        string
	Collection string
	Rkey       string
	Cid        string
	Record     json.RawMessage

	User        *models.User
	TrustStatus directory.TrustStatus

	// Live is false for events replayed during catch-up; indexers skip
	// notification fan-out for those.
	Live bool

	// OnQualified, when set, fires once the record is confirmed to produce
	// or target content this instance serves. The ingester uses it to pull
	// new authors into the tracked set only for qualifying records.
	OnQualified func()
}

// qualified fires the OnQualified hook at most once.
func (rc *RecordContext) qualified() {
	if rc.OnQualified != nil {
		rc.OnQualified()
		rc.OnQualified = nil
	}
}

// Uri returns the stable record identity: author + collection + record key.
func (rc *RecordContext) Uri() string {
	return fmt.Sprintf("at://%s/%s/%s", rc.Did, rc.Collection, rc.Rkey)
}

// RecordIndexer is the shared contract all collection indexers implement.
type RecordIndexer interface {
	HandleCreate(ctx context.Context, rc *RecordContext) error
	HandleUpdate(ctx context.Context, rc *RecordContext) error
	HandleDelete(ctx context.Context, rc *RecordContext) error
}

type Indexer struct {
	db       *gorm.DB
	logger   *slog.Logger
	gate     *antispam.Gate
	notifier *Notifier
}

func NewIndexer(db *gorm.DB, gate *antispam.Gate, notifier *Notifier, logger *slog.Logger) *Indexer {
	return &Indexer{
		db:       db,
		logger:   logger,
		gate:     gate,
		notifier: notifier,
	}
}

// ForCollection returns the indexer responsible for a collection, or false
// for collections this instance does not index.
func (ix *Indexer) ForCollection(collection string) (RecordIndexer, bool) {
	switch collection {
	case CollectionTopic:
		return &TopicIndexer{ix}, true
	case CollectionReply:
		return &ReplyIndexer{ix}, true
	case CollectionReaction:
		return &ReactionIndexer{ix}, true
	default:
		return nil, false
	}
}

// evaluateGate loads the author's per-community trust row and runs the
// anti-spam gate over the content.
func (ix *Indexer) evaluateGate(ctx context.Context, rc *RecordContext, community, contentType, title, content string) (*antispam.Decision, error) {
	var trust models.AccountTrust
	if err := ix.db.WithContext(ctx).First(&trust, "did = ? AND community = ?", rc.Did, community).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("loading account trust: %w", err)
		}
		trust = models.AccountTrust{Did: rc.Did, Community: community}
	}

	role := models.RoleMember
	if rc.User != nil && rc.User.Role != "" {
		role = rc.User.Role
	}

	return ix.gate.Evaluate(ctx, antispam.CheckInput{
		AuthorDid:         rc.Did,
		Community:         community,
		ContentType:       contentType,
		Title:             title,
		Content:           content,
		Role:              role,
		TrustStatus:       rc.TrustStatus,
		IsTrusted:         trust.IsTrusted,
		ApprovedPostCount: trust.ApprovedPostCount,
	})
}

func statusForDecision(dec *antispam.Decision) string {
	if dec.Held {
		return models.StatusPending
	}
	return models.StatusApproved
}

// enqueueHold records a held piece of content for moderator review. It runs
// inside the caller's insert transaction, so the queue item commits together
// with the content row and replays cannot duplicate it.
func (ix *Indexer) enqueueHold(tx *gorm.DB, rc *RecordContext, community, subjectType string, dec *antispam.Decision) error {
	evidence, err := json.Marshal(dec.Reasons)
	if err != nil {
		return err
	}
	item := models.ModerationQueueItem{
		SubjectUri:  rc.Uri(),
		SubjectType: subjectType,
		AuthorDid:   rc.Did,
		Community:   community,
		Reason:      dec.Reasons[0].Reason,
		Evidence:    string(evidence),
		Status:      models.StatusPending,
	}
	if err := tx.Create(&item).Error; err != nil {
		return fmt.Errorf("enqueueing moderation item: %w", err)
	}
	heldContentCounter.WithLabelValues(subjectType).Inc()
	return nil
}

func parseRecordTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}

// floorDecrExpr decrements a counter column without going negative, portable
// across sqlite and postgres.
func floorDecrExpr(column string) clause.Expr {
	return gorm.Expr(fmt.Sprintf("CASE WHEN %s > 0 THEN %s - 1 ELSE 0 END", column, column))
}
