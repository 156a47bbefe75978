package indexer

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/barazo-forum/barazo-api-sub003/models"
)

const (
	NotifKindReply    = "reply"
	NotifKindReaction = "reaction"
)

// Notifier fans out notifications for live (non-replay) events. Delivery is
// fire-and-forget: failures are logged, never propagated into the ingestion
// path.
type Notifier struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

func NewNotifier(db *gorm.DB, logger *slog.Logger) *Notifier {
	return &Notifier{DB: db, Logger: logger}
}

func (n *Notifier) AddReply(ctx context.Context, forDid, actorDid, subjectUri string) {
	n.add(ctx, forDid, actorDid, NotifKindReply, subjectUri)
}

func (n *Notifier) AddReaction(ctx context.Context, forDid, actorDid, subjectUri string) {
	n.add(ctx, forDid, actorDid, NotifKindReaction, subjectUri)
}

func (n *Notifier) add(ctx context.Context, forDid, actorDid, kind, subjectUri string) {
	notif := models.Notification{
		ForDid:     forDid,
		ActorDid:   actorDid,
		Kind:       kind,
		SubjectUri: subjectUri,
		CreatedAt:  time.Now().UTC(),
	}
	if err := n.DB.WithContext(ctx).Create(&notif).Error; err != nil {
		n.Logger.Error("failed to create notification", "for", forDid, "kind", kind, "err", err)
		return
	}
	notificationsCreatedCounter.WithLabelValues(kind).Inc()
}
