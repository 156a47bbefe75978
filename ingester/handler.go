package ingester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/barazo-forum/barazo-api-sub003/directory"
	"github.com/barazo-forum/barazo-api-sub003/indexer"
	"github.com/barazo-forum/barazo-api-sub003/models"
	"github.com/barazo-forum/barazo-api-sub003/tracker"
)

// RecordHandler routes decoded commit events to the collection indexers,
// lazily upserting a user stub for the author on the way through.
type RecordHandler struct {
	DB       *gorm.DB
	Logger   *slog.Logger
	Indexer  *indexer.Indexer
	Identity *indexer.IdentityHandler
	Resolver directory.Resolver
	Tracker  *tracker.Store

	// NewAccountDays is the age threshold below which an account is
	// classified "new" for the stricter rate limits.
	NewAccountDays int64

	// AutoTrack adds identities to the tracked set on their first
	// qualifying commit. When false, commits from untracked identities are
	// ignored to bound subscription scope in multi-tenant deployments.
	AutoTrack bool
}

func (h *RecordHandler) HandleCommit(ctx context.Context, evt *Event, live bool) error {
	commit := evt.Commit
	logger := h.Logger.With("seq", evt.Seq, "did", evt.Did, "collection", commit.Collection, "action", commit.Action)

	idx, ok := h.Indexer.ForCollection(commit.Collection)
	if !ok {
		logger.Debug("skipping unsupported collection")
		eventsSkippedCounter.WithLabelValues("unknown_collection").Inc()
		return nil
	}

	tracked := h.Tracker.IsTracked(evt.Did)
	if !tracked && !h.AutoTrack {
		eventsSkippedCounter.WithLabelValues("untracked_repo").Inc()
		return nil
	}

	user, trustStatus := h.getOrCreateUser(ctx, logger, evt.Did)

	rc := &indexer.RecordContext{
		Did:         evt.Did,
		Collection:  commit.Collection,
		Rkey:        commit.Rkey,
		Cid:         commit.Cid,
		Record:      commit.Record,
		User:        user,
		TrustStatus: trustStatus,
		Live:        live,
	}
	if !tracked {
		// an unknown identity only joins the tracked set once the indexer
		// confirms the record produces or targets content we serve; a reply
		// to a topic we never indexed must not track its author
		rc.OnQualified = func() {
			if err := h.Tracker.Track(ctx, evt.Did); err != nil {
				logger.Error("tracking repo failed", "err", err)
			}
		}
	}

	var err error
	switch commit.Action {
	case ActionCreate:
		err = idx.HandleCreate(ctx, rc)
	case ActionUpdate:
		err = idx.HandleUpdate(ctx, rc)
	case ActionDelete:
		err = idx.HandleDelete(ctx, rc)
	default:
		logger.Warn("skipping unknown commit action")
		eventsSkippedCounter.WithLabelValues("unknown_action").Inc()
		return nil
	}

	if errors.Is(err, indexer.ErrInvalidRecord) {
		logger.Warn("skipping invalid record payload", "err", err)
		eventsSkippedCounter.WithLabelValues("invalid_record").Inc()
		return nil
	}
	return err
}

// getOrCreateUser upserts the author's user stub and resolves the account
// genesis time once. Directory failures fail open: the author is treated as
// established rather than blocking ingestion.
func (h *RecordHandler) getOrCreateUser(ctx context.Context, logger *slog.Logger, did string) (*models.User, directory.TrustStatus) {
	user, err := h.loadOrInsertUser(ctx, did)
	if err != nil {
		logger.Warn("user upsert failed, proceeding without stub", "err", err)
		return nil, directory.TrustStatusEstablished
	}

	if user.AccountCreatedAt == nil {
		ident, err := h.Resolver.Lookup(ctx, did)
		if err != nil {
			logger.Warn("directory resolution failed, treating account as established", "err", err)
			return user, directory.TrustStatusEstablished
		}
		updates := map[string]interface{}{}
		if ident.CreatedAt != nil {
			user.AccountCreatedAt = ident.CreatedAt
			updates["account_created_at"] = ident.CreatedAt
		}
		if ident.Handle != "" && ident.Handle != user.Handle {
			user.Handle = ident.Handle
			updates["handle"] = ident.Handle
		}
		if len(updates) > 0 {
			if err := h.DB.WithContext(ctx).Model(&models.User{}).Where("did = ?", did).Updates(updates).Error; err != nil {
				logger.Warn("failed to persist resolved account metadata", "err", err)
			}
		}
	}

	return user, directory.StatusForAccountAge(user.AccountCreatedAt, h.NewAccountDays)
}

func (h *RecordHandler) loadOrInsertUser(ctx context.Context, did string) (*models.User, error) {
	var user models.User
	err := h.DB.WithContext(ctx).First(&user, "did = ?", did).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("loading user %s: %w", did, err)
	}

	stub := models.User{Did: did, Role: models.RoleMember, Status: models.AccountStatusActive}
	if err := h.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&stub).Error; err != nil {
		return nil, fmt.Errorf("creating user stub %s: %w", did, err)
	}
	// re-read to cover the lost-conflict case
	if err := h.DB.WithContext(ctx).First(&user, "did = ?", did).Error; err != nil {
		return nil, fmt.Errorf("loading user stub %s: %w", did, err)
	}
	usersCreatedCounter.Inc()
	return &user, nil
}
