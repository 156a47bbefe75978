// Package tracker maintains the durable set of repos (identities) whose
// events this instance indexes. The gorm table is the source of truth; a
// lock-free in-memory set mirrors it so the hot IsTracked check on every
// stream event never touches the database.
package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/barazo-forum/barazo-api-sub003/models"
)

type Store struct {
	db   *gorm.DB
	dids *xsync.MapOf[string, struct{}]
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:   db,
		dids: xsync.NewMapOf[string, struct{}](),
	}
}

// Restore rehydrates the in-memory set from the database. Called once at
// startup, before the stream connects.
func (s *Store) Restore(ctx context.Context) (int, error) {
	limit := 20_000
	offset := 0
	total := 0

	for {
		var repos []models.TrackedRepo
		if err := s.db.WithContext(ctx).Limit(limit).Offset(offset).Find(&repos).Error; err != nil {
			return total, fmt.Errorf("loading tracked repos: %w", err)
		}
		if len(repos) == 0 {
			break
		}
		offset += len(repos)
		total += len(repos)

		for _, r := range repos {
			s.dids.Store(r.Did, struct{}{})
		}
	}

	return total, nil
}

func (s *Store) IsTracked(did string) bool {
	_, ok := s.dids.Load(did)
	return ok
}

// Track adds a repo to the set. Duplicate tracking is a no-op.
func (s *Store) Track(ctx context.Context, did string) error {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.TrackedRepo{Did: did})
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("tracking repo %s: %w", did, res.Error)
	}
	if res.Error == nil && res.RowsAffected > 0 {
		reposTrackedCounter.Inc()
	}

	s.dids.Store(did, struct{}{})
	return nil
}

// Untrack removes a repo from the set. Safe to call for untracked repos.
func (s *Store) Untrack(ctx context.Context, did string) error {
	if err := s.db.WithContext(ctx).Delete(&models.TrackedRepo{}, "did = ?", did).Error; err != nil {
		return fmt.Errorf("untracking repo %s: %w", did, err)
	}

	s.dids.Delete(did)
	reposUntrackedCounter.Inc()
	return nil
}

// Forget drops a repo from the in-memory set only. Used when the caller has
// already deleted the row inside its own transaction.
func (s *Store) Forget(did string) {
	if _, loaded := s.dids.LoadAndDelete(did); loaded {
		reposUntrackedCounter.Inc()
	}
}

func (s *Store) Size() int {
	return s.dids.Size()
}
