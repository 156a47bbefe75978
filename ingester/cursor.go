package ingester

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/barazo-forum/barazo-api-sub003/models"
)

// CursorStore persists the last durably-processed stream sequence, one row
// per upstream host. Writes are monotone: a smaller seq never overwrites a
// larger one.
type CursorStore struct {
	DB   *gorm.DB
	Host string
}

func NewCursorStore(db *gorm.DB, host string) *CursorStore {
	return &CursorStore{DB: db, Host: host}
}

func (s *CursorStore) ReadLastCursor(ctx context.Context) (int64, error) {
	var cursor models.FirehoseCursor
	if err := s.DB.WithContext(ctx).First(&cursor, "host = ?", s.Host).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cursor: %w", err)
	}
	return cursor.Seq, nil
}

func (s *CursorStore) PersistCursor(ctx context.Context, seq int64) error {
	if seq <= 0 {
		return nil
	}

	res := s.DB.WithContext(ctx).Model(&models.FirehoseCursor{}).
		Where("host = ? AND seq < ?", s.Host, seq).
		Update("seq", seq)
	if res.Error != nil {
		return fmt.Errorf("persisting cursor: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		cursorSeqGauge.Set(float64(seq))
		return nil
	}

	// no row yet (or a replay with an older seq, which the guard drops)
	res = s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.FirehoseCursor{Host: s.Host, Seq: seq})
	if res.Error != nil {
		return fmt.Errorf("persisting cursor: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		cursorSeqGauge.Set(float64(seq))
	}
	return nil
}
