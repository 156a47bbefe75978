package tracker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/barazo-forum/barazo-api-sub003/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.sqlite")))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&models.TrackedRepo{}); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestTrackUntrack(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := NewStore(testDB(t))

	assert.False(s.IsTracked("did:plc:alice"))
	assert.NoError(s.Track(ctx, "did:plc:alice"))
	assert.True(s.IsTracked("did:plc:alice"))
	assert.Equal(1, s.Size())

	// duplicate track is a no-op
	assert.NoError(s.Track(ctx, "did:plc:alice"))
	assert.Equal(1, s.Size())

	assert.NoError(s.Untrack(ctx, "did:plc:alice"))
	assert.False(s.IsTracked("did:plc:alice"))
	assert.Equal(0, s.Size())

	// untracking an unknown repo is safe
	assert.NoError(s.Untrack(ctx, "did:plc:ghost"))
}

func TestForget(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	db := testDB(t)

	s := NewStore(db)
	assert.NoError(s.Track(ctx, "did:plc:alice"))

	// Forget only drops the in-memory entry; the caller owns the row
	s.Forget("did:plc:alice")
	assert.False(s.IsTracked("did:plc:alice"))

	var count int64
	db.Model(&models.TrackedRepo{}).Count(&count)
	assert.Equal(int64(1), count)

	// forgetting an unknown repo is safe
	s.Forget("did:plc:ghost")
}

func TestRestore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	db := testDB(t)

	s1 := NewStore(db)
	assert.NoError(s1.Track(ctx, "did:plc:alice"))
	assert.NoError(s1.Track(ctx, "did:plc:bob"))

	// a fresh store over the same database starts empty, then rehydrates
	s2 := NewStore(db)
	assert.False(s2.IsTracked("did:plc:alice"))

	n, err := s2.Restore(ctx)
	assert.NoError(err)
	assert.Equal(2, n)
	assert.True(s2.IsTracked("did:plc:alice"))
	assert.True(s2.IsTracked("did:plc:bob"))
	assert.Equal(2, s2.Size())
}
