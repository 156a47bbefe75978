package ingester

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/barazo-forum/barazo-api-sub003/models"
)

func testCursorStore(t *testing.T) *CursorStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.sqlite")))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&models.FirehoseCursor{}); err != nil {
		t.Fatal(err)
	}
	return NewCursorStore(db, "wss://stream.example.com")
}

func TestCursorRoundTrip(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cs := testCursorStore(t)

	seq, err := cs.ReadLastCursor(ctx)
	assert.NoError(err)
	assert.Equal(int64(0), seq)

	assert.NoError(cs.PersistCursor(ctx, 100))
	seq, err = cs.ReadLastCursor(ctx)
	assert.NoError(err)
	assert.Equal(int64(100), seq)

	assert.NoError(cs.PersistCursor(ctx, 250))
	seq, err = cs.ReadLastCursor(ctx)
	assert.NoError(err)
	assert.Equal(int64(250), seq)
}

func TestCursorIsMonotone(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cs := testCursorStore(t)

	assert.NoError(cs.PersistCursor(ctx, 100))

	// a stale write never moves the cursor backwards
	assert.NoError(cs.PersistCursor(ctx, 50))
	seq, err := cs.ReadLastCursor(ctx)
	assert.NoError(err)
	assert.Equal(int64(100), seq)

	// zero and negative sequences are ignored
	assert.NoError(cs.PersistCursor(ctx, 0))
	assert.NoError(cs.PersistCursor(ctx, -1))
	seq, err = cs.ReadLastCursor(ctx)
	assert.NoError(err)
	assert.Equal(int64(100), seq)
}

func TestCursorPerHost(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cs := testCursorStore(t)

	other := NewCursorStore(cs.DB, "wss://other.example.com")

	assert.NoError(cs.PersistCursor(ctx, 100))
	assert.NoError(other.PersistCursor(ctx, 7))

	seq, err := cs.ReadLastCursor(ctx)
	assert.NoError(err)
	assert.Equal(int64(100), seq)

	seq, err = other.ReadLastCursor(ctx)
	assert.NoError(err)
	assert.Equal(int64(7), seq)
}
