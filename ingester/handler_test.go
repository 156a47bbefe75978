package ingester

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/barazo-forum/barazo-api-sub003/antispam"
	"github.com/barazo-forum/barazo-api-sub003/directory"
	"github.com/barazo-forum/barazo-api-sub003/indexer"
	"github.com/barazo-forum/barazo-api-sub003/models"
	"github.com/barazo-forum/barazo-api-sub003/tracker"
)

type staticResolver struct {
	idents map[string]*directory.Identity
}

func (s *staticResolver) Lookup(ctx context.Context, did string) (*directory.Identity, error) {
	if ident, ok := s.idents[did]; ok {
		return ident, nil
	}
	return nil, directory.ErrIdentityNotFound
}

func (s *staticResolver) Purge(did string) {}

func testRecordHandler(t *testing.T, res directory.Resolver, autoTrack bool) (*RecordHandler, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.sqlite")))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.TrackedRepo{},
		&models.Topic{},
		&models.Reply{},
		&models.Reaction{},
		&models.Notification{},
		&models.CommunitySettings{},
		&models.ModerationQueueItem{},
		&models.AccountTrust{},
	); err != nil {
		t.Fatal(err)
	}

	repos := tracker.NewStore(db)
	gate := antispam.NewGate(
		antispam.NewSettingsLoader(db, nil, time.Minute, slog.Default()),
		antispam.NewMemWindowStore(),
		slog.Default(),
	)
	ix := indexer.NewIndexer(db, gate, indexer.NewNotifier(db, slog.Default()), slog.Default())

	return &RecordHandler{
		DB:      db,
		Logger:  slog.Default(),
		Indexer: ix,
		Identity: &indexer.IdentityHandler{
			DB:       db,
			Logger:   slog.Default(),
			Resolver: res,
			Tracker:  repos,
		},
		Resolver:       res,
		Tracker:        repos,
		NewAccountDays: 7,
		AutoTrack:      autoTrack,
	}, db
}

func topicCommitEvent(t *testing.T, did string, seq int64, rkey string) *Event {
	t.Helper()
	record, err := json.Marshal(map[string]interface{}{
		"title":     "topic " + rkey,
		"content":   "body",
		"community": "golang",
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		t.Fatal(err)
	}
	return &Event{
		Did:  did,
		Seq:  seq,
		Time: time.Now().UTC().Format(time.RFC3339),
		Kind: EventKindCommit,
		Commit: &CommitEvt{
			Rev:        "3k2rev",
			Action:     ActionCreate,
			Collection: "forum.barazo.topic",
			Rkey:       rkey,
			Cid:        "cid-" + rkey,
			Record:     record,
		},
	}
}

func TestHandleCommitIndexesAndTracks(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	created := time.Now().Add(-365 * 24 * time.Hour)
	res := &staticResolver{idents: map[string]*directory.Identity{
		"did:plc:alice": {Did: "did:plc:alice", Handle: "alice.example.com", CreatedAt: &created},
	}}
	h, db := testRecordHandler(t, res, true)

	assert.NoError(h.HandleCommit(ctx, topicCommitEvent(t, "did:plc:alice", 1, "3k1"), true))

	assert.True(h.Tracker.IsTracked("did:plc:alice"))

	var user models.User
	assert.NoError(db.First(&user, "did = ?", "did:plc:alice").Error)
	assert.Equal("alice.example.com", user.Handle)
	if assert.NotNil(user.AccountCreatedAt) {
		assert.WithinDuration(created, *user.AccountCreatedAt, time.Second)
	}

	var count int64
	db.Model(&models.Topic{}).Count(&count)
	assert.Equal(int64(1), count)
}

func TestHandleCommitSkipsUntracked(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	h, db := testRecordHandler(t, &staticResolver{}, false)

	assert.NoError(h.HandleCommit(ctx, topicCommitEvent(t, "did:plc:stranger", 1, "3k1"), true))

	var count int64
	db.Model(&models.Topic{}).Count(&count)
	assert.Equal(int64(0), count)
	assert.False(h.Tracker.IsTracked("did:plc:stranger"))
}

func TestHandleCommitSkipsUnknownCollection(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	h, db := testRecordHandler(t, &staticResolver{}, true)

	evt := topicCommitEvent(t, "did:plc:alice", 1, "3k1")
	evt.Commit.Collection = "app.bsky.feed.post"
	assert.NoError(h.HandleCommit(ctx, evt, true))

	var count int64
	db.Model(&models.Topic{}).Count(&count)
	assert.Equal(int64(0), count)
	// unsupported collections never pull a repo into the tracked set
	assert.False(h.Tracker.IsTracked("did:plc:alice"))
}

func TestHandleCommitSkipsInvalidRecord(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	h, db := testRecordHandler(t, &staticResolver{}, true)

	evt := topicCommitEvent(t, "did:plc:alice", 1, "3k1")
	evt.Commit.Record = json.RawMessage(`{"content": "no title"}`)
	assert.NoError(h.HandleCommit(ctx, evt, true))

	var count int64
	db.Model(&models.Topic{}).Count(&count)
	assert.Equal(int64(0), count)
	// a record that never validates does not track its author
	assert.False(h.Tracker.IsTracked("did:plc:alice"))
}

func replyCommitEvent(t *testing.T, did string, seq int64, rkey, rootUri string) *Event {
	t.Helper()
	record, err := json.Marshal(map[string]interface{}{
		"content":   "reply " + rkey,
		"root":      map[string]string{"uri": rootUri},
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		t.Fatal(err)
	}
	return &Event{
		Did:  did,
		Seq:  seq,
		Time: time.Now().UTC().Format(time.RFC3339),
		Kind: EventKindCommit,
		Commit: &CommitEvt{
			Rev:        "3k2rev",
			Action:     ActionCreate,
			Collection: "forum.barazo.reply",
			Rkey:       rkey,
			Cid:        "cid-" + rkey,
			Record:     record,
		},
	}
}

func TestHandleCommitTracksOnlyQualifyingAuthors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	h, db := testRecordHandler(t, &staticResolver{}, true)
	assert.NoError(h.HandleCommit(ctx, topicCommitEvent(t, "did:plc:alice", 1, "3k1"), true))
	rootUri := "at://did:plc:alice/forum.barazo.topic/3k1"

	// a reply into content we never indexed must not track its author
	assert.NoError(h.HandleCommit(ctx, replyCommitEvent(t, "did:plc:drifter", 2, "3r1",
		"at://did:plc:ghost/forum.barazo.topic/404"), true))
	assert.False(h.Tracker.IsTracked("did:plc:drifter"))
	var count int64
	db.Model(&models.TrackedRepo{}).Where("did = ?", "did:plc:drifter").Count(&count)
	assert.Equal(int64(0), count)

	// the same author replying to an indexed topic becomes tracked
	assert.NoError(h.HandleCommit(ctx, replyCommitEvent(t, "did:plc:drifter", 3, "3r2", rootUri), true))
	assert.True(h.Tracker.IsTracked("did:plc:drifter"))
	db.Model(&models.Reply{}).Count(&count)
	assert.Equal(int64(1), count)
}
