package indexer

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/barazo-forum/barazo-api-sub003/directory"
	"github.com/barazo-forum/barazo-api-sub003/models"
	"github.com/barazo-forum/barazo-api-sub003/tracker"
)

type fakeResolver struct {
	idents map[string]*directory.Identity
	purged []string
}

func (f *fakeResolver) Lookup(ctx context.Context, did string) (*directory.Identity, error) {
	if ident, ok := f.idents[did]; ok {
		return ident, nil
	}
	return nil, directory.ErrIdentityNotFound
}

func (f *fakeResolver) Purge(did string) {
	f.purged = append(f.purged, did)
}

func testIdentityHandler(t *testing.T, res directory.Resolver) (*IdentityHandler, *gorm.DB) {
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
		&models.UserPreference{},
		&models.ModerationQueueItem{},
		&models.AccountTrust{},
	); err != nil {
		t.Fatal(err)
	}

	return &IdentityHandler{
		DB:       db,
		Logger:   slog.Default(),
		Resolver: res,
		Tracker:  tracker.NewStore(db),
	}, db
}

func TestHandleIdentityUpdatesHandle(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	res := &fakeResolver{idents: map[string]*directory.Identity{
		"did:plc:alice": {Did: "did:plc:alice", Handle: "alice.example.com"},
	}}
	h, db := testIdentityHandler(t, res)

	assert.NoError(db.Create(&models.User{Did: "did:plc:alice", Handle: "old.example.com"}).Error)

	assert.NoError(h.HandleIdentity(ctx, "did:plc:alice", "stale.example.com"))

	// the resolver entry was purged before the authoritative re-lookup
	assert.Equal([]string{"did:plc:alice"}, res.purged)

	var user models.User
	assert.NoError(db.First(&user, "did = ?", "did:plc:alice").Error)
	assert.Equal("alice.example.com", user.Handle)
}

func TestHandleIdentityFallsBackToEventHandle(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	h, db := testIdentityHandler(t, &fakeResolver{})
	assert.NoError(db.Create(&models.User{Did: "did:plc:bob", Handle: "old.example.com"}).Error)

	assert.NoError(h.HandleIdentity(ctx, "did:plc:bob", "event.example.com"))

	var user models.User
	assert.NoError(db.First(&user, "did = ?", "did:plc:bob").Error)
	assert.Equal("event.example.com", user.Handle)
}

func TestHandleAccountStatusTransitions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	h, db := testIdentityHandler(t, &fakeResolver{})

	// inactive with an unknown status means deactivated
	assert.NoError(h.HandleAccount(ctx, "did:plc:alice", false, "suspended-maybe"))
	var user models.User
	assert.NoError(db.First(&user, "did = ?", "did:plc:alice").Error)
	assert.Equal(models.AccountStatusDeactivated, user.Status)

	assert.NoError(h.HandleAccount(ctx, "did:plc:alice", false, "takendown"))
	assert.NoError(db.First(&user, "did = ?", "did:plc:alice").Error)
	assert.Equal(models.AccountStatusTakendown, user.Status)

	// reactivation is reversible
	assert.NoError(h.HandleAccount(ctx, "did:plc:alice", true, ""))
	assert.NoError(db.First(&user, "did = ?", "did:plc:alice").Error)
	assert.Equal(models.AccountStatusActive, user.Status)
}

func TestHandleAccountDeletionPurges(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	h, db := testIdentityHandler(t, &fakeResolver{})

	// alice has a topic; bob replied to it and reacted to it
	assert.NoError(db.Create(&models.User{Did: "did:plc:alice", Handle: "alice.example.com"}).Error)
	assert.NoError(db.Create(&models.User{Did: "did:plc:bob"}).Error)
	assert.NoError(h.Tracker.Track(ctx, "did:plc:alice"))

	topicUri := "at://did:plc:alice/forum.barazo.topic/3k1"
	assert.NoError(db.Create(&models.Topic{Uri: topicUri, Cid: "c1", AuthorDid: "did:plc:alice", Community: "golang", Title: "t"}).Error)
	replyUri := "at://did:plc:bob/forum.barazo.reply/3r1"
	assert.NoError(db.Create(&models.Reply{Uri: replyUri, Cid: "c2", AuthorDid: "did:plc:bob", RootUri: topicUri}).Error)
	assert.NoError(db.Create(&models.Reaction{Uri: "at://did:plc:bob/forum.barazo.reaction/3x1", Cid: "c3", AuthorDid: "did:plc:bob", SubjectUri: replyUri, Kind: "like"}).Error)
	assert.NoError(db.Create(&models.Notification{ForDid: "did:plc:alice", ActorDid: "did:plc:bob", Kind: "reply", SubjectUri: replyUri}).Error)
	assert.NoError(db.Create(&models.UserPreference{Did: "did:plc:alice", Name: "lang", Value: "en"}).Error)
	assert.NoError(db.Create(&models.AccountTrust{Did: "did:plc:alice", Community: "golang", ApprovedPostCount: 3}).Error)
	assert.NoError(db.Create(&models.ModerationQueueItem{SubjectUri: replyUri, SubjectType: "reply", AuthorDid: "did:plc:bob", Community: "golang", Reason: "first_post", Status: models.StatusPending}).Error)

	assert.NoError(h.HandleAccount(ctx, "did:plc:alice", false, "deleted"))

	// everything hanging off alice's content is gone, including bob's
	// reply to her topic and its dependents
	for _, model := range []interface{}{
		&models.Topic{}, &models.Reply{}, &models.Reaction{},
		&models.Notification{}, &models.UserPreference{},
		&models.AccountTrust{}, &models.ModerationQueueItem{},
	} {
		var count int64
		db.Model(model).Count(&count)
		assert.Equal(int64(0), count)
	}

	var userCount int64
	db.Model(&models.User{}).Where("did = ?", "did:plc:alice").Count(&userCount)
	assert.Equal(int64(0), userCount)

	// bob's account itself survives
	db.Model(&models.User{}).Where("did = ?", "did:plc:bob").Count(&userCount)
	assert.Equal(int64(1), userCount)

	// the tracked-repo row went with the purge transaction, and the
	// in-memory set followed
	var repoCount int64
	db.Model(&models.TrackedRepo{}).Where("did = ?", "did:plc:alice").Count(&repoCount)
	assert.Equal(int64(0), repoCount)
	assert.False(h.Tracker.IsTracked("did:plc:alice"))
}
