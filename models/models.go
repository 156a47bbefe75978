package models

import (
	"time"
)

// Moderation status values for content rows. Content which is held by the
// anti-spam gate is written with StatusPending and excluded from default
// listings by the read-side API.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// User account status values, mirroring upstream account events.
const (
	AccountStatusActive      = "active"
	AccountStatusDeactivated = "deactivated"
	AccountStatusTakendown   = "takendown"
)

// User roles. Moderators and admins bypass the anti-spam gate.
const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// User is a lazily-created stub for any identity observed on the stream.
// AccountCreatedAt is resolved once from the network directory and cached;
// nil means resolution failed and will be retried on a later event.
type User struct {
	ID               uint   `gorm:"primaryKey"`
	Did              string `gorm:"uniqueIndex;not null"`
	Handle           string
	Role             string `gorm:"default:member"`
	Status           string `gorm:"default:active"`
	AccountCreatedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TrackedRepo marks an identity whose repo events this instance indexes.
// Rows are created when an identity first produces or receives qualifying
// content, and deleted on account purge; never updated.
type TrackedRepo struct {
	Did       string `gorm:"primaryKey"`
	CreatedAt time.Time
}

type Topic struct {
	Uri              string `gorm:"primaryKey"`
	Cid              string `gorm:"not null"`
	AuthorDid        string `gorm:"index;not null"`
	Community        string `gorm:"index;not null"`
	Title            string
	Content          string
	Category         string
	Tags             string
	ReplyCount       int64 `gorm:"default:0"`
	ReactionCount    int64 `gorm:"default:0"`
	LastActivityAt   time.Time
	ModerationStatus string `gorm:"index;default:approved"`
	RecordCreatedAt  time.Time
	IndexedAt        time.Time
}

type Reply struct {
	Uri              string `gorm:"primaryKey"`
	Cid              string `gorm:"not null"`
	AuthorDid        string `gorm:"index;not null"`
	Content          string
	RootUri          string `gorm:"index;not null"`
	ParentUri        string `gorm:"index"`
	ReactionCount    int64  `gorm:"default:0"`
	ModerationStatus string `gorm:"index;default:approved"`
	RecordCreatedAt  time.Time
	IndexedAt        time.Time
}

// Reaction rows are de-duplicated per {author, subject, kind}; replays of the
// same create event hit the unique index and are dropped.
type Reaction struct {
	Uri              string `gorm:"primaryKey"`
	Cid              string `gorm:"not null"`
	AuthorDid        string `gorm:"index:idx_reaction_dedupe,unique;not null"`
	SubjectUri       string `gorm:"index:idx_reaction_dedupe,unique;not null"`
	Kind             string `gorm:"index:idx_reaction_dedupe,unique;not null"`
	ModerationStatus string `gorm:"default:approved"`
	RecordCreatedAt  time.Time
	IndexedAt        time.Time
}

// FirehoseCursor is the last durably-processed stream sequence, one row per
// upstream host. Seq is monotone non-decreasing.
type FirehoseCursor struct {
	Host      string `gorm:"primaryKey"`
	Seq       int64
	UpdatedAt time.Time
}

type Notification struct {
	ID         uint   `gorm:"primaryKey"`
	ForDid     string `gorm:"index;not null"`
	ActorDid   string `gorm:"not null"`
	Kind       string `gorm:"not null"`
	SubjectUri string
	Seen       bool `gorm:"default:false"`
	CreatedAt  time.Time
}

type UserPreference struct {
	ID    uint   `gorm:"primaryKey"`
	Did   string `gorm:"index:idx_pref_did_name,unique;not null"`
	Name  string `gorm:"index:idx_pref_did_name,unique;not null"`
	Value string
}

// CommunitySettings holds the per-community anti-spam configuration edited by
// the admin surface. BlockedWords is newline-separated.
type CommunitySettings struct {
	Community              string `gorm:"primaryKey"`
	BlockedWords           string
	HoldLinks              bool  `gorm:"default:false"`
	RateLimitWindowSecs    int64 `gorm:"default:3600"`
	RateLimitMax           int64 `gorm:"default:30"`
	NewAccountRateLimitMax int64 `gorm:"default:5"`
	BurstWindowSecs        int64 `gorm:"default:60"`
	BurstMax               int64 `gorm:"default:5"`
	FirstPostQueueCount    int64 `gorm:"default:1"`
	NewAccountDays         int64 `gorm:"default:7"`
	AutoTrustApprovedPosts int64 `gorm:"default:5"`
	UpdatedAt              time.Time
}
