package antispam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/barazo-forum/barazo-api-sub003/models"
)

// Settings is the per-community gate configuration, denormalized from
// models.CommunitySettings into the shape the checks want.
type Settings struct {
	Community              string
	BlockedWords           []string
	HoldLinks              bool
	RateLimitWindow        time.Duration
	RateLimitMax           int64
	NewAccountRateLimitMax int64
	BurstWindow            time.Duration
	BurstMax               int64
	FirstPostQueueCount    int64
	NewAccountDays         int64
	AutoTrustApprovedPosts int64
}

func settingsFromModel(m *models.CommunitySettings) *Settings {
	var words []string
	for _, w := range strings.Split(m.BlockedWords, "\n") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return &Settings{
		Community:              m.Community,
		BlockedWords:           words,
		HoldLinks:              m.HoldLinks,
		RateLimitWindow:        time.Duration(m.RateLimitWindowSecs) * time.Second,
		RateLimitMax:           m.RateLimitMax,
		NewAccountRateLimitMax: m.NewAccountRateLimitMax,
		BurstWindow:            time.Duration(m.BurstWindowSecs) * time.Second,
		BurstMax:               m.BurstMax,
		FirstPostQueueCount:    m.FirstPostQueueCount,
		NewAccountDays:         m.NewAccountDays,
		AutoTrustApprovedPosts: m.AutoTrustApprovedPosts,
	}
}

// SettingsLoader is a cache-backed read-through for community settings. The
// admin surface calls Invalidate after every edit.
type SettingsLoader struct {
	DB     *gorm.DB
	Logger *slog.Logger

	data *cache.Cache
	ttl  time.Duration
}

func NewSettingsLoader(db *gorm.DB, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *SettingsLoader {
	l := &SettingsLoader{
		DB:     db,
		Logger: logger,
		ttl:    ttl,
	}
	if rdb != nil {
		l.data = cache.New(&cache.Options{
			Redis:      rdb,
			LocalCache: cache.NewTinyLFU(1_000, ttl),
		})
	}
	return l
}

func settingsCacheKey(community string) string {
	return "settings/" + community
}

// Load returns the community's settings, reading through the cache. A cache
// failure degrades to a direct database read rather than failing the gate.
func (l *SettingsLoader) Load(ctx context.Context, community string) (*Settings, error) {
	if l.data == nil {
		return l.loadFromDB(ctx, community)
	}

	var s Settings
	err := l.data.Once(&cache.Item{
		Ctx:   ctx,
		Key:   settingsCacheKey(community),
		Value: &s,
		TTL:   l.ttl,
		Do: func(*cache.Item) (interface{}, error) {
			loaded, err := l.loadFromDB(ctx, community)
			if err != nil {
				return nil, err
			}
			return loaded, nil
		},
	})
	if err != nil {
		l.Logger.Warn("settings cache read failed, falling back to database", "community", community, "err", err)
		return l.loadFromDB(ctx, community)
	}
	return &s, nil
}

func (l *SettingsLoader) loadFromDB(ctx context.Context, community string) (*Settings, error) {
	var m models.CommunitySettings
	if err := l.DB.WithContext(ctx).First(&m, "community = ?", community).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m = models.CommunitySettings{Community: community}
			m.RateLimitWindowSecs = 3600
			m.RateLimitMax = 30
			m.NewAccountRateLimitMax = 5
			m.BurstWindowSecs = 60
			m.BurstMax = 5
			m.FirstPostQueueCount = 1
			m.NewAccountDays = 7
			m.AutoTrustApprovedPosts = 5
			return settingsFromModel(&m), nil
		}
		return nil, fmt.Errorf("loading settings for %s: %w", community, err)
	}
	return settingsFromModel(&m), nil
}

// Invalidate drops the cached settings for a community.
func (l *SettingsLoader) Invalidate(ctx context.Context, community string) error {
	if l.data == nil {
		return nil
	}
	err := l.data.Delete(ctx, settingsCacheKey(community))
	if err == cache.ErrCacheMiss {
		return nil
	}
	return err
}
