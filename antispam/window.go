package antispam

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// WindowStore tracks per-identity write timestamps so the gate can count
// writes inside arbitrary sliding windows. Implementations must tolerate
// duplicate Add calls (at-least-once delivery upstream).
type WindowStore interface {
	// Add records one write for val in the named set.
	Add(ctx context.Context, name, val string, at time.Time) error
	// Count trims entries older than the window and returns how many remain.
	Count(ctx context.Context, name, val string, window time.Duration) (int64, error)
}

var redisWindowPrefix string = "window/"

// window sets expire well after the longest window the gate uses
const redisWindowTTL = 48 * time.Hour

type RedisWindowStore struct {
	Client *redis.Client
}

func NewRedisWindowStore(redisURL string) (*RedisWindowStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisWindowStore{Client: rdb}, nil
}

func windowKey(name, val string) string {
	return redisWindowPrefix + name + "/" + val
}

func (s *RedisWindowStore) Add(ctx context.Context, name, val string, at time.Time) error {
	key := windowKey(name, val)

	multi := s.Client.Pipeline()
	multi.ZAdd(ctx, key, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: strconv.FormatInt(at.UnixNano(), 10),
	})
	multi.Expire(ctx, key, redisWindowTTL)
	_, err := multi.Exec(ctx)
	return err
}

func (s *RedisWindowStore) Count(ctx context.Context, name, val string, window time.Duration) (int64, error) {
	key := windowKey(name, val)
	cutoff := time.Now().Add(-window).UnixMilli()

	multi := s.Client.Pipeline()
	multi.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff))
	card := multi.ZCard(ctx, key)
	if _, err := multi.Exec(ctx); err != nil && err != redis.Nil {
		return 0, err
	}
	return card.Val(), nil
}

// MemWindowStore is an in-process WindowStore for tests and single-node
// deployments without redis.
type MemWindowStore struct {
	lk   sync.Mutex
	sets map[string][]time.Time
}

func NewMemWindowStore() *MemWindowStore {
	return &MemWindowStore{
		sets: make(map[string][]time.Time),
	}
}

func (s *MemWindowStore) Add(ctx context.Context, name, val string, at time.Time) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	key := windowKey(name, val)
	s.sets[key] = append(s.sets[key], at)
	return nil
}

func (s *MemWindowStore) Count(ctx context.Context, name, val string, window time.Duration) (int64, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	key := windowKey(name, val)
	cutoff := time.Now().Add(-window)
	kept := s.sets[key][:0]
	for _, at := range s.sets[key] {
		if !at.Before(cutoff) {
			kept = append(kept, at)
		}
	}
	s.sets[key] = kept
	return int64(len(kept)), nil
}
