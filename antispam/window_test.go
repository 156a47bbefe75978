package antispam

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemWindowStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	ws := NewMemWindowStore()

	c, err := ws.Count(ctx, "writes", "c1/did:plc:abc", time.Hour)
	assert.NoError(err)
	assert.Equal(int64(0), c)

	now := time.Now()
	assert.NoError(ws.Add(ctx, "writes", "c1/did:plc:abc", now))
	assert.NoError(ws.Add(ctx, "writes", "c1/did:plc:abc", now))
	assert.NoError(ws.Add(ctx, "writes", "c1/did:plc:abc", now.Add(-2*time.Hour)))

	c, err = ws.Count(ctx, "writes", "c1/did:plc:abc", time.Hour)
	assert.NoError(err)
	assert.Equal(int64(2), c)

	// stale entries are dropped, so the wider window still excludes them
	c, err = ws.Count(ctx, "writes", "c1/did:plc:abc", 3*time.Hour)
	assert.NoError(err)
	assert.Equal(int64(2), c)

	// windows are scoped per value
	c, err = ws.Count(ctx, "writes", "c1/did:plc:other", time.Hour)
	assert.NoError(err)
	assert.Equal(int64(0), c)
}
