package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testDirectoryServer(t *testing.T, reqCount *atomic.Int64) *httptest.Server {
	t.Helper()

	created := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqCount.Add(1)
		switch r.URL.Path {
		case "/directory/did:plc:alice":
			json.NewEncoder(w).Encode(Identity{
				Did:       "did:plc:alice",
				Handle:    "alice.example.com",
				CreatedAt: &created,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPResolverLookup(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var reqCount atomic.Int64
	srv := testDirectoryServer(t, &reqCount)
	res := NewHTTPResolver(srv.URL)

	ident, err := res.Lookup(ctx, "did:plc:alice")
	assert.NoError(err)
	assert.Equal("did:plc:alice", ident.Did)
	assert.Equal("alice.example.com", ident.Handle)
	if assert.NotNil(ident.CreatedAt) {
		assert.Equal(2025, ident.CreatedAt.Year())
	}

	_, err = res.Lookup(ctx, "did:plc:ghost")
	assert.ErrorIs(err, ErrIdentityNotFound)
}

func TestCachingResolver(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var reqCount atomic.Int64
	srv := testDirectoryServer(t, &reqCount)
	res := NewCachingResolver(NewHTTPResolver(srv.URL), time.Hour, 100)

	for i := 0; i < 3; i++ {
		ident, err := res.Lookup(ctx, "did:plc:alice")
		assert.NoError(err)
		assert.Equal("alice.example.com", ident.Handle)
	}
	assert.Equal(int64(1), reqCount.Load())

	// purge forces a refetch
	res.Purge("did:plc:alice")
	_, err := res.Lookup(ctx, "did:plc:alice")
	assert.NoError(err)
	assert.Equal(int64(2), reqCount.Load())
}

func TestStatusForAccountAge(t *testing.T) {
	assert := assert.New(t)

	fresh := time.Now().Add(-24 * time.Hour)
	old := time.Now().Add(-90 * 24 * time.Hour)

	assert.Equal(TrustStatusNew, StatusForAccountAge(&fresh, 7))
	assert.Equal(TrustStatusEstablished, StatusForAccountAge(&old, 7))

	// resolution failure fails open
	assert.Equal(TrustStatusEstablished, StatusForAccountAge(nil, 7))

	// a disabled threshold means everyone is established
	assert.Equal(TrustStatusEstablished, StatusForAccountAge(&fresh, 0))
}
