package directory

import (
	"context"
	"time"

	arc "github.com/hashicorp/golang-lru/arc/v2"
)

// CachingResolver wraps another Resolver with an in-process ARC cache.
// Directory records change rarely; handle updates arrive as identity events
// which purge the entry.
type CachingResolver struct {
	res    Resolver
	maxAge time.Duration
	cache  *arc.ARCCache[string, *cachedIdentity]
}

type cachedIdentity struct {
	cachedAt time.Time
	ident    *Identity
}

func NewCachingResolver(res Resolver, maxAge time.Duration, size int) *CachingResolver {
	c, err := arc.NewARC[string, *cachedIdentity](size)
	if err != nil {
		panic(err)
	}

	return &CachingResolver{
		res:    res,
		cache:  c,
		maxAge: maxAge,
	}
}

func (r *CachingResolver) tryCache(did string) (*Identity, bool) {
	ci, ok := r.cache.Get(did)
	if !ok {
		return nil, false
	}

	if time.Since(ci.cachedAt) > r.maxAge {
		return nil, false
	}

	return ci.ident, true
}

func (r *CachingResolver) putCache(did string, ident *Identity) {
	r.cache.Add(did, &cachedIdentity{
		ident:    ident,
		cachedAt: time.Now(),
	})
}

func (r *CachingResolver) Lookup(ctx context.Context, did string) (*Identity, error) {
	if ident, ok := r.tryCache(did); ok {
		cacheHitsTotal.Inc()
		return ident, nil
	}
	cacheMissesTotal.Inc()

	ident, err := r.res.Lookup(ctx, did)
	if err != nil {
		return nil, err
	}

	r.putCache(did, ident)
	return ident, nil
}

func (r *CachingResolver) Purge(did string) {
	r.cache.Remove(did)
	r.res.Purge(did)
}
