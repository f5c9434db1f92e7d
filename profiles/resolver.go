package profiles

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Resolver memoizes profile lookups per user ID. Entries live until
// explicitly invalidated (the session store invalidates on user change and
// on refresh) or until the optional TTL elapses. The resolver never retries
// a failed read; the caller decides whether to try again.
type Resolver struct {
	repo    Repo
	ttl     time.Duration // 0 means entries never expire on their own
	nowTime func() time.Time

	flight singleflight.Group

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	profile   *Profile // nil is a cached "no row" result
	fetchedAt time.Time
}

// ResolverOption modifies a Resolver instance.
type ResolverOption func(*Resolver)

// WithTTL bounds the lifetime of cached entries.
func WithTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.ttl = ttl
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.nowTime = nowFunc
	}
}

// NewResolver creates a Resolver over a profile repo.
func NewResolver(repo Repo, options ...ResolverOption) (*Resolver, error) {
	if repo == nil {
		return nil, errors.New("[NewResolver] profile repo is required")
	}
	r := &Resolver{
		repo:    repo,
		nowTime: time.Now,
		cache:   make(map[string]cacheEntry),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Resolve returns the profile for userID, or (nil, nil) when no profile row
// exists. Concurrent first-time lookups for the same ID are coalesced into a
// single backend read.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, errors.New("[Resolver.Resolve] userID is required")
	}

	if p, ok := r.cached(userID); ok {
		return p, nil
	}

	v, err, _ := r.flight.Do(userID, func() (interface{}, error) {
		if p, ok := r.cached(userID); ok {
			return p, nil
		}
		profile, err := r.repo.GetByID(ctx, userID)
		if err != nil {
			return nil, errors.Wrap(err, "[Resolver.Resolve] repo.GetByID")
		}
		r.mu.Lock()
		r.cache[userID] = cacheEntry{profile: profile, fetchedAt: r.nowTime()}
		r.mu.Unlock()
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Profile), nil
}

// Invalidate drops the cached entry for userID. The next Resolve performs a
// fresh backend read.
func (r *Resolver) Invalidate(userID string) {
	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
}

func (r *Resolver) cached(userID string) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[userID]
	if !ok {
		return nil, false
	}
	if r.ttl > 0 && r.nowTime().Sub(entry.fetchedAt) > r.ttl {
		return nil, false
	}
	return entry.profile, true
}
