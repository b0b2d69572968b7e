// Package auth resolves caller credentials into the tenant-scoped user
// context every pipeline operation is keyed by.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/logging"
)

// Resolver turns an opaque credential (API key, session token) into the
// caller's identity. Implementations wrap whatever identity backend the
// deployment uses.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (core.UserContext, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, credential string) (core.UserContext, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, credential string) (core.UserContext, error) {
	return f(ctx, credential)
}

// Cache defaults.
const (
	DefaultCacheTTL     = 5 * time.Minute
	DefaultCacheEntries = 1024
)

type cacheEntry struct {
	uc       core.UserContext
	cachedAt time.Time
}

// CachingResolver memoizes successful resolutions of an inner Resolver.
// Entries are keyed by the SHA-256 of the credential so raw secrets never sit
// in memory longer than the resolve call itself. The cache is bounded; when
// full, the oldest entry is evicted. Failed resolutions are never cached.
type CachingResolver struct {
	inner      Resolver
	ttl        time.Duration
	maxEntries int
	logger     logging.Logger
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// CachingOption tunes a CachingResolver.
type CachingOption func(*CachingResolver)

// WithTTL overrides the entry lifetime.
func WithTTL(ttl time.Duration) CachingOption {
	return func(r *CachingResolver) { r.ttl = ttl }
}

// WithMaxEntries overrides the cache capacity.
func WithMaxEntries(n int) CachingOption {
	return func(r *CachingResolver) { r.maxEntries = n }
}

// NewCachingResolver wraps inner with a bounded TTL cache. logger may be nil.
func NewCachingResolver(inner Resolver, logger logging.Logger, opts ...CachingOption) *CachingResolver {
	r := &CachingResolver{
		inner:      inner,
		ttl:        DefaultCacheTTL,
		maxEntries: DefaultCacheEntries,
		logger:     logging.OrNoOp(logger),
		now:        time.Now,
		entries:    make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve implements Resolver.
func (r *CachingResolver) Resolve(ctx context.Context, credential string) (core.UserContext, error) {
	if credential == "" {
		return core.UserContext{}, &core.AuthError{Message: "missing credential"}
	}
	key := hashCredential(credential)

	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		if r.now().Sub(e.cachedAt) < r.ttl {
			r.mu.Unlock()
			return e.uc, nil
		}
		delete(r.entries, key)
	}
	r.mu.Unlock()

	uc, err := r.inner.Resolve(ctx, credential)
	if err != nil {
		return core.UserContext{}, err
	}
	if !uc.Valid() {
		return core.UserContext{}, &core.AuthError{Message: "resolver returned incomplete identity"}
	}

	r.mu.Lock()
	if len(r.entries) >= r.maxEntries {
		r.evictOldestLocked()
	}
	r.entries[key] = cacheEntry{uc: uc, cachedAt: r.now()}
	r.mu.Unlock()

	r.logger.Debug("auth.resolved", "user_id", uc.UserID, "org_id", uc.OrganizationID)
	return uc, nil
}

// Invalidate drops the cache entry for a credential, forcing the next resolve
// through the inner resolver.
func (r *CachingResolver) Invalidate(credential string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, hashCredential(credential))
}

func (r *CachingResolver) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range r.entries {
		if oldestKey == "" || e.cachedAt.Before(oldest) {
			oldestKey = k
			oldest = e.cachedAt
		}
	}
	if oldestKey != "" {
		delete(r.entries, oldestKey)
	}
}

func hashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}
