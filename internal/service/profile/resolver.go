// Package profile batch-resolves author ids to display identity. Lookups go
// through a bounded TTL cache so repeated merges of the same authors do not
// hammer the directory.
package profile

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/platform"
)

const (
	defaultCacheTTL = 5 * time.Minute
	defaultCacheCap = 512
)

type cacheEntry struct {
	profile   chat.AuthorProfile
	fetchedAt time.Time
}

// Resolver resolves user ids to profiles through a platform directory.
type Resolver struct {
	dir platform.Directory
	log zerolog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	ttl   time.Duration
	cap   int
	now   func() time.Time
}

// NewResolver creates a resolver with the default cache policy.
func NewResolver(dir platform.Directory, log zerolog.Logger) *Resolver {
	return &Resolver{
		dir:   dir,
		log:   log.With().Str("component", "profile").Logger(),
		cache: make(map[string]cacheEntry),
		ttl:   defaultCacheTTL,
		cap:   defaultCacheCap,
		now:   time.Now,
	}
}

// WithCachePolicy overrides the cache TTL and capacity.
func (r *Resolver) WithCachePolicy(ttl time.Duration, capacity int) *Resolver {
	r.ttl = ttl
	r.cap = capacity
	return r
}

// Resolve returns profiles for the given ids. Ids the directory does not know
// are absent from the result. A directory error returns whatever the cache
// could serve along with the error; callers degrade rather than block.
func (r *Resolver) Resolve(ctx context.Context, userIDs []string) (map[string]chat.AuthorProfile, error) {
	out := make(map[string]chat.AuthorProfile, len(userIDs))
	var missing []string

	r.mu.Lock()
	for _, id := range dedupeIDs(userIDs) {
		if entry, ok := r.cache[id]; ok && r.now().Sub(entry.fetchedAt) < r.ttl {
			out[id] = entry.profile
			continue
		}
		missing = append(missing, id)
	}
	r.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := r.dir.ResolveProfiles(ctx, missing)
	if err != nil {
		r.log.Warn().Err(err).Int("ids", len(missing)).Msg("profile resolution failed")
		return out, err
	}

	r.mu.Lock()
	now := r.now()
	for id, p := range fetched {
		out[id] = p
		r.cache[id] = cacheEntry{profile: p, fetchedAt: now}
	}
	r.evictLocked()
	r.mu.Unlock()

	return out, nil
}

// Enrich attaches an AuthorDisplay to every message in the batch. Resolution
// failure degrades to the id fallback; Enrich never blocks a merge.
func (r *Resolver) Enrich(ctx context.Context, msgs []chat.Message) []chat.Message {
	if len(msgs) == 0 {
		return msgs
	}

	authorIDs := make([]string, 0, len(msgs))
	for _, m := range msgs {
		authorIDs = append(authorIDs, m.AuthorID)
	}

	// On error Resolve still returns what the cache could serve; only the
	// authors it could not cover fall back to the raw id.
	profiles, _ := r.Resolve(ctx, authorIDs)

	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		if p, ok := profiles[m.AuthorID]; ok {
			m.Author = p.Display()
		} else {
			m.Author = chat.FallbackDisplay(m.AuthorID)
		}
		out[i] = m
	}
	return out
}

// Invalidate drops a cached profile, forcing a fresh lookup next time.
func (r *Resolver) Invalidate(userID string) {
	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
}

// evictLocked trims expired entries first, then oldest entries until the
// cache fits its capacity. Caller holds r.mu.
func (r *Resolver) evictLocked() {
	now := r.now()
	for id, entry := range r.cache {
		if now.Sub(entry.fetchedAt) >= r.ttl {
			delete(r.cache, id)
		}
	}
	for len(r.cache) > r.cap {
		var oldestID string
		var oldestAt time.Time
		for id, entry := range r.cache {
			if oldestID == "" || entry.fetchedAt.Before(oldestAt) {
				oldestID = id
				oldestAt = entry.fetchedAt
			}
		}
		delete(r.cache, oldestID)
	}
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
