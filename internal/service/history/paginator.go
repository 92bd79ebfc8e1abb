// Package history drives backward page loading for an open channel and the
// personal sent-message archive.
package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/platform"
	"github.com/Chiragadve/chatgenius/internal/service/messages"
	"github.com/Chiragadve/chatgenius/internal/service/profile"
)

// PageSize is the channel history page size.
const PageSize = 50

// ErrLoadFailed marks a retryable page-load failure. No automatic retry is
// performed; the user retriggers the load.
var ErrLoadFailed = errors.New("message page load failed")

// Cursor is the pagination state for one open channel.
type Cursor struct {
	OldestLoadedAt *time.Time
	HasMore        bool
	Loading        bool
}

// Paginator loads pages of one channel's history into its store. A paginator
// is built per open channel and discarded on channel switch.
type Paginator struct {
	fetcher  platform.History
	resolver *profile.Resolver
	store    *messages.Store
	log      zerolog.Logger

	mu     sync.Mutex
	cursor Cursor
	failed bool
}

// NewPaginator binds a paginator to a channel's store.
func NewPaginator(fetcher platform.History, resolver *profile.Resolver, store *messages.Store, log zerolog.Logger) *Paginator {
	return &Paginator{
		fetcher:  fetcher,
		resolver: resolver,
		store:    store,
		log:      log.With().Str("component", "paginator").Str("channel", store.ChannelID()).Logger(),
	}
}

// Cursor returns a copy of the current pagination state.
func (p *Paginator) Cursor() Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Failed reports whether the last load attempt failed and is waiting on a
// user-triggered retry.
func (p *Paginator) Failed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}

// LoadInitial fetches the first page ascending and seeds the store. It resets
// the cursor, so it also serves as the reconnect recovery path: re-running it
// after a feed resubscribe fills any gap the connection drop left.
func (p *Paginator) LoadInitial(ctx context.Context) error {
	p.mu.Lock()
	if p.cursor.Loading {
		p.mu.Unlock()
		return nil
	}
	p.cursor.Loading = true
	p.mu.Unlock()

	batch, err := p.fetcher.FetchPage(ctx, p.store.ChannelID(), nil, PageSize)
	if err != nil {
		p.log.Error().Err(err).Msg("initial page load failed")
		p.finish(func(c *Cursor) { p.failed = true })
		return errors.Join(ErrLoadFailed, err)
	}

	enriched := p.resolver.Enrich(ctx, batch)
	if !p.store.Apply(enriched) {
		// Channel was closed while the fetch was in flight; drop the result.
		p.finish(nil)
		return nil
	}

	p.finish(func(c *Cursor) {
		p.failed = false
		c.HasMore = len(batch) == PageSize
		c.OldestLoadedAt = oldestOf(enriched)
	})
	return nil
}

// LoadOlder fetches the next older page and merges it in front of the current
// set. It is a no-op while a load is in flight, once history is exhausted, or
// before the initial page has seeded the cursor. Duplicate trigger events are
// expected; the Loading flag is the correctness mechanism.
func (p *Paginator) LoadOlder(ctx context.Context) error {
	p.mu.Lock()
	if p.cursor.Loading || !p.cursor.HasMore || p.cursor.OldestLoadedAt == nil {
		p.mu.Unlock()
		return nil
	}
	before := *p.cursor.OldestLoadedAt
	p.cursor.Loading = true
	p.mu.Unlock()

	batch, err := p.fetcher.FetchPage(ctx, p.store.ChannelID(), &before, PageSize)
	if err != nil {
		p.log.Error().Err(err).Time("before", before).Msg("older page load failed")
		p.finish(func(c *Cursor) { p.failed = true })
		return errors.Join(ErrLoadFailed, err)
	}

	if len(batch) == 0 {
		p.finish(func(c *Cursor) {
			p.failed = false
			c.HasMore = false
		})
		return nil
	}

	// The fetch is descending from the cursor; flip to ascending before the
	// merge so the batch prepends cleanly.
	reverse(batch)
	enriched := p.resolver.Enrich(ctx, batch)
	if !p.store.Apply(enriched) {
		p.finish(nil)
		return nil
	}

	p.finish(func(c *Cursor) {
		p.failed = false
		c.HasMore = len(batch) == PageSize
		if oldest := oldestOf(enriched); oldest != nil {
			c.OldestLoadedAt = oldest
		}
	})
	return nil
}

// finish clears the loading flag and applies an optional cursor mutation in
// the same critical section.
func (p *Paginator) finish(mutate func(*Cursor)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor.Loading = false
	if mutate != nil {
		mutate(&p.cursor)
	}
}

func oldestOf(batch []chat.Message) *time.Time {
	if len(batch) == 0 {
		return nil
	}
	oldest := batch[0].CreatedAt
	for _, m := range batch[1:] {
		if m.CreatedAt.Before(oldest) {
			oldest = m.CreatedAt
		}
	}
	return &oldest
}

func reverse(batch []chat.Message) {
	for i, j := 0, len(batch)-1; i < j; i, j = i+1, j-1 {
		batch[i], batch[j] = batch[j], batch[i]
	}
}
