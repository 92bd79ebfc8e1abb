// Package realtime bridges the row-insertion feed and the peer broadcast feed
// into a channel's message store.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/platform"
	"github.com/Chiragadve/chatgenius/internal/service/messages"
	"github.com/Chiragadve/chatgenius/internal/service/profile"
)

// Status describes the connectivity of the two feeds. Drops are surfaced to
// the UI; they never corrupt the store.
type Status int

const (
	StatusIdle Status = iota
	StatusLive
	StatusDropped
)

// Ingestor subscribes both realtime feeds for one open channel and applies
// their payloads to the store. One ingestor per open channel; re-entering a
// channel builds a fresh one rather than stacking subscriptions.
type Ingestor struct {
	feeds    platform.Feeds
	resolver *profile.Resolver
	store    *messages.Store
	log      zerolog.Logger

	// onStatus, when set, observes feed connectivity changes.
	onStatus func(Status)

	mu   sync.Mutex
	subs []platform.Subscription
	live bool
}

// NewIngestor builds an ingestor bound to a channel's store.
func NewIngestor(feeds platform.Feeds, resolver *profile.Resolver, store *messages.Store, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		feeds:    feeds,
		resolver: resolver,
		store:    store,
		log:      log.With().Str("component", "ingestor").Str("channel", store.ChannelID()).Logger(),
	}
}

// OnStatus registers a connectivity observer. Must be called before Start.
func (i *Ingestor) OnStatus(fn func(Status)) { i.onStatus = fn }

// Start subscribes the row-insertion and broadcast feeds. Both are torn down
// together by Stop. If either subscribe fails, neither stays attached.
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.live {
		return nil
	}

	onDrop := func(err error) {
		i.log.Warn().Err(err).Msg("realtime feed dropped")
		i.notify(StatusDropped)
	}

	rowSub, err := i.feeds.SubscribeInserts(ctx, i.store.ChannelID(), i.handleInsert, onDrop)
	if err != nil {
		return fmt.Errorf("subscribe row inserts: %w", err)
	}

	bcSub, err := i.feeds.SubscribeBroadcast(ctx, i.store.ChannelID(), i.handleBroadcast, onDrop)
	if err != nil {
		_ = rowSub.Close()
		return fmt.Errorf("subscribe broadcast: %w", err)
	}

	i.subs = []platform.Subscription{rowSub, bcSub}
	i.live = true
	i.notify(StatusLive)
	return nil
}

// Stop closes both subscriptions. Safe to call repeatedly.
func (i *Ingestor) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, sub := range i.subs {
		_ = sub.Close()
	}
	i.subs = nil
	if i.live {
		i.live = false
		i.notify(StatusIdle)
	}
}

// handleInsert receives an authoritative persisted row without author display
// data, resolves the author and merges. Resolution is async relative to other
// feed events, so rows may commit out of arrival order; the store's sort
// invariant makes the final position correct regardless.
func (i *Ingestor) handleInsert(m chat.Message) {
	enriched := i.resolver.Enrich(context.Background(), []chat.Message{m})
	if !i.store.Apply(enriched) {
		i.log.Debug().Str("id", m.ID).Msg("insert arrived after channel close, discarded")
	}
}

// handleBroadcast receives a fully-enriched payload from a peer session. If
// the id is already present (own echo or the row feed won the race) it is
// skipped to avoid redundant churn.
func (i *Ingestor) handleBroadcast(m chat.Message) {
	if i.store.Contains(m.ID) {
		return
	}
	if !i.store.Apply([]chat.Message{m}) {
		i.log.Debug().Str("id", m.ID).Msg("broadcast arrived after channel close, discarded")
	}
}

func (i *Ingestor) notify(s Status) {
	if i.onStatus != nil {
		i.onStatus(s)
	}
}
