// Package presence collapses multi-connection heartbeat state into a single
// online/offline view per user.
package presence

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/platform"
)

// Tracker maintains the userID -> PresenceEntry view for the live session.
type Tracker struct {
	presence platform.Presence
	self     chat.PresenceEntry
	log      zerolog.Logger

	mu       sync.Mutex
	onChange func(map[string]chat.PresenceEntry)
	online   map[string]chat.PresenceEntry
	sub      platform.Subscription
	active   bool
}

// NewTracker creates a tracker for the local user.
func NewTracker(presence platform.Presence, self chat.PresenceEntry, log zerolog.Logger) *Tracker {
	return &Tracker{
		presence: presence,
		self:     self,
		log:      log.With().Str("component", "presence").Logger(),
		online:   map[string]chat.PresenceEntry{},
	}
}

// OnChange registers an observer for online-view updates.
func (t *Tracker) OnChange(fn func(map[string]chat.PresenceEntry)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Start subscribes to presence sync events and publishes the local heartbeat.
// Every sync event carries the full state, possibly with several records per
// user; the tracker flattens it so one user with three connections counts
// once.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return nil
	}
	t.active = true
	t.mu.Unlock()

	// The platform may deliver the initial full-state snapshot synchronously
	// from inside SubscribePresence, re-entering handleSync, so the mutex
	// must not be held across either platform call.
	sub, err := t.presence.SubscribePresence(ctx, t.handleSync)
	if err != nil {
		t.mu.Lock()
		t.active = false
		t.mu.Unlock()
		return fmt.Errorf("subscribe presence: %w", err)
	}
	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()

	if err := t.presence.TrackPresence(ctx, t.self); err != nil {
		_ = sub.Close()
		t.mu.Lock()
		t.sub = nil
		t.active = false
		t.online = map[string]chat.PresenceEntry{}
		t.mu.Unlock()
		return fmt.Errorf("track presence: %w", err)
	}
	return nil
}

// Stop clears the online view immediately and unsubscribes. The view must not
// wait for the server's leave notification to empty.
func (t *Tracker) Stop() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.active = false
	t.online = map[string]chat.PresenceEntry{}
	view := t.snapshotLocked()
	t.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	t.notify(view)
}

// Online returns the current distinct-user view.
func (t *Tracker) Online() map[string]chat.PresenceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// OnlineCount reports the number of distinct users online.
func (t *Tracker) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.online)
}

func (t *Tracker) handleSync(state []chat.PresenceEntry) {
	t.mu.Lock()
	if !t.active {
		// Sync delivered after Stop; the view stays empty. A snapshot
		// arriving during Start, before the subscription handle lands,
		// is kept.
		t.mu.Unlock()
		return
	}
	next := make(map[string]chat.PresenceEntry, len(state))
	for _, entry := range state {
		if entry.UserID == "" {
			continue
		}
		next[entry.UserID] = entry
	}
	t.online = next
	view := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(view)
}

func (t *Tracker) snapshotLocked() map[string]chat.PresenceEntry {
	out := make(map[string]chat.PresenceEntry, len(t.online))
	for id, entry := range t.online {
		out[id] = entry
	}
	return out
}

func (t *Tracker) notify(view map[string]chat.PresenceEntry) {
	t.mu.Lock()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(view)
	}
}
