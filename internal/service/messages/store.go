// Package messages holds the canonical ordered message set for one open
// channel. The store is the single writer: pagination, realtime ingestion and
// optimistic sends all submit batches through Apply, and the materialized view
// is always deduplicated by id and sorted by (createdAt, id).
package messages

import (
	"sort"
	"sync"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
)

// Merge combines two message batches into a deduplicated, ordered sequence.
// Incoming entries overwrite current entries that share an id (last-write-wins
// on identity), then the union is sorted ascending by creation time with id as
// the tiebreak. Merge is pure and idempotent; the result depends only on the
// final set, never on arrival order.
func Merge(current, incoming []chat.Message) []chat.Message {
	byID := make(map[string]chat.Message, len(current)+len(incoming))
	for _, m := range current {
		if m.ID == "" {
			continue
		}
		byID[m.ID] = m
	}
	for _, m := range incoming {
		if m.ID == "" {
			continue
		}
		byID[m.ID] = m
	}

	out := make([]chat.Message, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Store owns the canonical message set for a single channel. All mutation is
// a read-modify-write under the store's lock, so concurrent completions of
// async operations can never commit against a stale snapshot.
type Store struct {
	mu       sync.RWMutex
	channel  string
	messages []chat.Message
	closed   bool
}

// NewStore creates an empty store bound to a channel.
func NewStore(channelID string) *Store {
	return &Store{channel: channelID}
}

// ChannelID reports the channel this store is bound to.
func (s *Store) ChannelID() string { return s.channel }

// Apply merges a batch into the canonical set. It returns false if the store
// has been closed, in which case the batch is discarded; async completions
// that outlive their channel session must not corrupt a newer view.
func (s *Store) Apply(incoming []chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.messages = Merge(s.messages, incoming)
	return true
}

// Swap removes the entry with oldID and merges in its replacement. Used to
// promote an optimistic message to its persisted counterpart in one step.
func (s *Store) Swap(oldID string, replacement chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	kept := make([]chat.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if m.ID != oldID {
			kept = append(kept, m)
		}
	}
	s.messages = Merge(kept, []chat.Message{replacement})
	return true
}

// Remove drops the entry with the given id, if present.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	s.messages = kept
}

// Contains reports whether a message with the given id is present.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the current ordered view.
func (s *Store) Snapshot() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len reports the number of messages in the canonical set.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Close marks the store dead. Subsequent Apply/Swap calls are discarded.
// Closing is how a channel switch guarantees that late async completions from
// the previous channel cannot write into the next one's view.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.messages = nil
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
