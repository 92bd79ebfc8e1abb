package relay

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/relay/wire"
)

// Hub fans envelopes out to websocket connections by topic and owns the
// presence state. Connections register on upgrade and deregister on close;
// a closing connection drops its presence records, which triggers a sync.
type Hub struct {
	log zerolog.Logger

	mu     sync.Mutex
	topics map[string]map[*conn]bool
	// presence records keyed by connection; one connection may track one
	// record, several connections per user are expected.
	presence map[*conn]chat.PresenceEntry
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:      log.With().Str("component", "hub").Logger(),
		topics:   map[string]map[*conn]bool{},
		presence: map[*conn]chat.PresenceEntry{},
	}
}

// Subscribe attaches a connection to a topic. Presence subscribers
// immediately receive the current full state.
func (h *Hub) Subscribe(c *conn, topic string) {
	h.mu.Lock()
	if h.topics[topic] == nil {
		h.topics[topic] = map[*conn]bool{}
	}
	h.topics[topic][c] = true
	var snapshot []chat.PresenceEntry
	if topic == wire.PresenceTopic {
		snapshot = h.presenceStateLocked()
	}
	h.mu.Unlock()

	if topic == wire.PresenceTopic {
		c.send(wire.Envelope{Type: wire.TypePresence, State: snapshot})
	}
}

// Unsubscribe detaches a connection from a topic.
func (h *Hub) Unsubscribe(c *conn, topic string) {
	h.mu.Lock()
	delete(h.topics[topic], c)
	h.mu.Unlock()
}

// Publish delivers an envelope to every subscriber of the topic, the origin
// connection included; clients dedup by message id.
func (h *Hub) Publish(topic string, env wire.Envelope) {
	h.mu.Lock()
	subs := make([]*conn, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		subs = append(subs, c)
	}
	h.mu.Unlock()

	for _, c := range subs {
		c.send(env)
	}
}

// PublishRow fans a freshly persisted message out on the channel's row feed.
func (h *Hub) PublishRow(m chat.Message) {
	h.Publish(wire.RowsTopic(m.ChannelID), wire.Envelope{
		Type:    wire.TypeEvent,
		Topic:   wire.RowsTopic(m.ChannelID),
		Message: &m,
	})
}

// Track records a connection's presence heartbeat and pushes the new full
// state to every presence subscriber.
func (h *Hub) Track(c *conn, entry chat.PresenceEntry) {
	h.mu.Lock()
	h.presence[c] = entry
	h.mu.Unlock()
	h.syncPresence()
}

// Drop removes a connection from every topic and from presence. Called once
// from the connection's read loop on close.
func (h *Hub) Drop(c *conn) {
	h.mu.Lock()
	for _, subs := range h.topics {
		delete(subs, c)
	}
	_, tracked := h.presence[c]
	delete(h.presence, c)
	h.mu.Unlock()

	if tracked {
		h.syncPresence()
	}
}

func (h *Hub) syncPresence() {
	h.mu.Lock()
	state := h.presenceStateLocked()
	subs := make([]*conn, 0, len(h.topics[wire.PresenceTopic]))
	for c := range h.topics[wire.PresenceTopic] {
		subs = append(subs, c)
	}
	h.mu.Unlock()

	env := wire.Envelope{Type: wire.TypePresence, State: state}
	for _, c := range subs {
		c.send(env)
	}
}

// presenceStateLocked flattens per-connection records into the full state.
// Callers hold h.mu.
func (h *Hub) presenceStateLocked() []chat.PresenceEntry {
	out := make([]chat.PresenceEntry, 0, len(h.presence))
	for _, entry := range h.presence {
		out = append(out, entry)
	}
	return out
}
