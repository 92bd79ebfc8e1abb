// Package wsclient implements the platform surface against a running relay:
// REST for history, profiles, membership and inserts, one shared websocket
// for the realtime feeds and presence.
package wsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/platform"
	"github.com/Chiragadve/chatgenius/internal/relay/wire"
)

var _ platform.Platform = (*Platform)(nil)

// Platform talks to a relay server. It satisfies platform.Platform.
type Platform struct {
	baseURL string
	httpc   *http.Client
	log     zerolog.Logger

	mu       sync.Mutex
	ws       *websocket.Conn
	writeMu  sync.Mutex
	handlers map[string]*handler
	nextID   int
	// lastTrack is the most recent presence heartbeat, replayed after a
	// re-dial so the user does not vanish from peers on reconnect.
	lastTrack *chat.PresenceEntry
}

type handler struct {
	id        int
	topic     string
	onMessage func(chat.Message)
	onSync    func([]chat.PresenceEntry)
	onDrop    func(error)
}

// New creates a platform client for the relay at baseURL (e.g.
// "http://localhost:8090").
func New(baseURL string, log zerolog.Logger) *Platform {
	return &Platform{
		baseURL:  strings.TrimRight(baseURL, "/"),
		httpc:    &http.Client{Timeout: 15 * time.Second},
		log:      log.With().Str("component", "wsclient").Logger(),
		handlers: map[string]*handler{},
	}
}

// FetchPage implements platform.History.
func (p *Platform) FetchPage(ctx context.Context, channelID string, before *time.Time, limit int) ([]chat.Message, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if before != nil {
		q.Set("before", before.UTC().Format(time.RFC3339Nano))
	}
	var page []chat.Message
	err := p.getJSON(ctx, fmt.Sprintf("/api/channels/%s/messages?%s", url.PathEscape(channelID), q.Encode()), &page)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// ResolveProfiles implements platform.Directory.
func (p *Platform) ResolveProfiles(ctx context.Context, userIDs []string) (map[string]chat.AuthorProfile, error) {
	out := map[string]chat.AuthorProfile{}
	err := p.postJSON(ctx, "/api/profiles/resolve", map[string][]string{"ids": userIDs}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertMessage implements platform.Writer.
func (p *Platform) InsertMessage(ctx context.Context, channelID, authorID, content string) (chat.Message, error) {
	var m chat.Message
	err := p.postJSON(ctx, fmt.Sprintf("/api/channels/%s/messages", url.PathEscape(channelID)),
		map[string]string{"authorId": authorID, "content": content}, &m)
	if err != nil {
		return chat.Message{}, err
	}
	return m, nil
}

// Member implements platform.Membership.
func (p *Platform) Member(ctx context.Context, channelID, userID string) (bool, error) {
	var resp struct {
		Member bool `json:"member"`
	}
	err := p.getJSON(ctx, fmt.Sprintf("/api/channels/%s/members/%s", url.PathEscape(channelID), url.PathEscape(userID)), &resp)
	if err != nil {
		return false, err
	}
	return resp.Member, nil
}

// Join implements platform.Membership.
func (p *Platform) Join(ctx context.Context, channelID, userID string) error {
	return p.postJSON(ctx, fmt.Sprintf("/api/channels/%s/join", url.PathEscape(channelID)),
		map[string]string{"userId": userID}, nil)
}

// Leave implements platform.Membership.
func (p *Platform) Leave(ctx context.Context, channelID, userID string) error {
	return p.postJSON(ctx, fmt.Sprintf("/api/channels/%s/leave", url.PathEscape(channelID)),
		map[string]string{"userId": userID}, nil)
}

// ListChannels implements platform.Channels.
func (p *Platform) ListChannels(ctx context.Context) ([]chat.Channel, error) {
	var out []chat.Channel
	if err := p.getJSON(ctx, "/api/channels", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchUserHistory implements platform.Archive.
func (p *Platform) FetchUserHistory(ctx context.Context, userID string, offset, limit int) ([]chat.HistoryEntry, error) {
	var out []chat.HistoryEntry
	path := fmt.Sprintf("/api/users/%s/history?offset=%d&limit=%d", url.PathEscape(userID), offset, limit)
	if err := p.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertProfile registers the local user's profile with the relay directory.
// Not part of the platform surface; binaries call it at startup.
func (p *Platform) UpsertProfile(ctx context.Context, profile chat.AuthorProfile) error {
	return p.putJSON(ctx, "/api/profiles/"+url.PathEscape(profile.ID), profile)
}

// SubscribeInserts implements platform.Feeds.
func (p *Platform) SubscribeInserts(ctx context.Context, channelID string, onInsert func(chat.Message), onDrop func(error)) (platform.Subscription, error) {
	return p.subscribe(ctx, wire.RowsTopic(channelID), &handler{onMessage: onInsert, onDrop: onDrop})
}

// SubscribeBroadcast implements platform.Feeds.
func (p *Platform) SubscribeBroadcast(ctx context.Context, channelID string, onBroadcast func(chat.Message), onDrop func(error)) (platform.Subscription, error) {
	return p.subscribe(ctx, wire.BcastTopic(channelID), &handler{onMessage: onBroadcast, onDrop: onDrop})
}

// PublishBroadcast implements platform.Feeds.
func (p *Platform) PublishBroadcast(ctx context.Context, channelID string, msg chat.Message) error {
	if err := p.ensureSocket(ctx); err != nil {
		return err
	}
	return p.writeEnvelope(wire.Envelope{
		Type:    wire.TypePublish,
		Topic:   wire.BcastTopic(channelID),
		Message: &msg,
	})
}

// SubscribePresence implements platform.Presence.
func (p *Platform) SubscribePresence(ctx context.Context, onSync func([]chat.PresenceEntry)) (platform.Subscription, error) {
	return p.subscribe(ctx, wire.PresenceTopic, &handler{onSync: onSync})
}

// TrackPresence implements platform.Presence.
func (p *Platform) TrackPresence(ctx context.Context, entry chat.PresenceEntry) error {
	if err := p.ensureSocket(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.lastTrack = &entry
	p.mu.Unlock()
	return p.writeEnvelope(wire.Envelope{Type: wire.TypeTrack, Entry: &entry})
}

// Close tears the shared socket down.
func (p *Platform) Close() error {
	p.mu.Lock()
	ws := p.ws
	p.ws = nil
	p.handlers = map[string]*handler{}
	p.lastTrack = nil
	p.mu.Unlock()
	if ws != nil {
		return ws.Close()
	}
	return nil
}

func (p *Platform) subscribe(ctx context.Context, topic string, h *handler) (platform.Subscription, error) {
	if err := p.ensureSocket(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.nextID++
	h.id = p.nextID
	h.topic = topic
	p.handlers[topic] = h
	p.mu.Unlock()

	if err := p.writeEnvelope(wire.Envelope{Type: wire.TypeSubscribe, Topic: topic}); err != nil {
		p.mu.Lock()
		if cur, ok := p.handlers[topic]; ok && cur.id == h.id {
			delete(p.handlers, topic)
		}
		p.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	return &subscription{platform: p, topic: topic, id: h.id}, nil
}

// ensureSocket dials the relay websocket once and starts the read loop.
// A call after a drop re-dials and replays the surviving subscriptions and
// the last presence heartbeat; the relay holds no per-client state across
// connections, so the replay is what restores the feeds.
func (p *Platform) ensureSocket(ctx context.Context) error {
	p.mu.Lock()
	if p.ws != nil {
		p.mu.Unlock()
		return nil
	}

	wsURL := strings.Replace(p.baseURL, "http", "ws", 1) + "/api/ws"
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("dial relay websocket: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	p.ws = ws
	topics := make([]string, 0, len(p.handlers))
	for topic := range p.handlers {
		topics = append(topics, topic)
	}
	var track *chat.PresenceEntry
	if p.lastTrack != nil {
		entry := *p.lastTrack
		track = &entry
	}
	p.mu.Unlock()

	go p.readLoop(ws)

	for _, topic := range topics {
		if err := p.writeEnvelope(wire.Envelope{Type: wire.TypeSubscribe, Topic: topic}); err != nil {
			return fmt.Errorf("replay subscribe %s: %w", topic, err)
		}
	}
	if track != nil {
		if err := p.writeEnvelope(wire.Envelope{Type: wire.TypeTrack, Entry: track}); err != nil {
			return fmt.Errorf("replay track: %w", err)
		}
	}
	return nil
}

// readLoop dispatches inbound envelopes to topic handlers until the socket
// dies, then surfaces the drop to every feed handler.
func (p *Platform) readLoop(ws *websocket.Conn) {
	for {
		var env wire.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			p.mu.Lock()
			if p.ws == ws {
				p.ws = nil
			}
			dropped := make([]*handler, 0, len(p.handlers))
			for _, h := range p.handlers {
				dropped = append(dropped, h)
			}
			p.mu.Unlock()

			for _, h := range dropped {
				if h.onDrop != nil {
					h.onDrop(err)
				}
			}
			return
		}

		switch env.Type {
		case wire.TypeEvent:
			if env.Message == nil {
				continue
			}
			p.mu.Lock()
			h := p.handlers[env.Topic]
			p.mu.Unlock()
			if h != nil && h.onMessage != nil {
				h.onMessage(*env.Message)
			}
		case wire.TypePresence:
			p.mu.Lock()
			h := p.handlers[wire.PresenceTopic]
			p.mu.Unlock()
			if h != nil && h.onSync != nil {
				h.onSync(env.State)
			}
		case wire.TypeError:
			p.log.Warn().Str("error", env.Error).Msg("relay rejected a frame")
		}
	}
}

func (p *Platform) writeEnvelope(env wire.Envelope) error {
	p.mu.Lock()
	ws := p.ws
	p.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("relay websocket not connected")
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return ws.WriteJSON(env)
}

type subscription struct {
	platform *Platform
	topic    string
	id       int
	once     sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.platform.mu.Lock()
		h, ok := s.platform.handlers[s.topic]
		if ok && h.id == s.id {
			delete(s.platform.handlers, s.topic)
		}
		s.platform.mu.Unlock()
		if ok && h.id == s.id {
			_ = s.platform.writeEnvelope(wire.Envelope{Type: wire.TypeUnsubscribe, Topic: s.topic})
		}
	})
	return nil
}

func (p *Platform) getJSON(ctx context.Context, path string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	return p.do(req, dst)
}

func (p *Platform) postJSON(ctx context.Context, path string, body, dst interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, dst)
}

func (p *Platform) putJSON(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, nil)
}

func (p *Platform) do(req *http.Request, dst interface{}) error {
	resp, err := p.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		switch resp.StatusCode {
		case http.StatusForbidden:
			return platform.ErrNotMember
		case http.StatusNotFound:
			return platform.ErrChannelNotFound
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("relay returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
