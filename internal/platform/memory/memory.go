// Package memory is an in-process implementation of the platform surface.
// It backs the session tests and local development without a relay server.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/platform"
)

type subscriber[T any] struct {
	id int
	fn T
}

var _ platform.Platform = (*Platform)(nil)

// Platform holds all state behind one mutex. Feed callbacks run synchronously
// on the publishing goroutine, which keeps tests deterministic.
type Platform struct {
	mu sync.Mutex

	profiles map[string]chat.AuthorProfile
	channels []chat.Channel
	members  map[string]map[string]bool
	messages map[string][]chat.Message

	nextSub  int
	rowSubs  map[string][]subscriber[func(chat.Message)]
	bcSubs   map[string][]subscriber[func(chat.Message)]
	presSubs []subscriber[func([]chat.PresenceEntry)]
	presence []chat.PresenceEntry
}

// New creates an empty in-memory platform.
func New() *Platform {
	return &Platform{
		profiles: map[string]chat.AuthorProfile{},
		members:  map[string]map[string]bool{},
		messages: map[string][]chat.Message{},
		rowSubs:  map[string][]subscriber[func(chat.Message)]{},
		bcSubs:   map[string][]subscriber[func(chat.Message)]{},
	}
}

// SeedProfile registers a directory profile.
func (p *Platform) SeedProfile(profile chat.AuthorProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profile.ID] = profile
}

// SeedChannel registers a channel.
func (p *Platform) SeedChannel(ch chat.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, ch)
	if p.members[ch.ID] == nil {
		p.members[ch.ID] = map[string]bool{}
	}
}

// SeedMessage stores a persisted row without notifying any feed.
func (p *Platform) SeedMessage(m chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[m.ChannelID] = append(p.messages[m.ChannelID], m)
}

// FetchPage implements platform.History.
func (p *Platform) FetchPage(_ context.Context, channelID string, before *time.Time, limit int) ([]chat.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	asc := make([]chat.Message, 0, len(p.messages[channelID]))
	for _, m := range p.messages[channelID] {
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		asc = append(asc, m)
	}
	sort.Slice(asc, func(i, j int) bool { return asc[i].Before(asc[j]) })

	if before == nil {
		if len(asc) > limit {
			asc = asc[len(asc)-limit:]
		}
		return asc, nil
	}

	desc := make([]chat.Message, 0, limit)
	for i := len(asc) - 1; i >= 0 && len(desc) < limit; i-- {
		desc = append(desc, asc[i])
	}
	return desc, nil
}

// ResolveProfiles implements platform.Directory.
func (p *Platform) ResolveProfiles(_ context.Context, userIDs []string) (map[string]chat.AuthorProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]chat.AuthorProfile, len(userIDs))
	for _, id := range userIDs {
		if prof, ok := p.profiles[id]; ok {
			out[id] = prof
		}
	}
	return out, nil
}

// InsertMessage implements platform.Writer. The persisted row is fanned out
// on the channel's row feed without author display data.
func (p *Platform) InsertMessage(_ context.Context, channelID, authorID, content string) (chat.Message, error) {
	p.mu.Lock()
	if !p.members[channelID][authorID] {
		p.mu.Unlock()
		return chat.Message{}, platform.ErrNotMember
	}
	m := chat.Message{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	p.messages[channelID] = append(p.messages[channelID], m)
	subs := append([]subscriber[func(chat.Message)](nil), p.rowSubs[channelID]...)
	p.mu.Unlock()

	for _, s := range subs {
		s.fn(m)
	}
	return m, nil
}

// SubscribeInserts implements platform.Feeds.
func (p *Platform) SubscribeInserts(_ context.Context, channelID string, onInsert func(chat.Message), _ func(error)) (platform.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSub++
	id := p.nextSub
	p.rowSubs[channelID] = append(p.rowSubs[channelID], subscriber[func(chat.Message)]{id: id, fn: onInsert})
	return &sub{close: func() { p.dropRowSub(channelID, id) }}, nil
}

// SubscribeBroadcast implements platform.Feeds.
func (p *Platform) SubscribeBroadcast(_ context.Context, channelID string, onBroadcast func(chat.Message), _ func(error)) (platform.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSub++
	id := p.nextSub
	p.bcSubs[channelID] = append(p.bcSubs[channelID], subscriber[func(chat.Message)]{id: id, fn: onBroadcast})
	return &sub{close: func() { p.dropBcSub(channelID, id) }}, nil
}

// PublishBroadcast implements platform.Feeds. Delivery is at-least-once to
// every subscriber, the publisher's own session included.
func (p *Platform) PublishBroadcast(_ context.Context, channelID string, msg chat.Message) error {
	p.mu.Lock()
	subs := append([]subscriber[func(chat.Message)](nil), p.bcSubs[channelID]...)
	p.mu.Unlock()
	for _, s := range subs {
		s.fn(msg)
	}
	return nil
}

// SubscribePresence implements platform.Presence. The new subscriber
// immediately receives the current full state.
func (p *Platform) SubscribePresence(_ context.Context, onSync func([]chat.PresenceEntry)) (platform.Subscription, error) {
	p.mu.Lock()
	p.nextSub++
	id := p.nextSub
	p.presSubs = append(p.presSubs, subscriber[func([]chat.PresenceEntry)]{id: id, fn: onSync})
	state := append([]chat.PresenceEntry(nil), p.presence...)
	p.mu.Unlock()

	onSync(state)
	return &sub{close: func() { p.dropPresSub(id) }}, nil
}

// TrackPresence implements platform.Presence. Each call represents one
// connection's heartbeat record; the same user may appear several times.
func (p *Platform) TrackPresence(_ context.Context, entry chat.PresenceEntry) error {
	p.mu.Lock()
	p.presence = append(p.presence, entry)
	p.mu.Unlock()
	p.syncPresence()
	return nil
}

// UntrackPresence removes one connection record for the user (test hook for
// connection drops).
func (p *Platform) UntrackPresence(userID string) {
	p.mu.Lock()
	for i, e := range p.presence {
		if e.UserID == userID {
			p.presence = append(p.presence[:i], p.presence[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	p.syncPresence()
}

// Member implements platform.Membership.
func (p *Platform) Member(_ context.Context, channelID, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.members[channelID][userID], nil
}

// Join implements platform.Membership. Joining twice is idempotent.
func (p *Platform) Join(_ context.Context, channelID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.members[channelID] == nil {
		return platform.ErrChannelNotFound
	}
	p.members[channelID][userID] = true
	return nil
}

// Leave implements platform.Membership.
func (p *Platform) Leave(_ context.Context, channelID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.members[channelID], userID)
	return nil
}

// ListChannels implements platform.Channels.
func (p *Platform) ListChannels(_ context.Context) ([]chat.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]chat.Channel, len(p.channels))
	copy(out, p.channels)
	for i := range out {
		out[i].MemberCount = len(p.members[out[i].ID])
	}
	return out, nil
}

// FetchUserHistory implements platform.Archive: the user's own messages
// across channels, newest first, by offset.
func (p *Platform) FetchUserHistory(_ context.Context, userID string, offset, limit int) ([]chat.HistoryEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := map[string]string{}
	for _, ch := range p.channels {
		names[ch.ID] = ch.Name
	}

	var own []chat.HistoryEntry
	for channelID, msgs := range p.messages {
		for _, m := range msgs {
			if m.AuthorID != userID {
				continue
			}
			own = append(own, chat.HistoryEntry{
				ID:          m.ID,
				ChannelID:   channelID,
				ChannelName: names[channelID],
				Content:     m.Content,
				CreatedAt:   m.CreatedAt,
			})
		}
	}
	sort.Slice(own, func(i, j int) bool {
		if !own[i].CreatedAt.Equal(own[j].CreatedAt) {
			return own[i].CreatedAt.After(own[j].CreatedAt)
		}
		return own[i].ID < own[j].ID
	})

	if offset >= len(own) {
		return nil, nil
	}
	end := offset + limit
	if end > len(own) {
		end = len(own)
	}
	return own[offset:end], nil
}

func (p *Platform) syncPresence() {
	p.mu.Lock()
	state := append([]chat.PresenceEntry(nil), p.presence...)
	subs := append([]subscriber[func([]chat.PresenceEntry)](nil), p.presSubs...)
	p.mu.Unlock()
	for _, s := range subs {
		s.fn(state)
	}
}

func (p *Platform) dropRowSub(channelID string, id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rowSubs[channelID] = dropSub(p.rowSubs[channelID], id)
}

func (p *Platform) dropBcSub(channelID string, id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bcSubs[channelID] = dropSub(p.bcSubs[channelID], id)
}

func (p *Platform) dropPresSub(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presSubs = dropSub(p.presSubs, id)
}

func dropSub[T any](subs []subscriber[T], id int) []subscriber[T] {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

type sub struct {
	once  sync.Once
	close func()
}

func (s *sub) Close() error {
	s.once.Do(s.close)
	return nil
}
