// Package session orchestrates the per-channel lifecycle: one open channel at
// a time, with its own store, paginator and realtime subscriptions, torn down
// and rebuilt on every switch so async stragglers from a previous channel can
// never leak into the next one's view.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/platform"
	"github.com/Chiragadve/chatgenius/internal/service/history"
	"github.com/Chiragadve/chatgenius/internal/service/messages"
	"github.com/Chiragadve/chatgenius/internal/service/presence"
	"github.com/Chiragadve/chatgenius/internal/service/profile"
	"github.com/Chiragadve/chatgenius/internal/service/realtime"
	"github.com/Chiragadve/chatgenius/internal/service/send"
)

// ChannelSession is the live state for the currently open channel.
type ChannelSession struct {
	channelID string
	member    bool
	store     *messages.Store
	paginator *history.Paginator
	ingestor  *realtime.Ingestor
	sender    *send.Coordinator
}

// ChannelID reports the channel this session is bound to.
func (s *ChannelSession) ChannelID() string { return s.channelID }

// Member reports whether the user was a member when the session opened.
// Non-members get an empty view and no subscriptions.
func (s *ChannelSession) Member() bool { return s.member }

// Messages returns the current ordered snapshot.
func (s *ChannelSession) Messages() []chat.Message { return s.store.Snapshot() }

// Cursor exposes the pagination state for scroll sensors.
func (s *ChannelSession) Cursor() history.Cursor { return s.paginator.Cursor() }

// LoadOlder pulls the next older history page. Safe to call from duplicate
// visibility triggers.
func (s *ChannelSession) LoadOlder(ctx context.Context) error {
	if !s.member {
		return nil
	}
	return s.paginator.LoadOlder(ctx)
}

// Send submits text to the open channel.
func (s *ChannelSession) Send(ctx context.Context, text string) (chat.Message, error) {
	return s.sender.Send(ctx, text)
}

// Client is the top-level handle for one signed-in user: the open channel
// session, the presence tracker, and the personal archive.
type Client struct {
	backend  platform.Platform
	resolver *profile.Resolver
	self     send.Identity
	log      zerolog.Logger

	// onStatus observes realtime connectivity. Optional, set before
	// OpenChannel.
	onStatus func(realtime.Status)

	mu      sync.Mutex
	current *ChannelSession
	tracker *presence.Tracker
}

// NewClient builds a client for the given user identity.
func NewClient(backend platform.Platform, self send.Identity, log zerolog.Logger) *Client {
	return &Client{
		backend:  backend,
		resolver: profile.NewResolver(backend, log),
		self:     self,
		log:      log.With().Str("component", "session").Logger(),
	}
}

// OnStatus registers a realtime connectivity observer.
func (c *Client) OnStatus(fn func(realtime.Status)) { c.onStatus = fn }

// OpenChannel closes any previously open session and opens the given channel:
// membership gate, initial page load, then both realtime subscriptions.
// Subscriptions never stack — re-entering a channel rebuilds them.
func (c *Client) OpenChannel(ctx context.Context, channelID string) (*ChannelSession, error) {
	c.CloseChannel()

	member, err := c.backend.Member(ctx, channelID, c.self.UserID)
	if err != nil {
		return nil, fmt.Errorf("membership check: %w", err)
	}

	store := messages.NewStore(channelID)
	s := &ChannelSession{
		channelID: channelID,
		member:    member,
		store:     store,
		paginator: history.NewPaginator(c.backend, c.resolver, store, c.log),
		ingestor:  realtime.NewIngestor(c.backend, c.resolver, store, c.log),
		sender:    send.NewCoordinator(c.backend, c.backend, c.backend, store, c.self, c.log),
	}

	if !member {
		c.setCurrent(s)
		return s, nil
	}

	if c.onStatus != nil {
		s.ingestor.OnStatus(c.onStatus)
	}

	if err := s.paginator.LoadInitial(ctx); err != nil {
		// Retryable: the session stays open with a failed-load state.
		c.log.Warn().Err(err).Str("channel", channelID).Msg("initial load failed")
	}

	if err := s.ingestor.Start(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("open channel %s: %w", channelID, err)
	}

	c.setCurrent(s)
	return s, nil
}

// Reconnect tears down and recreates the realtime subscriptions for the open
// channel, then re-runs the initial page load to fill whatever the dropped
// connection missed. No replay log exists; the page load is the recovery.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil || !s.member {
		return nil
	}

	s.ingestor.Stop()
	if err := s.ingestor.Start(ctx); err != nil {
		return fmt.Errorf("resubscribe: %w", err)
	}
	return s.paginator.LoadInitial(ctx)
}

// CloseChannel tears down the open session, if any.
func (c *Client) CloseChannel() {
	c.mu.Lock()
	s := c.current
	c.current = nil
	c.mu.Unlock()
	if s == nil {
		return
	}
	s.ingestor.Stop()
	s.store.Close()
}

// Current returns the open channel session, or nil.
func (c *Client) Current() *ChannelSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// StartPresence joins the shared presence channel as the local user.
func (c *Client) StartPresence(ctx context.Context) (*presence.Tracker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tracker != nil {
		return c.tracker, nil
	}
	tracker := presence.NewTracker(c.backend, chat.PresenceEntry{
		UserID:    c.self.UserID,
		Name:      c.self.Display.Name,
		AvatarURL: c.self.Display.AvatarURL,
	}, c.log)
	if err := tracker.Start(ctx); err != nil {
		return nil, err
	}
	c.tracker = tracker
	return tracker, nil
}

// Channels lists the channel directory.
func (c *Client) Channels(ctx context.Context) ([]chat.Channel, error) {
	return c.backend.ListChannels(ctx)
}

// Archive returns a fresh personal archive view for the local user.
func (c *Client) Archive() *history.Archive {
	return history.NewArchive(c.backend, c.self.UserID, c.log)
}

// Close ends the session: channel teardown plus optimistic presence reset.
func (c *Client) Close() {
	c.CloseChannel()
	c.mu.Lock()
	tracker := c.tracker
	c.tracker = nil
	c.mu.Unlock()
	if tracker != nil {
		tracker.Stop()
	}
}

func (c *Client) setCurrent(s *ChannelSession) {
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
}
