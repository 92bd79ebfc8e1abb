// Package send manages the lifecycle of a locally authored message: instant
// local echo, persistence, confirmation swap, and broadcast to peer sessions.
package send

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/platform"
	"github.com/Chiragadve/chatgenius/internal/service/messages"
)

var (
	// ErrEmptyMessage rejects submissions that are blank after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrPersistFailed wraps an insert failure. The optimistic entry has
	// already been removed from the store when this is returned.
	ErrPersistFailed = errors.New("message persist failed")
)

// Identity is the sender's locally known profile, used for the optimistic
// echo and kept on the confirmed message so sending never triggers a profile
// round-trip for one's own messages.
type Identity struct {
	UserID  string
	Display chat.AuthorDisplay
}

// Coordinator drives optimistic sends into one channel's store.
type Coordinator struct {
	writer     platform.Writer
	feeds      platform.Feeds
	membership platform.Membership
	store      *messages.Store
	self       Identity
	log        zerolog.Logger
	now        func() time.Time
}

// NewCoordinator builds a coordinator for the channel the store is bound to.
func NewCoordinator(writer platform.Writer, feeds platform.Feeds, membership platform.Membership, store *messages.Store, self Identity, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		writer:     writer,
		feeds:      feeds,
		membership: membership,
		store:      store,
		self:       self,
		log:        log.With().Str("component", "send").Str("channel", store.ChannelID()).Logger(),
		now:        time.Now,
	}
}

// Send submits text to the channel. The message appears in the store
// immediately under a local id, then is swapped in place for the persisted
// row on confirmation. On persistence failure the optimistic entry is removed
// and the error surfaced; a message must never look delivered without being
// durably stored.
//
// Concurrent sends are independent: each carries its own local id.
func (c *Coordinator) Send(ctx context.Context, text string) (chat.Message, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	member, err := c.membership.Member(ctx, c.store.ChannelID(), c.self.UserID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("membership check: %w", err)
	}
	if !member {
		return chat.Message{}, platform.ErrNotMember
	}

	pending := chat.Message{
		ID:        chat.NewLocalID(),
		ChannelID: c.store.ChannelID(),
		AuthorID:  c.self.UserID,
		Content:   content,
		CreatedAt: c.now().UTC(),
		Author:    c.self.Display,
	}
	c.store.Apply([]chat.Message{pending})

	inserted, err := c.writer.InsertMessage(ctx, pending.ChannelID, pending.AuthorID, content)
	if err != nil {
		c.store.Remove(pending.ID)
		c.log.Error().Err(err).Str("localId", pending.ID).Msg("persist failed, optimistic entry removed")
		return chat.Message{}, errors.Join(ErrPersistFailed, err)
	}

	// Keep the locally known display; the server row carries none.
	confirmed := inserted
	confirmed.Author = c.self.Display
	c.store.Swap(pending.ID, confirmed)

	// Best effort: peers that miss the broadcast still get the row feed.
	if err := c.feeds.PublishBroadcast(ctx, confirmed.ChannelID, confirmed); err != nil {
		c.log.Warn().Err(err).Str("id", confirmed.ID).Msg("broadcast publish failed")
	}

	return confirmed, nil
}
