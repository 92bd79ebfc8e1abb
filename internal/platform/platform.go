// Package platform declares the operations the sync core consumes from the
// backing persistence/pubsub service. Implementations live in subpackages;
// everything above this package is transport-agnostic.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
)

var (
	// ErrNotMember is returned by write paths when the user is not a member
	// of the target channel.
	ErrNotMember = errors.New("not a channel member")
	// ErrChannelNotFound is returned for operations on unknown channels.
	ErrChannelNotFound = errors.New("channel not found")
)

// Subscription is a live feed handle. Close tears the feed down; it is safe
// to call more than once.
type Subscription interface {
	Close() error
}

// History fetches persisted message pages for one channel.
//
// With a nil before, the page is the newest limit messages returned ascending
// by creation time. With before set, the page is up to limit rows strictly
// older than before, ordered descending (the caller reverses before merging).
type History interface {
	FetchPage(ctx context.Context, channelID string, before *time.Time, limit int) ([]chat.Message, error)
}

// Directory batch-resolves user ids to profiles. Ids with no profile row are
// simply absent from the result, not an error.
type Directory interface {
	ResolveProfiles(ctx context.Context, userIDs []string) (map[string]chat.AuthorProfile, error)
}

// Writer persists a new message and returns the stored row with its permanent
// id and server-assigned timestamp.
type Writer interface {
	InsertMessage(ctx context.Context, channelID, authorID, content string) (chat.Message, error)
}

// Feeds exposes the two realtime message feeds for a channel plus the
// broadcast publish path.
//
// The row-insertion feed delivers every persisted row, without author display
// data. The broadcast feed delivers fully-enriched payloads from peer
// sessions, best effort. onDrop, when non-nil, is invoked if the underlying
// connection is lost after a successful subscribe.
type Feeds interface {
	SubscribeInserts(ctx context.Context, channelID string, onInsert func(chat.Message), onDrop func(error)) (Subscription, error)
	SubscribeBroadcast(ctx context.Context, channelID string, onBroadcast func(chat.Message), onDrop func(error)) (Subscription, error)
	PublishBroadcast(ctx context.Context, channelID string, msg chat.Message) error
}

// Presence is the shared heartbeat channel. Every sync/join/leave event hands
// the subscriber the full current state, which may contain several records
// per user (one per connection).
type Presence interface {
	SubscribePresence(ctx context.Context, onSync func([]chat.PresenceEntry)) (Subscription, error)
	TrackPresence(ctx context.Context, entry chat.PresenceEntry) error
}

// Membership answers channel membership checks and join/leave writes.
// Joining a channel the user already belongs to is idempotent.
type Membership interface {
	Member(ctx context.Context, channelID, userID string) (bool, error)
	Join(ctx context.Context, channelID, userID string) error
	Leave(ctx context.Context, channelID, userID string) error
}

// Channels lists the channel directory.
type Channels interface {
	ListChannels(ctx context.Context) ([]chat.Channel, error)
}

// Archive pages through one user's own messages across channels, newest
// first, by offset.
type Archive interface {
	FetchUserHistory(ctx context.Context, userID string, offset, limit int) ([]chat.HistoryEntry, error)
}

// Platform is the full collaborator surface the client core runs against.
type Platform interface {
	History
	Directory
	Writer
	Feeds
	Presence
	Membership
	Channels
	Archive
}
