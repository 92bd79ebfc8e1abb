package presence_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/platform"
	"github.com/Chiragadve/chatgenius/internal/service/presence"
)

type fakeSub struct{ closed int }

func (s *fakeSub) Close() error { s.closed++; return nil }

type fakePresence struct {
	onSync  func([]chat.PresenceEntry)
	tracked []chat.PresenceEntry
	sub     fakeSub
}

func (p *fakePresence) SubscribePresence(_ context.Context, onSync func([]chat.PresenceEntry)) (platform.Subscription, error) {
	p.onSync = onSync
	return &p.sub, nil
}

func (p *fakePresence) TrackPresence(_ context.Context, entry chat.PresenceEntry) error {
	p.tracked = append(p.tracked, entry)
	return nil
}

func startTracker(t *testing.T) (*presence.Tracker, *fakePresence) {
	t.Helper()
	p := &fakePresence{}
	tr := presence.NewTracker(p, chat.PresenceEntry{UserID: "me", Name: "Me"}, zerolog.Nop())
	require.NoError(t, tr.Start(context.Background()))
	return tr, p
}

// snapshotPresence delivers the current full state synchronously from inside
// SubscribePresence, the way the backing platforms do for new subscribers.
type snapshotPresence struct {
	fakePresence
	snapshot []chat.PresenceEntry
}

func (p *snapshotPresence) SubscribePresence(ctx context.Context, onSync func([]chat.PresenceEntry)) (platform.Subscription, error) {
	sub, err := p.fakePresence.SubscribePresence(ctx, onSync)
	onSync(p.snapshot)
	return sub, err
}

func TestStartKeepsSynchronousSnapshot(t *testing.T) {
	p := &snapshotPresence{snapshot: []chat.PresenceEntry{
		{UserID: "u1", Name: "Ada"},
		{UserID: "u2", Name: "Bob"},
	}}
	tr := presence.NewTracker(p, chat.PresenceEntry{UserID: "me", Name: "Me"}, zerolog.Nop())

	require.NoError(t, tr.Start(context.Background()))

	assert.Equal(t, 2, tr.OnlineCount(), "snapshot delivered during Start must land in the view")
	assert.Contains(t, tr.Online(), "u1")
	require.Len(t, p.tracked, 1)
}

func TestStartPublishesOwnHeartbeat(t *testing.T) {
	_, p := startTracker(t)

	require.Len(t, p.tracked, 1)
	assert.Equal(t, "me", p.tracked[0].UserID)
}

func TestMultipleConnectionsCollapseToOneUser(t *testing.T) {
	tr, p := startTracker(t)

	p.onSync([]chat.PresenceEntry{
		{UserID: "u1", Name: "Ada (laptop)"},
		{UserID: "u1", Name: "Ada (phone)"},
		{UserID: "u2", Name: "Bob"},
	})

	assert.Equal(t, 2, tr.OnlineCount(), "online count is distinct users, not connections")
	assert.Contains(t, tr.Online(), "u1")
	assert.Contains(t, tr.Online(), "u2")
}

func TestRemainingConnectionKeepsUserOnline(t *testing.T) {
	tr, p := startTracker(t)

	p.onSync([]chat.PresenceEntry{
		{UserID: "u1", Name: "Ada (laptop)"},
		{UserID: "u1", Name: "Ada (phone)"},
	})
	// One connection drops; the next full-state sync still contains the user.
	p.onSync([]chat.PresenceEntry{
		{UserID: "u1", Name: "Ada (laptop)"},
	})

	assert.Equal(t, 1, tr.OnlineCount())
	assert.Contains(t, tr.Online(), "u1")
}

func TestStopClearsViewImmediately(t *testing.T) {
	tr, p := startTracker(t)
	p.onSync([]chat.PresenceEntry{{UserID: "u1"}, {UserID: "u2"}})
	require.Equal(t, 2, tr.OnlineCount())

	tr.Stop()

	assert.Zero(t, tr.OnlineCount(), "teardown must not wait for the server leave event")
	assert.Equal(t, 1, p.sub.closed)

	// A straggling sync after Stop must not repopulate the view.
	p.onSync([]chat.PresenceEntry{{UserID: "u1"}})
	assert.Zero(t, tr.OnlineCount())
}
