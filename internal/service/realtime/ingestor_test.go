package realtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/platform"
	"github.com/Chiragadve/chatgenius/internal/service/messages"
	"github.com/Chiragadve/chatgenius/internal/service/profile"
	"github.com/Chiragadve/chatgenius/internal/service/realtime"
)

type fakeSub struct{ closed int }

func (s *fakeSub) Close() error { s.closed++; return nil }

// fakeFeeds captures handlers so tests can push events synchronously.
type fakeFeeds struct {
	onInsert    func(chat.Message)
	onBroadcast func(chat.Message)
	rowSub      fakeSub
	bcSub       fakeSub
	published   []chat.Message
}

func (f *fakeFeeds) SubscribeInserts(_ context.Context, _ string, onInsert func(chat.Message), _ func(error)) (platform.Subscription, error) {
	f.onInsert = onInsert
	return &f.rowSub, nil
}

func (f *fakeFeeds) SubscribeBroadcast(_ context.Context, _ string, onBroadcast func(chat.Message), _ func(error)) (platform.Subscription, error) {
	f.onBroadcast = onBroadcast
	return &f.bcSub, nil
}

func (f *fakeFeeds) PublishBroadcast(_ context.Context, _ string, msg chat.Message) error {
	f.published = append(f.published, msg)
	return nil
}

type staticDirectory map[string]chat.AuthorProfile

func (d staticDirectory) ResolveProfiles(_ context.Context, ids []string) (map[string]chat.AuthorProfile, error) {
	out := map[string]chat.AuthorProfile{}
	for _, id := range ids {
		if p, ok := d[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func newIngestor(t *testing.T, feeds *fakeFeeds, dir staticDirectory) (*realtime.Ingestor, *messages.Store) {
	t.Helper()
	store := messages.NewStore("general")
	resolver := profile.NewResolver(dir, zerolog.Nop())
	ing := realtime.NewIngestor(feeds, resolver, store, zerolog.Nop())
	require.NoError(t, ing.Start(context.Background()))
	return ing, store
}

func TestInsertFeedEnrichesAndMerges(t *testing.T) {
	feeds := &fakeFeeds{}
	_, store := newIngestor(t, feeds, staticDirectory{
		"u2": {ID: "u2", Name: "Linus"},
	})

	feeds.onInsert(chat.Message{
		ID: "m1", ChannelID: "general", AuthorID: "u2",
		Content: "row feed", CreatedAt: time.Now().UTC(),
	})

	snap := store.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Linus", snap[0].Author.Name)
}

func TestBroadcastSkipsKnownID(t *testing.T) {
	feeds := &fakeFeeds{}
	_, store := newIngestor(t, feeds, staticDirectory{})
	at := time.Now().UTC()

	feeds.onInsert(chat.Message{ID: "m1", ChannelID: "general", AuthorID: "u2", Content: "first", CreatedAt: at})
	feeds.onBroadcast(chat.Message{ID: "m1", ChannelID: "general", AuthorID: "u2", Content: "dupe", CreatedAt: at})

	snap := store.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "first", snap[0].Content, "broadcast of a known id must not overwrite")
}

func TestOutOfOrderArrivalSortsByTimestamp(t *testing.T) {
	feeds := &fakeFeeds{}
	_, store := newIngestor(t, feeds, staticDirectory{})
	t1 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	// The newer message arrives first (its profile resolution finished sooner).
	feeds.onInsert(chat.Message{ID: "late", ChannelID: "general", AuthorID: "u1", CreatedAt: t2})
	feeds.onInsert(chat.Message{ID: "early", ChannelID: "general", AuthorID: "u1", CreatedAt: t1})

	snap := store.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "early", snap[0].ID)
	assert.Equal(t, "late", snap[1].ID)
}

func TestStopClosesBothSubscriptions(t *testing.T) {
	feeds := &fakeFeeds{}
	ing, _ := newIngestor(t, feeds, staticDirectory{})

	ing.Stop()
	ing.Stop()

	assert.Equal(t, 1, feeds.rowSub.closed)
	assert.Equal(t, 1, feeds.bcSub.closed)
}

func TestEventsAfterCloseAreDiscarded(t *testing.T) {
	feeds := &fakeFeeds{}
	ing, store := newIngestor(t, feeds, staticDirectory{})

	ing.Stop()
	store.Close()
	feeds.onInsert(chat.Message{ID: "m9", ChannelID: "general", AuthorID: "u1", CreatedAt: time.Now().UTC()})

	assert.Zero(t, store.Len())
}
