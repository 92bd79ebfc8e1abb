package relay

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedMessages inserts n messages one second apart so paging boundaries are
// unambiguous. Returns them oldest first.
func seedMessages(t *testing.T, s *Store, channelID string, n int) []chat.Message {
	t.Helper()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	out := make([]chat.Message, 0, n)
	for i := 0; i < n; i++ {
		m := chat.Message{
			ID:        fmt.Sprintf("m%03d", i),
			ChannelID: channelID,
			AuthorID:  "u1",
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		_, err := s.db.Exec(`
			INSERT INTO messages (id, channel_id, user_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.ChannelID, m.AuthorID, m.Content, toMicros(m.CreatedAt))
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func TestPageInitialReturnsNewestAscending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch, err := s.CreateChannel(ctx, chat.Channel{Name: "general"})
	require.NoError(t, err)
	seeded := seedMessages(t, s, ch.ID, 7)

	page, err := s.Page(ctx, ch.ID, nil, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)

	// Newest three, oldest of them first.
	assert.Equal(t, seeded[4].ID, page[0].ID)
	assert.Equal(t, seeded[5].ID, page[1].ID)
	assert.Equal(t, seeded[6].ID, page[2].ID)
	assert.Equal(t, seeded[4].CreatedAt, page[0].CreatedAt)
}

func TestPageBeforeReturnsOlderDescending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch, err := s.CreateChannel(ctx, chat.Channel{Name: "general"})
	require.NoError(t, err)
	seeded := seedMessages(t, s, ch.ID, 7)

	before := seeded[4].CreatedAt
	page, err := s.Page(ctx, ch.ID, &before, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)

	// Strictly older than the boundary, newest first.
	assert.Equal(t, seeded[3].ID, page[0].ID)
	assert.Equal(t, seeded[2].ID, page[1].ID)
	assert.Equal(t, seeded[1].ID, page[2].ID)

	// Page from before the oldest row is empty, not an error.
	oldest := seeded[0].CreatedAt
	page, err = s.Page(ctx, ch.ID, &oldest, 3)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestPageScopedToChannel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch1, err := s.CreateChannel(ctx, chat.Channel{Name: "general"})
	require.NoError(t, err)
	ch2, err := s.CreateChannel(ctx, chat.Channel{Name: "random"})
	require.NoError(t, err)

	seedMessages(t, s, ch1.ID, 3)
	_, err = s.InsertMessage(ctx, ch2.ID, "u2", "elsewhere")
	require.NoError(t, err)

	page, err := s.Page(ctx, ch1.ID, nil, 50)
	require.NoError(t, err)
	require.Len(t, page, 3)
	for _, m := range page {
		assert.Equal(t, ch1.ID, m.ChannelID)
	}
}

func TestInsertMessageAssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch, err := s.CreateChannel(ctx, chat.Channel{Name: "general"})
	require.NoError(t, err)

	m, err := s.InsertMessage(ctx, ch.ID, "u1", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.False(t, chat.IsLocalID(m.ID))
	assert.False(t, m.CreatedAt.IsZero())

	page, err := s.Page(ctx, ch.ID, nil, 50)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, m.ID, page[0].ID)
	assert.Equal(t, "hello", page[0].Content)
}

func TestMembershipJoinLeaveIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch, err := s.CreateChannel(ctx, chat.Channel{Name: "general"})
	require.NoError(t, err)

	ok, err := s.Member(ctx, ch.ID, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Join(ctx, ch.ID, "u1"))
	require.NoError(t, s.Join(ctx, ch.ID, "u1")) // re-join is a no-op

	ok, err = s.Member(ctx, ch.ID, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Leave(ctx, ch.ID, "u1"))
	ok, err = s.Member(ctx, ch.ID, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChannelsReportMemberCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch, err := s.CreateChannel(ctx, chat.Channel{Name: "general", Description: "the default"})
	require.NoError(t, err)
	require.NoError(t, s.Join(ctx, ch.ID, "u1"))
	require.NoError(t, s.Join(ctx, ch.ID, "u2"))

	list, err := s.Channels(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "general", list[0].Name)
	assert.Equal(t, "the default", list[0].Description)
	assert.Equal(t, 2, list[0].MemberCount)

	exists, err := s.ChannelExists(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.ChannelExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProfilesBatchSkipsUnknown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertProfile(ctx, chat.AuthorProfile{ID: "u1", Name: "Ada", Email: "ada@example.com"}))
	require.NoError(t, s.UpsertProfile(ctx, chat.AuthorProfile{ID: "u1", Name: "Ada L"})) // update wins

	got, err := s.Profiles(ctx, []string{"u1", "ghost"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ada L", got["u1"].Name)
	_, present := got["ghost"]
	assert.False(t, present)
}

func TestUserHistoryNewestFirstWithChannelName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch, err := s.CreateChannel(ctx, chat.Channel{Name: "general"})
	require.NoError(t, err)
	seeded := seedMessages(t, s, ch.ID, 5)

	page, err := s.UserHistory(ctx, "u1", 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, seeded[4].ID, page[0].ID)
	assert.Equal(t, seeded[3].ID, page[1].ID)
	assert.Equal(t, "general", page[0].ChannelName)

	page, err = s.UserHistory(ctx, "u1", 4, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, seeded[0].ID, page[0].ID)

	page, err = s.UserHistory(ctx, "u2", 0, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}
