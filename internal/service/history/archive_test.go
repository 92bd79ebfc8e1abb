package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/service/history"
)

type fakeArchive struct {
	entries []chat.HistoryEntry
	calls   int
}

func (f *fakeArchive) FetchUserHistory(_ context.Context, _ string, offset, limit int) ([]chat.HistoryEntry, error) {
	f.calls++
	if offset >= len(f.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.entries) {
		end = len(f.entries)
	}
	return f.entries[offset:end], nil
}

func seedArchive(n int) []chat.HistoryEntry {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	out := make([]chat.HistoryEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, chat.HistoryEntry{
			ID:          fmt.Sprintf("h%03d", i),
			ChannelID:   "general",
			ChannelName: "general",
			Content:     fmt.Sprintf("sent %d", i),
			CreatedAt:   base.Add(-time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestArchivePaging(t *testing.T) {
	fetcher := &fakeArchive{entries: seedArchive(25)}
	a := history.NewArchive(fetcher, "u1", zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, a.LoadInitial(ctx))
	assert.Len(t, a.Entries(), 20)
	assert.True(t, a.HasMore())

	require.NoError(t, a.LoadMore(ctx))
	assert.Len(t, a.Entries(), 25)
	assert.False(t, a.HasMore())

	before := fetcher.calls
	require.NoError(t, a.LoadMore(ctx))
	assert.Equal(t, before, fetcher.calls, "exhausted archive must not fetch")
}

func TestArchiveLoadInitialResets(t *testing.T) {
	fetcher := &fakeArchive{entries: seedArchive(5)}
	a := history.NewArchive(fetcher, "u1", zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, a.LoadInitial(ctx))
	require.NoError(t, a.LoadInitial(ctx))

	assert.Len(t, a.Entries(), 5, "reload must replace, not append")
}
