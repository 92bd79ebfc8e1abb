package history

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/platform"
)

// ArchivePageSize is the personal archive page size.
const ArchivePageSize = 20

// Archive pages through the current user's own sent messages across all
// channels, newest first.
type Archive struct {
	fetcher platform.Archive
	userID  string
	log     zerolog.Logger

	mu      sync.Mutex
	entries []chat.HistoryEntry
	page    int
	hasMore bool
	loading bool
}

// NewArchive creates an archive view for one user.
func NewArchive(fetcher platform.Archive, userID string, log zerolog.Logger) *Archive {
	return &Archive{
		fetcher: fetcher,
		userID:  userID,
		log:     log.With().Str("component", "archive").Logger(),
		hasMore: true,
	}
}

// Entries returns a copy of the loaded archive, newest first.
func (a *Archive) Entries() []chat.HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]chat.HistoryEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// HasMore reports whether another page may exist.
func (a *Archive) HasMore() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasMore
}

// LoadInitial loads the first page, replacing any prior entries.
func (a *Archive) LoadInitial(ctx context.Context) error {
	return a.load(ctx, 0, true)
}

// LoadMore appends the next page. No-op while a load is in flight or when the
// archive is exhausted.
func (a *Archive) LoadMore(ctx context.Context) error {
	a.mu.Lock()
	next := a.page + 1
	if a.loading || !a.hasMore {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()
	return a.load(ctx, next, false)
}

func (a *Archive) load(ctx context.Context, page int, reset bool) error {
	a.mu.Lock()
	if a.loading {
		a.mu.Unlock()
		return nil
	}
	a.loading = true
	a.mu.Unlock()

	batch, err := a.fetcher.FetchUserHistory(ctx, a.userID, page*ArchivePageSize, ArchivePageSize)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.loading = false
	if err != nil {
		a.log.Error().Err(err).Int("page", page).Msg("archive page load failed")
		return errors.Join(ErrLoadFailed, err)
	}

	if reset {
		a.entries = batch
	} else {
		a.entries = append(a.entries, batch...)
	}
	a.page = page
	a.hasMore = len(batch) == ArchivePageSize
	return nil
}
