package profile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/service/profile"
)

type fakeDirectory struct {
	profiles map[string]chat.AuthorProfile
	err      error
	calls    int
}

func (d *fakeDirectory) ResolveProfiles(_ context.Context, ids []string) (map[string]chat.AuthorProfile, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	out := map[string]chat.AuthorProfile{}
	for _, id := range ids {
		if p, ok := d.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func TestResolveCachesAcrossCalls(t *testing.T) {
	dir := &fakeDirectory{profiles: map[string]chat.AuthorProfile{
		"u1": {ID: "u1", Name: "Ada Lovelace"},
	}}
	r := profile.NewResolver(dir, zerolog.Nop())

	first, err := r.Resolve(context.Background(), []string{"u1"})
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), []string{"u1"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, dir.calls, "second lookup should be served from cache")
}

func TestResolveTTLExpiry(t *testing.T) {
	dir := &fakeDirectory{profiles: map[string]chat.AuthorProfile{
		"u1": {ID: "u1", Name: "Ada"},
	}}
	r := profile.NewResolver(dir, zerolog.Nop()).WithCachePolicy(time.Nanosecond, 16)

	_, err := r.Resolve(context.Background(), []string{"u1"})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = r.Resolve(context.Background(), []string{"u1"})
	require.NoError(t, err)

	assert.Equal(t, 2, dir.calls)
}

func TestEnrichFallbackChain(t *testing.T) {
	dir := &fakeDirectory{profiles: map[string]chat.AuthorProfile{
		"named":      {ID: "named", Name: "Grace Hopper", AvatarURL: "https://example.com/a.png"},
		"email-only": {ID: "email-only", Email: "grace@example.com"},
	}}
	r := profile.NewResolver(dir, zerolog.Nop())

	msgs := []chat.Message{
		{ID: "m1", AuthorID: "named", CreatedAt: time.Now()},
		{ID: "m2", AuthorID: "email-only", CreatedAt: time.Now()},
		{ID: "m3", AuthorID: "unknown", CreatedAt: time.Now()},
	}
	enriched := r.Enrich(context.Background(), msgs)

	require.Len(t, enriched, 3)
	assert.Equal(t, "Grace Hopper", enriched[0].Author.Name)
	assert.Equal(t, "grace@example.com", enriched[1].Author.Name)
	assert.Equal(t, "unknown", enriched[2].Author.Name)
}

func TestEnrichDegradesOnDirectoryFailure(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("directory offline")}
	r := profile.NewResolver(dir, zerolog.Nop())

	enriched := r.Enrich(context.Background(), []chat.Message{
		{ID: "m1", AuthorID: "u1", CreatedAt: time.Now()},
	})

	require.Len(t, enriched, 1)
	assert.Equal(t, "u1", enriched[0].Author.Name, "failed lookup degrades to raw id")
}

func TestEnrichServesCachedProfilesDuringOutage(t *testing.T) {
	dir := &fakeDirectory{profiles: map[string]chat.AuthorProfile{
		"known": {ID: "known", Name: "Ada"},
	}}
	r := profile.NewResolver(dir, zerolog.Nop())

	_, err := r.Resolve(context.Background(), []string{"known"})
	require.NoError(t, err)

	// Directory goes down; the cached author keeps their name, only the
	// uncached one degrades.
	dir.err = errors.New("directory offline")
	enriched := r.Enrich(context.Background(), []chat.Message{
		{ID: "m1", AuthorID: "known", CreatedAt: time.Now()},
		{ID: "m2", AuthorID: "cold", CreatedAt: time.Now()},
	})

	require.Len(t, enriched, 2)
	assert.Equal(t, "Ada", enriched[0].Author.Name)
	assert.Equal(t, "cold", enriched[1].Author.Name)
}
