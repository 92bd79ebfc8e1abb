// Package relay is a self-contained backing platform for local development
// and end-to-end runs: SQLite persistence, a websocket fan-out hub, and a chi
// REST surface. The client core never imports it; it talks to the same
// operations through internal/platform.
package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS channels (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_private  INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS channel_members (
	channel_id TEXT NOT NULL REFERENCES channels(id),
	user_id    TEXT NOT NULL,
	PRIMARY KEY (channel_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL REFERENCES channels(id),
	user_id    TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_channel_created
	ON messages (channel_id, created_at);
`

// Store is the relay's SQLite persistence layer. Timestamps are stored as
// unix microseconds so range queries stay numeric.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and migrates) the SQLite database at path. Use ":memory:"
// for throwaway instances.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids lock
	// contention errors under concurrent handlers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func toMicros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

// UpsertProfile writes a directory profile.
func (s *Store) UpsertProfile(ctx context.Context, p chat.AuthorProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, email, avatar_url) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, email=excluded.email, avatar_url=excluded.avatar_url`,
		p.ID, p.Name, p.Email, p.AvatarURL)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.ID, err)
	}
	return nil
}

// Profiles resolves a batch of user ids. Unknown ids are absent from the map.
func (s *Store) Profiles(ctx context.Context, ids []string) (map[string]chat.AuthorProfile, error) {
	out := make(map[string]chat.AuthorProfile, len(ids))
	for _, id := range ids {
		var p chat.AuthorProfile
		err := s.db.QueryRowContext(ctx,
			`SELECT id, name, email, avatar_url FROM profiles WHERE id = ?`, id).
			Scan(&p.ID, &p.Name, &p.Email, &p.AvatarURL)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load profile %s: %w", id, err)
		}
		out[p.ID] = p
	}
	return out, nil
}

// CreateChannel inserts a channel, generating an id when none is given.
func (s *Store) CreateChannel(ctx context.Context, ch chat.Channel) (chat.Channel, error) {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (id, name, description, is_private, created_at) VALUES (?, ?, ?, ?, ?)`,
		ch.ID, ch.Name, ch.Description, boolToInt(ch.Private), toMicros(ch.CreatedAt))
	if err != nil {
		return chat.Channel{}, fmt.Errorf("create channel %s: %w", ch.Name, err)
	}
	return ch, nil
}

// Channels lists all channels with their member counts, oldest first.
func (s *Store) Channels(ctx context.Context) ([]chat.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.description, c.is_private, c.created_at,
		       (SELECT COUNT(*) FROM channel_members m WHERE m.channel_id = c.id)
		FROM channels c ORDER BY c.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []chat.Channel
	for rows.Next() {
		var ch chat.Channel
		var private int
		var createdAt int64
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Description, &private, &createdAt, &ch.MemberCount); err != nil {
			return nil, err
		}
		ch.Private = private != 0
		ch.CreatedAt = fromMicros(createdAt)
		out = append(out, ch)
	}
	return out, rows.Err()
}

// ChannelExists reports whether a channel id is known.
func (s *Store) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM channels WHERE id = ?`, channelID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Join adds a membership row. Re-joining is idempotent.
func (s *Store) Join(ctx context.Context, channelID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_members (channel_id, user_id) VALUES (?, ?)
		ON CONFLICT(channel_id, user_id) DO NOTHING`, channelID, userID)
	if err != nil {
		return fmt.Errorf("join %s/%s: %w", channelID, userID, err)
	}
	return nil
}

// Leave removes a membership row.
func (s *Store) Leave(ctx context.Context, channelID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_members WHERE channel_id = ? AND user_id = ?`, channelID, userID)
	if err != nil {
		return fmt.Errorf("leave %s/%s: %w", channelID, userID, err)
	}
	return nil
}

// Member reports channel membership.
func (s *Store) Member(ctx context.Context, channelID, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM channel_members WHERE channel_id = ? AND user_id = ?`, channelID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// InsertMessage persists a message with a server-assigned id and timestamp.
func (s *Store) InsertMessage(ctx context.Context, channelID, userID, content string) (chat.Message, error) {
	m := chat.Message{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		AuthorID:  userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, channel_id, user_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ChannelID, m.AuthorID, m.Content, toMicros(m.CreatedAt))
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// Page returns a history page under the fetchPage contract: with before nil,
// the newest limit rows ascending; with before set, up to limit rows strictly
// older, descending.
func (s *Store) Page(ctx context.Context, channelID string, before *time.Time, limit int) ([]chat.Message, error) {
	var rows *sql.Rows
	var err error
	if before == nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, channel_id, user_id, content, created_at FROM (
				SELECT * FROM messages WHERE channel_id = ?
				ORDER BY created_at DESC, id DESC LIMIT ?
			) ORDER BY created_at ASC, id ASC`, channelID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, channel_id, user_id, content, created_at FROM messages
			WHERE channel_id = ? AND created_at < ?
			ORDER BY created_at DESC, id DESC LIMIT ?`, channelID, toMicros(*before), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("page channel %s: %w", channelID, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// UserHistory pages through one user's own messages, newest first, joining
// the channel name so clients render without a second lookup.
func (s *Store) UserHistory(ctx context.Context, userID string, offset, limit int) ([]chat.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.channel_id, c.name, m.content, m.created_at
		FROM messages m JOIN channels c ON c.id = m.channel_id
		WHERE m.user_id = ?
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("user history %s: %w", userID, err)
	}
	defer rows.Close()

	var out []chat.HistoryEntry
	for rows.Next() {
		var e chat.HistoryEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.ChannelID, &e.ChannelName, &e.Content, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = fromMicros(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanMessages(rows *sql.Rows) ([]chat.Message, error) {
	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = fromMicros(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
