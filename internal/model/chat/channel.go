package chat

import "time"

// Channel is a named conversation scope.
type Channel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Private     bool      `json:"isPrivate,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	MemberCount int       `json:"memberCount,omitempty"`
}

// HistoryEntry is one row of a user's personal sent-message archive. The
// channel name is denormalized so the archive renders without a second lookup.
type HistoryEntry struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channelId"`
	ChannelName string    `json:"channelName"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}
