package chat

// PresenceEntry is one user's heartbeat record on the presence channel.
// Multiple simultaneous connections from the same user all carry the same
// UserID and collapse to a single entry in the online view.
type PresenceEntry struct {
	UserID    string `json:"userId"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}
