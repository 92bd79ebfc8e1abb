// Package wire defines the websocket envelope spoken between the relay hub
// and its clients. Topics are "rows:<channelID>", "bcast:<channelID>" and the
// global "presence" topic.
package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Chiragadve/chatgenius/internal/model/chat"
)

// Client-to-server envelope types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePublish     = "publish"
	TypeTrack       = "track"
)

// Server-to-client envelope types.
const (
	TypeEvent    = "event"
	TypePresence = "presence"
	TypeError    = "error"
)

// Topic prefixes.
const (
	RowsPrefix    = "rows:"
	BcastPrefix   = "bcast:"
	PresenceTopic = "presence"
)

// Envelope is the single frame shape in both directions. Unused fields are
// omitted per type.
type Envelope struct {
	Type    string               `json:"type"`
	Topic   string               `json:"topic,omitempty"`
	Message *chat.Message        `json:"message,omitempty"`
	Entry   *chat.PresenceEntry  `json:"entry,omitempty"`
	State   []chat.PresenceEntry `json:"state,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// RowsTopic names the row-insertion feed for a channel.
func RowsTopic(channelID string) string { return RowsPrefix + channelID }

// BcastTopic names the broadcast feed for a channel.
func BcastTopic(channelID string) string { return BcastPrefix + channelID }

// SplitTopic validates a topic and returns its prefix and channel id. The
// presence topic returns an empty channel id.
func SplitTopic(topic string) (prefix, channelID string, err error) {
	switch {
	case topic == PresenceTopic:
		return PresenceTopic, "", nil
	case strings.HasPrefix(topic, RowsPrefix):
		return RowsPrefix, strings.TrimPrefix(topic, RowsPrefix), nil
	case strings.HasPrefix(topic, BcastPrefix):
		return BcastPrefix, strings.TrimPrefix(topic, BcastPrefix), nil
	default:
		return "", "", fmt.Errorf("unknown topic %q", topic)
	}
}

// Decode parses a raw frame into an envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope missing type")
	}
	return env, nil
}
