package realtime

import (
	"strings"
	"time"

	"github.com/goccy/go-json"

	"campustrade/internal/app/dto"
)

// Frame types. Clients send the first group, the server sends the second.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameJoin        = "join"
	FrameTrack       = "track"
	FrameUntrack     = "untrack"
	FrameLeave       = "leave"

	FrameReply        = "reply"
	FrameInsert       = "insert"
	FramePresenceSync = "presence_sync"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Reply errors clients can map back to domain errors.
const (
	ReplyForbidden   = "forbidden"
	ReplyNotFound    = "not found"
	ReplyUnavailable = "unavailable"
)

const (
	TopicMessages = "messages"
	TopicPresence = "presence"
)

// Frame is one websocket text message.
type Frame struct {
	Type     string                    `json:"type"`
	Ref      string                    `json:"ref,omitempty"`
	Topic    string                    `json:"topic,omitempty"`
	Status   string                    `json:"status,omitempty"`
	Error    string                    `json:"error,omitempty"`
	State    *TrackState               `json:"state,omitempty"`
	Message  *dto.ChatMessage          `json:"message,omitempty"`
	Presence map[string][]PresenceMeta `json:"presence,omitempty"`
}

type TrackState struct {
	Typing bool `json:"typing"`
}

// PresenceMeta is one connection's record under a user id.
type PresenceMeta struct {
	Typing   bool      `json:"typing"`
	OnlineAt time.Time `json:"online_at"`
}

func MessagesTopic(conversationID string) string { return TopicMessages + ":" + conversationID }

func PresenceTopic(conversationID string) string { return TopicPresence + ":" + conversationID }

// ParseTopic splits "kind:id". Both parts must be non-empty.
func ParseTopic(topic string) (kind, id string, ok bool) {
	kind, id, found := strings.Cut(topic, ":")
	if !found || kind == "" || strings.TrimSpace(id) == "" {
		return "", "", false
	}
	return kind, id, true
}

func EncodeFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// PresenceFrame groups records by user for a presence_sync frame.
func PresenceFrame(conversationID string, records []PresenceRecord) Frame {
	state := make(map[string][]PresenceMeta, len(records))
	for _, r := range records {
		state[r.UserID] = append(state[r.UserID], PresenceMeta{Typing: r.Typing, OnlineAt: r.OnlineAt})
	}
	return Frame{Type: FramePresenceSync, Topic: PresenceTopic(conversationID), Presence: state}
}
