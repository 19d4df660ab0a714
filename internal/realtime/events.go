package realtime

import "encoding/json"

// Inbound events.
const (
	EventJoinRoom    = "join_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
)

// Outbound events.
const (
	EventNewMessage         = "new_message"
	EventSystemNotification = "system_notification"
	EventStatusChange       = "status_change"
	EventError              = "error"
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// InboundFrame keeps the payload raw until the event is known.
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Notice struct {
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
	RoomID  string `json:"room_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

type ErrorPayload struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// UserRoom is the personal room every connection of a user joins on connect.
func UserRoom(userID string) string {
	return "user:" + userID
}

func encode(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Data: payload})
}
