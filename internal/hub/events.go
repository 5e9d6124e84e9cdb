// Package hub implements the realtime websocket endpoint: session
// management, group fanout, and the chat operations.
package hub

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client-invoked operations.
const (
	OpJoinConversation   = "JoinConversation"
	OpLeaveConversation  = "LeaveConversation"
	OpSendMessage        = "SendMessage"
	OpMarkMessagesAsRead = "MarkMessagesAsRead"
	OpGetOnlineUsers     = "GetOnlineUsers"
)

// Server-pushed events.
const (
	EventUserConnected          = "UserConnected"
	EventUserDisconnected       = "UserDisconnected"
	EventUserJoinedConversation = "UserJoinedConversation"
	EventUserLeftConversation   = "UserLeftConversation"
	EventReceiveMessage         = "ReceiveMessage"
	EventMessagesMarkedAsRead   = "MessagesMarkedAsRead"
	EventOnlineUsers            = "OnlineUsers"
	EventJoinedConversation     = "JoinedConversation"
	EventLeftConversation       = "LeftConversation"
	EventError                  = "Error"
)

// Frame is the wire shape for both directions: an operation or event name
// plus positional arguments.
type Frame struct {
	Target    string            `json:"target"`
	Arguments []json.RawMessage `json:"arguments"`
}

// Arg decodes the positional argument at index i into v.
func (f Frame) Arg(i int, v any) error {
	if i < 0 || i >= len(f.Arguments) {
		return fmt.Errorf("argument %d missing", i)
	}
	if err := json.Unmarshal(f.Arguments[i], v); err != nil {
		return fmt.Errorf("argument %d: %w", i, err)
	}
	return nil
}

// decodeFrame parses an inbound frame and requires a non-empty target.
func decodeFrame(data []byte, frame *Frame) error {
	if err := json.Unmarshal(data, frame); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	if frame.Target == "" {
		return fmt.Errorf("frame target is required")
	}
	return nil
}

// encodeFrame marshals a frame with the given target and arguments.
func encodeFrame(target string, args ...any) ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode argument %d of %s: %w", i, target, err)
		}
		raw = append(raw, data)
	}
	return json.Marshal(Frame{Target: target, Arguments: raw})
}

// PresencePayload accompanies connect, disconnect, join, and leave events.
type PresencePayload struct {
	UserID         string    `json:"userId"`
	UserName       string    `json:"userName"`
	ConnectionID   string    `json:"connectionId,omitempty"`
	ConversationID int64     `json:"conversationId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// SendMessageArgs is the single object argument of SendMessage.
type SendMessageArgs struct {
	ConversationID int64  `json:"conversationId"`
	Text           string `json:"text"`
	Type           string `json:"type"`
}

// MessagePayload accompanies ReceiveMessage.
type MessagePayload struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	Text           string    `json:"text"`
	Type           string    `json:"type"`
	SentAt         time.Time `json:"sentAt"`
}

// ReadPayload accompanies MessagesMarkedAsRead.
type ReadPayload struct {
	ConversationID int64     `json:"conversationId"`
	UserID         string    `json:"userId"`
	LastReadAt     time.Time `json:"lastReadAt"`
}

// OnlineUser is one entry of the OnlineUsers event.
type OnlineUser struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// ErrorPayload accompanies Error.
type ErrorPayload struct {
	Operation string `json:"operation"`
	Message   string `json:"message"`
}

// Group name builders. Groups partition fanout by application, user, and
// conversation.
func AppGroup(appCode string) string    { return "app:" + appCode }
func UserGroup(userID string) string    { return "user:" + userID }
func ConversationGroup(id int64) string { return fmt.Sprintf("conversation:%d", id) }
