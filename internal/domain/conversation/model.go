// Package conversation models conversations, memberships, and messages.
package conversation

import "time"

// Kind distinguishes direct from group conversations.
type Kind string

const (
	KindDirect Kind = "direct"
	KindGroup  Kind = "group"
)

// MemberRole classifies a member within a conversation.
type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleMember MemberRole = "member"
)

// MessageType classifies message payloads.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// Conversation is a persisted chat room scoped to an application.
type Conversation struct {
	ID        int64     `json:"id" db:"id"`
	AppCode   string    `json:"appCode" db:"app_code"`
	Topic     string    `json:"topic" db:"topic"`
	Kind      Kind      `json:"kind" db:"kind"`
	CreatedBy string    `json:"createdBy" db:"created_by"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Membership records a user's participation in a conversation. The realtime
// group subscription is a projection of this record.
type Membership struct {
	ConversationID int64      `json:"conversationId" db:"conversation_id"`
	UserID         string     `json:"userId" db:"user_id"`
	Role           MemberRole `json:"role" db:"role"`
	Active         bool       `json:"active" db:"active"`
	JoinedAt       time.Time  `json:"joinedAt" db:"joined_at"`
}

// Message is immutable once persisted; the store assigns ID and SentAt.
type Message struct {
	ID             int64       `json:"id" db:"id"`
	ConversationID int64       `json:"conversationId" db:"conversation_id"`
	SenderID       string      `json:"senderId" db:"sender_id"`
	Text           string      `json:"text" db:"text"`
	Type           MessageType `json:"type" db:"type"`
	SentAt         time.Time   `json:"sentAt" db:"sent_at"`
}

// ReadMarker records how far a user has read a conversation. Read state is
// tracked per recipient, not as a flag on the message itself.
type ReadMarker struct {
	ConversationID int64     `json:"conversationId" db:"conversation_id"`
	UserID         string    `json:"userId" db:"user_id"`
	LastReadAt     time.Time `json:"lastReadAt" db:"last_read_at"`
}

// Page bounds history listings.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps page bounds to sane values.
func (p Page) Normalize() Page {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
