// Package storage defines the persistence interfaces for the chat service.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/relayline/chathub/internal/domain/application"
	"github.com/relayline/chathub/internal/domain/chatuser"
	"github.com/relayline/chathub/internal/domain/company"
	"github.com/relayline/chathub/internal/domain/conversation"
	"github.com/relayline/chathub/internal/domain/webhook"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNotMember is returned when a membership mutation targets a user
	// that has no active membership in the conversation.
	ErrNotMember = errors.New("not a conversation member")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("record already exists")
	// ErrNotImplemented marks collaborators that exist at the interface
	// boundary but have no working implementation yet.
	ErrNotImplemented = errors.New("not implemented")
)

// ApplicationStore persists tenant applications.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, app application.Application) (application.Application, error)
	GetApplicationByCode(ctx context.Context, code string) (application.Application, error)
	ListApplications(ctx context.Context) ([]application.Application, error)
}

// CompanyStore persists companies scoped to an application.
type CompanyStore interface {
	CreateCompany(ctx context.Context, c company.Company) (company.Company, error)
	GetCompany(ctx context.Context, id string) (company.Company, error)
	ListCompanies(ctx context.Context, appCode string) ([]company.Company, error)
}

// UserStore persists users scoped to an application.
type UserStore interface {
	CreateUser(ctx context.Context, u chatuser.User) (chatuser.User, error)
	GetUser(ctx context.Context, id string) (chatuser.User, error)
	GetUserByLogin(ctx context.Context, appCode, login string) (chatuser.User, error)
	ListUsers(ctx context.Context, appCode string, f chatuser.Filter) ([]chatuser.User, error)
}

// ConversationStore persists conversations and memberships.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error)
	GetConversation(ctx context.Context, id int64) (conversation.Conversation, error)
	ListConversations(ctx context.Context, appCode, userID string) ([]conversation.Conversation, error)

	UpsertMembership(ctx context.Context, m conversation.Membership) (conversation.Membership, error)
	DeactivateMembership(ctx context.Context, conversationID int64, userID string) error
	ListMembers(ctx context.Context, conversationID int64) ([]conversation.Membership, error)
}

// MessageStore persists messages and per-recipient read markers.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error)
	ListMessages(ctx context.Context, conversationID int64, page conversation.Page) ([]conversation.Message, error)
	MarkConversationRead(ctx context.Context, conversationID int64, userID string) (conversation.ReadMarker, error)
	PurgeMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// WebhookStore persists webhook subscriptions. Delivery is out of scope;
// implementations that have not been built return ErrNotImplemented so
// callers can tell "not built" from "succeeded with no effect".
type WebhookStore interface {
	CreateSubscription(ctx context.Context, sub webhook.Subscription) (webhook.Subscription, error)
	ListSubscriptions(ctx context.Context, appCode string) ([]webhook.Subscription, error)
}

// UnimplementedWebhookStore is the explicit stub used until webhook delivery
// lands.
type UnimplementedWebhookStore struct{}

func (UnimplementedWebhookStore) CreateSubscription(context.Context, webhook.Subscription) (webhook.Subscription, error) {
	return webhook.Subscription{}, ErrNotImplemented
}

func (UnimplementedWebhookStore) ListSubscriptions(context.Context, string) ([]webhook.Subscription, error) {
	return nil, ErrNotImplemented
}
