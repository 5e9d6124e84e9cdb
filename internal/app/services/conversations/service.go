// Package conversations manages conversation lifecycle, membership,
// messages, and read receipts.
package conversations

import (
	"context"
	"fmt"
	"strings"

	"github.com/relayline/chathub/internal/app/storage"
	"github.com/relayline/chathub/internal/domain/conversation"
	"github.com/relayline/chathub/pkg/logger"
)

// Service implements the conversation operations. The realtime hub and the
// REST handlers both delegate here; group subscriptions are the hub's
// projection of the memberships this service persists.
type Service struct {
	convs storage.ConversationStore
	msgs  storage.MessageStore
	log   *logger.Logger
}

// New constructs a conversation service.
func New(convs storage.ConversationStore, msgs storage.MessageStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("conversations")
	}
	return &Service{convs: convs, msgs: msgs, log: log}
}

// Create creates a conversation and enrolls the creator as owner.
func (s *Service) Create(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	if strings.TrimSpace(conv.AppCode) == "" {
		return conversation.Conversation{}, fmt.Errorf("app code is required")
	}
	if strings.TrimSpace(conv.Topic) == "" {
		return conversation.Conversation{}, fmt.Errorf("topic is required")
	}
	created, err := s.convs.CreateConversation(ctx, conv)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if created.CreatedBy != "" {
		_, err = s.convs.UpsertMembership(ctx, conversation.Membership{
			ConversationID: created.ID,
			UserID:         created.CreatedBy,
			Role:           conversation.MemberRoleOwner,
		})
		if err != nil {
			return conversation.Conversation{}, fmt.Errorf("enroll creator: %w", err)
		}
	}
	s.log.WithField("conversation_id", created.ID).
		WithField("app_code", created.AppCode).
		Info("conversation created")
	return created, nil
}

// Get fetches a conversation, enforcing application scope.
func (s *Service) Get(ctx context.Context, appCode string, id int64) (conversation.Conversation, error) {
	conv, err := s.convs.GetConversation(ctx, id)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if !strings.EqualFold(conv.AppCode, appCode) {
		return conversation.Conversation{}, storage.ErrNotFound
	}
	return conv, nil
}

// List lists a user's conversations under an application. An empty userID
// lists every conversation of the application.
func (s *Service) List(ctx context.Context, appCode, userID string) ([]conversation.Conversation, error) {
	return s.convs.ListConversations(ctx, appCode, userID)
}

// Join persists an active membership. Persistence must succeed before any
// subscription state changes.
func (s *Service) Join(ctx context.Context, appCode string, conversationID int64, userID string) (conversation.Membership, error) {
	if _, err := s.Get(ctx, appCode, conversationID); err != nil {
		return conversation.Membership{}, err
	}
	m, err := s.convs.UpsertMembership(ctx, conversation.Membership{
		ConversationID: conversationID,
		UserID:         userID,
	})
	if err != nil {
		return conversation.Membership{}, err
	}
	return m, nil
}

// Leave deactivates a membership. Leaving a conversation the user never
// joined is storage.ErrNotMember.
func (s *Service) Leave(ctx context.Context, appCode string, conversationID int64, userID string) error {
	if _, err := s.Get(ctx, appCode, conversationID); err != nil {
		return err
	}
	return s.convs.DeactivateMembership(ctx, conversationID, userID)
}

// Members lists the active members of a conversation.
func (s *Service) Members(ctx context.Context, appCode string, conversationID int64) ([]conversation.Membership, error) {
	if _, err := s.Get(ctx, appCode, conversationID); err != nil {
		return nil, err
	}
	return s.convs.ListMembers(ctx, conversationID)
}

// Send persists a message. The store assigns id and timestamp; those values,
// not delivery order, are authoritative for history.
func (s *Service) Send(ctx context.Context, appCode string, msg conversation.Message) (conversation.Message, error) {
	if strings.TrimSpace(msg.SenderID) == "" {
		return conversation.Message{}, fmt.Errorf("sender is required")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return conversation.Message{}, fmt.Errorf("message text is required")
	}
	if _, err := s.Get(ctx, appCode, msg.ConversationID); err != nil {
		return conversation.Message{}, err
	}
	return s.msgs.CreateMessage(ctx, msg)
}

// History lists persisted messages for a conversation.
func (s *Service) History(ctx context.Context, appCode string, conversationID int64, page conversation.Page) ([]conversation.Message, error) {
	if _, err := s.Get(ctx, appCode, conversationID); err != nil {
		return nil, err
	}
	return s.msgs.ListMessages(ctx, conversationID, page)
}

// MarkRead records that the user has read the conversation up to now.
func (s *Service) MarkRead(ctx context.Context, appCode string, conversationID int64, userID string) (conversation.ReadMarker, error) {
	if _, err := s.Get(ctx, appCode, conversationID); err != nil {
		return conversation.ReadMarker{}, err
	}
	return s.msgs.MarkConversationRead(ctx, conversationID, userID)
}
