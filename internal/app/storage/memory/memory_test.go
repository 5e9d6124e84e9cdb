package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayline/chathub/internal/app/storage"
	"github.com/relayline/chathub/internal/domain/application"
	"github.com/relayline/chathub/internal/domain/chatuser"
	"github.com/relayline/chathub/internal/domain/conversation"
)

func seedApp(t *testing.T, s *Store) application.Application {
	t.Helper()
	app, err := s.CreateApplication(context.Background(), application.Application{
		Code: "acme", Name: "Acme", Active: true,
	})
	require.NoError(t, err)
	return app
}

func TestApplicationCodeIsCaseInsensitive(t *testing.T) {
	s := New()
	seedApp(t, s)

	app, err := s.GetApplicationByCode(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, "acme", app.Code)
}

func TestDuplicateApplicationCode(t *testing.T) {
	s := New()
	seedApp(t, s)

	_, err := s.CreateApplication(context.Background(), application.Application{
		Code: "ACME", Name: "Other",
	})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestUserLookupByLogin(t *testing.T) {
	s := New()
	seedApp(t, s)

	created, err := s.CreateUser(context.Background(), chatuser.User{
		AppCode: "acme", Login: "alice", DisplayName: "Alice", Active: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	found, err := s.GetUserByLogin(context.Background(), "acme", "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = s.GetUserByLogin(context.Background(), "globex", "alice")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMembershipLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedApp(t, s)

	conv, err := s.CreateConversation(ctx, conversation.Conversation{
		AppCode: "acme", Topic: "general", Kind: conversation.KindGroup,
	})
	require.NoError(t, err)

	// Leaving before joining is a distinct error.
	err = s.DeactivateMembership(ctx, conv.ID, "u1")
	assert.ErrorIs(t, err, storage.ErrNotMember)

	m, err := s.UpsertMembership(ctx, conversation.Membership{ConversationID: conv.ID, UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, m.Active)

	// Joining again is idempotent.
	_, err = s.UpsertMembership(ctx, conversation.Membership{ConversationID: conv.ID, UserID: "u1"})
	require.NoError(t, err)
	members, err := s.ListMembers(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	require.NoError(t, s.DeactivateMembership(ctx, conv.ID, "u1"))
	members, err = s.ListMembers(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	// Leaving twice fails the second time.
	err = s.DeactivateMembership(ctx, conv.ID, "u1")
	assert.ErrorIs(t, err, storage.ErrNotMember)

	// Rejoining reactivates the membership.
	m, err = s.UpsertMembership(ctx, conversation.Membership{ConversationID: conv.ID, UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, m.Active)
}

func TestMessagesAreOrderedAndPaged(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedApp(t, s)

	conv, err := s.CreateConversation(ctx, conversation.Conversation{
		AppCode: "acme", Topic: "general",
	})
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three"} {
		_, err := s.CreateMessage(ctx, conversation.Message{
			ConversationID: conv.ID, SenderID: "u1", Text: text, Type: conversation.MessageTypeText,
		})
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, conv.ID, conversation.Page{}.Normalize())
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Less(t, msgs[0].ID, msgs[1].ID)
	assert.Less(t, msgs[1].ID, msgs[2].ID)

	page, err := s.ListMessages(ctx, conv.ID, conversation.Page{Limit: 2, Offset: 1}.Normalize())
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "two", page[0].Text)
}

func TestCreateMessageUnknownConversation(t *testing.T) {
	s := New()
	_, err := s.CreateMessage(context.Background(), conversation.Message{
		ConversationID: 99, SenderID: "u1", Text: "lost",
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMarkConversationRead(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedApp(t, s)

	conv, err := s.CreateConversation(ctx, conversation.Conversation{AppCode: "acme", Topic: "general"})
	require.NoError(t, err)

	first, err := s.MarkConversationRead(ctx, conv.ID, "u1")
	require.NoError(t, err)
	assert.False(t, first.LastReadAt.IsZero())

	second, err := s.MarkConversationRead(ctx, conv.ID, "u1")
	require.NoError(t, err)
	assert.False(t, second.LastReadAt.Before(first.LastReadAt))
}

func TestPurgeMessagesBefore(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedApp(t, s)

	conv, err := s.CreateConversation(ctx, conversation.Conversation{AppCode: "acme", Topic: "general"})
	require.NoError(t, err)

	msg, err := s.CreateMessage(ctx, conversation.Message{
		ConversationID: conv.ID, SenderID: "u1", Text: "old",
	})
	require.NoError(t, err)

	purged, err := s.PurgeMessagesBefore(ctx, msg.SentAt.Add(1))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	msgs, err := s.ListMessages(ctx, conv.ID, conversation.Page{}.Normalize())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
