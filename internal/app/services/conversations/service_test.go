package conversations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayline/chathub/internal/app/storage"
	"github.com/relayline/chathub/internal/app/storage/memory"
	"github.com/relayline/chathub/internal/domain/application"
	"github.com/relayline/chathub/internal/domain/conversation"
	"github.com/relayline/chathub/pkg/logger"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	_, err := store.CreateApplication(context.Background(), application.Application{
		Code: "acme", Name: "Acme", Active: true,
	})
	require.NoError(t, err)
	return New(store, store, logger.Nop()), store
}

func TestCreateEnrollsCreatorAsOwner(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, conversation.Conversation{
		AppCode: "acme", Topic: "general", CreatedBy: "u-alice",
	})
	require.NoError(t, err)

	members, err := store.ListMembers(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "u-alice", members[0].UserID)
	assert.Equal(t, conversation.MemberRoleOwner, members[0].Role)
}

func TestGetEnforcesApplicationScope(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, conversation.Conversation{AppCode: "acme", Topic: "general"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "acme", conv.ID)
	assert.NoError(t, err)

	// A conversation is invisible outside its application.
	_, err = svc.Get(ctx, "globex", conv.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJoinAndLeave(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, conversation.Conversation{AppCode: "acme", Topic: "general"})
	require.NoError(t, err)

	m, err := svc.Join(ctx, "acme", conv.ID, "u-bob")
	require.NoError(t, err)
	assert.True(t, m.Active)

	require.NoError(t, svc.Leave(ctx, "acme", conv.ID, "u-bob"))

	err = svc.Leave(ctx, "acme", conv.ID, "u-bob")
	assert.ErrorIs(t, err, storage.ErrNotMember)
}

func TestLeaveNeverJoined(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, conversation.Conversation{AppCode: "acme", Topic: "general"})
	require.NoError(t, err)

	err = svc.Leave(ctx, "acme", conv.ID, "u-stranger")
	assert.ErrorIs(t, err, storage.ErrNotMember)
}

func TestSendValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, conversation.Conversation{AppCode: "acme", Topic: "general"})
	require.NoError(t, err)

	_, err = svc.Send(ctx, "acme", conversation.Message{ConversationID: conv.ID, Text: "no sender"})
	assert.Error(t, err)

	_, err = svc.Send(ctx, "acme", conversation.Message{ConversationID: conv.ID, SenderID: "u1"})
	assert.Error(t, err)

	_, err = svc.Send(ctx, "acme", conversation.Message{ConversationID: 999, SenderID: "u1", Text: "hi"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	msg, err := svc.Send(ctx, "acme", conversation.Message{ConversationID: conv.ID, SenderID: "u1", Text: "hi"})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, conversation.MessageTypeText, msg.Type)
}

func TestHistoryAndMarkRead(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, conversation.Conversation{AppCode: "acme", Topic: "general"})
	require.NoError(t, err)

	for _, text := range []string{"one", "two"} {
		_, err := svc.Send(ctx, "acme", conversation.Message{ConversationID: conv.ID, SenderID: "u1", Text: text})
		require.NoError(t, err)
	}

	msgs, err := svc.History(ctx, "acme", conv.ID, conversation.Page{})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	marker, err := svc.MarkRead(ctx, "acme", conv.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, "u2", marker.UserID)
	assert.False(t, marker.LastReadAt.IsZero())
}
