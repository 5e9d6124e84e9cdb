// Package memory provides the in-memory store used by tests and by
// deployments without a configured database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/relayline/chathub/internal/app/storage"
	"github.com/relayline/chathub/internal/domain/application"
	"github.com/relayline/chathub/internal/domain/chatuser"
	"github.com/relayline/chathub/internal/domain/company"
	"github.com/relayline/chathub/internal/domain/conversation"
)

// Store implements every storage interface except WebhookStore in memory.
type Store struct {
	mu sync.RWMutex

	applications map[string]application.Application // keyed by code (lowercase)
	companies    map[string]company.Company
	users        map[string]chatuser.User
	convs        map[int64]conversation.Conversation
	memberships  map[string]conversation.Membership // key: convID/userID
	messages     map[int64]conversation.Message
	readMarkers  map[string]conversation.ReadMarker // key: convID/userID

	nextConvID int64
	nextMsgID  int64
}

var (
	_ storage.ApplicationStore  = (*Store)(nil)
	_ storage.CompanyStore      = (*Store)(nil)
	_ storage.UserStore         = (*Store)(nil)
	_ storage.ConversationStore = (*Store)(nil)
	_ storage.MessageStore      = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		applications: make(map[string]application.Application),
		companies:    make(map[string]company.Company),
		users:        make(map[string]chatuser.User),
		convs:        make(map[int64]conversation.Conversation),
		memberships:  make(map[string]conversation.Membership),
		messages:     make(map[int64]conversation.Message),
		readMarkers:  make(map[string]conversation.ReadMarker),
	}
}

func memberKey(conversationID int64, userID string) string {
	return fmt.Sprintf("%d/%s", conversationID, userID)
}

// --- ApplicationStore -------------------------------------------------------

func (s *Store) CreateApplication(_ context.Context, app application.Application) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := strings.ToLower(strings.TrimSpace(app.Code))
	if code == "" {
		return application.Application{}, fmt.Errorf("application code is required")
	}
	if _, ok := s.applications[code]; ok {
		return application.Application{}, storage.ErrDuplicate
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	s.applications[code] = app
	return app, nil
}

func (s *Store) GetApplicationByCode(_ context.Context, code string) (application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.applications[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return application.Application{}, storage.ErrNotFound
	}
	return app, nil
}

func (s *Store) ListApplications(_ context.Context) ([]application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apps := lo.Values(s.applications)
	sort.Slice(apps, func(i, j int) bool { return apps[i].Code < apps[j].Code })
	return apps, nil
}

// --- CompanyStore -----------------------------------------------------------

func (s *Store) CreateCompany(_ context.Context, c company.Company) (company.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.companies[c.ID] = c
	return c, nil
}

func (s *Store) GetCompany(_ context.Context, id string) (company.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.companies[id]
	if !ok {
		return company.Company{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCompanies(_ context.Context, appCode string) ([]company.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	companies := lo.Filter(lo.Values(s.companies), func(c company.Company, _ int) bool {
		return strings.EqualFold(c.AppCode, appCode)
	})
	sort.Slice(companies, func(i, j int) bool { return companies[i].Name < companies[j].Name })
	return companies, nil
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u chatuser.User) (chatuser.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.AppCode, u.AppCode) && strings.EqualFold(existing.Login, u.Login) {
			return chatuser.User{}, storage.ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = chatuser.RoleMember
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (chatuser.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return chatuser.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByLogin(_ context.Context, appCode, login string) (chatuser.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.AppCode, appCode) && strings.EqualFold(u.Login, login) {
			return u, nil
		}
	}
	return chatuser.User{}, storage.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context, appCode string, f chatuser.Filter) ([]chatuser.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := lo.Filter(lo.Values(s.users), func(u chatuser.User, _ int) bool {
		if !strings.EqualFold(u.AppCode, appCode) {
			return false
		}
		if f.CompanyID != "" && u.CompanyID != f.CompanyID {
			return false
		}
		if f.Role != "" && u.Role != f.Role {
			return false
		}
		if f.Active != nil && u.Active != *f.Active {
			return false
		}
		return true
	})
	sort.Slice(users, func(i, j int) bool { return users[i].Login < users[j].Login })
	return users, nil
}

// --- ConversationStore ------------------------------------------------------

func (s *Store) CreateConversation(_ context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextConvID++
	conv.ID = s.nextConvID
	if conv.Kind == "" {
		conv.Kind = conversation.KindGroup
	}
	conv.CreatedAt = time.Now().UTC()
	s.convs[conv.ID] = conv
	return conv, nil
}

func (s *Store) GetConversation(_ context.Context, id int64) (conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok {
		return conversation.Conversation{}, storage.ErrNotFound
	}
	return conv, nil
}

func (s *Store) ListConversations(_ context.Context, appCode, userID string) ([]conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := lo.Filter(lo.Values(s.convs), func(c conversation.Conversation, _ int) bool {
		if !strings.EqualFold(c.AppCode, appCode) {
			return false
		}
		if userID == "" {
			return true
		}
		m, ok := s.memberships[memberKey(c.ID, userID)]
		return ok && m.Active
	})
	sort.Slice(convs, func(i, j int) bool { return convs[i].ID < convs[j].ID })
	return convs, nil
}

func (s *Store) UpsertMembership(_ context.Context, m conversation.Membership) (conversation.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[m.ConversationID]; !ok {
		return conversation.Membership{}, storage.ErrNotFound
	}
	key := memberKey(m.ConversationID, m.UserID)
	if existing, ok := s.memberships[key]; ok && existing.Active {
		return existing, nil
	}
	if m.Role == "" {
		m.Role = conversation.MemberRoleMember
	}
	m.Active = true
	m.JoinedAt = time.Now().UTC()
	s.memberships[key] = m
	return m, nil
}

func (s *Store) DeactivateMembership(_ context.Context, conversationID int64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey(conversationID, userID)
	m, ok := s.memberships[key]
	if !ok || !m.Active {
		return storage.ErrNotMember
	}
	m.Active = false
	s.memberships[key] = m
	return nil
}

func (s *Store) ListMembers(_ context.Context, conversationID int64) ([]conversation.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := lo.Filter(lo.Values(s.memberships), func(m conversation.Membership, _ int) bool {
		return m.ConversationID == conversationID && m.Active
	})
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

// --- MessageStore -----------------------------------------------------------

func (s *Store) CreateMessage(_ context.Context, msg conversation.Message) (conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[msg.ConversationID]; !ok {
		return conversation.Message{}, storage.ErrNotFound
	}
	s.nextMsgID++
	msg.ID = s.nextMsgID
	if msg.Type == "" {
		msg.Type = conversation.MessageTypeText
	}
	msg.SentAt = time.Now().UTC()
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *Store) ListMessages(_ context.Context, conversationID int64, page conversation.Page) ([]conversation.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page = page.Normalize()
	msgs := lo.Filter(lo.Values(s.messages), func(m conversation.Message, _ int) bool {
		return m.ConversationID == conversationID
	})
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })

	if page.Offset >= len(msgs) {
		return []conversation.Message{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(msgs) {
		end = len(msgs)
	}
	return msgs[page.Offset:end], nil
}

func (s *Store) MarkConversationRead(_ context.Context, conversationID int64, userID string) (conversation.ReadMarker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[conversationID]; !ok {
		return conversation.ReadMarker{}, storage.ErrNotFound
	}
	marker := conversation.ReadMarker{
		ConversationID: conversationID,
		UserID:         userID,
		LastReadAt:     time.Now().UTC(),
	}
	s.readMarkers[memberKey(conversationID, userID)] = marker
	return marker, nil
}

func (s *Store) PurgeMessagesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, msg := range s.messages {
		if msg.SentAt.Before(cutoff) {
			delete(s.messages, id)
			purged++
		}
	}
	return purged, nil
}
