package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/relayline/chathub/internal/app/storage"
	"github.com/relayline/chathub/internal/domain/application"
	"github.com/relayline/chathub/internal/domain/chatuser"
	"github.com/relayline/chathub/internal/domain/company"
	"github.com/relayline/chathub/internal/domain/conversation"
)

// Store implements the storage interfaces through the data API. It calls the
// same stored procedures as the direct Postgres store, over REST.
type Store struct {
	client *Client
}

var (
	_ storage.ApplicationStore  = (*Store)(nil)
	_ storage.CompanyStore      = (*Store)(nil)
	_ storage.UserStore         = (*Store)(nil)
	_ storage.ConversationStore = (*Store)(nil)
	_ storage.MessageStore      = (*Store)(nil)
)

// NewStore wraps a client.
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

// Health verifies the data API is reachable.
func (s *Store) Health(ctx context.Context) error {
	_, err := s.client.From("applications").Select("id").Limit(1).Execute(ctx)
	return err
}

// rpcRows calls fn and decodes the returned row set into out. PostgREST
// returns an empty array when a SETOF procedure matches nothing.
func (s *Store) rpcRows(ctx context.Context, fn string, params any, out any) error {
	body, err := s.client.RPC(ctx, fn, params)
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", fn, err)
	}
	return nil
}

// rpcRow is rpcRows for procedures expected to return exactly one row.
func rpcRow[T any](ctx context.Context, s *Store, fn string, params any) (T, error) {
	var rows []T
	var zero T
	if err := s.rpcRows(ctx, fn, params, &rows); err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, storage.ErrNotFound
	}
	return rows[0], nil
}

// rpcScalar calls fn and extracts a scalar result.
func (s *Store) rpcScalar(ctx context.Context, fn string, params any) (int64, error) {
	body, err := s.client.RPC(ctx, fn, params)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", fn, err)
	}
	return gjson.ParseBytes(body).Int(), nil
}

// --- row types (data API column names) --------------------------------------

type applicationRow struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r applicationRow) domain() application.Application {
	return application.Application(r)
}

type companyRow struct {
	ID        string    `json:"id"`
	AppCode   string    `json:"app_code"`
	Name      string    `json:"name"`
	Document  string    `json:"document"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r companyRow) domain() company.Company {
	return company.Company(r)
}

type userRow struct {
	ID           string    `json:"id"`
	AppCode      string    `json:"app_code"`
	CompanyID    string    `json:"company_id"`
	Login        string    `json:"login"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"password_hash"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r userRow) domain() chatuser.User {
	return chatuser.User{
		ID:           r.ID,
		AppCode:      r.AppCode,
		CompanyID:    r.CompanyID,
		Login:        r.Login,
		DisplayName:  r.DisplayName,
		Role:         chatuser.Role(r.Role),
		PasswordHash: r.PasswordHash,
		Active:       r.Active,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type conversationRow struct {
	ID        int64     `json:"id"`
	AppCode   string    `json:"app_code"`
	Topic     string    `json:"topic"`
	Kind      string    `json:"kind"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

func (r conversationRow) domain() conversation.Conversation {
	return conversation.Conversation{
		ID:        r.ID,
		AppCode:   r.AppCode,
		Topic:     r.Topic,
		Kind:      conversation.Kind(r.Kind),
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
	}
}

type membershipRow struct {
	ConversationID int64     `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	Active         bool      `json:"active"`
	JoinedAt       time.Time `json:"joined_at"`
}

func (r membershipRow) domain() conversation.Membership {
	return conversation.Membership{
		ConversationID: r.ConversationID,
		UserID:         r.UserID,
		Role:           conversation.MemberRole(r.Role),
		Active:         r.Active,
		JoinedAt:       r.JoinedAt,
	}
}

type messageRow struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	Type           string    `json:"type"`
	SentAt         time.Time `json:"sent_at"`
}

func (r messageRow) domain() conversation.Message {
	return conversation.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Text:           r.Text,
		Type:           conversation.MessageType(r.Type),
		SentAt:         r.SentAt,
	}
}

type readMarkerRow struct {
	ConversationID int64     `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	LastReadAt     time.Time `json:"last_read_at"`
}

func (r readMarkerRow) domain() conversation.ReadMarker {
	return conversation.ReadMarker(r)
}

// --- ApplicationStore -------------------------------------------------------

func (s *Store) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	row, err := rpcRow[applicationRow](ctx, s, "sp_create_application", map[string]any{
		"p_id": app.ID, "p_code": app.Code, "p_name": app.Name,
	})
	if err != nil {
		return application.Application{}, err
	}
	return row.domain(), nil
}

func (s *Store) GetApplicationByCode(ctx context.Context, code string) (application.Application, error) {
	row, err := rpcRow[applicationRow](ctx, s, "sp_get_application_by_code", map[string]any{"p_code": code})
	if err != nil {
		return application.Application{}, err
	}
	return row.domain(), nil
}

func (s *Store) ListApplications(ctx context.Context) ([]application.Application, error) {
	var rows []applicationRow
	if err := s.rpcRows(ctx, "sp_list_applications", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]application.Application, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

// --- CompanyStore -----------------------------------------------------------

func (s *Store) CreateCompany(ctx context.Context, c company.Company) (company.Company, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row, err := rpcRow[companyRow](ctx, s, "sp_create_company", map[string]any{
		"p_id": c.ID, "p_app_code": c.AppCode, "p_name": c.Name, "p_document": c.Document,
	})
	if err != nil {
		return company.Company{}, err
	}
	return row.domain(), nil
}

func (s *Store) GetCompany(ctx context.Context, id string) (company.Company, error) {
	row, err := rpcRow[companyRow](ctx, s, "sp_get_company", map[string]any{"p_id": id})
	if err != nil {
		return company.Company{}, err
	}
	return row.domain(), nil
}

func (s *Store) ListCompanies(ctx context.Context, appCode string) ([]company.Company, error) {
	var rows []companyRow
	if err := s.rpcRows(ctx, "sp_list_companies", map[string]any{"p_app_code": appCode}, &rows); err != nil {
		return nil, err
	}
	out := make([]company.Company, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u chatuser.User) (chatuser.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = chatuser.RoleMember
	}
	row, err := rpcRow[userRow](ctx, s, "sp_create_user", map[string]any{
		"p_id": u.ID, "p_app_code": u.AppCode, "p_company_id": orNil(u.CompanyID),
		"p_login": u.Login, "p_display_name": u.DisplayName,
		"p_role": string(u.Role), "p_password_hash": u.PasswordHash,
	})
	if err != nil {
		return chatuser.User{}, err
	}
	return row.domain(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (chatuser.User, error) {
	row, err := rpcRow[userRow](ctx, s, "sp_get_user", map[string]any{"p_id": id})
	if err != nil {
		return chatuser.User{}, err
	}
	return row.domain(), nil
}

func (s *Store) GetUserByLogin(ctx context.Context, appCode, login string) (chatuser.User, error) {
	row, err := rpcRow[userRow](ctx, s, "sp_get_user_by_login", map[string]any{
		"p_app_code": appCode, "p_login": login,
	})
	if err != nil {
		return chatuser.User{}, err
	}
	return row.domain(), nil
}

func (s *Store) ListUsers(ctx context.Context, appCode string, f chatuser.Filter) ([]chatuser.User, error) {
	params := map[string]any{
		"p_app_code":   appCode,
		"p_company_id": orNil(f.CompanyID),
		"p_role":       orNil(string(f.Role)),
		"p_active":     nil,
	}
	if f.Active != nil {
		params["p_active"] = *f.Active
	}
	var rows []userRow
	if err := s.rpcRows(ctx, "sp_list_users", params, &rows); err != nil {
		return nil, err
	}
	out := make([]chatuser.User, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

// --- ConversationStore ------------------------------------------------------

func (s *Store) CreateConversation(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	if conv.Kind == "" {
		conv.Kind = conversation.KindGroup
	}
	row, err := rpcRow[conversationRow](ctx, s, "sp_create_conversation", map[string]any{
		"p_app_code": conv.AppCode, "p_topic": conv.Topic,
		"p_kind": string(conv.Kind), "p_created_by": conv.CreatedBy,
	})
	if err != nil {
		return conversation.Conversation{}, err
	}
	return row.domain(), nil
}

func (s *Store) GetConversation(ctx context.Context, id int64) (conversation.Conversation, error) {
	row, err := rpcRow[conversationRow](ctx, s, "sp_get_conversation", map[string]any{"p_id": id})
	if err != nil {
		return conversation.Conversation{}, err
	}
	return row.domain(), nil
}

func (s *Store) ListConversations(ctx context.Context, appCode, userID string) ([]conversation.Conversation, error) {
	var rows []conversationRow
	err := s.rpcRows(ctx, "sp_list_conversations", map[string]any{
		"p_app_code": appCode, "p_user_id": orNil(userID),
	}, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]conversation.Conversation, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

func (s *Store) UpsertMembership(ctx context.Context, m conversation.Membership) (conversation.Membership, error) {
	if m.Role == "" {
		m.Role = conversation.MemberRoleMember
	}
	row, err := rpcRow[membershipRow](ctx, s, "sp_upsert_membership", map[string]any{
		"p_conversation_id": m.ConversationID, "p_user_id": m.UserID, "p_role": string(m.Role),
	})
	if err != nil {
		return conversation.Membership{}, err
	}
	return row.domain(), nil
}

func (s *Store) DeactivateMembership(ctx context.Context, conversationID int64, userID string) error {
	affected, err := s.rpcScalar(ctx, "sp_deactivate_membership", map[string]any{
		"p_conversation_id": conversationID, "p_user_id": userID,
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotMember
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, conversationID int64) ([]conversation.Membership, error) {
	var rows []membershipRow
	err := s.rpcRows(ctx, "sp_list_members", map[string]any{"p_conversation_id": conversationID}, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]conversation.Membership, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

// --- MessageStore -----------------------------------------------------------

func (s *Store) CreateMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error) {
	if msg.Type == "" {
		msg.Type = conversation.MessageTypeText
	}
	row, err := rpcRow[messageRow](ctx, s, "sp_create_message", map[string]any{
		"p_conversation_id": msg.ConversationID, "p_sender_id": msg.SenderID,
		"p_text": msg.Text, "p_type": string(msg.Type),
	})
	if err != nil {
		return conversation.Message{}, err
	}
	return row.domain(), nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID int64, page conversation.Page) ([]conversation.Message, error) {
	page = page.Normalize()
	var rows []messageRow
	err := s.rpcRows(ctx, "sp_list_messages", map[string]any{
		"p_conversation_id": conversationID, "p_limit": page.Limit, "p_offset": page.Offset,
	}, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]conversation.Message, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

func (s *Store) MarkConversationRead(ctx context.Context, conversationID int64, userID string) (conversation.ReadMarker, error) {
	row, err := rpcRow[readMarkerRow](ctx, s, "sp_mark_conversation_read", map[string]any{
		"p_conversation_id": conversationID, "p_user_id": userID,
	})
	if err != nil {
		return conversation.ReadMarker{}, err
	}
	return row.domain(), nil
}

func (s *Store) PurgeMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.rpcScalar(ctx, "sp_purge_messages_before", map[string]any{
		"p_cutoff": cutoff.UTC().Format(time.RFC3339Nano),
	})
}

func orNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
