// Package postgres implements the storage interfaces against PostgreSQL.
// Every read and write goes through a stored procedure in the chat schema.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/relayline/chathub/internal/app/storage"
	"github.com/relayline/chathub/internal/domain/application"
	"github.com/relayline/chathub/internal/domain/chatuser"
	"github.com/relayline/chathub/internal/domain/company"
	"github.com/relayline/chathub/internal/domain/conversation"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var (
	_ storage.ApplicationStore  = (*Store)(nil)
	_ storage.CompanyStore      = (*Store)(nil)
	_ storage.UserStore         = (*Store)(nil)
	_ storage.ConversationStore = (*Store)(nil)
	_ storage.MessageStore      = (*Store)(nil)
)

// Open connects to the database and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle. Used by tests.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

// --- ApplicationStore -------------------------------------------------------

func (s *Store) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	var out application.Application
	err := s.db.GetContext(ctx, &out,
		`SELECT * FROM chat.sp_create_application($1, $2, $3)`,
		app.ID, app.Code, app.Name)
	if err != nil {
		return application.Application{}, fmt.Errorf("sp_create_application: %w", err)
	}
	return out, nil
}

func (s *Store) GetApplicationByCode(ctx context.Context, code string) (application.Application, error) {
	var out application.Application
	err := s.db.GetContext(ctx, &out,
		`SELECT * FROM chat.sp_get_application_by_code($1)`, code)
	if err != nil {
		return application.Application{}, mapNoRows(err)
	}
	return out, nil
}

func (s *Store) ListApplications(ctx context.Context) ([]application.Application, error) {
	out := []application.Application{}
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM chat.sp_list_applications()`)
	if err != nil {
		return nil, fmt.Errorf("sp_list_applications: %w", err)
	}
	return out, nil
}

// --- CompanyStore -----------------------------------------------------------

func (s *Store) CreateCompany(ctx context.Context, c company.Company) (company.Company, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	var out company.Company
	err := s.db.GetContext(ctx, &out,
		`SELECT * FROM chat.sp_create_company($1, $2, $3, $4)`,
		c.ID, c.AppCode, c.Name, c.Document)
	if err != nil {
		return company.Company{}, fmt.Errorf("sp_create_company: %w", err)
	}
	return out, nil
}

func (s *Store) GetCompany(ctx context.Context, id string) (company.Company, error) {
	var out company.Company
	err := s.db.GetContext(ctx, &out, `SELECT * FROM chat.sp_get_company($1)`, id)
	if err != nil {
		return company.Company{}, mapNoRows(err)
	}
	return out, nil
}

func (s *Store) ListCompanies(ctx context.Context, appCode string) ([]company.Company, error) {
	out := []company.Company{}
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM chat.sp_list_companies($1)`, appCode)
	if err != nil {
		return nil, fmt.Errorf("sp_list_companies: %w", err)
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
	var out chatuser.User
	err := s.db.GetContext(ctx, &out,
		`SELECT * FROM chat.sp_create_user($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.AppCode, nullString(u.CompanyID), u.Login, u.DisplayName, string(u.Role), u.PasswordHash)
	if err != nil {
		return chatuser.User{}, fmt.Errorf("sp_create_user: %w", err)
	}
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (chatuser.User, error) {
	var out chatuser.User
	err := s.db.GetContext(ctx, &out, `SELECT * FROM chat.sp_get_user($1)`, id)
	if err != nil {
		return chatuser.User{}, mapNoRows(err)
	}
	return out, nil
}

func (s *Store) GetUserByLogin(ctx context.Context, appCode, login string) (chatuser.User, error) {
	var out chatuser.User
	err := s.db.GetContext(ctx, &out,
		`SELECT * FROM chat.sp_get_user_by_login($1, $2)`, appCode, login)
	if err != nil {
		return chatuser.User{}, mapNoRows(err)
	}
	return out, nil
}

func (s *Store) ListUsers(ctx context.Context, appCode string, f chatuser.Filter) ([]chatuser.User, error) {
	out := []chatuser.User{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM chat.sp_list_users($1, $2, $3, $4)`,
		appCode, nullString(f.CompanyID), nullString(string(f.Role)), nullBool(f.Active))
	if err != nil {
		return nil, fmt.Errorf("sp_list_users: %w", err)
	}
	return out, nil
}

// --- ConversationStore ------------------------------------------------------

func (s *Store) CreateConversation(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	if conv.Kind == "" {
		conv.Kind = conversation.KindGroup
	}
	var out conversation.Conversation
	err := s.db.GetContext(ctx, &out,
		`SELECT * FROM chat.sp_create_conversation($1, $2, $3, $4)`,
		conv.AppCode, conv.Topic, string(conv.Kind), conv.CreatedBy)
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("sp_create_conversation: %w", err)
	}
	return out, nil
}

func (s *Store) GetConversation(ctx context.Context, id int64) (conversation.Conversation, error) {
	var out conversation.Conversation
	err := s.db.GetContext(ctx, &out, `SELECT * FROM chat.sp_get_conversation($1)`, id)
	if err != nil {
		return conversation.Conversation{}, mapNoRows(err)
	}
	return out, nil
}

func (s *Store) ListConversations(ctx context.Context, appCode, userID string) ([]conversation.Conversation, error) {
	out := []conversation.Conversation{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM chat.sp_list_conversations($1, $2)`, appCode, nullString(userID))
	if err != nil {
		return nil, fmt.Errorf("sp_list_conversations: %w", err)
	}
	return out, nil
}

func (s *Store) UpsertMembership(ctx context.Context, m conversation.Membership) (conversation.Membership, error) {
	if m.Role == "" {
		m.Role = conversation.MemberRoleMember
	}
	var out conversation.Membership
	err := s.db.GetContext(ctx, &out,
		`SELECT * FROM chat.sp_upsert_membership($1, $2, $3)`,
		m.ConversationID, m.UserID, string(m.Role))
	if err != nil {
		return conversation.Membership{}, fmt.Errorf("sp_upsert_membership: %w", mapNoRows(err))
	}
	return out, nil
}

func (s *Store) DeactivateMembership(ctx context.Context, conversationID int64, userID string) error {
	var affected int64
	err := s.db.GetContext(ctx, &affected,
		`SELECT chat.sp_deactivate_membership($1, $2)`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("sp_deactivate_membership: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotMember
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, conversationID int64) ([]conversation.Membership, error) {
	out := []conversation.Membership{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM chat.sp_list_members($1)`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("sp_list_members: %w", err)
	}
	return out, nil
}

// --- MessageStore -----------------------------------------------------------

func (s *Store) CreateMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error) {
	if msg.Type == "" {
		msg.Type = conversation.MessageTypeText
	}
	var out conversation.Message
	err := s.db.GetContext(ctx, &out,
		`SELECT * FROM chat.sp_create_message($1, $2, $3, $4)`,
		msg.ConversationID, msg.SenderID, msg.Text, string(msg.Type))
	if err != nil {
		return conversation.Message{}, fmt.Errorf("sp_create_message: %w", mapNoRows(err))
	}
	return out, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID int64, page conversation.Page) ([]conversation.Message, error) {
	page = page.Normalize()
	out := []conversation.Message{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM chat.sp_list_messages($1, $2, $3)`,
		conversationID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("sp_list_messages: %w", err)
	}
	return out, nil
}

func (s *Store) MarkConversationRead(ctx context.Context, conversationID int64, userID string) (conversation.ReadMarker, error) {
	var out conversation.ReadMarker
	err := s.db.GetContext(ctx, &out,
		`SELECT * FROM chat.sp_mark_conversation_read($1, $2)`, conversationID, userID)
	if err != nil {
		return conversation.ReadMarker{}, fmt.Errorf("sp_mark_conversation_read: %w", mapNoRows(err))
	}
	return out, nil
}

func (s *Store) PurgeMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := s.db.GetContext(ctx, &purged,
		`SELECT chat.sp_purge_messages_before($1)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sp_purge_messages_before: %w", err)
	}
	return purged, nil
}

// --- helpers ----------------------------------------------------------------

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
