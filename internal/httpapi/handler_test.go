package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayline/chathub/internal/app/services/conversations"
	"github.com/relayline/chathub/internal/app/services/directory"
	"github.com/relayline/chathub/internal/app/storage/memory"
	"github.com/relayline/chathub/internal/auth"
	"github.com/relayline/chathub/internal/config"
	"github.com/relayline/chathub/internal/domain/application"
	"github.com/relayline/chathub/internal/domain/chatuser"
	"github.com/relayline/chathub/internal/httpapi"
	"github.com/relayline/chathub/internal/hub"
	"github.com/relayline/chathub/internal/metrics"
	"github.com/relayline/chathub/pkg/logger"
)

type apiEnv struct {
	handler   http.Handler
	validator *auth.Validator
	store     *memory.Store
	dir       *directory.Service
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	store := memory.New()
	_, err := store.CreateApplication(context.Background(), application.Application{
		Code: "acme", Name: "Acme", Active: true,
	})
	require.NoError(t, err)

	validator := auth.NewValidator([]byte("test-key"), "chathub", "chathub-clients")
	dir := directory.New(store, store, store, logger.Nop())
	convs := conversations.New(store, store, logger.Nop())
	h := hub.New(validator, store, convs, metrics.NewSet("apitest"), logger.Nop(), config.HubConfig{
		SendRate: 10, SendBurst: 10, SendBuffer: 8,
		WriteTimeout: time.Second, PingInterval: time.Minute, ReadLimit: 65536,
	}, []string{"*"})

	handler := httpapi.NewHandler(httpapi.Config{
		ServerName:     "chathub-test",
		Validator:      validator,
		Directory:      dir,
		Conversations:  convs,
		Hub:            h,
		TokenTTL:       time.Hour,
		AllowedOrigins: []string{"*"},
		Logger:         logger.Nop(),
	})

	return &apiEnv{handler: handler.Router(), validator: validator, store: store, dir: dir}
}

func (e *apiEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.validator.Issue(userID, "Test User", "admin", "acme", time.Hour)
	require.NoError(t, err)
	return token
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, httpapi.Envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("x-app-code", "acme")
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var env httpapi.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	return rec, env
}

func TestUnauthenticatedRequestGetsEnvelope(t *testing.T) {
	env := newAPIEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, body.IsSuccess)
	assert.NotEmpty(t, body.Errors)
	// Slice fields serialize as empty arrays, never null.
	assert.NotNil(t, body.Items)
	assert.NotNil(t, body.Warnings)
	assert.Equal(t, "chathub-test", body.ServerName)
	assert.NotEmpty(t, body.Ticket)
}

func TestEnvelopeNeverSerializesNullSlices(t *testing.T) {
	env := newAPIEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/api/conversations", "", nil)
	raw := rec.Body.String()
	assert.Contains(t, raw, `"lstItem":[]`)
	assert.Contains(t, raw, `"warnings":[]`)
	assert.NotContains(t, raw, `"lstItem":null`)
}

func TestTokenEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	// Seed a user directly through the directory service.
	_, err := env.dir.CreateUser(context.Background(), chatuser.User{
		AppCode: "acme", Login: "alice", DisplayName: "Alice", Role: chatuser.RoleMember,
	}, "s3cret-pass")
	require.NoError(t, err)

	rec, body := env.do(t, http.MethodPost, "/api/auth/token", "", map[string]string{
		"appCode": "acme", "login": "alice", "password": "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, body.IsSuccess)

	result, err := json.Marshal(body.Result)
	require.NoError(t, err)
	var tok struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	}
	require.NoError(t, json.Unmarshal(result, &tok))
	require.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, int64(3600), tok.ExpiresIn)

	claims, err := env.validator.ValidateForApplication(tok.AccessToken, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Alice", claims.UserName)
}

func TestTokenEndpointRejectsBadPassword(t *testing.T) {
	env := newAPIEnv(t)
	_, err := env.dir.CreateUser(context.Background(), chatuser.User{
		AppCode: "acme", Login: "alice", DisplayName: "Alice",
	}, "s3cret-pass")
	require.NoError(t, err)

	rec, body := env.do(t, http.MethodPost, "/api/auth/token", "", map[string]string{
		"appCode": "acme", "login": "alice", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, body.IsSuccess)
}

func TestConversationLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "u-alice")

	rec, body := env.do(t, http.MethodPost, "/api/conversations", token, map[string]string{
		"topic": "general",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.True(t, body.IsSuccess)

	result, _ := json.Marshal(body.Result)
	var conv struct {
		ID    int64  `json:"id"`
		Topic string `json:"topic"`
	}
	require.NoError(t, json.Unmarshal(result, &conv))
	assert.Equal(t, "general", conv.Topic)
	require.NotZero(t, conv.ID)

	// The creator is enrolled automatically.
	rec, body = env.do(t, http.MethodGet, "/api/conversations", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body.Items, 1)

	// Post and list messages.
	rec, _ = env.do(t, http.MethodPost, "/api/conversations/1/messages", token, map[string]string{
		"text": "hello",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, body = env.do(t, http.MethodGet, "/api/conversations/1/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body.Items, 1)
	require.NotNil(t, body.Pagination)
	assert.Equal(t, 1, body.Pagination.Count)
	assert.Equal(t, 50, body.Pagination.Limit)
}

func TestGetUnknownConversation(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "u-alice")

	rec, body := env.do(t, http.MethodGet, "/api/conversations/42", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, body.IsSuccess)
}

func TestLeaveConversationNeverJoined(t *testing.T) {
	env := newAPIEnv(t)
	creator := env.token(t, "u-alice")
	stranger := env.token(t, "u-bob")

	rec, _ := env.do(t, http.MethodPost, "/api/conversations", creator, map[string]string{
		"topic": "general",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := env.do(t, http.MethodDelete, "/api/conversations/1/members", stranger, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, body.IsSuccess)
}

func TestCreateUserValidation(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "u-admin")

	rec, body := env.do(t, http.MethodPost, "/api/users", token, map[string]string{
		"login": "x", "displayName": "", "password": "short",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.False(t, body.IsSuccess)
}

func TestPasswordHashNeverLeaves(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "u-admin")

	rec, _ := env.do(t, http.MethodPost, "/api/users", token, map[string]string{
		"login": "alice", "displayName": "Alice", "password": "s3cret-pass",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "passwordHash")
	assert.NotContains(t, rec.Body.String(), "s3cret-pass")
}
