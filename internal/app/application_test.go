package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayline/chathub/internal/app"
	"github.com/relayline/chathub/internal/app/storage/memory"
	"github.com/relayline/chathub/internal/config"
	"github.com/relayline/chathub/internal/domain/application"
	"github.com/relayline/chathub/internal/hub"
	"github.com/relayline/chathub/pkg/logger"
)

func newTestApplication(t *testing.T) *app.Application {
	t.Helper()

	store := memory.New()
	_, err := store.CreateApplication(context.Background(), application.Application{
		Code: "acme", Name: "Acme", Active: true,
	})
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{Name: "chathub-test", AllowedOrigins: []string{"*"}},
		JWT: config.JWTConfig{
			SigningKey: "test-key",
			Issuer:     "chathub",
			Audience:   "chathub-clients",
			TTL:        time.Hour,
		},
		Hub: config.HubConfig{
			SendRate:     100,
			SendBurst:    200,
			SendBuffer:   64,
			WriteTimeout: 5 * time.Second,
			PingInterval: 30 * time.Second,
			ReadLimit:    65536,
		},
	}

	a, err := app.New(cfg,
		app.WithStores(app.Stores{
			Applications:  store,
			Companies:     store,
			Users:         store,
			Conversations: store,
			Messages:      store,
		}),
		app.WithLogger(logger.Nop()),
	)
	require.NoError(t, err)
	return a
}

// The websocket endpoint is served through the instrumented handler chain, so
// the upgrade must survive the metrics wrapper.
func TestWebsocketUpgradeThroughHandler(t *testing.T) {
	a := newTestApplication(t)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	token, err := a.Validator.Issue("u-alice", "Alice", "member", "acme", time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/chathub?appCode=acme&access_token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "upgrade failed through the instrumented handler")
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame hub.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, hub.EventUserConnected, frame.Target)
}

func TestHandlerRejectsBadHandshakeWithoutUpgrade(t *testing.T) {
	a := newTestApplication(t)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/chathub")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
