package hub

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/relayline/chathub/internal/app/services/conversations"
	"github.com/relayline/chathub/internal/app/storage"
	"github.com/relayline/chathub/internal/auth"
	"github.com/relayline/chathub/internal/config"
	"github.com/relayline/chathub/internal/domain/conversation"
	"github.com/relayline/chathub/internal/metrics"
	"github.com/relayline/chathub/pkg/logger"
)

// Publisher forwards a group broadcast to other service instances.
type Publisher interface {
	Publish(ctx context.Context, group string, frame []byte) error
}

// Hub is the websocket endpoint. It authenticates the handshake, registers
// sessions into groups, and dispatches the chat operations.
type Hub struct {
	validator *auth.Validator
	apps      storage.ApplicationStore
	convs     *conversations.Service
	registry  *Registry
	metrics   *metrics.Set
	log       *logger.Logger
	cfg       config.HubConfig
	upgrader  websocket.Upgrader
	bridge    Publisher
}

// New constructs a hub.
func New(validator *auth.Validator, apps storage.ApplicationStore, convs *conversations.Service, m *metrics.Set, log *logger.Logger, cfg config.HubConfig, allowedOrigins []string) *Hub {
	if log == nil {
		log = logger.NewDefault("hub")
	}
	h := &Hub{
		validator: validator,
		apps:      apps,
		convs:     convs,
		registry:  NewRegistry(),
		metrics:   m,
		log:       log,
		cfg:       cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// SetBridge attaches a cross-instance publisher. Must be called before the
// hub accepts connections.
func (h *Hub) SetBridge(p Publisher) { h.bridge = p }

// Registry exposes group membership, used by the HTTP presence endpoints.
func (h *Hub) Registry() *Registry { return h.registry }

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// ServeHTTP performs the authenticated websocket handshake. Credentials are
// checked before the upgrade so failures surface as plain HTTP 401s.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	appCode := auth.AppCode(r)
	if appCode == "" {
		http.Error(w, "application code is required", http.StatusUnauthorized)
		return
	}
	token := auth.BearerToken(r)
	if token == "" {
		http.Error(w, "access token is required", http.StatusUnauthorized)
		return
	}

	claims, err := h.validator.ValidateForApplication(token, appCode)
	if err != nil {
		h.log.WithError(err).WithField("app_code", appCode).Warn("handshake rejected")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	app, err := h.apps.GetApplicationByCode(r.Context(), appCode)
	if err != nil || !app.Active {
		http.Error(w, "unknown application", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	limiter := rate.NewLimiter(rate.Limit(h.cfg.SendRate), h.cfg.SendBurst)
	s := newSession(conn, claims.UserID, claims.UserName, claims.Role, app.Code,
		h.cfg.SendBuffer, limiter, h.cfg.WriteTimeout, h.cfg.PingInterval)
	s.Attributes = sessionAttributes(r)
	conn.SetReadLimit(h.cfg.ReadLimit)

	h.metrics.Connections.Inc()
	h.metrics.ConnectionsTotal.Inc()

	h.registry.Join(AppGroup(s.AppCode), s)
	h.registry.Join(UserGroup(s.UserID), s)
	s.setState(StateActive)

	h.log.WithField("session_id", s.ID).
		WithField("user_id", s.UserID).
		WithField("app_code", s.AppCode).
		Info("session connected")

	h.broadcast(AppGroup(s.AppCode), EventUserConnected, PresencePayload{
		UserID:       s.UserID,
		UserName:     s.UserName,
		ConnectionID: s.ID,
		Timestamp:    time.Now().UTC(),
	})

	go s.writeLoop()
	h.readLoop(r.Context(), s)
}

// sessionAttributes collects the optional client attributes supplied with
// the handshake. Each may arrive as a header or a query parameter.
func sessionAttributes(r *http.Request) Attributes {
	return Attributes{
		AccessCode: auth.HeaderOrQuery(r, "x-access-code", "accessCode", "access_code"),
		SecretCode: auth.HeaderOrQuery(r, "x-secret-code", "secretCode", "secret_code"),
		UserCode:   auth.HeaderOrQuery(r, "x-user-code", "userCode", "user_code"),
		PersonCode: auth.HeaderOrQuery(r, "x-person-code", "personCode", "person_code"),
	}
}

func (h *Hub) readLoop(ctx context.Context, s *Session) {
	defer h.disconnect(s)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(ctx, s, data)
	}
}

// dispatch routes one inbound frame. A panicking handler tears down only the
// offending session.
func (h *Hub) dispatch(ctx context.Context, s *Session, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.WithField("session_id", s.ID).
				WithField("panic", rec).
				Error("handler panic, closing session")
			s.close()
		}
	}()

	var frame Frame
	if err := decodeFrame(data, &frame); err != nil {
		h.metrics.FramesRejected.WithLabelValues("malformed").Inc()
		h.sendError(s, "", "malformed frame")
		return
	}

	if !s.limiter.Allow() {
		h.metrics.FramesRejected.WithLabelValues("rate_limited").Inc()
		h.sendError(s, frame.Target, "rate limit exceeded")
		return
	}

	switch frame.Target {
	case OpJoinConversation:
		h.handleJoin(ctx, s, frame)
	case OpLeaveConversation:
		h.handleLeave(ctx, s, frame)
	case OpSendMessage:
		h.handleSend(ctx, s, frame)
	case OpMarkMessagesAsRead:
		h.handleMarkRead(ctx, s, frame)
	case OpGetOnlineUsers:
		h.handleOnlineUsers(s)
	default:
		h.metrics.FramesRejected.WithLabelValues("unknown_target").Inc()
		h.sendError(s, frame.Target, "unknown operation")
	}
}

func (h *Hub) handleJoin(ctx context.Context, s *Session, frame Frame) {
	var conversationID int64
	if err := frame.Arg(0, &conversationID); err != nil {
		h.sendError(s, OpJoinConversation, err.Error())
		return
	}

	if _, err := h.convs.Join(ctx, s.AppCode, conversationID, s.UserID); err != nil {
		h.sendError(s, OpJoinConversation, operationMessage(err))
		return
	}

	s.markJoined(conversationID)
	h.registry.Join(ConversationGroup(conversationID), s)

	h.sendFrame(s, EventJoinedConversation, conversationID)
	h.broadcast(ConversationGroup(conversationID), EventUserJoinedConversation, PresencePayload{
		UserID:         s.UserID,
		UserName:       s.UserName,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
	})
}

func (h *Hub) handleLeave(ctx context.Context, s *Session, frame Frame) {
	var conversationID int64
	if err := frame.Arg(0, &conversationID); err != nil {
		h.sendError(s, OpLeaveConversation, err.Error())
		return
	}

	if err := h.convs.Leave(ctx, s.AppCode, conversationID, s.UserID); err != nil {
		h.sendError(s, OpLeaveConversation, operationMessage(err))
		return
	}

	h.registry.Leave(ConversationGroup(conversationID), s)
	s.markLeft(conversationID)

	h.sendFrame(s, EventLeftConversation, conversationID)
	h.broadcast(ConversationGroup(conversationID), EventUserLeftConversation, PresencePayload{
		UserID:         s.UserID,
		UserName:       s.UserName,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
	})
}

func (h *Hub) handleSend(ctx context.Context, s *Session, frame Frame) {
	var args SendMessageArgs
	if err := frame.Arg(0, &args); err != nil {
		h.sendError(s, OpSendMessage, err.Error())
		return
	}
	if args.Type == "" {
		args.Type = string(conversation.MessageTypeText)
	}

	msg, err := h.convs.Send(ctx, s.AppCode, conversation.Message{
		ConversationID: args.ConversationID,
		SenderID:       s.UserID,
		Text:           args.Text,
		Type:           conversation.MessageType(args.Type),
	})
	if err != nil {
		h.sendError(s, OpSendMessage, operationMessage(err))
		return
	}

	h.metrics.MessagesSent.Inc()
	h.broadcast(ConversationGroup(msg.ConversationID), EventReceiveMessage, MessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     s.UserName,
		Text:           msg.Text,
		Type:           string(msg.Type),
		SentAt:         msg.SentAt,
	})
}

func (h *Hub) handleMarkRead(ctx context.Context, s *Session, frame Frame) {
	var conversationID int64
	if err := frame.Arg(0, &conversationID); err != nil {
		h.sendError(s, OpMarkMessagesAsRead, err.Error())
		return
	}

	marker, err := h.convs.MarkRead(ctx, s.AppCode, conversationID, s.UserID)
	if err != nil {
		h.sendError(s, OpMarkMessagesAsRead, operationMessage(err))
		return
	}

	h.broadcast(ConversationGroup(conversationID), EventMessagesMarkedAsRead, ReadPayload{
		ConversationID: marker.ConversationID,
		UserID:         marker.UserID,
		LastReadAt:     marker.LastReadAt,
	})
}

func (h *Hub) handleOnlineUsers(s *Session) {
	h.sendFrame(s, EventOnlineUsers, h.OnlineUsers(s.AppCode))
}

// OnlineUsers lists the distinct users with at least one open session under
// an application.
func (h *Hub) OnlineUsers(appCode string) []OnlineUser {
	seen := make(map[string]struct{})
	out := make([]OnlineUser, 0)
	for _, member := range h.registry.Members(AppGroup(appCode)) {
		if _, ok := seen[member.UserID]; ok {
			continue
		}
		seen[member.UserID] = struct{}{}
		out = append(out, OnlineUser{UserID: member.UserID, UserName: member.UserName})
	}
	return out
}

func (h *Hub) disconnect(s *Session) {
	s.close()
	h.registry.LeaveAll(s)
	h.metrics.Connections.Dec()

	h.log.WithField("session_id", s.ID).
		WithField("user_id", s.UserID).
		Info("session disconnected")

	// One event per closed connection; the connection id tells listeners
	// which session went away.
	h.broadcast(AppGroup(s.AppCode), EventUserDisconnected, PresencePayload{
		UserID:       s.UserID,
		UserName:     s.UserName,
		ConnectionID: s.ID,
		Timestamp:    time.Now().UTC(),
	})
}

// broadcast encodes an event and fans it out to a group, locally and through
// the bridge when one is attached.
func (h *Hub) broadcast(group, target string, args ...any) {
	data, err := encodeFrame(target, args...)
	if err != nil {
		h.log.WithError(err).WithField("target", target).Error("encode broadcast")
		return
	}

	sent, dropped := h.registry.Broadcast(group, data, nil)
	h.metrics.BroadcastFanout.Observe(float64(sent))
	if dropped > 0 {
		h.metrics.BroadcastDropped.Add(float64(dropped))
	}

	if h.bridge != nil {
		if err := h.bridge.Publish(context.Background(), group, data); err != nil {
			h.log.WithError(err).WithField("group", group).Warn("bridge publish failed")
		} else {
			h.metrics.BridgePublished.Inc()
		}
	}
}

// DeliverLocal fans a frame received from the bridge out to local sessions
// only.
func (h *Hub) DeliverLocal(group string, data []byte) {
	h.metrics.BridgeReceived.Inc()
	sent, dropped := h.registry.Broadcast(group, data, nil)
	h.metrics.BroadcastFanout.Observe(float64(sent))
	if dropped > 0 {
		h.metrics.BroadcastDropped.Add(float64(dropped))
	}
}

func (h *Hub) sendFrame(s *Session, target string, args ...any) {
	data, err := encodeFrame(target, args...)
	if err != nil {
		h.log.WithError(err).WithField("target", target).Error("encode frame")
		return
	}
	if !s.enqueue(data) {
		h.metrics.BroadcastDropped.Inc()
	}
}

func (h *Hub) sendError(s *Session, operation, message string) {
	h.sendFrame(s, EventError, ErrorPayload{Operation: operation, Message: message})
}

// operationMessage maps storage errors to client-facing text without leaking
// internals.
func operationMessage(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "conversation not found"
	case errors.Is(err, storage.ErrNotMember):
		return "not a member of this conversation"
	default:
		return err.Error()
	}
}
