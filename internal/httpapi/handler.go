package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/relayline/chathub/internal/app/services/conversations"
	"github.com/relayline/chathub/internal/app/services/directory"
	"github.com/relayline/chathub/internal/app/storage"
	"github.com/relayline/chathub/internal/auth"
	"github.com/relayline/chathub/internal/domain/chatuser"
	"github.com/relayline/chathub/internal/domain/company"
	"github.com/relayline/chathub/internal/domain/conversation"
	"github.com/relayline/chathub/internal/hub"
	"github.com/relayline/chathub/pkg/logger"
)

// Handler wires the REST routes.
type Handler struct {
	resp      responder
	validator *auth.Validator
	dir       *directory.Service
	convs     *conversations.Service
	hub       *hub.Hub
	validate  *validator.Validate
	jwtTTL    time.Duration
	origins   []string
	log       *logger.Logger
}

// Config holds handler dependencies.
type Config struct {
	ServerName     string
	Validator      *auth.Validator
	Directory      *directory.Service
	Conversations  *conversations.Service
	Hub            *hub.Hub
	TokenTTL       time.Duration
	AllowedOrigins []string
	Logger         *logger.Logger
}

// NewHandler constructs the REST handler.
func NewHandler(cfg Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{
		resp:      responder{serverName: cfg.ServerName},
		validator: cfg.Validator,
		dir:       cfg.Directory,
		convs:     cfg.Conversations,
		hub:       cfg.Hub,
		validate:  validator.New(),
		jwtTTL:    cfg.TokenTTL,
		origins:   cfg.AllowedOrigins,
		log:       log,
	}
}

// Router builds the /api route tree.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.Handle("/auth/token", http.HandlerFunc(h.issueToken)).Methods(http.MethodPost, http.MethodOptions)

	sec := api.NewRoute().Subrouter()
	sec.Use(mux.MiddlewareFunc(h.requireAuth))

	sec.HandleFunc("/applications", h.createApplication).Methods(http.MethodPost)
	sec.HandleFunc("/applications", h.listApplications).Methods(http.MethodGet)
	sec.HandleFunc("/applications/{code}", h.getApplication).Methods(http.MethodGet)

	sec.HandleFunc("/companies", h.createCompany).Methods(http.MethodPost)
	sec.HandleFunc("/companies", h.listCompanies).Methods(http.MethodGet)

	sec.HandleFunc("/users", h.createUser).Methods(http.MethodPost)
	sec.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	sec.HandleFunc("/users/{id}", h.getUser).Methods(http.MethodGet)

	sec.HandleFunc("/conversations", h.createConversation).Methods(http.MethodPost)
	sec.HandleFunc("/conversations", h.listConversations).Methods(http.MethodGet)
	sec.HandleFunc("/conversations/{id}", h.getConversation).Methods(http.MethodGet)
	sec.HandleFunc("/conversations/{id}/members", h.listMembers).Methods(http.MethodGet)
	sec.HandleFunc("/conversations/{id}/members", h.joinConversation).Methods(http.MethodPost)
	sec.HandleFunc("/conversations/{id}/members", h.leaveConversation).Methods(http.MethodDelete)
	sec.HandleFunc("/conversations/{id}/messages", h.listMessages).Methods(http.MethodGet)
	sec.HandleFunc("/conversations/{id}/messages", h.postMessage).Methods(http.MethodPost)
	sec.HandleFunc("/conversations/{id}/read", h.markRead).Methods(http.MethodPost)

	sec.HandleFunc("/online-users", h.onlineUsers).Methods(http.MethodGet)

	return cors(h.origins, withTicket(r))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.resp.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.resp.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

// writeStoreError maps storage errors to envelope responses.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.resp.writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrDuplicate):
		h.resp.writeError(w, r, http.StatusConflict, "already exists")
	case errors.Is(err, storage.ErrNotMember):
		h.resp.writeError(w, r, http.StatusConflict, "not a member of this conversation")
	case errors.Is(err, storage.ErrNotImplemented):
		h.resp.writeError(w, r, http.StatusNotImplemented, "not implemented")
	default:
		h.log.WithError(err).Error("request failed")
		h.resp.writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func pathInt64(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return v, err == nil
}

type tokenRequest struct {
	AppCode  string `json:"appCode" validate:"required"`
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string        `json:"accessToken"`
	ExpiresIn   int64         `json:"expiresIn"`
	User        chatuser.User `json:"user"`
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.dir.Authenticate(r.Context(), req.AppCode, req.Login, req.Password)
	if err != nil {
		if errors.Is(err, directory.ErrInvalidCredentials) {
			h.resp.writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.writeStoreError(w, r, err)
		return
	}

	token, err := h.validator.Issue(user.ID, user.DisplayName, string(user.Role), user.AppCode, h.jwtTTL)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	h.resp.writeResult(w, r, http.StatusOK, tokenResponse{
		AccessToken: token,
		ExpiresIn:   int64(h.jwtTTL.Seconds()),
		User:        user,
	})
}

type createApplicationRequest struct {
	Code string `json:"code" validate:"required,min=2,max=64"`
	Name string `json:"name" validate:"required,min=2,max=128"`
}

func (h *Handler) createApplication(w http.ResponseWriter, r *http.Request) {
	var req createApplicationRequest
	if !h.decode(w, r, &req) {
		return
	}
	app, err := h.dir.RegisterApplication(r.Context(), req.Code, req.Name)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeResult(w, r, http.StatusCreated, app)
}

func (h *Handler) listApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.dir.ListApplications(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeList(w, r, asItems(apps), nil)
}

func (h *Handler) getApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.dir.GetApplication(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeResult(w, r, http.StatusOK, app)
}

type createCompanyRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=128"`
	Document string `json:"document" validate:"max=64"`
}

func (h *Handler) createCompany(w http.ResponseWriter, r *http.Request) {
	var req createCompanyRequest
	if !h.decode(w, r, &req) {
		return
	}
	claims := requestClaims(r)
	created, err := h.dir.CreateCompany(r.Context(), company.Company{
		AppCode:  claims.AppCode,
		Name:     req.Name,
		Document: req.Document,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeResult(w, r, http.StatusCreated, created)
}

func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)
	companies, err := h.dir.ListCompanies(r.Context(), claims.AppCode)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeList(w, r, asItems(companies), nil)
}

type createUserRequest struct {
	Login       string `json:"login" validate:"required,min=2,max=128"`
	DisplayName string `json:"displayName" validate:"required,min=1,max=128"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	CompanyID   string `json:"companyId"`
	Role        string `json:"role" validate:"omitempty,oneof=member admin"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	claims := requestClaims(r)
	role := chatuser.Role(req.Role)
	if role == "" {
		role = chatuser.RoleMember
	}
	created, err := h.dir.CreateUser(r.Context(), chatuser.User{
		AppCode:     claims.AppCode,
		CompanyID:   req.CompanyID,
		Login:       req.Login,
		DisplayName: req.DisplayName,
		Role:        role,
	}, req.Password)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeResult(w, r, http.StatusCreated, created)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)
	f := chatuser.Filter{CompanyID: r.URL.Query().Get("companyId")}
	if role := r.URL.Query().Get("role"); role != "" {
		f.Role = chatuser.Role(role)
	}
	users, err := h.dir.ListUsers(r.Context(), claims.AppCode, f)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeList(w, r, asItems(users), nil)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)
	user, err := h.dir.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if user.AppCode != claims.AppCode {
		h.resp.writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	h.resp.writeResult(w, r, http.StatusOK, user)
}

type createConversationRequest struct {
	Topic string `json:"topic" validate:"required,min=1,max=256"`
	Kind  string `json:"kind" validate:"omitempty,oneof=direct group"`
}

func (h *Handler) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if !h.decode(w, r, &req) {
		return
	}
	claims := requestClaims(r)
	kind := conversation.Kind(req.Kind)
	if kind == "" {
		kind = conversation.KindGroup
	}
	created, err := h.convs.Create(r.Context(), conversation.Conversation{
		AppCode:   claims.AppCode,
		Topic:     req.Topic,
		Kind:      kind,
		CreatedBy: claims.UserID,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeResult(w, r, http.StatusCreated, created)
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)
	userID := claims.UserID
	if r.URL.Query().Get("all") == "true" {
		userID = ""
	}
	convs, err := h.convs.List(r.Context(), claims.AppCode, userID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeList(w, r, asItems(convs), nil)
}

func (h *Handler) getConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		h.resp.writeError(w, r, http.StatusBadRequest, "invalid conversation id")
		return
	}
	claims := requestClaims(r)
	conv, err := h.convs.Get(r.Context(), claims.AppCode, id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeResult(w, r, http.StatusOK, conv)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		h.resp.writeError(w, r, http.StatusBadRequest, "invalid conversation id")
		return
	}
	claims := requestClaims(r)
	members, err := h.convs.Members(r.Context(), claims.AppCode, id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeList(w, r, asItems(members), nil)
}

func (h *Handler) joinConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		h.resp.writeError(w, r, http.StatusBadRequest, "invalid conversation id")
		return
	}
	claims := requestClaims(r)
	m, err := h.convs.Join(r.Context(), claims.AppCode, id, claims.UserID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeResult(w, r, http.StatusCreated, m)
}

func (h *Handler) leaveConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		h.resp.writeError(w, r, http.StatusBadRequest, "invalid conversation id")
		return
	}
	claims := requestClaims(r)
	if err := h.convs.Leave(r.Context(), claims.AppCode, id, claims.UserID); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeResult(w, r, http.StatusOK, map[string]any{"left": true})
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		h.resp.writeError(w, r, http.StatusBadRequest, "invalid conversation id")
		return
	}
	claims := requestClaims(r)

	page := conversation.Page{}
	page.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	page.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	page = page.Normalize()

	msgs, err := h.convs.History(r.Context(), claims.AppCode, id, page)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeList(w, r, asItems(msgs), &Pagination{
		Limit:  page.Limit,
		Offset: page.Offset,
		Count:  len(msgs),
	})
}

type postMessageRequest struct {
	Text string `json:"text" validate:"required,min=1,max=8192"`
	Type string `json:"type" validate:"omitempty,oneof=text image file system"`
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		h.resp.writeError(w, r, http.StatusBadRequest, "invalid conversation id")
		return
	}
	var req postMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	claims := requestClaims(r)
	msgType := conversation.MessageType(req.Type)
	if msgType == "" {
		msgType = conversation.MessageTypeText
	}
	msg, err := h.convs.Send(r.Context(), claims.AppCode, conversation.Message{
		ConversationID: id,
		SenderID:       claims.UserID,
		Text:           req.Text,
		Type:           msgType,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeResult(w, r, http.StatusCreated, msg)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(r, "id")
	if !ok {
		h.resp.writeError(w, r, http.StatusBadRequest, "invalid conversation id")
		return
	}
	claims := requestClaims(r)
	marker, err := h.convs.MarkRead(r.Context(), claims.AppCode, id, claims.UserID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.resp.writeResult(w, r, http.StatusOK, marker)
}

func (h *Handler) onlineUsers(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)
	h.resp.writeList(w, r, asItems(h.hub.OnlineUsers(claims.AppCode)), nil)
}
