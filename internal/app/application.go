// Package app assembles the service: stores, services, realtime hub, REST
// surface, and lifecycle management.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/relayline/chathub/internal/app/services/conversations"
	"github.com/relayline/chathub/internal/app/services/directory"
	"github.com/relayline/chathub/internal/app/storage"
	"github.com/relayline/chathub/internal/app/storage/memory"
	"github.com/relayline/chathub/internal/app/system"
	"github.com/relayline/chathub/internal/auth"
	"github.com/relayline/chathub/internal/config"
	"github.com/relayline/chathub/internal/httpapi"
	"github.com/relayline/chathub/internal/hub"
	"github.com/relayline/chathub/internal/hub/bridge"
	"github.com/relayline/chathub/internal/metrics"
	"github.com/relayline/chathub/pkg/logger"
)

// Stores groups the persistence interfaces. Zero-value fields fall back to a
// shared in-memory store.
type Stores struct {
	Applications  storage.ApplicationStore
	Companies     storage.CompanyStore
	Users         storage.UserStore
	Conversations storage.ConversationStore
	Messages      storage.MessageStore
	Webhooks      storage.WebhookStore
}

func (s *Stores) applyDefaults() {
	var mem *memory.Store
	fallback := func() *memory.Store {
		if mem == nil {
			mem = memory.New()
		}
		return mem
	}
	if s.Applications == nil {
		s.Applications = fallback()
	}
	if s.Companies == nil {
		s.Companies = fallback()
	}
	if s.Users == nil {
		s.Users = fallback()
	}
	if s.Conversations == nil {
		s.Conversations = fallback()
	}
	if s.Messages == nil {
		s.Messages = fallback()
	}
	if s.Webhooks == nil {
		s.Webhooks = storage.UnimplementedWebhookStore{}
	}
}

// Application is the assembled service.
type Application struct {
	Config    *config.Config
	Stores    Stores
	Validator *auth.Validator
	Directory *directory.Service
	Convs     *conversations.Service
	Hub       *hub.Hub
	Metrics   *metrics.Set
	Manager   *system.Manager

	log       *logger.Logger
	startedAt time.Time
	checks    map[string]system.HealthChecker
}

// Option customizes the assembly.
type Option func(*Application)

// WithStores overrides the default in-memory stores.
func WithStores(s Stores) Option {
	return func(a *Application) { a.Stores = s }
}

// WithLogger overrides the default logger.
func WithLogger(l *logger.Logger) Option {
	return func(a *Application) { a.log = l }
}

// WithHealthCheck registers a dependency check on /healthz.
func WithHealthCheck(name string, c system.HealthChecker) Option {
	return func(a *Application) { a.checks[name] = c }
}

// New assembles an application from configuration.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Application{
		Config:    cfg,
		startedAt: time.Now(),
		checks:    make(map[string]system.HealthChecker),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.NewDefault(cfg.Server.Name)
	}
	a.Stores.applyDefaults()

	a.Validator = auth.NewValidator([]byte(cfg.JWT.SigningKey), cfg.JWT.Issuer, cfg.JWT.Audience)
	a.Metrics = metrics.NewSet("chathub")
	a.Directory = directory.New(a.Stores.Applications, a.Stores.Companies, a.Stores.Users, a.log.WithField("component", "directory"))
	a.Convs = conversations.New(a.Stores.Conversations, a.Stores.Messages, a.log.WithField("component", "conversations"))
	a.Hub = hub.New(a.Validator, a.Stores.Applications, a.Convs, a.Metrics, a.log.WithField("component", "hub"), cfg.Hub, cfg.Server.AllowedOrigins)

	a.Manager = system.NewManager(a.log.WithField("component", "system"))

	if cfg.Redis.Addr != "" {
		b := bridge.NewRedis(cfg.Redis.Addr, cfg.Redis.Channel, a.Hub, a.log.WithField("component", "bridge"))
		a.Hub.SetBridge(b)
		a.Manager.Register(b)
	}

	if cfg.Retention.MaxAge > 0 {
		a.Manager.Register(newRetentionSweep(cfg.Retention, a.Stores.Messages, a.Metrics, a.log.WithField("component", "retention")))
	}

	return a, nil
}

// Handler builds the full HTTP surface.
func (a *Application) Handler() http.Handler {
	api := httpapi.NewHandler(httpapi.Config{
		ServerName:     a.Config.Server.Name,
		Validator:      a.Validator,
		Directory:      a.Directory,
		Conversations:  a.Convs,
		Hub:            a.Hub,
		TokenTTL:       a.Config.JWT.TTL,
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		Logger:         a.log.WithField("component", "httpapi"),
	})

	mux := http.NewServeMux()
	mux.Handle("/chathub", a.Metrics.InstrumentHandler("chathub", a.Hub))
	mux.Handle("/api/", a.Metrics.InstrumentHandler("api", api.Router()))
	mux.Handle("/healthz", system.HealthHandler(a.startedAt, a.checks))
	mux.Handle("/metrics", a.Metrics.Handler())
	return mux
}

// Start launches the managed background services.
func (a *Application) Start(ctx context.Context) error {
	return a.Manager.Start(ctx)
}

// Stop shuts the managed services down.
func (a *Application) Stop(ctx context.Context) error {
	return a.Manager.Stop(ctx)
}
