// Command chathub runs the multi-tenant chat service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relayline/chathub/internal/app"
	"github.com/relayline/chathub/internal/app/storage"
	"github.com/relayline/chathub/internal/app/storage/postgres"
	"github.com/relayline/chathub/internal/app/storage/rest"
	"github.com/relayline/chathub/internal/app/system"
	"github.com/relayline/chathub/internal/config"
	"github.com/relayline/chathub/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	log := logger.NewDefault("chathub")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("load configuration")
		os.Exit(1)
	}
	if *configPath != "" {
		if err := config.ApplyFile(cfg, *configPath); err != nil {
			log.WithError(err).Error("apply config file")
			os.Exit(1)
		}
	}

	opts, cleanup, err := buildStores(cfg, log)
	if err != nil {
		log.WithError(err).Error("initialize storage")
		os.Exit(1)
	}
	defer cleanup()

	application, err := app.New(cfg, opts...)
	if err != nil {
		log.WithError(err).Error("assemble application")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start background services")
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           application.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown incomplete")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("service shutdown incomplete")
	}
}

// buildStores selects the persistence backend from configuration: direct
// Postgres when a DSN is set, the hosted data API when configured, otherwise
// in-memory.
func buildStores(cfg *config.Config, log *logger.Logger) ([]app.Option, func(), error) {
	switch {
	case cfg.Database.DSN != "":
		store, err := postgres.Open(cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(store.DB()); err != nil {
			store.Close()
			return nil, nil, err
		}
		log.Info("using postgres storage")
		return []app.Option{
			app.WithStores(storesFor(store)),
			app.WithHealthCheck("postgres", system.HealthFunc(func(ctx context.Context) error {
				return store.DB().PingContext(ctx)
			})),
		}, func() { store.Close() }, nil

	case cfg.Database.DataAPIURL != "":
		client, err := rest.NewClient(rest.ClientConfig{
			URL:    cfg.Database.DataAPIURL,
			APIKey: cfg.Database.DataAPIKey,
		})
		if err != nil {
			return nil, nil, err
		}
		store := rest.NewStore(client)
		log.Info("using data API storage")
		return []app.Option{
			app.WithStores(storesFor(store)),
			app.WithHealthCheck("data-api", system.HealthFunc(store.Health)),
		}, func() {}, nil

	default:
		log.Warn("no database configured, state is in-memory only")
		return nil, func() {}, nil
	}
}

func storesFor(s interface {
	storage.ApplicationStore
	storage.CompanyStore
	storage.UserStore
	storage.ConversationStore
	storage.MessageStore
}) app.Stores {
	return app.Stores{
		Applications:  s,
		Companies:     s,
		Users:         s,
		Conversations: s,
		Messages:      s,
	}
}
