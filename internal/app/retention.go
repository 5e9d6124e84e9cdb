package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/relayline/chathub/internal/app/storage"
	"github.com/relayline/chathub/internal/config"
	"github.com/relayline/chathub/internal/metrics"
	"github.com/relayline/chathub/pkg/logger"
)

// retentionSweep deletes messages older than the configured age on a cron
// schedule.
type retentionSweep struct {
	cfg     config.RetentionConfig
	msgs    storage.MessageStore
	metrics *metrics.Set
	log     *logger.Logger
	cron    *cron.Cron
}

func newRetentionSweep(cfg config.RetentionConfig, msgs storage.MessageStore, m *metrics.Set, log *logger.Logger) *retentionSweep {
	return &retentionSweep{cfg: cfg, msgs: msgs, metrics: m, log: log}
}

func (r *retentionSweep) Name() string { return "retention-sweep" }

func (r *retentionSweep) Start(ctx context.Context) error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.cfg.Schedule, r.sweep); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

func (r *retentionSweep) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	stopped := r.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	return nil
}

// Sweep runs one pass immediately. Exposed for manual runs and tests.
func (r *retentionSweep) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-r.cfg.MaxAge)
	start := time.Now()
	purged, err := r.msgs.PurgeMessagesBefore(ctx, cutoff)
	r.metrics.RetentionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, err
	}
	r.metrics.RetentionPurged.Add(float64(purged))
	return purged, nil
}

func (r *retentionSweep) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	purged, err := r.Sweep(ctx)
	if err != nil {
		r.log.WithError(err).Error("retention sweep failed")
		return
	}
	r.log.WithField("purged", purged).Info("retention sweep finished")
}
