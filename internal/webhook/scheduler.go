package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prequal-cli/internal/config"
	"github.com/sells-group/prequal-cli/internal/model"
	"github.com/sells-group/prequal-cli/internal/monitoring"
	"github.com/sells-group/prequal-cli/internal/store"
)

const (
	defaultRetrySchedule  = "*/10 * * * *"
	defaultMaxAutoRetries = 6
	retryBatchSize        = 50
)

// Scheduler periodically re-drives failed webhook syncs. Each run picks up
// applications stuck in the failed state, resets them and redelivers.
// Automated retries stop after MaxAutoRetries per application; beyond that an
// operator alert fires and the sync waits for a manual `prequal sync` run,
// which drives the deliverer directly and is not subject to this budget.
// The attempt counter lives in worker memory, so a worker restart grants a
// fresh automated budget.
type Scheduler struct {
	store     store.Store
	deliverer *Deliverer
	alerter   *monitoring.Alerter
	cfg       config.WebhookConfig
	runner    *cron.Cron

	mu       sync.Mutex
	attempts map[string]int
}

// NewScheduler creates a Scheduler. The alerter may be nil.
func NewScheduler(st store.Store, deliverer *Deliverer, alerter *monitoring.Alerter, cfg config.WebhookConfig) *Scheduler {
	return &Scheduler{
		store:     st,
		deliverer: deliverer,
		alerter:   alerter,
		cfg:       cfg,
		runner: cron.New(
			cron.WithChain(
				cron.SkipIfStillRunning(cron.DefaultLogger),
				cron.Recover(cron.DefaultLogger),
			),
		),
		attempts: make(map[string]int),
	}
}

// Start registers the retry job and starts the cron runner. Non-blocking.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := s.cfg.RetrySchedule
	if spec == "" {
		spec = defaultRetrySchedule
	}
	if _, err := s.runner.AddFunc(spec, func() { s.RetryFailed(ctx) }); err != nil {
		return eris.Wrapf(err, "webhook: add retry job for spec %q", spec)
	}
	s.runner.Start()
	zap.L().Info("webhook: retry scheduler started", zap.String("schedule", spec))
	return nil
}

// Stop shuts the cron runner down, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	done := s.runner.Stop()
	select {
	case <-done.Done():
	case <-time.After(15 * time.Second):
		zap.L().Warn("webhook: scheduler shutdown timed out")
	}
}

// RetryFailed runs one retry sweep. Exposed for the manual sync command.
func (s *Scheduler) RetryFailed(ctx context.Context) {
	ids, err := s.store.ListSyncsInState(ctx, model.SyncFailed, retryBatchSize)
	if err != nil {
		zap.L().Error("webhook: list failed syncs", zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}
	zap.L().Info("webhook: retrying failed syncs", zap.Int("count", len(ids)))

	maxRetries := s.cfg.MaxAutoRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxAutoRetries
	}

	for _, id := range ids {
		attempt := s.bumpAttempt(id)
		if attempt > maxRetries {
			continue
		}

		err := s.deliverer.Sync(ctx, id)
		if err == nil {
			s.clearAttempt(id)
			continue
		}
		zap.L().Warn("webhook: retry failed",
			zap.String("application_id", id),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == maxRetries || !Retryable(err) {
			if s.alerter != nil {
				s.alerter.SyncExhausted(ctx, id, integratorNames(s.cfg), attempt, err)
			}
		}
	}
}

func (s *Scheduler) bumpAttempt(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[id]++
	return s.attempts[id]
}

func (s *Scheduler) clearAttempt(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, id)
}

func integratorNames(cfg config.WebhookConfig) string {
	names := ""
	for name := range cfg.Integrators {
		if names != "" {
			names += ","
		}
		names += name
	}
	return names
}
