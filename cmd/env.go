package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prequal-cli/internal/model"
	"github.com/sells-group/prequal-cli/internal/monitoring"
	"github.com/sells-group/prequal-cli/internal/pipeline"
	"github.com/sells-group/prequal-cli/internal/resilience"
	"github.com/sells-group/prequal-cli/internal/store"
	"github.com/sells-group/prequal-cli/internal/webhook"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "prequal.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// env bundles the collaborators most commands need.
type env struct {
	Store     store.Store
	Attrs     *model.AttributeRegistry
	Registry  *pipeline.Registry
	Runner    *pipeline.Runner
	Deliverer *webhook.Deliverer
	Alerter   *monitoring.Alerter
	Retry     resilience.RetryConfig
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	attrs, err := loadAttributes(ctx, st)
	if err != nil {
		st.Close()
		return nil, err
	}

	registry := pipeline.DefaultRegistry()
	return &env{
		Store:     st,
		Attrs:     attrs,
		Registry:  registry,
		Runner:    pipeline.NewRunner(registry, cfg, st, attrs),
		Deliverer: webhook.NewDeliverer(st, cfg.Webhook),
		Alerter:   monitoring.NewAlerter(cfg.Monitoring),
		Retry:     resilience.FromSettings(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs, cfg.Retry.Multiplier),
	}, nil
}

func (e *env) Close() {
	e.Store.Close()
}

// loadAttributes reads the attribute catalogue, seeding the built-in one on
// first run.
func loadAttributes(ctx context.Context, st store.Store) (*model.AttributeRegistry, error) {
	attrs, err := st.ListAttributes(ctx)
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		attrs = model.DefaultAttributes()
		if err := st.SeedAttributes(ctx, attrs); err != nil {
			return nil, err
		}
	}
	return model.NewAttributeRegistry(attrs), nil
}
