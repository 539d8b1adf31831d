// Package app wires the decision components from a config.Config. Both the
// HTTP server and the CLI build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"

	"github.com/liamcoop/irrigation/advisor"
	"github.com/liamcoop/irrigation/classifier"
	"github.com/liamcoop/irrigation/config"
	"github.com/liamcoop/irrigation/crops"
	"github.com/liamcoop/irrigation/internal/logger"
	"github.com/liamcoop/irrigation/metrics"
	"github.com/liamcoop/irrigation/notify"
	"github.com/liamcoop/irrigation/rulesets"
)

type App struct {
	Config  config.Config
	Catalog *crops.Catalog
	Rules   *rulesets.Manager
	Model   *classifier.Provider
	Advisor *advisor.Advisor
	Metrics *metrics.Recorder

	// DB is nil with the in-memory rule store
	DB *sql.DB

	publisher notify.Publisher
}

// New builds every component. Nothing is trained yet; the classifier fits
// on first use or when Model.Warm is called.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{
		Config:    cfg,
		Catalog:   crops.Default(),
		Metrics:   metrics.New(),
		publisher: notify.NopPublisher{},
	}

	defs, err := ruleDefinitions(cfg.Rules.File)
	if err != nil {
		return nil, err
	}

	stores := rulesets.MemoryStores()
	if cfg.Rules.Store == config.StorePostgres {
		a.DB, err = OpenDB(ctx, cfg.Rules.DatabaseURL)
		if err != nil {
			return nil, err
		}
		stores = rulesets.PostgresStores(a.DB, cfg.Breaker())
	}

	a.Rules, err = rulesets.NewDefaultManager(stores, defs)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load rule sets: %w", err)
	}
	logger.Info("rule sets loaded", "sets", a.Rules.List(), "store", cfg.Rules.Store)

	groups := a.Catalog.Groups()
	a.Model = classifier.NewProvider(cfg.Model, a.Catalog.Size(),
		rulesets.NewLabelEngine(a.Rules, groups),
		classifier.OnFit(func(m classifier.Metadata) { a.Metrics.ModelFit(m.FitDuration) }),
	)

	if cfg.MQTTEnabled() {
		client, err := notify.DialMQTT(ctx, cfg.MQTT)
		if err != nil {
			// Events are optional; decisions keep working without a broker
			logger.Warn("decision events disabled", "error", err)
		} else {
			a.publisher = notify.NewMQTTPublisher(client, cfg.MQTT)
		}
	}

	a.Advisor = advisor.New(a.Catalog, rulesets.NewRiskClassifier(a.Rules, groups), a.Model,
		advisor.WithPublisher(a.publisher),
		advisor.WithMetrics(a.Metrics),
		advisor.WithDefaultLanguage(cfg.DefaultLang),
	)
	return a, nil
}

func ruleDefinitions(path string) ([]rulesets.Definition, error) {
	if path == "" {
		return rulesets.Defaults()
	}
	defs, err := rulesets.LoadFile(path)
	if err != nil {
		return nil, err
	}
	logger.Info("rule sets read from file", "path", path, "sets", len(defs))
	return defs, nil
}

// OpenDB opens the Postgres rule database and pings it with exponential
// backoff until ctx is done
func OpenDB(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 8), ctx)
	err = backoff.RetryNotify(func() error {
		return db.PingContext(ctx)
	}, bo, func(err error, next time.Duration) {
		logger.Warn("database not ready", "error", err, "retryIn", next.String())
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Publisher returns the decision event publisher in use
func (a *App) Publisher() notify.Publisher { return a.publisher }

// Close releases the broker connection and the database
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}
}
