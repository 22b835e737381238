package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/equity/config"
	"github.com/rustyeddy/equity/curve"
	"github.com/rustyeddy/equity/journal"
	"github.com/rustyeddy/equity/kvstore"
	"github.com/rustyeddy/equity/logging"
	"github.com/rustyeddy/equity/prices/yahoo"
	"github.com/rustyeddy/equity/snapshot"
)

// env is everything a command needs, opened from the config.
type env struct {
	cfg     *config.Config
	log     *zap.Logger
	journal *journal.SQLite
	store   *kvstore.SQLite
	builder *curve.Builder
}

func openEnv() (*env, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	j, err := journal.NewSQLite(cfg.Journal.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	store, err := kvstore.NewSQLite(cfg.Cache.DBPath, cfg.Cache.QuotaBytes)
	if err != nil {
		j.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	// Validate already parsed these.
	cal, _ := cfg.Calendar()
	delay, _ := cfg.Prices.BatchDelayDuration()
	timeout, _ := cfg.Prices.TimeoutDuration()

	cache := snapshot.New(store,
		snapshot.WithKey(cfg.Cache.Key),
		snapshot.WithMaxRetries(cfg.Cache.MaxRetries),
		snapshot.WithLogger(log.Named("snapshot")),
	)
	yc := yahoo.New(cfg.Prices.BaseURL, timeout, log)

	b := curve.NewBuilder(curve.Options{
		StartingBalance: cfg.Account.StartingBalance,
		Calendar:        cal,
		LookbackDays:    cfg.Prices.LookbackDays,
		BatchSize:       cfg.Prices.BatchSize,
		BatchDelay:      delay,
		Logger:          log,
	}, j, j, cache, yc, yc)

	return &env{cfg: cfg, log: log, journal: j, store: store, builder: b}, nil
}

func (e *env) Close() {
	_ = e.log.Sync()
	e.store.Close()
	e.journal.Close()
}

// withEnv opens the environment for the length of one command.
func withEnv(fn func(ctx context.Context, e *env) error) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(context.Background(), e)
}
