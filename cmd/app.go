package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tinoosan/tillbook/internal/config"
	"github.com/tinoosan/tillbook/internal/docstore"
	httpapi "github.com/tinoosan/tillbook/internal/httpapi/v1"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/replication"
	"github.com/tinoosan/tillbook/internal/service/account"
	"github.com/tinoosan/tillbook/internal/service/eod"
	"github.com/tinoosan/tillbook/internal/service/inventory"
	"github.com/tinoosan/tillbook/internal/service/journal"
	"github.com/tinoosan/tillbook/internal/service/trade"
	"github.com/tinoosan/tillbook/internal/service/tradingday"
	"github.com/tinoosan/tillbook/internal/settings"
	"github.com/tinoosan/tillbook/internal/storage/memory"
	pgstore "github.com/tinoosan/tillbook/internal/storage/postgres"
	redisstore "github.com/tinoosan/tillbook/internal/storage/redis"
)

// app is the wired engine shared by every subcommand.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	store  docstore.ReadyStore
	closes []func()

	settings  settings.Provider
	journal   journal.Service
	inventory inventory.Service
	eod       *eod.Reconciler
	gate      *tradingday.Gate
	trade     *trade.Saga
	accounts  account.Service
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)
	a := &app{cfg: cfg, log: logger}

	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}

	// Writes go through the publisher when replication is on; the worker
	// applies remote documents to the local store directly.
	var store docstore.Store = a.store
	if cfg.ReplicationEnabled {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		a.closes = append(a.closes, func() { _ = client.Close() })
		store = replication.NewPublisher(a.store, client, cfg.ReplicationQueue, cfg.Origin(), logger)
		logger.Info("replication publishing", "queue", cfg.ReplicationQueue, "origin", cfg.Origin())
	}

	env, err := cfg.Settings()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("settings: %w", err)
	}
	a.settings = settings.NewStored(a.store, settings.Static{Settings: env}, cfg.SettingsTTL)

	loc := cfg.Location()
	a.journal = journal.New(store, a.settings, journal.Options{Logger: logger, Location: loc})
	a.inventory = inventory.New(store, inventory.Options{Logger: logger, Retry: cfg.Retry()})
	a.eod = eod.New(store, a.journal, a.settings, eod.Options{
		Logger:       logger,
		Location:     loc,
		OpeningFloat: cfg.Float(),
		Retry:        cfg.Retry(),
	})
	a.gate = tradingday.New(a.eod, tradingday.Policy{OnLookupFailure: tradingday.ParsePolicy(cfg.TradingOnLookupFailure)}, logger)
	a.trade = trade.New(store, a.inventory, a.journal, a.gate, a.settings, trade.Options{
		Logger: logger,
		Strict: cfg.TradingStrict,
		Retry:  cfg.Retry(),
		Days:   a.eod,
	})
	a.accounts = account.New(a.journal)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.StoreBackend {
	case "postgres":
		pg, err := pgstore.Open(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.closes = append(a.closes, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
		a.store = pg
	case "redis":
		rs, err := redisstore.Open(ctx, a.cfg.RedisAddr, a.cfg.RedisPrefix)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.closes = append(a.closes, func() { _ = rs.Close() })
		a.store = rs
	default:
		a.store = memory.New()
	}
	a.log.Info("storage backend", "backend", a.cfg.StoreBackend)
	return nil
}

func (a *app) handler() *httpapi.Server {
	return httpapi.New(httpapi.Deps{
		Journal:    a.journal,
		Settings:   a.settings,
		Accounts:   a.accounts,
		Inventory:  a.inventory,
		EOD:        a.eod,
		Gate:       a.gate,
		Trade:      a.trade,
		Ready:      a.store,
		AuthSecret: a.cfg.AuthSecret,
		Location:   a.cfg.Location(),
	}, a.log)
}

func (a *app) close() {
	for i := len(a.closes) - 1; i >= 0; i-- {
		a.closes[i]()
	}
}

// dayRange turns optional YYYY-MM-DD flags into shop-local bounds.
func dayRange(start, end string, loc *time.Location) (from, to time.Time, err error) {
	if start != "" {
		if from, _, err = ledger.DayBounds(start, loc); err != nil {
			return from, to, fmt.Errorf("start: %w", err)
		}
	}
	if end != "" {
		var next time.Time
		if _, next, err = ledger.DayBounds(end, loc); err != nil {
			return from, to, fmt.Errorf("end: %w", err)
		}
		to = next.Add(-time.Nanosecond)
	}
	return from, to, nil
}
