package main

import (
	"context"
	"net/http"

	"github.com/boddenberg/ops-bfa-go/internal/config"
	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/infra/cache"
	"github.com/boddenberg/ops-bfa-go/internal/infra/client"
	"github.com/boddenberg/ops-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ops-bfa-go/internal/infra/postgres"
	"github.com/boddenberg/ops-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/ops-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/ops-bfa-go/internal/port"
	"github.com/boddenberg/ops-bfa-go/internal/service"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// app holds the wired services and the resources to release on exit.
type app struct {
	store       port.Store
	metrics     *observability.Metrics
	revenue     *service.RevenueService
	commissions *service.CommissionService
	sdr         *service.SDRService
	leads       *service.LeadService

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires the store driver, cache backend and services from cfg.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{metrics: observability.NewMetrics()}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Store ---
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		logger.Info("using Postgres as data backend")
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		store := postgres.NewStore(pool, logger)
		a.store = store
		a.closers = append(a.closers, store.Close)
	default:
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		a.store = supabase.NewClient(httpClient, cfg.SupabaseURL, cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"), resilienceCfg, logger)
	}

	// --- Cache ---
	var (
		revenueCache port.Cache[*domain.FunnelRevenue]
		views        port.Cache[*domain.SaleCommissions]
	)
	switch cfg.CacheBackend {
	case config.CacheRedis:
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			a.Close()
			return nil, eris.Wrap(err, "connect redis")
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		revenueCache = cache.NewRedis[*domain.FunnelRevenue](rdb, "revenue", cfg.CacheTTL, logger)
		views = cache.NewRedis[*domain.SaleCommissions](rdb, "sale_commissions", cfg.CacheTTL, logger)
		logger.Info("using Redis cache", zap.String("addr", cfg.RedisAddr))
	default:
		mem := cache.New[*domain.FunnelRevenue](cfg.CacheTTL)
		memViews := cache.New[*domain.SaleCommissions](cfg.CacheTTL)
		a.closers = append(a.closers, mem.Close, memViews.Close)
		revenueCache, views = mem, memViews
	}

	// --- Lead source ---
	var source port.LeadSource
	if cfg.LeadSourceURL != "" {
		source = client.NewLeadSourceClient(httpClient, cfg.LeadSourceURL, cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("lead-source"), resilienceCfg)
	} else {
		logger.Warn("lead source: LEAD_SOURCE_URL not set, sync unavailable")
	}

	// --- Services ---
	a.revenue = service.NewRevenueService(a.store, a.store, revenueCache, a.metrics, logger)
	a.commissions = service.NewCommissionService(a.store, a.store, a.store, views, cfg.DefaultCommissionPercent, a.metrics, logger)
	a.sdr = service.NewSDRService(a.store, a.store, views, cfg.DefaultSDRPercent, a.metrics, logger)
	a.leads = service.NewLeadService(a.store, source, cfg.MaxConcurrency, cfg.RecalcRatePerSecond, a.metrics, logger)

	return a, nil
}
