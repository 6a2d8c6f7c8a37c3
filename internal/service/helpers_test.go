package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/infra/cache"
	"github.com/boddenberg/ops-bfa-go/internal/infra/memstore"
	"github.com/boddenberg/ops-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ops-bfa-go/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func pct(v float64) *float64 { return &v }

func newCache[T any](t *testing.T) *cache.InMemory[T] {
	t.Helper()
	c := cache.New[T](time.Minute)
	t.Cleanup(c.Close)
	return c
}

type fakeSource struct {
	rows []map[string]string
	err  error
}

func (f *fakeSource) FetchRows(_ context.Context, _ string) ([]map[string]string, error) {
	return f.rows, f.err
}

type services struct {
	store       *memstore.Store
	source      *fakeSource
	metrics     *observability.Metrics
	revenue     *service.RevenueService
	commissions *service.CommissionService
	sdr         *service.SDRService
	leads       *service.LeadService
}

func newServices(t *testing.T) *services {
	t.Helper()
	store := memstore.New()
	source := &fakeSource{}
	metrics := observability.NewMetrics()
	logger := zap.NewNop()
	views := newCache[*domain.SaleCommissions](t)

	return &services{
		store:       store,
		source:      source,
		metrics:     metrics,
		revenue:     service.NewRevenueService(store, store, newCache[*domain.FunnelRevenue](t), metrics, logger),
		commissions: service.NewCommissionService(store, store, store, views, domain.DefaultCommissionPercent, metrics, logger),
		sdr:         service.NewSDRService(store, store, views, domain.DefaultSDRPercent, metrics, logger),
		leads:       service.NewLeadService(store, source, 4, 0, metrics, logger),
	}
}

func (s *services) leadsOf(t *testing.T, sessionID string) []domain.StrategicLead {
	t.Helper()
	leads, err := s.store.ListLeads(context.Background(), sessionID)
	require.NoError(t, err)
	return leads
}
