package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ops-bfa-go/internal/matching"
	"github.com/boddenberg/ops-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var revenueTracer = otel.Tracer("service/revenue")

// RevenueService attributes active sales to funnels.
type RevenueService struct {
	funnels port.FunnelStore
	sales   port.SalesStore
	cache   port.Cache[*domain.FunnelRevenue]
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewRevenueService(
	funnels port.FunnelStore,
	sales port.SalesStore,
	cache port.Cache[*domain.FunnelRevenue],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RevenueService {
	return &RevenueService{funnels: funnels, sales: sales, cache: cache, metrics: metrics, logger: logger}
}

func funnelKeyPrefix(funnelID string) string {
	return "funnel:" + funnelID + ":"
}

func revenueKey(funnelID string, window *domain.DateRange) string {
	if window == nil {
		return funnelKeyPrefix(funnelID) + "all"
	}
	return funnelKeyPrefix(funnelID) + window.String()
}

// FunnelRevenue returns the funnel's revenue for window (all time when nil)
// and, when a window is given, for the equally long window right before it.
func (s *RevenueService) FunnelRevenue(ctx context.Context, funnelID string, window *domain.DateRange) (*domain.FunnelRevenue, error) {
	ctx, span := revenueTracer.Start(ctx, "RevenueService.FunnelRevenue")
	defer span.End()
	span.SetAttributes(attribute.String("funnel.id", funnelID))

	if err := required("funnel_id", funnelID); err != nil {
		return nil, err
	}

	key := revenueKey(funnelID, window)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit("revenue")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("revenue")

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("funnel_revenue", time.Since(start))
	}()

	var (
		productIDs, productNames []string
		current, previous        []domain.Sale
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := s.funnels.ListFunnelProductIDs(gCtx, funnelID)
		if err != nil {
			return fmt.Errorf("funnel products: %w", err)
		}
		productIDs = ids
		return nil
	})
	g.Go(func() error {
		names, err := s.funnels.ListFunnelProductNames(gCtx, funnelID)
		if err != nil {
			return fmt.Errorf("funnel sales products: %w", err)
		}
		productNames = names
		return nil
	})
	g.Go(func() error {
		sales, err := s.sales.ListActiveSales(gCtx, window)
		if err != nil {
			return fmt.Errorf("sales: %w", err)
		}
		current = sales
		return nil
	})
	if window != nil {
		prev := window.Previous()
		g.Go(func() error {
			sales, err := s.sales.ListActiveSales(gCtx, &prev)
			if err != nil {
				return fmt.Errorf("previous sales: %w", err)
			}
			previous = sales
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("funnel revenue fetch failed",
			zap.String("funnel_id", funnelID),
			zap.Error(err),
		)
		return nil, err
	}

	m := matching.NewMatcher(productIDs, productNames)
	total, count := matching.Attribute(current, m)
	prevTotal, prevCount := matching.Attribute(previous, m)
	growth := domain.ComputeGrowth(total, prevTotal)

	rev := &domain.FunnelRevenue{
		FunnelID:      funnelID,
		Total:         total,
		Count:         count,
		PreviousTotal: prevTotal,
		PreviousCount: prevCount,
		GrowthPercent: growth.Percent(),
		Growth:        growth,
	}
	if window != nil {
		startDay, endDay := window.Start.Format("2006-01-02"), window.End.Format("2006-01-02")
		rev.Start, rev.End = &startDay, &endDay
	}

	s.cache.Set(key, rev)
	return rev, nil
}

// InvalidateFunnel drops every cached window of the funnel.
func (s *RevenueService) InvalidateFunnel(funnelID string) {
	s.cache.DeletePrefix(funnelKeyPrefix(funnelID))
}

// Links returns what the funnel is attributed from.
func (s *RevenueService) Links(ctx context.Context, funnelID string) (*domain.FunnelLinks, error) {
	ctx, span := revenueTracer.Start(ctx, "RevenueService.Links")
	defer span.End()

	var links domain.FunnelLinks
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		links.ProductIDs, err = s.funnels.ListFunnelProductIDs(gCtx, funnelID)
		return err
	})
	g.Go(func() (err error) {
		links.ProductNames, err = s.funnels.ListFunnelProductNames(gCtx, funnelID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &links, nil
}

func (s *RevenueService) LinkProduct(ctx context.Context, funnelID, productID string) error {
	ctx, span := revenueTracer.Start(ctx, "RevenueService.LinkProduct")
	defer span.End()

	if err := required("funnel_id", funnelID); err != nil {
		return err
	}
	if err := required("product_id", productID); err != nil {
		return err
	}
	if err := s.funnels.LinkProduct(ctx, funnelID, productID); err != nil {
		return err
	}
	s.InvalidateFunnel(funnelID)
	s.logger.Info("funnel product linked", zap.String("funnel_id", funnelID), zap.String("product_id", productID))
	return nil
}

func (s *RevenueService) LinkSalesProductName(ctx context.Context, funnelID, productName string) error {
	ctx, span := revenueTracer.Start(ctx, "RevenueService.LinkSalesProductName")
	defer span.End()

	if err := required("funnel_id", funnelID); err != nil {
		return err
	}
	if err := required("product_name", productName); err != nil {
		return err
	}
	if err := s.funnels.LinkSalesProductName(ctx, funnelID, productName); err != nil {
		return err
	}
	s.InvalidateFunnel(funnelID)
	s.logger.Info("funnel sales product linked", zap.String("funnel_id", funnelID), zap.String("product_name", productName))
	return nil
}

// MatchPreview shows the keywords each linked product name reduces to.
func (s *RevenueService) MatchPreview(ctx context.Context, funnelID string) ([]domain.MatchPreview, error) {
	ctx, span := revenueTracer.Start(ctx, "RevenueService.MatchPreview")
	defer span.End()

	names, err := s.funnels.ListFunnelProductNames(ctx, funnelID)
	if err != nil {
		return nil, err
	}
	return matching.Preview(names), nil
}
