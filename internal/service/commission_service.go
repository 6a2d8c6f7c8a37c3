package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/commission"
	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ops-bfa-go/internal/port"
	"github.com/boddenberg/ops-bfa-go/internal/spreadsheet"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var commissionTracer = otel.Tracer("service/commission")

// CommissionService generates and administers seller commissions and
// serves the per-sale commission view.
type CommissionService struct {
	sales          port.SalesStore
	commissions    port.CommissionStore
	sdr            port.SDRStore
	views          port.Cache[*domain.SaleCommissions]
	defaultPercent float64
	metrics        *observability.Metrics
	logger         *zap.Logger
	now            func() time.Time
}

func NewCommissionService(
	sales port.SalesStore,
	commissions port.CommissionStore,
	sdr port.SDRStore,
	views port.Cache[*domain.SaleCommissions],
	defaultPercent float64,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CommissionService {
	return &CommissionService{
		sales:          sales,
		commissions:    commissions,
		sdr:            sdr,
		views:          views,
		defaultPercent: defaultPercent,
		metrics:        metrics,
		logger:         logger,
		now:            time.Now,
	}
}

// AssignSeller sets the sale's seller and regenerates one commission per
// installment. Running it again with the same input yields the same rows.
func (s *CommissionService) AssignSeller(ctx context.Context, saleID, sellerID string, percentOverride *float64) ([]domain.Commission, error) {
	ctx, span := commissionTracer.Start(ctx, "CommissionService.AssignSeller")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", saleID), attribute.String("seller.id", sellerID))

	if err := required("sale_id", saleID); err != nil {
		return nil, err
	}
	if err := required("seller_id", sellerID); err != nil {
		return nil, err
	}
	if percentOverride != nil {
		if err := validPercent("commission_percent", *percentOverride); err != nil {
			return nil, err
		}
	}

	sale, err := s.sales.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	installments, err := s.sales.ListInstallments(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("installments: %w", err)
	}
	if len(installments) == 0 {
		return nil, &domain.ErrPrecondition{Message: fmt.Sprintf("sale %s has no installments", saleID)}
	}

	percent := commission.ResolvePercent(percentOverride, sale.CommissionPercent, s.defaultPercent)
	rows := commission.ForSeller(installments, sellerID, percent, s.now())

	if err := s.commissions.ReplaceSaleCommissions(ctx, saleID, sellerID, rows); err != nil {
		s.logger.Error("commission regeneration failed",
			zap.String("sale_id", saleID),
			zap.String("seller_id", sellerID),
			zap.Error(err),
		)
		return nil, err
	}

	s.InvalidateSale(saleID)
	s.metrics.AddCommissions("seller", len(rows))
	s.logger.Info("seller commissions generated",
		zap.String("sale_id", saleID),
		zap.String("seller_id", sellerID),
		zap.Float64("percent", percent),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// SaleCommissions returns the seller and SDR commissions of a sale's
// installments.
func (s *CommissionService) SaleCommissions(ctx context.Context, saleID string) (*domain.SaleCommissions, error) {
	ctx, span := commissionTracer.Start(ctx, "CommissionService.SaleCommissions")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", saleID))

	key := saleViewKey(saleID)
	if cached, ok := s.views.Get(key); ok {
		s.metrics.IncrCacheHit("sale_commissions")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("sale_commissions")

	installments, err := s.sales.ListInstallments(ctx, saleID)
	if err != nil {
		return nil, err
	}
	ids := domain.InstallmentIDs(installments)

	view := &domain.SaleCommissions{SaleID: saleID}
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		view.Seller, err = s.commissions.ListCommissions(gCtx, domain.CommissionFilter{InstallmentIDs: ids})
		return err
	})
	g.Go(func() (err error) {
		view.SDR, err = s.sdr.ListSDRCommissions(gCtx, domain.SDRCommissionFilter{InstallmentIDs: ids})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.views.Set(key, view)
	return view, nil
}

// InvalidateSale drops the cached commission view of a sale.
func (s *CommissionService) InvalidateSale(saleID string) {
	s.views.Delete(saleViewKey(saleID))
}

// ListCommissions lists seller commissions. A non-empty saleID restricts
// the listing to that sale's installments.
func (s *CommissionService) ListCommissions(ctx context.Context, saleID string, filter domain.CommissionFilter) ([]domain.Commission, error) {
	ctx, span := commissionTracer.Start(ctx, "CommissionService.ListCommissions")
	defer span.End()

	if saleID != "" {
		installments, err := s.sales.ListInstallments(ctx, saleID)
		if err != nil {
			return nil, err
		}
		filter.InstallmentIDs = domain.InstallmentIDs(installments)
	}
	if filter.CompetenceMonth != nil {
		m := commission.CompetenceMonth(*filter.CompetenceMonth)
		filter.CompetenceMonth = &m
	}
	return s.commissions.ListCommissions(ctx, filter)
}

// MarkInstallmentPaid settles an installment and releases its pending
// seller and SDR commissions.
func (s *CommissionService) MarkInstallmentPaid(ctx context.Context, installmentID string, paidAt time.Time) error {
	ctx, span := commissionTracer.Start(ctx, "CommissionService.MarkInstallmentPaid")
	defer span.End()
	span.SetAttributes(attribute.String("installment.id", installmentID))

	if err := required("installment_id", installmentID); err != nil {
		return err
	}
	inst, err := s.sales.GetInstallment(ctx, installmentID)
	if err != nil {
		return err
	}
	if inst.Status == domain.InstallmentCancelled {
		return &domain.ErrConflict{Message: fmt.Sprintf("installment %s is cancelled", installmentID)}
	}
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	if err := s.sales.MarkInstallmentPaid(ctx, installmentID, paidAt); err != nil {
		return err
	}
	s.InvalidateSale(inst.SaleID)
	s.logger.Info("installment paid",
		zap.String("installment_id", installmentID),
		zap.String("sale_id", inst.SaleID),
	)
	return nil
}

// SetCommissionStatus moves a commission to status. Cancelled is terminal;
// released stamps released_at.
func (s *CommissionService) SetCommissionStatus(ctx context.Context, commissionID, status string) (*domain.Commission, error) {
	ctx, span := commissionTracer.Start(ctx, "CommissionService.SetCommissionStatus")
	defer span.End()
	span.SetAttributes(attribute.String("commission.id", commissionID), attribute.String("status", status))

	target, err := domain.ParseCommissionStatus(status)
	if err != nil {
		return nil, err
	}
	c, err := s.commissions.GetCommission(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	if c.Status == target {
		return c, nil
	}
	if c.Status == domain.CommissionCancelled {
		return nil, &domain.ErrConflict{Message: fmt.Sprintf("commission %s is cancelled", commissionID)}
	}

	var releasedAt *time.Time
	if target == domain.CommissionReleased {
		now := s.now()
		releasedAt = &now
	}
	if err := s.commissions.UpdateCommissionStatus(ctx, commissionID, target, releasedAt); err != nil {
		return nil, err
	}

	if inst, err := s.sales.GetInstallment(ctx, c.InstallmentID); err == nil {
		s.InvalidateSale(inst.SaleID)
	} else {
		s.logger.Warn("sale view not invalidated", zap.String("commission_id", commissionID), zap.Error(err))
	}

	s.logger.Info("commission status changed",
		zap.String("commission_id", commissionID),
		zap.String("from", string(c.Status)),
		zap.String("to", string(target)),
	)
	c.Status = target
	c.ReleasedAt = releasedAt
	return c, nil
}

// Statement totals a seller's commissions for the competence month of month.
func (s *CommissionService) Statement(ctx context.Context, sellerID string, month time.Time) (*domain.CommissionStatement, error) {
	ctx, span := commissionTracer.Start(ctx, "CommissionService.Statement")
	defer span.End()

	if err := required("seller_id", sellerID); err != nil {
		return nil, err
	}
	competence := commission.CompetenceMonth(month)
	rows, err := s.commissions.ListCommissions(ctx, domain.CommissionFilter{
		SellerID:        sellerID,
		CompetenceMonth: &competence,
	})
	if err != nil {
		return nil, err
	}
	return commission.Statement(sellerID, competence, rows), nil
}

// ExportStatement writes the statement as an XLSX workbook.
func (s *CommissionService) ExportStatement(ctx context.Context, w io.Writer, sellerID string, month time.Time) error {
	st, err := s.Statement(ctx, sellerID, month)
	if err != nil {
		return err
	}
	return spreadsheet.WriteStatement(w, st)
}
