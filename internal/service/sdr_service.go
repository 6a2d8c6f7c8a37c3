package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/commission"
	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ops-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var sdrTracer = otel.Tracer("service/sdr")

// SDRService runs the SDR assignment approval workflow:
// pending → approved (commissions generated) or pending → rejected.
type SDRService struct {
	sales          port.SalesStore
	store          port.SDRStore
	views          port.Cache[*domain.SaleCommissions]
	defaultPercent float64
	metrics        *observability.Metrics
	logger         *zap.Logger
	now            func() time.Time
}

func NewSDRService(
	sales port.SalesStore,
	store port.SDRStore,
	views port.Cache[*domain.SaleCommissions],
	defaultPercent float64,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SDRService {
	return &SDRService{
		sales:          sales,
		store:          store,
		views:          views,
		defaultPercent: defaultPercent,
		metrics:        metrics,
		logger:         logger,
		now:            time.Now,
	}
}

// Create registers a pending assignment. A sale that already has one
// yields *domain.ErrAlreadyAssigned.
func (s *SDRService) Create(ctx context.Context, req domain.SDRAssignmentRequest) (*domain.SDRAssignment, error) {
	ctx, span := sdrTracer.Start(ctx, "SDRService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", req.SaleID), attribute.String("sdr.id", req.SDRID))

	for _, f := range []struct{ name, value string }{
		{"sale_id", req.SaleID},
		{"sdr_id", req.SDRID},
		{"proof_link", req.ProofLink},
	} {
		if err := required(f.name, f.value); err != nil {
			return nil, err
		}
	}

	percent := s.defaultPercent
	if req.CommissionPercent != nil {
		percent = *req.CommissionPercent
	}
	if err := validPercent("commission_percent", percent); err != nil {
		return nil, err
	}

	if _, err := s.sales.GetSale(ctx, req.SaleID); err != nil {
		return nil, err
	}

	a := &domain.SDRAssignment{
		SaleID:            req.SaleID,
		SDRID:             req.SDRID,
		ProofLink:         strings.TrimSpace(req.ProofLink),
		CommissionPercent: percent,
		Status:            domain.SDRPending,
	}
	if req.CreatedBy != "" {
		createdBy := req.CreatedBy
		a.CreatedBy = &createdBy
	}

	created, err := s.store.CreateSDRAssignment(ctx, a)
	if err != nil {
		return nil, err
	}
	s.metrics.IncrSDRTransition("created")
	s.logger.Info("sdr assignment created",
		zap.String("assignment_id", created.ID),
		zap.String("sale_id", created.SaleID),
		zap.String("sdr_id", created.SDRID),
	)
	return created, nil
}

// Approve stamps the approver and creates one SDR commission per
// installment of the sale, ordered by installment number.
func (s *SDRService) Approve(ctx context.Context, assignmentID, approverID string) (*domain.ApprovalResult, error) {
	ctx, span := sdrTracer.Start(ctx, "SDRService.Approve")
	defer span.End()
	span.SetAttributes(attribute.String("sdr_assignment.id", assignmentID))

	if err := required("approved_by", approverID); err != nil {
		return nil, err
	}
	a, err := s.store.GetSDRAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a.Status != domain.SDRPending {
		return nil, &domain.ErrConflict{Message: fmt.Sprintf("sdr assignment %s is %s", assignmentID, a.Status)}
	}

	installments, err := s.sales.ListInstallments(ctx, a.SaleID)
	if err != nil {
		return nil, fmt.Errorf("installments: %w", err)
	}

	now := s.now()
	rows := commission.ForSDR(*a, installments, now)
	created, err := s.store.ApproveSDRAssignment(ctx, assignmentID, approverID, now, rows)
	if err != nil {
		s.logger.Error("sdr approval failed",
			zap.String("assignment_id", assignmentID),
			zap.Error(err),
		)
		return nil, err
	}

	s.views.Delete(saleViewKey(a.SaleID))
	s.metrics.IncrSDRTransition("approved")
	s.metrics.AddCommissions("sdr", created)
	s.logger.Info("sdr assignment approved",
		zap.String("assignment_id", assignmentID),
		zap.String("approved_by", approverID),
		zap.Int("commissions", created),
	)
	return &domain.ApprovalResult{AssignmentID: assignmentID, CommissionsCreated: created}, nil
}

// Reject closes a pending assignment with a reason. No commissions are created.
func (s *SDRService) Reject(ctx context.Context, assignmentID, reason string) error {
	ctx, span := sdrTracer.Start(ctx, "SDRService.Reject")
	defer span.End()
	span.SetAttributes(attribute.String("sdr_assignment.id", assignmentID))

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return &domain.ErrValidation{Field: "reason", Message: "required"}
	}
	if err := s.store.RejectSDRAssignment(ctx, assignmentID, reason); err != nil {
		return err
	}
	s.metrics.IncrSDRTransition("rejected")
	s.logger.Info("sdr assignment rejected", zap.String("assignment_id", assignmentID))
	return nil
}

// Delete removes a pending assignment. Approved and rejected assignments
// are left untouched and 0 is returned.
func (s *SDRService) Delete(ctx context.Context, assignmentID string) (int64, error) {
	ctx, span := sdrTracer.Start(ctx, "SDRService.Delete")
	defer span.End()

	n, err := s.store.DeletePendingSDRAssignment(ctx, assignmentID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.IncrSDRTransition("deleted")
		s.logger.Info("sdr assignment deleted", zap.String("assignment_id", assignmentID))
	}
	return n, nil
}

func (s *SDRService) List(ctx context.Context, filter domain.SDRAssignmentFilter) ([]domain.SDRAssignment, error) {
	ctx, span := sdrTracer.Start(ctx, "SDRService.List")
	defer span.End()

	switch filter.Status {
	case "", domain.SDRPending, domain.SDRApproved, domain.SDRRejected:
	default:
		return nil, &domain.ErrValidation{Field: "status", Message: fmt.Sprintf("unknown assignment status %q", filter.Status)}
	}
	return s.store.ListSDRAssignments(ctx, filter)
}

func (s *SDRService) ListCommissions(ctx context.Context, filter domain.SDRCommissionFilter) ([]domain.SDRCommission, error) {
	ctx, span := sdrTracer.Start(ctx, "SDRService.ListCommissions")
	defer span.End()

	if filter.CompetenceMonth != nil {
		m := commission.CompetenceMonth(*filter.CompetenceMonth)
		filter.CompetenceMonth = &m
	}
	return s.store.ListSDRCommissions(ctx, filter)
}
