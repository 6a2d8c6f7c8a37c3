// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
)

// Cache provides generic caching with TTL. Keys are built by the services
// from typed identifiers; DeletePrefix drops every key under one entity.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	DeletePrefix(prefix string)
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SalesStore reads sales and installments.
type SalesStore interface {
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)
	// ListActiveSales returns active sales dated inside the window, or all
	// active sales when window is nil.
	ListActiveSales(ctx context.Context, window *domain.DateRange) ([]domain.Sale, error)
	// ListInstallments returns a sale's installments ordered by number.
	ListInstallments(ctx context.Context, saleID string) ([]domain.Installment, error)
	GetInstallment(ctx context.Context, installmentID string) (*domain.Installment, error)
	// MarkInstallmentPaid settles the installment and releases its pending
	// seller and SDR commissions in one unit.
	MarkInstallmentPaid(ctx context.Context, installmentID string, paidAt time.Time) error
}

// FunnelStore reads and writes a funnel's product links.
type FunnelStore interface {
	ListFunnelProductIDs(ctx context.Context, funnelID string) ([]string, error)
	ListFunnelProductNames(ctx context.Context, funnelID string) ([]string, error)
	LinkProduct(ctx context.Context, funnelID, productID string) error
	LinkSalesProductName(ctx context.Context, funnelID, productName string) error
}

// CommissionStore persists seller commissions.
type CommissionStore interface {
	// ReplaceSaleCommissions sets the sale's seller and swaps every
	// commission of its installments for rows, atomically.
	ReplaceSaleCommissions(ctx context.Context, saleID, sellerID string, rows []domain.Commission) error
	ListCommissions(ctx context.Context, filter domain.CommissionFilter) ([]domain.Commission, error)
	GetCommission(ctx context.Context, commissionID string) (*domain.Commission, error)
	UpdateCommissionStatus(ctx context.Context, commissionID string, status domain.CommissionStatus, releasedAt *time.Time) error
}

// SDRStore persists SDR assignments and their commissions.
type SDRStore interface {
	// CreateSDRAssignment returns *domain.ErrAlreadyAssigned when the sale
	// already has an assignment.
	CreateSDRAssignment(ctx context.Context, a *domain.SDRAssignment) (*domain.SDRAssignment, error)
	GetSDRAssignment(ctx context.Context, assignmentID string) (*domain.SDRAssignment, error)
	ListSDRAssignments(ctx context.Context, filter domain.SDRAssignmentFilter) ([]domain.SDRAssignment, error)
	// ApproveSDRAssignment moves a pending assignment to approved and
	// inserts rows in one unit. It returns *domain.ErrConflict when the
	// assignment is no longer pending.
	ApproveSDRAssignment(ctx context.Context, assignmentID, approverID string, approvedAt time.Time, rows []domain.SDRCommission) (int, error)
	// RejectSDRAssignment returns *domain.ErrConflict when the assignment
	// is no longer pending.
	RejectSDRAssignment(ctx context.Context, assignmentID, reason string) error
	// DeletePendingSDRAssignment deletes only pending assignments and
	// returns the number of rows removed.
	DeletePendingSDRAssignment(ctx context.Context, assignmentID string) (int64, error)
	ListSDRCommissions(ctx context.Context, filter domain.SDRCommissionFilter) ([]domain.SDRCommission, error)
}

// LeadStore persists strategic-session leads and criteria.
type LeadStore interface {
	ListCriteria(ctx context.Context, sessionID string) ([]domain.QualificationCriterion, error)
	ListLeads(ctx context.Context, sessionID string) ([]domain.StrategicLead, error)
	// UpsertLeads inserts or updates on (session_id, source_row_id). Each
	// source row appears at most once per call.
	UpsertLeads(ctx context.Context, leads []domain.StrategicLead) (int, error)
	UpdateLeadQualification(ctx context.Context, leadID string, q domain.Qualification) error
}

// LeadSource fetches raw lead rows for a session from the upstream sheet.
type LeadSource interface {
	FetchRows(ctx context.Context, sessionID string) ([]map[string]string, error)
}

// Store is the full persistence surface a storage driver provides.
type Store interface {
	SalesStore
	FunnelStore
	CommissionStore
	SDRStore
	LeadStore
	Pinger
}
