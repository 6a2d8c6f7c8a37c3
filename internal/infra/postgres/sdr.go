package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
)

var sdrCommissionColumns = []string{
	"id", "installment_id", "sdr_assignment_id", "sdr_id", "installment_value",
	"commission_percent", "commission_value", "competence_month", "status", "released_at",
}

const sdrAssignmentSelect = `SELECT id::text, sale_id::text, sdr_id, proof_link, commission_percent::float8, status,
	approved_by, approved_at, rejection_reason, created_by, created_at
	FROM sdr_assignments`

const sdrCommissionSelect = `SELECT id::text, installment_id::text, sdr_assignment_id::text, sdr_id,
	installment_value::float8, commission_percent::float8, commission_value::float8,
	competence_month, status, released_at
	FROM sdr_commissions`

func scanSDRAssignment(row pgx.Row) (domain.SDRAssignment, error) {
	var a domain.SDRAssignment
	var status string
	err := row.Scan(&a.ID, &a.SaleID, &a.SDRID, &a.ProofLink, &a.CommissionPercent, &status,
		&a.ApprovedBy, &a.ApprovedAt, &a.RejectionReason, &a.CreatedBy, &a.CreatedAt)
	a.Status = domain.SDRAssignmentStatus(status)
	return a, err
}

func (s *Store) CreateSDRAssignment(ctx context.Context, a *domain.SDRAssignment) (*domain.SDRAssignment, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateSDRAssignment")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", a.SaleID))

	created := *a
	created.Status = domain.SDRPending
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sdr_assignments (sale_id, sdr_id, proof_link, commission_percent, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text, created_at`,
		a.SaleID, a.SDRID, a.ProofLink, a.CommissionPercent, string(domain.SDRPending), a.CreatedBy,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ErrAlreadyAssigned{SaleID: a.SaleID}
		}
		return nil, eris.Wrap(err, "postgres: insert sdr assignment")
	}
	return &created, nil
}

func (s *Store) GetSDRAssignment(ctx context.Context, assignmentID string) (*domain.SDRAssignment, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetSDRAssignment")
	defer span.End()

	a, err := scanSDRAssignment(s.pool.QueryRow(ctx, sdrAssignmentSelect+" WHERE id = $1", assignmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "sdr_assignment", ID: assignmentID}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get sdr assignment %s", assignmentID)
	}
	return &a, nil
}

func (s *Store) ListSDRAssignments(ctx context.Context, filter domain.SDRAssignmentFilter) ([]domain.SDRAssignment, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListSDRAssignments")
	defer span.End()

	var w whereBuilder
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.SDRID != "" {
		w.add("sdr_id = ?", filter.SDRID)
	}

	rows, err := s.pool.Query(ctx, sdrAssignmentSelect+w.sql()+" ORDER BY created_at DESC", w.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sdr assignments")
	}
	defer rows.Close()

	out := []domain.SDRAssignment{}
	for rows.Next() {
		a, err := scanSDRAssignment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan sdr assignment")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sdr assignments")
}

// ApproveSDRAssignment approves a pending assignment and inserts its
// commissions in one transaction. The status guard makes a second approval
// fail with ErrConflict instead of duplicating rows.
func (s *Store) ApproveSDRAssignment(ctx context.Context, assignmentID, approverID string, approvedAt time.Time, rows []domain.SDRCommission) (int, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ApproveSDRAssignment")
	defer span.End()
	span.SetAttributes(attribute.String("sdr_assignment.id", assignmentID), attribute.Int("rows", len(rows)))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin approve")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE sdr_assignments SET status = 'approved', approved_by = $2, approved_at = $3
		WHERE id = $1 AND status = 'pending'`,
		assignmentID, approverID, approvedAt)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: approve sdr assignment")
	}
	if tag.RowsAffected() == 0 {
		return 0, s.notPending(ctx, tx, assignmentID)
	}

	var created int64
	if len(rows) > 0 {
		src := make([][]any, 0, len(rows))
		for _, r := range rows {
			src = append(src, []any{
				uuid.New(), r.InstallmentID, r.SDRAssignmentID, r.SDRID, r.InstallmentValue,
				r.CommissionPercent, r.CommissionValue, r.CompetenceMonth, string(r.Status), r.ReleasedAt,
			})
		}
		created, err = tx.CopyFrom(ctx, pgx.Identifier{"sdr_commissions"}, sdrCommissionColumns, pgx.CopyFromRows(src))
		if err != nil {
			return 0, eris.Wrap(err, "postgres: copy sdr commissions")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit approve")
	}
	return int(created), nil
}

// RejectSDRAssignment records the reason on a pending assignment only.
func (s *Store) RejectSDRAssignment(ctx context.Context, assignmentID, reason string) error {
	ctx, span := tracer.Start(ctx, "Postgres.RejectSDRAssignment")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `
		UPDATE sdr_assignments SET status = 'rejected', rejection_reason = $2
		WHERE id = $1 AND status = 'pending'`,
		assignmentID, reason)
	if err != nil {
		return eris.Wrap(err, "postgres: reject sdr assignment")
	}
	if tag.RowsAffected() == 0 {
		return s.notPending(ctx, s.pool, assignmentID)
	}
	return nil
}

// DeletePendingSDRAssignment removes the assignment only while pending.
func (s *Store) DeletePendingSDRAssignment(ctx context.Context, assignmentID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "Postgres.DeletePendingSDRAssignment")
	defer span.End()

	tag, err := s.pool.Exec(ctx, "DELETE FROM sdr_assignments WHERE id = $1 AND status = 'pending'", assignmentID)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete sdr assignment")
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListSDRCommissions(ctx context.Context, filter domain.SDRCommissionFilter) ([]domain.SDRCommission, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListSDRCommissions")
	defer span.End()

	if filter.InstallmentIDs != nil && len(filter.InstallmentIDs) == 0 {
		return []domain.SDRCommission{}, nil
	}

	var w whereBuilder
	if filter.SDRID != "" {
		w.add("sdr_id = ?", filter.SDRID)
	}
	if filter.SDRAssignmentID != "" {
		w.add("sdr_assignment_id::text = ?", filter.SDRAssignmentID)
	}
	if len(filter.InstallmentIDs) > 0 {
		w.add("installment_id::text = ANY(?)", filter.InstallmentIDs)
	}
	if filter.CompetenceMonth != nil {
		w.add("competence_month = ?", *filter.CompetenceMonth)
	}

	rows, err := s.pool.Query(ctx, sdrCommissionSelect+w.sql()+" ORDER BY competence_month, installment_id", w.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sdr commissions")
	}
	defer rows.Close()

	out := []domain.SDRCommission{}
	for rows.Next() {
		var c domain.SDRCommission
		var status string
		if err := rows.Scan(&c.ID, &c.InstallmentID, &c.SDRAssignmentID, &c.SDRID, &c.InstallmentValue,
			&c.CommissionPercent, &c.CommissionValue, &c.CompetenceMonth, &status, &c.ReleasedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sdr commission")
		}
		c.Status = domain.CommissionStatus(status)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sdr commissions")
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// notPending explains a guarded update that touched no rows.
func (s *Store) notPending(ctx context.Context, q rowQuerier, assignmentID string) error {
	var status string
	err := q.QueryRow(ctx, "SELECT status FROM sdr_assignments WHERE id = $1", assignmentID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.ErrNotFound{Resource: "sdr_assignment", ID: assignmentID}
	}
	if err != nil {
		return eris.Wrap(err, "postgres: read sdr assignment status")
	}
	return &domain.ErrConflict{Message: fmt.Sprintf("sdr assignment %s is %s, not pending", assignmentID, status)}
}
