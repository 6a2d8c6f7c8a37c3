package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
)

const saleSelect = `SELECT id::text, COALESCE(external_id, ''), COALESCE(client_name, ''), COALESCE(client_email, ''),
	COALESCE(product_name, ''), product_id, total_value::float8, installments_count, sale_date,
	COALESCE(platform, ''), status, seller_id, commission_percent::float8
	FROM sales`

const installmentSelect = `SELECT id::text, sale_id::text, installment_number, total_installments, value::float8,
	due_date, payment_date, status
	FROM installments`

func scanSale(row pgx.Row) (domain.Sale, error) {
	var s domain.Sale
	var status string
	err := row.Scan(&s.ID, &s.ExternalID, &s.ClientName, &s.ClientEmail,
		&s.ProductName, &s.ProductID, &s.TotalValue, &s.InstallmentsCount, &s.SaleDate,
		&s.Platform, &status, &s.SellerID, &s.CommissionPercent)
	s.Status = domain.SaleStatus(status)
	return s, err
}

func scanInstallment(row pgx.Row) (domain.Installment, error) {
	var i domain.Installment
	var status string
	err := row.Scan(&i.ID, &i.SaleID, &i.Number, &i.TotalInstallments, &i.Value,
		&i.DueDate, &i.PaymentDate, &status)
	i.Status = domain.InstallmentStatus(status)
	return i, err
}

func (s *Store) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetSale")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", saleID))

	sale, err := scanSale(s.pool.QueryRow(ctx, saleSelect+" WHERE id = $1", saleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "sale", ID: saleID}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get sale %s", saleID)
	}
	return &sale, nil
}

func (s *Store) ListActiveSales(ctx context.Context, window *domain.DateRange) ([]domain.Sale, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListActiveSales")
	defer span.End()

	var w whereBuilder
	w.add("status = ?", string(domain.SaleActive))
	if window != nil {
		span.SetAttributes(attribute.String("window", window.String()))
		w.add("sale_date >= ?", window.Start)
		w.add("sale_date <= ?", window.End)
	}

	rows, err := s.pool.Query(ctx, saleSelect+w.sql()+" ORDER BY sale_date", w.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active sales")
	}
	defer rows.Close()

	var out []domain.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan sale")
		}
		out = append(out, sale)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sales")
}

func (s *Store) ListInstallments(ctx context.Context, saleID string) ([]domain.Installment, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListInstallments")
	defer span.End()

	rows, err := s.pool.Query(ctx, installmentSelect+" WHERE sale_id = $1 ORDER BY installment_number", saleID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list installments of %s", saleID)
	}
	defer rows.Close()

	out := []domain.Installment{}
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan installment")
		}
		out = append(out, inst)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate installments")
}

func (s *Store) GetInstallment(ctx context.Context, installmentID string) (*domain.Installment, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetInstallment")
	defer span.End()

	inst, err := scanInstallment(s.pool.QueryRow(ctx, installmentSelect+" WHERE id = $1", installmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "installment", ID: installmentID}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get installment %s", installmentID)
	}
	return &inst, nil
}

// MarkInstallmentPaid marks the installment paid and releases its pending
// seller and SDR commissions in one transaction.
func (s *Store) MarkInstallmentPaid(ctx context.Context, installmentID string, paidAt time.Time) error {
	ctx, span := tracer.Start(ctx, "Postgres.MarkInstallmentPaid")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin mark paid")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		"UPDATE installments SET status = 'paid', payment_date = $2 WHERE id = $1",
		installmentID, paidAt)
	if err != nil {
		return eris.Wrap(err, "postgres: update installment")
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "installment", ID: installmentID}
	}

	for _, table := range []string{"commissions", "sdr_commissions"} {
		if _, err := tx.Exec(ctx,
			"UPDATE "+table+" SET status = 'released', released_at = $2 WHERE installment_id = $1 AND status = 'pending'",
			installmentID, paidAt); err != nil {
			return eris.Wrapf(err, "postgres: release %s", table)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit mark paid")
}
