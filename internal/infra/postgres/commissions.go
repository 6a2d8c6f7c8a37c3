package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
)

var commissionColumns = []string{
	"id", "installment_id", "seller_id", "installment_value", "commission_percent",
	"commission_value", "competence_month", "status", "released_at",
}

const commissionSelect = `SELECT id::text, installment_id::text, seller_id, installment_value::float8,
	commission_percent::float8, commission_value::float8, competence_month, status, released_at
	FROM commissions`

func scanCommission(row pgx.Row) (domain.Commission, error) {
	var c domain.Commission
	var status string
	err := row.Scan(&c.ID, &c.InstallmentID, &c.SellerID, &c.InstallmentValue,
		&c.CommissionPercent, &c.CommissionValue, &c.CompetenceMonth, &status, &c.ReleasedAt)
	c.Status = domain.CommissionStatus(status)
	return c, err
}

// ReplaceSaleCommissions sets the seller on the sale and swaps all of its
// installments' commissions for rows in one transaction.
func (s *Store) ReplaceSaleCommissions(ctx context.Context, saleID, sellerID string, rows []domain.Commission) error {
	ctx, span := tracer.Start(ctx, "Postgres.ReplaceSaleCommissions")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", saleID), attribute.Int("rows", len(rows)))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace commissions")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, "UPDATE sales SET seller_id = $2 WHERE id = $1", saleID, sellerID)
	if err != nil {
		return eris.Wrap(err, "postgres: set sale seller")
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "sale", ID: saleID}
	}

	if _, err := tx.Exec(ctx,
		"DELETE FROM commissions WHERE installment_id IN (SELECT id FROM installments WHERE sale_id = $1)",
		saleID); err != nil {
		return eris.Wrap(err, "postgres: delete sale commissions")
	}

	if len(rows) > 0 {
		src := make([][]any, 0, len(rows))
		for _, r := range rows {
			src = append(src, []any{
				uuid.New(), r.InstallmentID, r.SellerID, r.InstallmentValue, r.CommissionPercent,
				r.CommissionValue, r.CompetenceMonth, string(r.Status), r.ReleasedAt,
			})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"commissions"}, commissionColumns, pgx.CopyFromRows(src)); err != nil {
			return eris.Wrap(err, "postgres: copy commissions")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace commissions")
}

func (s *Store) ListCommissions(ctx context.Context, filter domain.CommissionFilter) ([]domain.Commission, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListCommissions")
	defer span.End()

	if filter.InstallmentIDs != nil && len(filter.InstallmentIDs) == 0 {
		return []domain.Commission{}, nil
	}

	var w whereBuilder
	if filter.SellerID != "" {
		w.add("seller_id = ?", filter.SellerID)
	}
	if len(filter.InstallmentIDs) > 0 {
		w.add("installment_id::text = ANY(?)", filter.InstallmentIDs)
	}
	if filter.CompetenceMonth != nil {
		w.add("competence_month = ?", *filter.CompetenceMonth)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}

	rows, err := s.pool.Query(ctx, commissionSelect+w.sql()+" ORDER BY competence_month, installment_id", w.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list commissions")
	}
	defer rows.Close()

	out := []domain.Commission{}
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan commission")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate commissions")
}

func (s *Store) GetCommission(ctx context.Context, commissionID string) (*domain.Commission, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetCommission")
	defer span.End()

	c, err := scanCommission(s.pool.QueryRow(ctx, commissionSelect+" WHERE id = $1", commissionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "commission", ID: commissionID}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get commission %s", commissionID)
	}
	return &c, nil
}

func (s *Store) UpdateCommissionStatus(ctx context.Context, commissionID string, status domain.CommissionStatus, releasedAt *time.Time) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateCommissionStatus")
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		"UPDATE commissions SET status = $2, released_at = $3 WHERE id = $1",
		commissionID, string(status), releasedAt)
	if err != nil {
		return eris.Wrap(err, "postgres: update commission status")
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "commission", ID: commissionID}
	}
	return nil
}
