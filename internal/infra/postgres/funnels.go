package postgres

import (
	"context"

	"github.com/rotisserie/eris"
)

func (s *Store) ListFunnelProductIDs(ctx context.Context, funnelID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListFunnelProductIDs")
	defer span.End()
	return s.listStrings(ctx, "SELECT product_id FROM funnel_products WHERE funnel_id = $1 ORDER BY product_id", funnelID)
}

func (s *Store) ListFunnelProductNames(ctx context.Context, funnelID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListFunnelProductNames")
	defer span.End()
	return s.listStrings(ctx, "SELECT product_name FROM funnel_sales_products WHERE funnel_id = $1 ORDER BY product_name", funnelID)
}

func (s *Store) LinkProduct(ctx context.Context, funnelID, productID string) error {
	ctx, span := tracer.Start(ctx, "Postgres.LinkProduct")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		"INSERT INTO funnel_products (funnel_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		funnelID, productID)
	return eris.Wrap(err, "postgres: link product")
}

func (s *Store) LinkSalesProductName(ctx context.Context, funnelID, productName string) error {
	ctx, span := tracer.Start(ctx, "Postgres.LinkSalesProductName")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		"INSERT INTO funnel_sales_products (funnel_id, product_name) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		funnelID, productName)
	return eris.Wrap(err, "postgres: link sales product name")
}

func (s *Store) listStrings(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query")
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "postgres: scan")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate")
}
