package supabase

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Funnel ↔ product links
// ============================================================

func (c *Client) ListFunnelProductIDs(ctx context.Context, funnelID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListFunnelProductIDs")
	defer span.End()
	span.SetAttributes(attribute.String("funnel.id", funnelID))

	var rows []struct {
		ProductID string `json:"product_id"`
	}
	path := fmt.Sprintf("funnel_products?select=product_id&funnel_id=%s", eq(funnelID))
	if err := c.get(ctx, "supabase/funnel_products", path, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProductID)
	}
	return ids, nil
}

func (c *Client) ListFunnelProductNames(ctx context.Context, funnelID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListFunnelProductNames")
	defer span.End()
	span.SetAttributes(attribute.String("funnel.id", funnelID))

	var rows []struct {
		ProductName string `json:"product_name"`
	}
	path := fmt.Sprintf("funnel_sales_products?select=product_name&funnel_id=%s", eq(funnelID))
	if err := c.get(ctx, "supabase/funnel_sales_products", path, &rows); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.ProductName)
	}
	return names, nil
}

func (c *Client) LinkProduct(ctx context.Context, funnelID, productID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.LinkProduct")
	defer span.End()

	_, err := c.send(ctx, "supabase/funnel_products", http.MethodPost,
		"funnel_products?on_conflict=funnel_id,product_id",
		map[string]any{"funnel_id": funnelID, "product_id": productID},
		"resolution=ignore-duplicates,return=minimal",
	)
	return err
}

func (c *Client) LinkSalesProductName(ctx context.Context, funnelID, productName string) error {
	ctx, span := tracer.Start(ctx, "Supabase.LinkSalesProductName")
	defer span.End()

	_, err := c.send(ctx, "supabase/funnel_sales_products", http.MethodPost,
		"funnel_sales_products?on_conflict=funnel_id,product_name",
		map[string]any{"funnel_id": funnelID, "product_name": productName},
		"resolution=ignore-duplicates,return=minimal",
	)
	return err
}
