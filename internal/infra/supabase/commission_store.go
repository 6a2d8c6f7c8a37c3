package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Seller commissions
// ============================================================

type commissionRow struct {
	ID                string  `json:"id,omitempty"`
	InstallmentID     string  `json:"installment_id"`
	SellerID          string  `json:"seller_id"`
	InstallmentValue  float64 `json:"installment_value"`
	CommissionPercent float64 `json:"commission_percent"`
	CommissionValue   float64 `json:"commission_value"`
	CompetenceMonth   string  `json:"competence_month"`
	Status            string  `json:"status"`
	ReleasedAt        *string `json:"released_at"`
}

func (r commissionRow) toDomain() domain.Commission {
	return domain.Commission{
		ID:                r.ID,
		InstallmentID:     r.InstallmentID,
		SellerID:          r.SellerID,
		InstallmentValue:  r.InstallmentValue,
		CommissionPercent: r.CommissionPercent,
		CommissionValue:   r.CommissionValue,
		CompetenceMonth:   parseTime(r.CompetenceMonth),
		Status:            domain.CommissionStatus(r.Status),
		ReleasedAt:        parseTimePtr(r.ReleasedAt),
	}
}

func commissionRowFrom(c domain.Commission) commissionRow {
	return commissionRow{
		InstallmentID:     c.InstallmentID,
		SellerID:          c.SellerID,
		InstallmentValue:  c.InstallmentValue,
		CommissionPercent: c.CommissionPercent,
		CommissionValue:   c.CommissionValue,
		CompetenceMonth:   c.CompetenceMonth.Format(dateLayout),
		Status:            string(c.Status),
		ReleasedAt:        formatTimePtr(c.ReleasedAt),
	}
}

// ReplaceSaleCommissions sets the sale's seller and swaps all of its
// installments' commissions for rows, atomically, via RPC.
func (c *Client) ReplaceSaleCommissions(ctx context.Context, saleID, sellerID string, rows []domain.Commission) error {
	ctx, span := tracer.Start(ctx, "Supabase.ReplaceSaleCommissions")
	defer span.End()
	span.SetAttributes(
		attribute.String("sale.id", saleID),
		attribute.String("seller.id", sellerID),
		attribute.Int("rows", len(rows)),
	)

	payload := make([]commissionRow, 0, len(rows))
	for _, r := range rows {
		payload = append(payload, commissionRowFrom(r))
	}

	_, err := c.rpc(ctx, "replace_sale_commissions", map[string]any{
		"p_sale_id":   saleID,
		"p_seller_id": sellerID,
		"p_rows":      payload,
	})
	if err != nil {
		if hasCode(err, "P0002") {
			return &domain.ErrNotFound{Resource: "sale", ID: saleID}
		}
		return err
	}
	return nil
}

func (c *Client) ListCommissions(ctx context.Context, filter domain.CommissionFilter) ([]domain.Commission, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCommissions")
	defer span.End()

	if filter.InstallmentIDs != nil && len(filter.InstallmentIDs) == 0 {
		return []domain.Commission{}, nil
	}

	path := "commissions?select=*"
	if filter.SellerID != "" {
		path += "&seller_id=" + eq(filter.SellerID)
	}
	if len(filter.InstallmentIDs) > 0 {
		path += "&installment_id=" + in(filter.InstallmentIDs)
	}
	if filter.CompetenceMonth != nil {
		path += "&competence_month=eq." + filter.CompetenceMonth.Format(dateLayout)
	}
	if filter.Status != "" {
		path += "&status=" + eq(string(filter.Status))
	}
	path += "&order=competence_month.asc,installment_id.asc"

	rows, err := getAll[commissionRow](ctx, c, "supabase/commissions", path)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Commission, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (c *Client) GetCommission(ctx context.Context, commissionID string) (*domain.Commission, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCommission")
	defer span.End()

	var rows []commissionRow
	if err := c.get(ctx, "supabase/commissions", fmt.Sprintf("commissions?id=%s&limit=1", eq(commissionID)), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "commission", ID: commissionID}
	}
	cm := rows[0].toDomain()
	return &cm, nil
}

func (c *Client) UpdateCommissionStatus(ctx context.Context, commissionID string, status domain.CommissionStatus, releasedAt *time.Time) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateCommissionStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("commission.id", commissionID),
		attribute.String("status", string(status)),
	)

	body, err := c.send(ctx, "supabase/commissions", http.MethodPatch,
		fmt.Sprintf("commissions?id=%s", eq(commissionID)),
		map[string]any{"status": status, "released_at": formatTimePtr(releasedAt)},
		"return=representation",
	)
	if err != nil {
		return err
	}
	var rows []commissionRow
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode commissions: %w", err)
		}
	}
	if len(rows) == 0 {
		return &domain.ErrNotFound{Resource: "commission", ID: commissionID}
	}
	return nil
}
