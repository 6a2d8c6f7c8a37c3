package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Sales + installments
// ============================================================

const saleColumns = "id,external_id,client_name,client_email,product_name,product_id,total_value,installments_count,sale_date,platform,status,seller_id,commission_percent"

type saleRow struct {
	ID                string   `json:"id"`
	ExternalID        *string  `json:"external_id"`
	ClientName        *string  `json:"client_name"`
	ClientEmail       *string  `json:"client_email"`
	ProductName       *string  `json:"product_name"`
	ProductID         *string  `json:"product_id"`
	TotalValue        float64  `json:"total_value"`
	InstallmentsCount int      `json:"installments_count"`
	SaleDate          string   `json:"sale_date"`
	Platform          *string  `json:"platform"`
	Status            string   `json:"status"`
	SellerID          *string  `json:"seller_id"`
	CommissionPercent *float64 `json:"commission_percent"`
}

func (r saleRow) toDomain() domain.Sale {
	return domain.Sale{
		ID:                r.ID,
		ExternalID:        deref(r.ExternalID),
		ClientName:        deref(r.ClientName),
		ClientEmail:       deref(r.ClientEmail),
		ProductName:       deref(r.ProductName),
		ProductID:         r.ProductID,
		TotalValue:        r.TotalValue,
		InstallmentsCount: r.InstallmentsCount,
		SaleDate:          parseTime(r.SaleDate),
		Platform:          deref(r.Platform),
		Status:            domain.SaleStatus(r.Status),
		SellerID:          r.SellerID,
		CommissionPercent: r.CommissionPercent,
	}
}

type installmentRow struct {
	ID                string  `json:"id"`
	SaleID            string  `json:"sale_id"`
	InstallmentNumber int     `json:"installment_number"`
	TotalInstallments int     `json:"total_installments"`
	Value             float64 `json:"value"`
	DueDate           string  `json:"due_date"`
	PaymentDate       *string `json:"payment_date"`
	Status            string  `json:"status"`
}

func (r installmentRow) toDomain() domain.Installment {
	return domain.Installment{
		ID:                r.ID,
		SaleID:            r.SaleID,
		Number:            r.InstallmentNumber,
		TotalInstallments: r.TotalInstallments,
		Value:             r.Value,
		DueDate:           parseTime(r.DueDate),
		PaymentDate:       parseTimePtr(r.PaymentDate),
		Status:            domain.InstallmentStatus(r.Status),
	}
}

func (c *Client) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetSale")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", saleID))

	var rows []saleRow
	path := fmt.Sprintf("sales?select=%s&id=%s&limit=1", saleColumns, eq(saleID))
	if err := c.get(ctx, "supabase/sales", path, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "sale", ID: saleID}
	}
	s := rows[0].toDomain()
	return &s, nil
}

// ListActiveSales returns active sales, restricted to the window's dates when given.
func (c *Client) ListActiveSales(ctx context.Context, window *domain.DateRange) ([]domain.Sale, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListActiveSales")
	defer span.End()

	path := fmt.Sprintf("sales?select=%s&status=eq.%s", saleColumns, domain.SaleActive)
	if window != nil {
		span.SetAttributes(attribute.String("window", window.String()))
		path += fmt.Sprintf("&sale_date=gte.%s&sale_date=lt.%s",
			window.Start.Format(dateLayout),
			window.End.AddDate(0, 0, 1).Format(dateLayout),
		)
	}
	path += "&order=sale_date.asc"

	rows, err := getAll[saleRow](ctx, c, "supabase/sales", path)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, len(rows))
	for _, r := range rows {
		sales = append(sales, r.toDomain())
	}
	return sales, nil
}

// ListInstallments returns the sale's installments ordered by number.
func (c *Client) ListInstallments(ctx context.Context, saleID string) ([]domain.Installment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListInstallments")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", saleID))

	var rows []installmentRow
	path := fmt.Sprintf("installments?sale_id=%s&order=installment_number.asc", eq(saleID))
	if err := c.get(ctx, "supabase/installments", path, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.Installment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (c *Client) GetInstallment(ctx context.Context, installmentID string) (*domain.Installment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetInstallment")
	defer span.End()

	var rows []installmentRow
	path := fmt.Sprintf("installments?id=%s&limit=1", eq(installmentID))
	if err := c.get(ctx, "supabase/installments", path, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "installment", ID: installmentID}
	}
	inst := rows[0].toDomain()
	return &inst, nil
}

// MarkInstallmentPaid marks the installment paid and releases its pending
// seller and SDR commissions in one RPC.
func (c *Client) MarkInstallmentPaid(ctx context.Context, installmentID string, paidAt time.Time) error {
	ctx, span := tracer.Start(ctx, "Supabase.MarkInstallmentPaid")
	defer span.End()
	span.SetAttributes(attribute.String("installment.id", installmentID))

	_, err := c.rpc(ctx, "mark_installment_paid", map[string]any{
		"p_installment_id": installmentID,
		"p_paid_at":        paidAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		if hasCode(err, "P0002") {
			return &domain.ErrNotFound{Resource: "installment", ID: installmentID}
		}
		return err
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
