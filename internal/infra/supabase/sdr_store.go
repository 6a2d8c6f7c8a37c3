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
// SDR assignments + SDR commissions
// ============================================================

type sdrAssignmentRow struct {
	ID                string  `json:"id"`
	SaleID            string  `json:"sale_id"`
	SDRID             string  `json:"sdr_id"`
	ProofLink         string  `json:"proof_link"`
	CommissionPercent float64 `json:"commission_percent"`
	Status            string  `json:"status"`
	ApprovedBy        *string `json:"approved_by"`
	ApprovedAt        *string `json:"approved_at"`
	RejectionReason   *string `json:"rejection_reason"`
	CreatedBy         *string `json:"created_by"`
	CreatedAt         string  `json:"created_at"`
}

func (r sdrAssignmentRow) toDomain() domain.SDRAssignment {
	return domain.SDRAssignment{
		ID:                r.ID,
		SaleID:            r.SaleID,
		SDRID:             r.SDRID,
		ProofLink:         r.ProofLink,
		CommissionPercent: r.CommissionPercent,
		Status:            domain.SDRAssignmentStatus(r.Status),
		ApprovedBy:        r.ApprovedBy,
		ApprovedAt:        parseTimePtr(r.ApprovedAt),
		RejectionReason:   r.RejectionReason,
		CreatedBy:         r.CreatedBy,
		CreatedAt:         parseTime(r.CreatedAt),
	}
}

type sdrCommissionRow struct {
	ID                string  `json:"id,omitempty"`
	InstallmentID     string  `json:"installment_id"`
	SDRAssignmentID   string  `json:"sdr_assignment_id"`
	SDRID             string  `json:"sdr_id"`
	InstallmentValue  float64 `json:"installment_value"`
	CommissionPercent float64 `json:"commission_percent"`
	CommissionValue   float64 `json:"commission_value"`
	CompetenceMonth   string  `json:"competence_month"`
	Status            string  `json:"status"`
	ReleasedAt        *string `json:"released_at"`
}

func (r sdrCommissionRow) toDomain() domain.SDRCommission {
	return domain.SDRCommission{
		ID:                r.ID,
		InstallmentID:     r.InstallmentID,
		SDRAssignmentID:   r.SDRAssignmentID,
		SDRID:             r.SDRID,
		InstallmentValue:  r.InstallmentValue,
		CommissionPercent: r.CommissionPercent,
		CommissionValue:   r.CommissionValue,
		CompetenceMonth:   parseTime(r.CompetenceMonth),
		Status:            domain.CommissionStatus(r.Status),
		ReleasedAt:        parseTimePtr(r.ReleasedAt),
	}
}

func decodeAssignments(body []byte) ([]sdrAssignmentRow, error) {
	var rows []sdrAssignmentRow
	if body == nil {
		return rows, nil
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode sdr_assignments: %w", err)
	}
	return rows, nil
}

// CreateSDRAssignment inserts a pending assignment. The unique constraint on
// sale_id surfaces as ErrAlreadyAssigned.
func (c *Client) CreateSDRAssignment(ctx context.Context, a *domain.SDRAssignment) (*domain.SDRAssignment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateSDRAssignment")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", a.SaleID), attribute.String("sdr.id", a.SDRID))

	data := map[string]any{
		"sale_id":            a.SaleID,
		"sdr_id":             a.SDRID,
		"proof_link":         a.ProofLink,
		"commission_percent": a.CommissionPercent,
		"status":             domain.SDRPending,
		"created_by":         a.CreatedBy,
	}

	body, err := c.send(ctx, "supabase/sdr_assignments", http.MethodPost, "sdr_assignments", data, "return=representation")
	if err != nil {
		if hasCode(err, "23505") {
			return nil, &domain.ErrAlreadyAssigned{SaleID: a.SaleID}
		}
		return nil, err
	}

	rows, err := decodeAssignments(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrExternalService{Service: "supabase/sdr_assignments", Err: fmt.Errorf("insert returned no row")}
	}
	created := rows[0].toDomain()
	return &created, nil
}

func (c *Client) GetSDRAssignment(ctx context.Context, assignmentID string) (*domain.SDRAssignment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetSDRAssignment")
	defer span.End()

	var rows []sdrAssignmentRow
	if err := c.get(ctx, "supabase/sdr_assignments", fmt.Sprintf("sdr_assignments?id=%s&limit=1", eq(assignmentID)), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "sdr_assignment", ID: assignmentID}
	}
	a := rows[0].toDomain()
	return &a, nil
}

func (c *Client) ListSDRAssignments(ctx context.Context, filter domain.SDRAssignmentFilter) ([]domain.SDRAssignment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListSDRAssignments")
	defer span.End()

	path := "sdr_assignments?select=*"
	if filter.Status != "" {
		path += "&status=" + eq(string(filter.Status))
	}
	if filter.SDRID != "" {
		path += "&sdr_id=" + eq(filter.SDRID)
	}
	path += "&order=created_at.desc"

	rows, err := getAll[sdrAssignmentRow](ctx, c, "supabase/sdr_assignments", path)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SDRAssignment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ApproveSDRAssignment flips a pending assignment to approved and inserts its
// commissions in one RPC. A non-pending assignment raises P0001.
func (c *Client) ApproveSDRAssignment(ctx context.Context, assignmentID, approverID string, approvedAt time.Time, rows []domain.SDRCommission) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ApproveSDRAssignment")
	defer span.End()
	span.SetAttributes(attribute.String("sdr_assignment.id", assignmentID), attribute.Int("rows", len(rows)))

	payload := make([]sdrCommissionRow, 0, len(rows))
	for _, r := range rows {
		payload = append(payload, sdrCommissionRow{
			InstallmentID:     r.InstallmentID,
			SDRAssignmentID:   r.SDRAssignmentID,
			SDRID:             r.SDRID,
			InstallmentValue:  r.InstallmentValue,
			CommissionPercent: r.CommissionPercent,
			CommissionValue:   r.CommissionValue,
			CompetenceMonth:   r.CompetenceMonth.Format(dateLayout),
			Status:            string(r.Status),
			ReleasedAt:        formatTimePtr(r.ReleasedAt),
		})
	}

	body, err := c.rpc(ctx, "approve_sdr_assignment", map[string]any{
		"p_assignment_id": assignmentID,
		"p_approved_by":   approverID,
		"p_approved_at":   approvedAt.UTC().Format(time.RFC3339),
		"p_rows":          payload,
	})
	if err != nil {
		switch {
		case hasCode(err, "P0001"):
			return 0, &domain.ErrConflict{Message: fmt.Sprintf("sdr assignment %s is not pending", assignmentID)}
		case hasCode(err, "P0002"):
			return 0, &domain.ErrNotFound{Resource: "sdr_assignment", ID: assignmentID}
		}
		return 0, err
	}

	var created int
	if body != nil {
		if err := json.Unmarshal(body, &created); err != nil {
			return 0, fmt.Errorf("decode approve_sdr_assignment: %w", err)
		}
	}
	return created, nil
}

// RejectSDRAssignment records the reason on a pending assignment only.
func (c *Client) RejectSDRAssignment(ctx context.Context, assignmentID, reason string) error {
	ctx, span := tracer.Start(ctx, "Supabase.RejectSDRAssignment")
	defer span.End()

	body, err := c.send(ctx, "supabase/sdr_assignments", http.MethodPatch,
		fmt.Sprintf("sdr_assignments?id=%s&status=eq.%s", eq(assignmentID), domain.SDRPending),
		map[string]any{"status": domain.SDRRejected, "rejection_reason": reason},
		"return=representation",
	)
	if err != nil {
		return err
	}
	rows, err := decodeAssignments(body)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		if _, err := c.GetSDRAssignment(ctx, assignmentID); err != nil {
			return err
		}
		return &domain.ErrConflict{Message: fmt.Sprintf("sdr assignment %s is not pending", assignmentID)}
	}
	return nil
}

// DeletePendingSDRAssignment deletes the assignment only while pending and
// returns the number of rows removed.
func (c *Client) DeletePendingSDRAssignment(ctx context.Context, assignmentID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "Supabase.DeletePendingSDRAssignment")
	defer span.End()

	body, err := c.send(ctx, "supabase/sdr_assignments", http.MethodDelete,
		fmt.Sprintf("sdr_assignments?id=%s&status=eq.%s", eq(assignmentID), domain.SDRPending),
		nil,
		"return=representation",
	)
	if err != nil {
		return 0, err
	}
	rows, err := decodeAssignments(body)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (c *Client) ListSDRCommissions(ctx context.Context, filter domain.SDRCommissionFilter) ([]domain.SDRCommission, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListSDRCommissions")
	defer span.End()

	if filter.InstallmentIDs != nil && len(filter.InstallmentIDs) == 0 {
		return []domain.SDRCommission{}, nil
	}

	path := "sdr_commissions?select=*"
	if filter.SDRID != "" {
		path += "&sdr_id=" + eq(filter.SDRID)
	}
	if filter.SDRAssignmentID != "" {
		path += "&sdr_assignment_id=" + eq(filter.SDRAssignmentID)
	}
	if len(filter.InstallmentIDs) > 0 {
		path += "&installment_id=" + in(filter.InstallmentIDs)
	}
	if filter.CompetenceMonth != nil {
		path += "&competence_month=eq." + filter.CompetenceMonth.Format(dateLayout)
	}
	path += "&order=competence_month.asc,installment_id.asc"

	rows, err := getAll[sdrCommissionRow](ctx, c, "supabase/sdr_commissions", path)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SDRCommission, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
