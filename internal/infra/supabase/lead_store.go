package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/boddenberg/ops-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Strategic leads + qualification criteria
// ============================================================

// upsertChunk bounds the size of one bulk upsert request body.
const upsertChunk = 500

type leadRow struct {
	ID                 string         `json:"id,omitempty"`
	SessionID          string         `json:"session_id"`
	Name               *string        `json:"name"`
	Email              *string        `json:"email"`
	Phone              *string        `json:"phone"`
	UTMSource          *string        `json:"utm_source"`
	UTMMedium          *string        `json:"utm_medium"`
	UTMCampaign        *string        `json:"utm_campaign"`
	UTMContent         *string        `json:"utm_content"`
	UTMTerm            *string        `json:"utm_term"`
	IsQualified        bool           `json:"is_qualified"`
	QualificationScore *int           `json:"qualification_score"`
	ExtraFields        map[string]any `json:"extra_fields"`
	SourceRowID        string         `json:"source_row_id"`
}

func (r leadRow) toDomain() domain.StrategicLead {
	extra := make(map[string]string, len(r.ExtraFields))
	for k, v := range r.ExtraFields {
		switch val := v.(type) {
		case nil:
			extra[k] = ""
		case string:
			extra[k] = val
		default:
			extra[k] = fmt.Sprint(val)
		}
	}
	return domain.StrategicLead{
		ID:                 r.ID,
		SessionID:          r.SessionID,
		Name:               deref(r.Name),
		Email:              deref(r.Email),
		Phone:              deref(r.Phone),
		UTMSource:          deref(r.UTMSource),
		UTMMedium:          deref(r.UTMMedium),
		UTMCampaign:        deref(r.UTMCampaign),
		UTMContent:         deref(r.UTMContent),
		UTMTerm:            deref(r.UTMTerm),
		IsQualified:        r.IsQualified,
		QualificationScore: domain.ScoreFromPtr(r.QualificationScore),
		ExtraFields:        extra,
		SourceRowID:        r.SourceRowID,
	}
}

func leadRowFrom(l domain.StrategicLead) leadRow {
	extra := make(map[string]any, len(l.ExtraFields))
	for k, v := range l.ExtraFields {
		extra[k] = v
	}
	return leadRow{
		SessionID:          l.SessionID,
		Name:               &l.Name,
		Email:              &l.Email,
		Phone:              &l.Phone,
		UTMSource:          &l.UTMSource,
		UTMMedium:          &l.UTMMedium,
		UTMCampaign:        &l.UTMCampaign,
		UTMContent:         &l.UTMContent,
		UTMTerm:            &l.UTMTerm,
		IsQualified:        l.IsQualified,
		QualificationScore: l.QualificationScore.Ptr(),
		ExtraFields:        extra,
		SourceRowID:        l.SourceRowID,
	}
}

func (c *Client) ListCriteria(ctx context.Context, sessionID string) ([]domain.QualificationCriterion, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCriteria")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	var rows []domain.QualificationCriterion
	path := fmt.Sprintf("strategic_qualification_criteria?session_id=%s&order=field_name.asc", eq(sessionID))
	if err := c.get(ctx, "supabase/strategic_qualification_criteria", path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListLeads(ctx context.Context, sessionID string) ([]domain.StrategicLead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLeads")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	path := fmt.Sprintf("strategic_leads?session_id=%s&order=source_row_id.asc", eq(sessionID))
	rows, err := getAll[leadRow](ctx, c, "supabase/strategic_leads", path)
	if err != nil {
		return nil, err
	}
	out := make([]domain.StrategicLead, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// UpsertLeads merges leads on (session_id, source_row_id) and returns the
// number of rows written.
func (c *Client) UpsertLeads(ctx context.Context, leads []domain.StrategicLead) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertLeads")
	defer span.End()
	span.SetAttributes(attribute.Int("leads", len(leads)))

	written := 0
	for start := 0; start < len(leads); start += upsertChunk {
		end := min(start+upsertChunk, len(leads))

		payload := make([]leadRow, 0, end-start)
		for _, l := range leads[start:end] {
			payload = append(payload, leadRowFrom(l))
		}

		body, err := c.send(ctx, "supabase/strategic_leads", http.MethodPost,
			"strategic_leads?on_conflict=session_id,source_row_id",
			payload,
			"resolution=merge-duplicates,return=representation",
		)
		if err != nil {
			return written, err
		}

		var rows []json.RawMessage
		if body != nil {
			if err := json.Unmarshal(body, &rows); err != nil {
				return written, fmt.Errorf("decode strategic_leads: %w", err)
			}
		}
		written += len(rows)
	}
	return written, nil
}

func (c *Client) UpdateLeadQualification(ctx context.Context, leadID string, q domain.Qualification) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateLeadQualification")
	defer span.End()

	_, err := c.send(ctx, "supabase/strategic_leads", http.MethodPatch,
		fmt.Sprintf("strategic_leads?id=%s", eq(leadID)),
		map[string]any{"is_qualified": q.Qualified, "qualification_score": q.Score.Ptr()},
		"return=minimal",
	)
	return err
}
