package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/boddenberg/ops-bfa-go/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
)

const leadTempTable = "_tmp_upsert_strategic_leads"

var leadColumns = []string{
	"session_id", "name", "email", "phone", "utm_source", "utm_medium", "utm_campaign",
	"utm_content", "utm_term", "is_qualified", "qualification_score", "extra_fields", "source_row_id",
}

func (s *Store) ListCriteria(ctx context.Context, sessionID string) ([]domain.QualificationCriterion, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListCriteria")
	defer span.End()

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, session_id, field_name, operator, COALESCE(value, ''), weight::float8
		FROM strategic_qualification_criteria
		WHERE session_id = $1
		ORDER BY field_name`, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list criteria")
	}
	defer rows.Close()

	out := []domain.QualificationCriterion{}
	for rows.Next() {
		var c domain.QualificationCriterion
		var op string
		if err := rows.Scan(&c.ID, &c.SessionID, &c.FieldName, &op, &c.Value, &c.Weight); err != nil {
			return nil, eris.Wrap(err, "postgres: scan criterion")
		}
		c.Operator = domain.Operator(op)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate criteria")
}

func (s *Store) ListLeads(ctx context.Context, sessionID string) ([]domain.StrategicLead, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListLeads")
	defer span.End()

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, session_id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(phone, ''),
		       COALESCE(utm_source, ''), COALESCE(utm_medium, ''), COALESCE(utm_campaign, ''),
		       COALESCE(utm_content, ''), COALESCE(utm_term, ''), is_qualified, qualification_score,
		       extra_fields::text, source_row_id
		FROM strategic_leads
		WHERE session_id = $1
		ORDER BY source_row_id`, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	out := []domain.StrategicLead{}
	for rows.Next() {
		var l domain.StrategicLead
		var score *int32
		var extra string
		if err := rows.Scan(&l.ID, &l.SessionID, &l.Name, &l.Email, &l.Phone,
			&l.UTMSource, &l.UTMMedium, &l.UTMCampaign, &l.UTMContent, &l.UTMTerm,
			&l.IsQualified, &score, &extra, &l.SourceRowID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		if score != nil {
			l.QualificationScore = domain.ScoreOf(int(*score))
		}
		l.ExtraFields = decodeExtra(extra)
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate leads")
}

// UpsertLeads bulk-merges leads on (session_id, source_row_id) via a temp
// table and COPY. Callers pass at most one lead per source row.
func (s *Store) UpsertLeads(ctx context.Context, leads []domain.StrategicLead) (int, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpsertLeads")
	defer span.End()
	span.SetAttributes(attribute.Int("leads", len(leads)))

	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert leads")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		"CREATE TEMP TABLE "+leadTempTable+" (LIKE strategic_leads INCLUDING DEFAULTS) ON COMMIT DROP"); err != nil {
		return 0, eris.Wrap(err, "postgres: create lead temp table")
	}

	src := make([][]any, 0, len(leads))
	for _, l := range leads {
		extra, err := json.Marshal(l.ExtraFields)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal extra fields of row %s", l.SourceRowID)
		}
		src = append(src, []any{
			l.SessionID, l.Name, l.Email, l.Phone, l.UTMSource, l.UTMMedium, l.UTMCampaign,
			l.UTMContent, l.UTMTerm, l.IsQualified, l.QualificationScore.Ptr(), string(extra), l.SourceRowID,
		})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{leadTempTable}, leadColumns, pgx.CopyFromRows(src)); err != nil {
		return 0, eris.Wrap(err, "postgres: copy leads")
	}

	var sets []string
	for _, col := range leadColumns {
		if col == "session_id" || col == "source_row_id" {
			continue
		}
		sets = append(sets, col+" = EXCLUDED."+col)
	}
	cols := strings.Join(leadColumns, ", ")
	tag, err := tx.Exec(ctx,
		"INSERT INTO strategic_leads ("+cols+") SELECT "+cols+" FROM "+leadTempTable+
			" ON CONFLICT (session_id, source_row_id) DO UPDATE SET "+strings.Join(sets, ", "))
	if err != nil {
		return 0, eris.Wrap(err, "postgres: merge leads")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert leads")
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) UpdateLeadQualification(ctx context.Context, leadID string, q domain.Qualification) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateLeadQualification")
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		"UPDATE strategic_leads SET is_qualified = $2, qualification_score = $3 WHERE id = $1",
		leadID, q.Qualified, q.Score.Ptr())
	if err != nil {
		return eris.Wrap(err, "postgres: update lead qualification")
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "strategic_lead", ID: leadID}
	}
	return nil
}

func decodeExtra(raw string) map[string]string {
	var generic map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(generic))
	for k, v := range generic {
		switch val := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = val
		default:
			b, _ := json.Marshal(val)
			out[k] = string(b)
		}
	}
	return out
}
