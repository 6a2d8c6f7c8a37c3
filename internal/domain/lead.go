package domain

import (
	"encoding/json"
	"fmt"
)

// ============================================================
// Strategic sessions / Leads
// ============================================================

// Operator is the comparison a qualification criterion applies.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpNotEmpty    Operator = "not_empty"
)

// ParseOperator validates a raw operator string.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(s); op {
	case OpEquals, OpContains, OpGreaterThan, OpLessThan, OpNotEmpty:
		return op, nil
	}
	return "", &ErrValidation{Field: "operator", Message: fmt.Sprintf("unknown operator %q", s)}
}

// QualificationCriterion is one weighted rule of a session.
type QualificationCriterion struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	FieldName string   `json:"field_name"`
	Operator  Operator `json:"operator"`
	Value     string   `json:"value"`
	Weight    float64  `json:"weight"`
}

// Score is a 0-100 qualification score. It is undefined when the session
// has no criteria, which is distinct from a score of zero.
type Score struct {
	value   int
	defined bool
}

// ScoreOf wraps a computed score.
func ScoreOf(v int) Score { return Score{value: v, defined: true} }

// NoScore is the value used when there is nothing to evaluate.
func NoScore() Score { return Score{} }

// Value returns the score and whether it is defined.
func (s Score) Value() (int, bool) { return s.value, s.defined }

// Ptr returns nil for an undefined score, for nullable storage columns.
func (s Score) Ptr() *int {
	if !s.defined {
		return nil
	}
	v := s.value
	return &v
}

// ScoreFromPtr is the inverse of Ptr.
func ScoreFromPtr(p *int) Score {
	if p == nil {
		return NoScore()
	}
	return ScoreOf(*p)
}

func (s Score) MarshalJSON() ([]byte, error) {
	if !s.defined {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

func (s *Score) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = NoScore()
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = ScoreOf(v)
	return nil
}

// Qualification is the outcome of scoring one lead.
type Qualification struct {
	Score         Score   `json:"score"`
	Qualified     bool    `json:"is_qualified"`
	MatchedWeight float64 `json:"matched_weight"`
	TotalWeight   float64 `json:"total_weight"`
}

// StrategicLead is a lead captured for a strategic session.
type StrategicLead struct {
	ID                 string            `json:"id"`
	SessionID          string            `json:"session_id"`
	Name               string            `json:"name"`
	Email              string            `json:"email"`
	Phone              string            `json:"phone"`
	UTMSource          string            `json:"utm_source"`
	UTMMedium          string            `json:"utm_medium"`
	UTMCampaign        string            `json:"utm_campaign"`
	UTMContent         string            `json:"utm_content"`
	UTMTerm            string            `json:"utm_term"`
	IsQualified        bool              `json:"is_qualified"`
	QualificationScore Score             `json:"qualification_score"`
	ExtraFields        map[string]string `json:"extra_fields"`
	SourceRowID        string            `json:"source_row_id"`
}

// Fields flattens the lead into the map criteria are evaluated against.
// Extra fields never shadow the fixed columns.
func (l StrategicLead) Fields() map[string]string {
	fields := make(map[string]string, len(l.ExtraFields)+8)
	for k, v := range l.ExtraFields {
		fields[k] = v
	}
	fields["name"] = l.Name
	fields["email"] = l.Email
	fields["phone"] = l.Phone
	fields["utm_source"] = l.UTMSource
	fields["utm_medium"] = l.UTMMedium
	fields["utm_campaign"] = l.UTMCampaign
	fields["utm_content"] = l.UTMContent
	fields["utm_term"] = l.UTMTerm
	return fields
}

// Apply stores a qualification on the lead and reports whether it changed.
func (l *StrategicLead) Apply(q Qualification) bool {
	changed := l.IsQualified != q.Qualified || l.QualificationScore != q.Score
	l.IsQualified = q.Qualified
	l.QualificationScore = q.Score
	return changed
}

// LeadSyncResult summarizes a sync or import run.
type LeadSyncResult struct {
	SessionID string `json:"session_id"`
	Rows      int    `json:"rows"`
	Upserted  int    `json:"upserted"`
	Qualified int    `json:"qualified"`
	Skipped   int    `json:"skipped"`
}

// RecalcResult summarizes a batch re-score.
type RecalcResult struct {
	SessionID string `json:"session_id"`
	Total     int    `json:"total"`
	Updated   int    `json:"updated"`
	Qualified int    `json:"qualified"`
}
