package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
)

func TestScore_JSONNullWhenUndefined(t *testing.T) {
	lead := domain.StrategicLead{ID: "l1", QualificationScore: domain.NoScore()}
	b, err := json.Marshal(lead)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	_ = json.Unmarshal(b, &raw)
	if v, ok := raw["qualification_score"]; !ok || v != nil {
		t.Errorf("expected qualification_score null, got %v", v)
	}
}

func TestScore_PtrRoundTrip(t *testing.T) {
	if domain.NoScore().Ptr() != nil {
		t.Error("expected nil pointer for undefined score")
	}
	s := domain.ScoreFromPtr(domain.ScoreOf(67).Ptr())
	if v, ok := s.Value(); !ok || v != 67 {
		t.Errorf("expected 67, got %d (defined=%v)", v, ok)
	}
}

func TestStrategicLead_FieldsPreferFixedColumns(t *testing.T) {
	lead := domain.StrategicLead{
		Email:       "a@b.com",
		ExtraFields: map[string]string{"email": "shadow@x.com", "Faturamento": "20000"},
	}
	f := lead.Fields()
	if f["email"] != "a@b.com" {
		t.Errorf("expected fixed email to win, got %q", f["email"])
	}
	if f["Faturamento"] != "20000" {
		t.Errorf("expected extra field to be present, got %q", f["Faturamento"])
	}
}

func TestStrategicLead_ApplyReportsChange(t *testing.T) {
	lead := domain.StrategicLead{}
	q := domain.Qualification{Score: domain.ScoreOf(80), Qualified: true}
	if !lead.Apply(q) {
		t.Fatal("expected first apply to report a change")
	}
	if lead.Apply(q) {
		t.Error("expected identical apply to report no change")
	}
}

func TestParseOperator(t *testing.T) {
	if _, err := domain.ParseOperator("greater_than"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := domain.ParseOperator("between"); err == nil {
		t.Error("expected error for unknown operator")
	}
}
