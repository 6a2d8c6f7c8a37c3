// Package qualification scores strategic-session leads against weighted
// criteria and maps raw sheet rows into leads.
//
// Score is pure and deterministic: lead sync and the batch re-score both call
// it and must agree for the same lead and criteria.
package qualification

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
)

// QualifiedRatio is the matched/total weight ratio at which a lead qualifies.
const QualifiedRatio = 0.5

// Score evaluates every criterion against the lead's fields.
func Score(fields map[string]string, criteria []domain.QualificationCriterion) domain.Qualification {
	idx := newFieldIndex(fields)

	var matched, total float64
	for _, c := range criteria {
		total += c.Weight
		if Evaluate(idx.get(c.FieldName), c.Operator, c.Value) {
			matched += c.Weight
		}
	}

	if total <= 0 {
		return domain.Qualification{Score: domain.NoScore()}
	}
	ratio := matched / total
	return domain.Qualification{
		Score:         domain.ScoreOf(int(math.Round(ratio * 100))),
		Qualified:     ratio >= QualifiedRatio,
		MatchedWeight: matched,
		TotalWeight:   total,
	}
}

// ScoreLead is Score over a lead's flattened fields.
func ScoreLead(lead domain.StrategicLead, criteria []domain.QualificationCriterion) domain.Qualification {
	return Score(lead.Fields(), criteria)
}

// Evaluate applies one operator. A missing field evaluates as "".
// Numeric comparisons fail when either side does not parse.
func Evaluate(fieldValue string, op domain.Operator, want string) bool {
	switch op {
	case domain.OpEquals:
		return strings.EqualFold(strings.TrimSpace(fieldValue), strings.TrimSpace(want))
	case domain.OpContains:
		if strings.TrimSpace(want) == "" {
			return false
		}
		return strings.Contains(strings.ToLower(fieldValue), strings.ToLower(want))
	case domain.OpGreaterThan, domain.OpLessThan:
		got, ok := parseNumber(fieldValue)
		if !ok {
			return false
		}
		threshold, ok := parseNumber(want)
		if !ok {
			return false
		}
		if op == domain.OpGreaterThan {
			return got > threshold
		}
		return got < threshold
	case domain.OpNotEmpty:
		return strings.TrimSpace(fieldValue) != ""
	}
	return false
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// fieldIndex resolves field names case-insensitively. When two keys differ
// only by case, an exact match wins, then the lexically smallest key. Names
// that are column aliases (Nome, Telefone, E-mail...) also resolve through
// their lead column, so a sheet header and the column it feeds find the same
// value whether the fields came from a raw row or a stored lead.
type fieldIndex struct {
	exact   map[string]string
	folded  map[string]string
	columns map[string]string
}

func newFieldIndex(fields map[string]string) fieldIndex {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	folded := make(map[string]string, len(fields))
	columns := make(map[string]string)
	for _, k := range keys {
		fk := foldKey(k)
		if _, taken := folded[fk]; !taken {
			folded[fk] = fields[k]
		}
		if col := columnOf(k); col != "" && strings.TrimSpace(columns[col]) == "" {
			columns[col] = fields[k]
		}
	}
	return fieldIndex{exact: fields, folded: folded, columns: columns}
}

func (f fieldIndex) get(name string) string {
	if v, ok := f.exact[name]; ok {
		return v
	}
	if v, ok := f.folded[foldKey(name)]; ok {
		return v
	}
	if col := columnOf(name); col != "" {
		return f.columns[col]
	}
	return ""
}

func foldKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
