package domain

import (
	"encoding/json"
	"math"
	"time"
)

// ============================================================
// Funnel revenue
// ============================================================

const dateLayout = "2006-01-02"

// DateRange is an inclusive window of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both ends to calendar dates and validates order.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: truncateDay(start), End: truncateDay(end)}
	if r.End.Before(r.Start) {
		return DateRange{}, &ErrValidation{Field: "end", Message: "end date is before start date"}
	}
	return r, nil
}

// Days is the number of calendar days in the window, both ends included.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Previous returns the window of equal length ending the day before Start.
func (r DateRange) Previous() DateRange {
	end := r.Start.AddDate(0, 0, -1)
	return DateRange{
		Start: end.AddDate(0, 0, -(r.Days() - 1)),
		End:   end,
	}
}

// Contains reports whether t falls on a date inside the window.
func (r DateRange) Contains(t time.Time) bool {
	d := truncateDay(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

// String renders the window as "start..end".
func (r DateRange) String() string {
	return r.Start.Format(dateLayout) + ".." + r.End.Format(dateLayout)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Growth is a period-over-period change. It is undefined when there is no
// baseline, which is distinct from a defined growth of zero.
type Growth struct {
	percent int
	defined bool
}

// DefinedGrowth wraps a computed percent.
func DefinedGrowth(percent int) Growth {
	return Growth{percent: percent, defined: true}
}

// UndefinedGrowth is the value used when the previous total is zero.
func UndefinedGrowth() Growth {
	return Growth{}
}

// ComputeGrowth returns round((total-previous)/previous*100), or an
// undefined growth when previous is zero.
func ComputeGrowth(total, previous float64) Growth {
	if previous == 0 {
		return UndefinedGrowth()
	}
	return DefinedGrowth(int(math.Round((total - previous) / previous * 100)))
}

// Defined reports whether a baseline existed.
func (g Growth) Defined() bool { return g.defined }

// Percent returns the growth, or 0 when undefined.
func (g Growth) Percent() int {
	if !g.defined {
		return 0
	}
	return g.percent
}

func (g Growth) MarshalJSON() ([]byte, error) {
	if !g.defined {
		return []byte("null"), nil
	}
	return json.Marshal(g.percent)
}

func (g *Growth) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*g = UndefinedGrowth()
		return nil
	}
	var p int
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*g = DefinedGrowth(p)
	return nil
}

// FunnelRevenue is the revenue attributed to a funnel for a window.
// GrowthPercent keeps the 0 floor for callers that need a number; Growth
// distinguishes "no baseline" from "no change".
type FunnelRevenue struct {
	FunnelID      string  `json:"funnel_id"`
	Start         *string `json:"start,omitempty"`
	End           *string `json:"end,omitempty"`
	Total         float64 `json:"total"`
	Count         int     `json:"count"`
	PreviousTotal float64 `json:"previous_total"`
	PreviousCount int     `json:"previous_count"`
	GrowthPercent int     `json:"growth_percent"`
	Growth        Growth  `json:"growth"`
}

// FunnelLinks are the products a funnel is attributed from.
type FunnelLinks struct {
	ProductIDs   []string `json:"product_ids"`
	ProductNames []string `json:"product_names"`
}

// MatchPreview shows the keyword set derived from each linked product name.
type MatchPreview struct {
	ProductName string   `json:"product_name"`
	Keywords    []string `json:"keywords"`
	Matchable   bool     `json:"matchable"`
}
