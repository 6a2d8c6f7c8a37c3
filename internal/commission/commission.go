// Package commission computes seller and SDR commission rows from a sale's
// installments. It performs no I/O; stores persist what it returns.
package commission

import (
	"sort"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ResolvePercent picks the caller override, then the sale's own percent,
// then the fallback.
func ResolvePercent(override, salePercent *float64, fallback float64) float64 {
	if override != nil {
		return *override
	}
	if salePercent != nil {
		return *salePercent
	}
	return fallback
}

// Value is installmentValue × percent / 100.
func Value(installmentValue, percent float64) float64 {
	return decimal.NewFromFloat(installmentValue).
		Mul(decimal.NewFromFloat(percent)).
		Div(hundred).
		InexactFloat64()
}

// CompetenceMonth is the first day of the due date's month.
func CompetenceMonth(due time.Time) time.Time {
	return time.Date(due.Year(), due.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// status is released when the installment is paid, pending otherwise.
func status(inst domain.Installment, now time.Time) (domain.CommissionStatus, *time.Time) {
	if inst.Paid() {
		at := now
		return domain.CommissionReleased, &at
	}
	return domain.CommissionPending, nil
}

// ForSeller builds one commission per installment for the seller.
func ForSeller(installments []domain.Installment, sellerID string, percent float64, now time.Time) []domain.Commission {
	rows := make([]domain.Commission, 0, len(installments))
	for _, inst := range byNumber(installments) {
		st, releasedAt := status(inst, now)
		rows = append(rows, domain.Commission{
			InstallmentID:     inst.ID,
			SellerID:          sellerID,
			InstallmentValue:  inst.Value,
			CommissionPercent: percent,
			CommissionValue:   Value(inst.Value, percent),
			CompetenceMonth:   CompetenceMonth(inst.DueDate),
			Status:            st,
			ReleasedAt:        releasedAt,
		})
	}
	return rows
}

// ForSDR builds one SDR commission per installment, ordered by
// installment number.
func ForSDR(a domain.SDRAssignment, installments []domain.Installment, now time.Time) []domain.SDRCommission {
	rows := make([]domain.SDRCommission, 0, len(installments))
	for _, inst := range byNumber(installments) {
		st, releasedAt := status(inst, now)
		rows = append(rows, domain.SDRCommission{
			InstallmentID:     inst.ID,
			SDRAssignmentID:   a.ID,
			SDRID:             a.SDRID,
			InstallmentValue:  inst.Value,
			CommissionPercent: a.CommissionPercent,
			CommissionValue:   Value(inst.Value, a.CommissionPercent),
			CompetenceMonth:   CompetenceMonth(inst.DueDate),
			Status:            st,
			ReleasedAt:        releasedAt,
		})
	}
	return rows
}

func byNumber(installments []domain.Installment) []domain.Installment {
	sorted := make([]domain.Installment, len(installments))
	copy(sorted, installments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })
	return sorted
}

// Statement totals a seller's commissions per status. Amounts are rounded
// to cents.
func Statement(sellerID string, month time.Time, rows []domain.Commission) *domain.CommissionStatement {
	sums := map[domain.CommissionStatus]decimal.Decimal{}
	total := decimal.Zero
	for _, c := range rows {
		v := decimal.NewFromFloat(c.CommissionValue)
		sums[c.Status] = sums[c.Status].Add(v)
		if c.Status != domain.CommissionCancelled {
			total = total.Add(v)
		}
	}

	cents := func(d decimal.Decimal) float64 { return d.Round(2).InexactFloat64() }
	if rows == nil {
		rows = []domain.Commission{}
	}
	return &domain.CommissionStatement{
		SellerID:        sellerID,
		CompetenceMonth: CompetenceMonth(month),
		Pending:         cents(sums[domain.CommissionPending]),
		Released:        cents(sums[domain.CommissionReleased]),
		Suspended:       cents(sums[domain.CommissionSuspended]),
		Cancelled:       cents(sums[domain.CommissionCancelled]),
		Total:           cents(total),
		Count:           len(rows),
		Items:           rows,
	}
}
