// Package memstore is an in-memory port.Store for service and handler
// tests. It enforces the same uniqueness and pending-only rules as the SQL
// adapters.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/port"

	"github.com/google/uuid"
)

var _ port.Store = (*Store)(nil)

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	sales        map[string]domain.Sale
	installments map[string][]domain.Installment
	funnelIDs    map[string][]string
	funnelNames  map[string][]string

	commissions    []domain.Commission
	assignments    map[string]*domain.SDRAssignment
	sdrCommissions []domain.SDRCommission

	criteria map[string][]domain.QualificationCriterion
	leads    map[string][]domain.StrategicLead

	salesCalls  int
	leadUpdates int
	salesErr    error
}

func New() *Store {
	return &Store{
		sales:        map[string]domain.Sale{},
		installments: map[string][]domain.Installment{},
		funnelIDs:    map[string][]string{},
		funnelNames:  map[string][]string{},
		assignments:  map[string]*domain.SDRAssignment{},
		criteria:     map[string][]domain.QualificationCriterion{},
		leads:        map[string][]domain.StrategicLead{},
	}
}

// AddSale stores a sale and n equal installments due monthly from the sale
// date. The installment numbers listed in paid are settled.
func (m *Store) AddSale(s domain.Sale, n int, paid ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Status == "" {
		s.Status = domain.SaleActive
	}
	s.InstallmentsCount = n
	m.sales[s.ID] = s

	paidSet := map[int]bool{}
	for _, p := range paid {
		paidSet[p] = true
	}
	for i := 1; i <= n; i++ {
		inst := domain.Installment{
			ID:                fmt.Sprintf("%s-i%d", s.ID, i),
			SaleID:            s.ID,
			Number:            i,
			TotalInstallments: n,
			Value:             s.TotalValue / float64(n),
			DueDate:           s.SaleDate.AddDate(0, i-1, 0),
			Status:            domain.InstallmentPending,
		}
		if paidSet[i] {
			inst.Status = domain.InstallmentPaid
			at := inst.DueDate
			inst.PaymentDate = &at
		}
		m.installments[s.ID] = append(m.installments[s.ID], inst)
	}
}

func (m *Store) Ping(context.Context) error { return nil }

func (m *Store) GetSale(_ context.Context, saleID string) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sales[saleID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "sale", ID: saleID}
	}
	return &s, nil
}

func (m *Store) ListActiveSales(_ context.Context, window *domain.DateRange) ([]domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.salesCalls++
	if m.salesErr != nil {
		return nil, m.salesErr
	}
	var out []domain.Sale
	for _, s := range m.sales {
		if s.Status != domain.SaleActive {
			continue
		}
		if window != nil && !window.Contains(s.SaleDate) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Store) ListInstallments(_ context.Context, saleID string) ([]domain.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]domain.Installment(nil), m.installments[saleID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *Store) findInstallment(id string) *domain.Installment {
	for saleID := range m.installments {
		for i := range m.installments[saleID] {
			if m.installments[saleID][i].ID == id {
				return &m.installments[saleID][i]
			}
		}
	}
	return nil
}

func (m *Store) GetInstallment(_ context.Context, installmentID string) (*domain.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst := m.findInstallment(installmentID)
	if inst == nil {
		return nil, &domain.ErrNotFound{Resource: "installment", ID: installmentID}
	}
	cp := *inst
	return &cp, nil
}

func (m *Store) MarkInstallmentPaid(_ context.Context, installmentID string, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst := m.findInstallment(installmentID)
	if inst == nil {
		return &domain.ErrNotFound{Resource: "installment", ID: installmentID}
	}
	inst.Status = domain.InstallmentPaid
	inst.PaymentDate = &paidAt
	for i := range m.commissions {
		if c := &m.commissions[i]; c.InstallmentID == installmentID && c.Status == domain.CommissionPending {
			c.Status, c.ReleasedAt = domain.CommissionReleased, &paidAt
		}
	}
	for i := range m.sdrCommissions {
		if c := &m.sdrCommissions[i]; c.InstallmentID == installmentID && c.Status == domain.CommissionPending {
			c.Status, c.ReleasedAt = domain.CommissionReleased, &paidAt
		}
	}
	return nil
}

func (m *Store) ListFunnelProductIDs(_ context.Context, funnelID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.funnelIDs[funnelID]...), nil
}

func (m *Store) ListFunnelProductNames(_ context.Context, funnelID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.funnelNames[funnelID]...), nil
}

func (m *Store) LinkProduct(_ context.Context, funnelID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funnelIDs[funnelID] = append(m.funnelIDs[funnelID], productID)
	return nil
}

func (m *Store) LinkSalesProductName(_ context.Context, funnelID, productName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funnelNames[funnelID] = append(m.funnelNames[funnelID], productName)
	return nil
}

func (m *Store) ReplaceSaleCommissions(_ context.Context, saleID, sellerID string, rows []domain.Commission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sales[saleID]
	if !ok {
		return &domain.ErrNotFound{Resource: "sale", ID: saleID}
	}
	s.SellerID = &sellerID
	m.sales[saleID] = s

	owned := map[string]bool{}
	for _, inst := range m.installments[saleID] {
		owned[inst.ID] = true
	}
	kept := m.commissions[:0]
	for _, c := range m.commissions {
		if !owned[c.InstallmentID] {
			kept = append(kept, c)
		}
	}
	m.commissions = kept
	for _, r := range rows {
		r.ID = uuid.NewString()
		m.commissions = append(m.commissions, r)
	}
	return nil
}

func (m *Store) ListCommissions(_ context.Context, f domain.CommissionFilter) ([]domain.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := map[string]bool{}
	for _, id := range f.InstallmentIDs {
		ids[id] = true
	}
	out := []domain.Commission{}
	for _, c := range m.commissions {
		switch {
		case f.SellerID != "" && c.SellerID != f.SellerID,
			f.InstallmentIDs != nil && !ids[c.InstallmentID],
			f.CompetenceMonth != nil && !c.CompetenceMonth.Equal(*f.CompetenceMonth),
			f.Status != "" && c.Status != f.Status:
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *Store) GetCommission(_ context.Context, id string) (*domain.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.commissions {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "commission", ID: id}
}

func (m *Store) UpdateCommissionStatus(_ context.Context, id string, status domain.CommissionStatus, releasedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.commissions {
		if m.commissions[i].ID == id {
			m.commissions[i].Status = status
			m.commissions[i].ReleasedAt = releasedAt
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "commission", ID: id}
}

func (m *Store) CreateSDRAssignment(_ context.Context, a *domain.SDRAssignment) (*domain.SDRAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.assignments {
		if existing.SaleID == a.SaleID {
			return nil, &domain.ErrAlreadyAssigned{SaleID: a.SaleID}
		}
	}
	cp := *a
	cp.ID = uuid.NewString()
	cp.Status = domain.SDRPending
	cp.CreatedAt = time.Now()
	m.assignments[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *Store) GetSDRAssignment(_ context.Context, id string) (*domain.SDRAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "sdr_assignment", ID: id}
	}
	cp := *a
	return &cp, nil
}

func (m *Store) ListSDRAssignments(_ context.Context, f domain.SDRAssignmentFilter) ([]domain.SDRAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.SDRAssignment{}
	for _, a := range m.assignments {
		if (f.Status == "" || a.Status == f.Status) && (f.SDRID == "" || a.SDRID == f.SDRID) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Store) ApproveSDRAssignment(_ context.Context, id, approver string, at time.Time, rows []domain.SDRCommission) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return 0, &domain.ErrNotFound{Resource: "sdr_assignment", ID: id}
	}
	if a.Status != domain.SDRPending {
		return 0, &domain.ErrConflict{Message: "not pending"}
	}
	a.Status, a.ApprovedBy, a.ApprovedAt = domain.SDRApproved, &approver, &at
	for _, r := range rows {
		r.ID = uuid.NewString()
		m.sdrCommissions = append(m.sdrCommissions, r)
	}
	return len(rows), nil
}

func (m *Store) RejectSDRAssignment(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "sdr_assignment", ID: id}
	}
	if a.Status != domain.SDRPending {
		return &domain.ErrConflict{Message: "not pending"}
	}
	a.Status, a.RejectionReason = domain.SDRRejected, &reason
	return nil
}

func (m *Store) DeletePendingSDRAssignment(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok || a.Status != domain.SDRPending {
		return 0, nil
	}
	delete(m.assignments, id)
	return 1, nil
}

func (m *Store) ListSDRCommissions(_ context.Context, f domain.SDRCommissionFilter) ([]domain.SDRCommission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := map[string]bool{}
	for _, id := range f.InstallmentIDs {
		ids[id] = true
	}
	out := []domain.SDRCommission{}
	for _, c := range m.sdrCommissions {
		switch {
		case f.SDRID != "" && c.SDRID != f.SDRID,
			f.SDRAssignmentID != "" && c.SDRAssignmentID != f.SDRAssignmentID,
			f.InstallmentIDs != nil && !ids[c.InstallmentID],
			f.CompetenceMonth != nil && !c.CompetenceMonth.Equal(*f.CompetenceMonth):
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *Store) ListCriteria(_ context.Context, sessionID string) ([]domain.QualificationCriterion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.criteria[sessionID], nil
}

func (m *Store) ListLeads(_ context.Context, sessionID string) ([]domain.StrategicLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StrategicLead(nil), m.leads[sessionID]...), nil
}

func (m *Store) UpsertLeads(_ context.Context, leads []domain.StrategicLead) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range leads {
		existing := m.leads[l.SessionID]
		replaced := false
		for i := range existing {
			if existing[i].SourceRowID == l.SourceRowID {
				l.ID = existing[i].ID
				existing[i] = l
				replaced = true
				break
			}
		}
		if !replaced {
			l.ID = uuid.NewString()
			existing = append(existing, l)
		}
		m.leads[l.SessionID] = existing
	}
	return len(leads), nil
}

func (m *Store) UpdateLeadQualification(_ context.Context, leadID string, q domain.Qualification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leadUpdates++
	for session, leads := range m.leads {
		for i := range leads {
			if leads[i].ID == leadID {
				m.leads[session][i].IsQualified = q.Qualified
				m.leads[session][i].QualificationScore = q.Score
				return nil
			}
		}
	}
	return &domain.ErrNotFound{Resource: "strategic_lead", ID: leadID}
}

// SetFunnel replaces a funnel's linked product ids and names.
func (m *Store) SetFunnel(funnelID string, productIDs, productNames []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funnelIDs[funnelID] = productIDs
	m.funnelNames[funnelID] = productNames
}

// SetCriteria replaces a session's qualification criteria.
func (m *Store) SetCriteria(sessionID string, criteria []domain.QualificationCriterion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.criteria[sessionID] = criteria
}

// FailSales makes ListActiveSales return err until called again with nil.
func (m *Store) FailSales(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.salesErr = err
}

// SalesCalls counts ListActiveSales calls.
func (m *Store) SalesCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.salesCalls
}

// LeadUpdates counts UpdateLeadQualification calls.
func (m *Store) LeadUpdates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leadUpdates
}
