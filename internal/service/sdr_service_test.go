package service_test

import (
	"context"
	"testing"

	"github.com/boddenberg/ops-bfa-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createAssignment(t *testing.T, s *services, saleID string) *domain.SDRAssignment {
	t.Helper()
	a, err := s.sdr.Create(context.Background(), domain.SDRAssignmentRequest{
		SaleID:    saleID,
		SDRID:     "sdr-1",
		ProofLink: "https://crm.example.com/deal/1",
		CreatedBy: "user-1",
	})
	require.NoError(t, err)
	return a
}

func TestCreateAssignment_DefaultsAndDuplicate(t *testing.T) {
	s := newServices(t)
	s.store.AddSale(domain.Sale{ID: "s1", TotalValue: 300, SaleDate: day(2024, 3, 10)}, 3)

	a := createAssignment(t, s, "s1")
	assert.Equal(t, domain.SDRPending, a.Status)
	assert.Equal(t, domain.DefaultSDRPercent, a.CommissionPercent)
	require.NotNil(t, a.CreatedBy)
	assert.Equal(t, "user-1", *a.CreatedBy)

	_, err := s.sdr.Create(context.Background(), domain.SDRAssignmentRequest{
		SaleID: "s1", SDRID: "sdr-2", ProofLink: "https://x",
	})
	var dup *domain.ErrAlreadyAssigned
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "s1", dup.SaleID)
}

func TestCreateAssignment_Validation(t *testing.T) {
	s := newServices(t)
	s.store.AddSale(domain.Sale{ID: "s1", TotalValue: 300, SaleDate: day(2024, 3, 10)}, 3)

	tests := []struct {
		name  string
		req   domain.SDRAssignmentRequest
		field string
	}{
		{"missing sale", domain.SDRAssignmentRequest{SDRID: "u", ProofLink: "p"}, "sale_id"},
		{"missing sdr", domain.SDRAssignmentRequest{SaleID: "s1", ProofLink: "p"}, "sdr_id"},
		{"missing proof", domain.SDRAssignmentRequest{SaleID: "s1", SDRID: "u", ProofLink: "  "}, "proof_link"},
		{"negative percent", domain.SDRAssignmentRequest{SaleID: "s1", SDRID: "u", ProofLink: "p", CommissionPercent: pct(-1)}, "commission_percent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.sdr.Create(context.Background(), tt.req)
			var verr *domain.ErrValidation
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestApprove_CreatesOneCommissionPerInstallment(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.store.AddSale(domain.Sale{ID: "s1", TotalValue: 300, SaleDate: day(2024, 3, 10)}, 3, 1)
	a := createAssignment(t, s, "s1")

	res, err := s.sdr.Approve(ctx, a.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.CommissionsCreated)

	rows, err := s.sdr.ListCommissions(ctx, domain.SDRCommissionFilter{SDRAssignmentID: a.ID})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	released := 0
	for _, r := range rows {
		assert.Equal(t, 1.0, r.CommissionValue)
		if r.Status == domain.CommissionReleased {
			released++
		}
	}
	assert.Equal(t, 1, released)

	stored, err := s.store.GetSDRAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SDRApproved, stored.Status)
	assert.Equal(t, "admin-1", *stored.ApprovedBy)

	_, err = s.sdr.Approve(ctx, a.ID, "admin-1")
	var conflict *domain.ErrConflict
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, 1.0, s.metrics.GetOpsSnapshot().SDRApproved)
	assert.Equal(t, 3.0, s.metrics.GetOpsSnapshot().SDRCommissionsGenerated)
}

func TestApprove_ShowsInSaleView(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.store.AddSale(domain.Sale{ID: "s1", TotalValue: 200, SaleDate: day(2024, 3, 10)}, 2)
	a := createAssignment(t, s, "s1")

	view, err := s.commissions.SaleCommissions(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, view.SDR)

	_, err = s.sdr.Approve(ctx, a.ID, "admin-1")
	require.NoError(t, err)

	view, err = s.commissions.SaleCommissions(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, view.SDR, 2)
}

func TestReject(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.store.AddSale(domain.Sale{ID: "s1", TotalValue: 300, SaleDate: day(2024, 3, 10)}, 3)
	a := createAssignment(t, s, "s1")

	err := s.sdr.Reject(ctx, a.ID, "   ")
	var verr *domain.ErrValidation
	require.ErrorAs(t, err, &verr)

	require.NoError(t, s.sdr.Reject(ctx, a.ID, "no proof of contact"))

	_, err = s.sdr.Approve(ctx, a.ID, "admin-1")
	var conflict *domain.ErrConflict
	assert.ErrorAs(t, err, &conflict)

	rows, err := s.sdr.ListCommissions(ctx, domain.SDRCommissionFilter{SDRAssignmentID: a.ID})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDelete_OnlyPending(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.store.AddSale(domain.Sale{ID: "s1", TotalValue: 300, SaleDate: day(2024, 3, 10)}, 3)
	s.store.AddSale(domain.Sale{ID: "s2", TotalValue: 300, SaleDate: day(2024, 3, 10)}, 3)
	approved := createAssignment(t, s, "s1")
	pending := createAssignment(t, s, "s2")
	_, err := s.sdr.Approve(ctx, approved.ID, "admin-1")
	require.NoError(t, err)

	n, err := s.sdr.Delete(ctx, approved.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = s.store.GetSDRAssignment(ctx, approved.ID)
	assert.NoError(t, err, "approved assignment must still exist")

	n, err = s.sdr.Delete(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := s.sdr.List(ctx, domain.SDRAssignmentFilter{Status: domain.SDRPending})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.sdr.List(ctx, domain.SDRAssignmentFilter{Status: "archived"})
	var verr *domain.ErrValidation
	assert.ErrorAs(t, err, &verr)
}
