package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ port.Store = (*Store)(nil)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStore(mock, zap.NewNop()), mock
}

var march = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestReplaceSaleCommissions_SingleTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sales SET seller_id").
		WithArgs("sale-1", "seller-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM commissions").
		WithArgs("sale-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCopyFrom(pgx.Identifier{"commissions"}, commissionColumns).WillReturnResult(3)
	mock.ExpectCommit()

	rows := []domain.Commission{
		{InstallmentID: "i1", SellerID: "seller-1", InstallmentValue: 100, CommissionPercent: 10, CommissionValue: 10, CompetenceMonth: march, Status: domain.CommissionPending},
		{InstallmentID: "i2", SellerID: "seller-1", InstallmentValue: 100, CommissionPercent: 10, CommissionValue: 10, CompetenceMonth: march.AddDate(0, 1, 0), Status: domain.CommissionPending},
		{InstallmentID: "i3", SellerID: "seller-1", InstallmentValue: 100, CommissionPercent: 10, CommissionValue: 10, CompetenceMonth: march.AddDate(0, 2, 0), Status: domain.CommissionPending},
	}
	require.NoError(t, store.ReplaceSaleCommissions(context.Background(), "sale-1", "seller-1", rows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceSaleCommissions_MissingSaleRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sales SET seller_id").
		WithArgs("ghost", "seller-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := store.ReplaceSaleCommissions(context.Background(), "ghost", "seller-1", nil)
	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceSaleCommissions_CopyFailureRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sales SET seller_id").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM commissions").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"commissions"}, commissionColumns).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.ReplaceSaleCommissions(context.Background(), "sale-1", "seller-1", []domain.Commission{{InstallmentID: "i1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy commissions")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSDRAssignment_UniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO sdr_assignments").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "sdr_assignments_sale_id_key"})

	_, err := store.CreateSDRAssignment(context.Background(), &domain.SDRAssignment{
		SaleID: "sale-1", SDRID: "sdr-1", ProofLink: "https://proof", CommissionPercent: 1,
	})
	var dup *domain.ErrAlreadyAssigned
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "sale-1", dup.SaleID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSDRAssignment_ReturnsPendingRow(t *testing.T) {
	store, mock := newMockStore(t)
	createdAt := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO sdr_assignments").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow("a-1", createdAt))

	a, err := store.CreateSDRAssignment(context.Background(), &domain.SDRAssignment{
		SaleID: "sale-1", SDRID: "sdr-1", ProofLink: "https://proof", CommissionPercent: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "a-1", a.ID)
	assert.Equal(t, domain.SDRPending, a.Status)
	assert.Equal(t, createdAt, a.CreatedAt)
}

func TestApproveSDRAssignment_InsertsRows(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sdr_assignments SET status = 'approved'").
		WithArgs("a-1", "admin-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"sdr_commissions"}, sdrCommissionColumns).WillReturnResult(3)
	mock.ExpectCommit()

	rows := make([]domain.SDRCommission, 3)
	for i := range rows {
		rows[i] = domain.SDRCommission{InstallmentID: "i", SDRAssignmentID: "a-1", SDRID: "sdr-1", CompetenceMonth: march, Status: domain.CommissionPending}
	}
	n, err := store.ApproveSDRAssignment(context.Background(), "a-1", "admin-1", now, rows)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveSDRAssignment_AlreadyApproved(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sdr_assignments SET status = 'approved'").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM sdr_assignments").
		WithArgs("a-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("approved"))
	mock.ExpectRollback()

	_, err := store.ApproveSDRAssignment(context.Background(), "a-1", "admin-1", time.Now(), nil)
	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectSDRAssignment_Unknown(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE sdr_assignments SET status = 'rejected'").
		WithArgs("nope", "no proof").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM sdr_assignments").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	err := store.RejectSDRAssignment(context.Background(), "nope", "no proof")
	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePendingSDRAssignment(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
	}{
		{"pending assignment", 1},
		{"approved assignment is a no-op", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectExec("DELETE FROM sdr_assignments WHERE id = \\$1 AND status = 'pending'").
				WithArgs("a-1").
				WillReturnResult(pgxmock.NewResult("DELETE", tt.affected))

			n, err := store.DeletePendingSDRAssignment(context.Background(), "a-1")
			require.NoError(t, err)
			assert.Equal(t, tt.affected, n)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMarkInstallmentPaid_ReleasesBothCommissionKinds(t *testing.T) {
	store, mock := newMockStore(t)
	paidAt := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE installments SET status = 'paid'").
		WithArgs("i1", paidAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE commissions SET status = 'released'").
		WithArgs("i1", paidAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE sdr_commissions SET status = 'released'").
		WithArgs("i1", paidAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, store.MarkInstallmentPaid(context.Background(), "i1", paidAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLeads_TempTableMerge(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{leadTempTable}, leadColumns).WillReturnResult(2)
	mock.ExpectExec("INSERT INTO strategic_leads").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	leads := []domain.StrategicLead{
		{SessionID: "s", SourceRowID: "1", Name: "old"},
		{SessionID: "s", SourceRowID: "2"},
		{SessionID: "s", SourceRowID: "1", Name: "new"},
	}
	n, err := store.UpsertLeads(context.Background(), leads)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLeads_Empty(t *testing.T) {
	store, mock := newMockStore(t)
	n, err := store.UpsertLeads(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCriteria(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM strategic_qualification_criteria").
		WithArgs("sess").
		WillReturnRows(pgxmock.NewRows([]string{"id", "session_id", "field_name", "operator", "value", "weight"}).
			AddRow("c1", "sess", "cargo", "equals", "CEO", 2.0).
			AddRow("c2", "sess", "faturamento", "greater_than", "10000", 1.0))

	got, err := store.ListCriteria(context.Background(), "sess")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.OpEquals, got[0].Operator)
	assert.Equal(t, domain.OpGreaterThan, got[1].Operator)
	assert.Equal(t, 2.0, got[0].Weight)
}

func TestListFunnelProductIDs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT product_id FROM funnel_products").
		WithArgs("f1").
		WillReturnRows(pgxmock.NewRows([]string{"product_id"}).AddRow("p1").AddRow("p2"))

	ids, err := store.ListFunnelProductIDs(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)
}

func TestWhereBuilder(t *testing.T) {
	var w whereBuilder
	assert.Equal(t, "", w.sql())

	w.add("seller_id = ?", "s1")
	w.add("status = ?", "pending")
	assert.Equal(t, " WHERE seller_id = $1 AND status = $2", w.sql())
	assert.Equal(t, []any{"s1", "pending"}, w.args)
}

func TestDecodeExtra(t *testing.T) {
	got := decodeExtra(`{"cargo":"CEO","faturamento":50000,"obs":null}`)
	assert.Equal(t, map[string]string{"cargo": "CEO", "faturamento": "50000", "obs": ""}, got)
	assert.Empty(t, decodeExtra("not json"))
}
