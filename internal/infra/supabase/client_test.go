package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/ops-bfa-go/internal/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ port.Store = (*Client)(nil)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, "service-key",
		resilience.NewCircuitBreaker("supabase-test"),
		resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond},
		zap.NewNop(),
	)
}

func TestGetSale_DecodesDateColumns(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/sales", r.URL.Path)
		assert.Equal(t, "eq.s1", r.URL.Query().Get("id"))
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[{"id":"s1","product_name":"Curso X","product_id":null,"total_value":300,
			"installments_count":3,"sale_date":"2024-03-10","status":"active","seller_id":null,"commission_percent":12.5}]`)
	})

	sale, err := c.GetSale(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Curso X", sale.ProductName)
	assert.Nil(t, sale.ProductID)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), sale.SaleDate)
	require.NotNil(t, sale.CommissionPercent)
	assert.Equal(t, 12.5, *sale.CommissionPercent)
}

func TestGetSale_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})

	_, err := c.GetSale(context.Background(), "missing")
	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "sale", nf.Resource)
}

func TestListActiveSales_WindowFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "eq.active", q.Get("status"))
		assert.Equal(t, []string{"gte.2024-03-01", "lt.2024-04-01"}, q["sale_date"])
		assert.Equal(t, "0", q.Get("offset"))
		_, _ = io.WriteString(w, `[{"id":"a","sale_date":"2024-03-05T10:00:00+00:00","status":"active","total_value":100}]`)
	})

	window, err := domain.NewDateRange(
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	sales, err := c.ListActiveSales(context.Background(), &window)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, 100.0, sales[0].TotalValue)
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `[{"product_id":"p1"},{"product_id":"p2"}]`)
	})

	ids, err := c.ListFunnelProductIDs(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"PGRST100","message":"bad filter"}`)
	})

	_, err := c.ListFunnelProductNames(context.Background(), "f1")
	var ext *domain.ErrExternalService
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "supabase/funnel_sales_products", ext.Service)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateSDRAssignment_DuplicateSale(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"code":"23505","message":"duplicate key value violates unique constraint \"sdr_assignments_sale_id_key\""}`)
	})

	_, err := c.CreateSDRAssignment(context.Background(), &domain.SDRAssignment{SaleID: "s1", SDRID: "u1", ProofLink: "https://x"})
	var dup *domain.ErrAlreadyAssigned
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "s1", dup.SaleID)
}

func TestApproveSDRAssignment(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/approve_sdr_assignment", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `3`)
	})

	month := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []domain.SDRCommission{
		{InstallmentID: "i1", SDRAssignmentID: "a1", SDRID: "u1", CompetenceMonth: month, Status: domain.CommissionPending},
		{InstallmentID: "i2", SDRAssignmentID: "a1", SDRID: "u1", CompetenceMonth: month, Status: domain.CommissionPending},
		{InstallmentID: "i3", SDRAssignmentID: "a1", SDRID: "u1", CompetenceMonth: month, Status: domain.CommissionPending},
	}
	n, err := c.ApproveSDRAssignment(context.Background(), "a1", "admin", time.Now(), rows)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "a1", got["p_assignment_id"])
	assert.Len(t, got["p_rows"], 3)
	first := got["p_rows"].([]any)[0].(map[string]any)
	assert.Equal(t, "2024-03-01", first["competence_month"])
}

func TestApproveSDRAssignment_NotPending(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"P0001","message":"assignment is not pending"}`)
	})

	_, err := c.ApproveSDRAssignment(context.Background(), "a1", "admin", time.Now(), nil)
	var conflict *domain.ErrConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestDeletePendingSDRAssignment_CountsRows(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int64
	}{
		{"pending row removed", `[{"id":"a1","status":"pending"}]`, 1},
		{"approved is untouched", `[]`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				assert.Equal(t, "eq.pending", r.URL.Query().Get("status"))
				assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
				_, _ = io.WriteString(w, tt.body)
			})
			n, err := c.DeletePendingSDRAssignment(context.Background(), "a1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestRejectSDRAssignment_NotPending(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			_, _ = io.WriteString(w, `[]`)
			return
		}
		_, _ = io.WriteString(w, `[{"id":"a1","status":"approved","created_at":"2024-03-01T00:00:00Z"}]`)
	})

	err := c.RejectSDRAssignment(context.Background(), "a1", "no proof")
	var conflict *domain.ErrConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestWrites_AreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.ReplaceSaleCommissions(context.Background(), "s1", "seller", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRPC_MissingFunctionIsAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":"PGRST202","message":"Could not find the function public.approve_sdr_assignment"}`)
	})
	ctx := context.Background()

	n, err := c.ApproveSDRAssignment(ctx, "a1", "admin", time.Now(), nil)
	var ext *domain.ErrExternalService
	require.ErrorAs(t, err, &ext)
	assert.Zero(t, n)

	err = c.ReplaceSaleCommissions(ctx, "s1", "seller", nil)
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "supabase/rpc/replace_sale_commissions", ext.Service)
}

func TestListCriteria_ReadsStrategicTable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/strategic_qualification_criteria", r.URL.Path)
		assert.Equal(t, "eq.sess-1", r.URL.Query().Get("session_id"))
		_, _ = io.WriteString(w, `[{"id":"c1","session_id":"sess-1","field_name":"Telefone","operator":"not_empty","value":"","weight":1}]`)
	})

	got, err := c.ListCriteria(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Telefone", got[0].FieldName)
	assert.Equal(t, domain.OpNotEmpty, got[0].Operator)
}

func TestUpsertLeads_MergesOnSourceRow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "session_id,source_row_id", r.URL.Query().Get("on_conflict"))
		assert.Equal(t, "resolution=merge-duplicates,return=representation", r.Header.Get("Prefer"))
		var rows []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rows))
		assert.Nil(t, rows[1]["qualification_score"])
		assert.EqualValues(t, 67, rows[0]["qualification_score"])
		_, _ = io.WriteString(w, `[{"id":"l1"},{"id":"l2"}]`)
	})

	leads := []domain.StrategicLead{
		{SessionID: "s", SourceRowID: "1", QualificationScore: domain.ScoreOf(67), IsQualified: true},
		{SessionID: "s", SourceRowID: "2", QualificationScore: domain.NoScore()},
	}
	n, err := c.UpsertLeads(context.Background(), leads)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListLeads_StringifiesExtraFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"l1","session_id":"s","name":"Ana","qualification_score":null,
			"extra_fields":{"faturamento":50000,"cargo":"CEO","obs":null},"source_row_id":"1"}]`)
	})

	leads, err := c.ListLeads(context.Background(), "s")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "50000", leads[0].ExtraFields["faturamento"])
	assert.Equal(t, "CEO", leads[0].ExtraFields["cargo"])
	_, defined := leads[0].QualificationScore.Value()
	assert.False(t, defined)
}

func TestListCommissions_EmptyInstallmentSetSkipsRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})

	rows, err := c.ListCommissions(context.Background(), domain.CommissionFilter{InstallmentIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCircuitOpen(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c.cfg.MaxRetries = 0

	var last error
	for i := 0; i < 6; i++ {
		_, last = c.ListFunnelProductIDs(context.Background(), "f1")
	}
	var open *domain.ErrCircuitOpen
	assert.True(t, errors.As(last, &open))
}
