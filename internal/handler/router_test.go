package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/handler"
	"github.com/boddenberg/ops-bfa-go/internal/infra/cache"
	"github.com/boddenberg/ops-bfa-go/internal/infra/memstore"
	"github.com/boddenberg/ops-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ops-bfa-go/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type testAPI struct {
	store  *memstore.Store
	router http.Handler
}

func newTestAPI(t *testing.T, secret string) *testAPI {
	t.Helper()
	store := memstore.New()
	metrics := observability.NewMetrics()
	logger := zap.NewNop()

	revenueCache := cache.New[*domain.FunnelRevenue](time.Minute)
	views := cache.New[*domain.SaleCommissions](time.Minute)
	t.Cleanup(revenueCache.Close)
	t.Cleanup(views.Close)

	svc := handler.Services{
		Revenue:     service.NewRevenueService(store, store, revenueCache, metrics, logger),
		Commissions: service.NewCommissionService(store, store, store, views, domain.DefaultCommissionPercent, metrics, logger),
		SDR:         service.NewSDRService(store, store, views, domain.DefaultSDRPercent, metrics, logger),
		Leads:       service.NewLeadService(store, nil, 2, 0, metrics, logger),
		Store:       store,
	}
	return &testAPI{
		store:  store,
		router: handler.NewRouter(svc, handler.Options{JWTSecret: secret, CORSOrigins: []string{"*"}}, metrics, logger),
	}
}

func (a *testAPI) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, r)
	return rec
}

func signToken(t *testing.T, userID, role string) string {
	t.Helper()
	claims := handler.Claims{
		Email: userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	claims.AppMetadata.Role = role
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOperationalEndpoints(t *testing.T) {
	api := newTestAPI(t, "")

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/ping", "/v1/metrics/ops"} {
		t.Run(path, func(t *testing.T) {
			rec := api.do(t, http.MethodGet, path, "", "")
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}

	health := decode[domain.HealthStatus](t, api.do(t, http.MethodGet, "/healthz", "", ""))
	assert.Equal(t, "healthy", health.Status)
	require.Len(t, health.Services, 2)
	assert.Equal(t, "store", health.Services[1].Name)
}

func TestFunnelRevenue(t *testing.T) {
	api := newTestAPI(t, "")
	api.store.AddSale(domain.Sale{ID: "s1", ProductName: "MBA Avançado 2025", TotalValue: 300, SaleDate: day(2024, 3, 10)}, 3)
	api.store.AddSale(domain.Sale{ID: "s2", ProductName: "Outro", TotalValue: 50, SaleDate: day(2024, 3, 12)}, 1)

	rec := api.do(t, http.MethodPost, "/v1/funnels/f1/sales-products", `{"product_name":"MBA Avançado"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/v1/funnels/f1/revenue?start=2024-03-01&end=2024-03-31", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rev := decode[domain.FunnelRevenue](t, rec)
	assert.Equal(t, 300.0, rev.Total)
	assert.Equal(t, 1, rev.Count)
	require.NotNil(t, rev.Start)
	assert.Equal(t, "2024-03-01", *rev.Start)
}

func TestFunnelRevenue_WindowValidation(t *testing.T) {
	api := newTestAPI(t, "")

	tests := []struct {
		name  string
		query string
	}{
		{"start only", "?start=2024-03-01"},
		{"end only", "?end=2024-03-31"},
		{"bad date", "?start=2024-03-01&end=31/03/2024"},
		{"inverted", "?start=2024-04-01&end=2024-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodGet, "/v1/funnels/f1/revenue"+tt.query, "", "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAssignSeller(t *testing.T) {
	api := newTestAPI(t, "")
	api.store.AddSale(domain.Sale{ID: "s1", ProductName: "Curso", TotalValue: 300, SaleDate: day(2024, 3, 10)}, 3)

	rec := api.do(t, http.MethodPost, "/v1/sales/s1/seller", `{"seller_id":"u1","commission_percent":20}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	list := decode[domain.ListResponse[domain.Commission]](t, rec)
	require.Equal(t, 3, list.Total)
	assert.Equal(t, 20.0, list.Data[0].CommissionValue)

	rec = api.do(t, http.MethodPost, "/v1/sales/missing/seller", `{"seller_id":"u1"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/v1/sales/s1/seller", `{"seller_id":""}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportStatement(t *testing.T) {
	api := newTestAPI(t, "")
	api.store.AddSale(domain.Sale{ID: "s1", ProductName: "Curso", TotalValue: 300, SaleDate: day(2024, 3, 10)}, 3)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/v1/sales/s1/seller", `{"seller_id":"u1"}`, "").Code)

	rec := api.do(t, http.MethodGet, "/v1/commissions/export?seller_id=u1&month=2024-03", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	_, err := xlsx.OpenBinary(rec.Body.Bytes())
	assert.NoError(t, err)

	rec = api.do(t, http.MethodGet, "/v1/commissions/statement?seller_id=u1", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSDRAssignment_Lifecycle(t *testing.T) {
	api := newTestAPI(t, "")
	api.store.AddSale(domain.Sale{ID: "s1", ProductName: "Curso", TotalValue: 300, SaleDate: day(2024, 3, 10)}, 3)

	body := `{"sale_id":"s1","sdr_id":"sdr-1","proof_link":"https://crm/call/1"}`
	rec := api.do(t, http.MethodPost, "/v1/sdr-assignments", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.SDRAssignment](t, rec)
	assert.Equal(t, domain.SDRPending, created.Status)
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, "local-dev", *created.CreatedBy)

	rec = api.do(t, http.MethodPost, "/v1/sdr-assignments", body, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/v1/sdr-assignments/"+created.ID+"/reject", `{"reason":"  "}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/v1/sdr-assignments/"+created.ID+"/approve", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[domain.ApprovalResult](t, rec)
	assert.Equal(t, 3, res.CommissionsCreated)

	rec = api.do(t, http.MethodDelete, "/v1/sdr-assignments/"+created.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":0}`, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/v1/sdr-commissions?sdr_id=sdr-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[domain.ListResponse[domain.SDRCommission]](t, rec).Total)
}

func TestAuth(t *testing.T) {
	api := newTestAPI(t, testSecret)
	api.store.AddSale(domain.Sale{ID: "s1", ProductName: "Curso", TotalValue: 100, SaleDate: day(2024, 3, 10)}, 1)

	t.Run("missing token", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/v1/sdr-assignments", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/v1/sdr-assignments", "", "not.a.token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("operational endpoints stay open", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/healthz", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	sdrToken := signToken(t, "sdr-1", "")
	rec := api.do(t, http.MethodPost, "/v1/sdr-assignments",
		`{"sale_id":"s1","sdr_id":"sdr-1","proof_link":"https://crm/call/1"}`, sdrToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.SDRAssignment](t, rec)
	assert.Equal(t, "sdr-1", *created.CreatedBy)

	t.Run("approve requires admin", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/sdr-assignments/"+created.ID+"/approve", "", sdrToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin approves", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/sdr-assignments/"+created.ID+"/approve", "", signToken(t, "boss", handler.RoleAdmin))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		a, err := api.store.GetSDRAssignment(context.Background(), created.ID)
		require.NoError(t, err)
		require.NotNil(t, a.ApprovedBy)
		assert.Equal(t, "boss", *a.ApprovedBy)
	})
}

func TestLeads(t *testing.T) {
	api := newTestAPI(t, "")
	api.store.SetCriteria("sess", []domain.QualificationCriterion{
		{SessionID: "sess", FieldName: "faturamento", Operator: domain.OpGreaterThan, Value: "10000", Weight: 1},
	})

	t.Run("sync without source", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/strategic-sessions/sess/leads/sync", "", "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("import", func(t *testing.T) {
		f := xlsx.NewFile()
		sheet, err := f.AddSheet("Leads")
		require.NoError(t, err)
		for _, values := range [][]string{{"nome", "faturamento"}, {"Ana", "50000"}, {"Bia", "10"}} {
			row := sheet.AddRow()
			for _, v := range values {
				row.AddCell().SetString(v)
			}
		}
		var file bytes.Buffer
		require.NoError(t, f.Write(&file))

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "leads.xlsx")
		require.NoError(t, err)
		_, err = part.Write(file.Bytes())
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		r := httptest.NewRequest(http.MethodPost, "/v1/strategic-sessions/sess/leads/import", &body)
		r.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, r)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		res := decode[domain.LeadSyncResult](t, rec)
		assert.Equal(t, 2, res.Upserted)
		assert.Equal(t, 1, res.Qualified)
	})

	t.Run("import without file", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/strategic-sessions/sess/leads/import", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/v1/strategic-sessions/sess/leads/", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, decode[domain.ListResponse[domain.StrategicLead]](t, rec).Total)
	})

	t.Run("recalculate is a no-op when nothing changed", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/strategic-sessions/sess/leads/recalculate", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, decode[domain.RecalcResult](t, rec).Updated)
	})
}
