package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ops-bfa-go/internal/port"
	"github.com/boddenberg/ops-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services groups the use cases the router exposes.
type Services struct {
	Revenue     *service.RevenueService
	Commissions *service.CommissionService
	SDR         *service.SDRService
	Leads       *service.LeadService
	Store       port.Pinger
}

// Options configures the transport concerns of the router.
type Options struct {
	JWTSecret   string
	CORSOrigins []string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, opts Options, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Store, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(JWTAuthMiddleware(opts.JWTSecret, logger))
		admin := RequireAdmin(logger)

		r.Get("/metrics/ops", opsMetricsHandler(metrics))

		// Funnels / revenue attribution
		r.Route("/funnels/{funnelId}", func(r chi.Router) {
			r.Get("/revenue", funnelRevenueHandler(svc.Revenue, logger))
			r.Get("/links", funnelLinksHandler(svc.Revenue, logger))
			r.Get("/match-preview", matchPreviewHandler(svc.Revenue, logger))
			r.Post("/products", linkProductHandler(svc.Revenue, logger))
			r.Post("/sales-products", linkSalesProductHandler(svc.Revenue, logger))
		})

		// Seller commissions
		r.Post("/sales/{saleId}/seller", assignSellerHandler(svc.Commissions, logger))
		r.Get("/sales/{saleId}/commissions", saleCommissionsHandler(svc.Commissions, logger))
		r.Post("/installments/{installmentId}/pay", payInstallmentHandler(svc.Commissions, logger))
		r.Get("/commissions", listCommissionsHandler(svc.Commissions, logger))
		r.Get("/commissions/statement", statementHandler(svc.Commissions, logger))
		r.Get("/commissions/export", exportStatementHandler(svc.Commissions, logger))
		r.With(admin).Patch("/commissions/{commissionId}/status", commissionStatusHandler(svc.Commissions, logger))

		// SDR assignments
		r.Post("/sdr-assignments", createSDRAssignmentHandler(svc.SDR, logger))
		r.Get("/sdr-assignments", listSDRAssignmentsHandler(svc.SDR, logger))
		r.With(admin).Post("/sdr-assignments/{assignmentId}/approve", approveSDRAssignmentHandler(svc.SDR, logger))
		r.With(admin).Post("/sdr-assignments/{assignmentId}/reject", rejectSDRAssignmentHandler(svc.SDR, logger))
		r.Delete("/sdr-assignments/{assignmentId}", deleteSDRAssignmentHandler(svc.SDR, logger))
		r.Get("/sdr-commissions", listSDRCommissionsHandler(svc.SDR, logger))

		// Strategic sessions / leads
		r.Route("/strategic-sessions/{sessionId}/leads", func(r chi.Router) {
			r.Get("/", listLeadsHandler(svc.Leads, logger))
			r.Post("/score", scoreLeadHandler(svc.Leads, logger))
			r.Post("/sync", syncLeadsHandler(svc.Leads, logger))
			r.Post("/import", importLeadsHandler(svc.Leads, logger))
			r.Post("/recalculate", recalculateLeadsHandler(svc.Leads, logger))
		})
	})

	return r
}

// ============================================================
// Health & metrics
// ============================================================

func healthzHandler(store port.Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "bfa-api", Status: "healthy", LastChecked: now},
		}

		if store != nil {
			start := time.Now()
			err := store.Ping(r.Context())
			h := domain.ServiceHealth{
				Name:        "store",
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				logger.Warn("health: store ping failed", zap.Error(err))
				h.Status = "degraded"
				h.Error = err.Error()
			}
			services = append(services, h)
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func opsMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetOpsSnapshot())
	}
}
