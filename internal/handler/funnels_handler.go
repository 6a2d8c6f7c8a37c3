package handler

import (
	"net/http"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Funnels / revenue attribution
// ============================================================

func funnelRevenueHandler(svc *service.RevenueService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/funnels/{funnelId}/revenue")
		defer span.End()

		funnelID := chi.URLParam(r, "funnelId")
		span.SetAttributes(attribute.String("funnel.id", funnelID))

		window, err := parseWindow(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		rev, err := svc.FunnelRevenue(ctx, funnelID, window)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rev)
	}
}

func funnelLinksHandler(svc *service.RevenueService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		links, err := svc.Links(r.Context(), chi.URLParam(r, "funnelId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, links)
	}
}

func matchPreviewHandler(svc *service.RevenueService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		preview, err := svc.MatchPreview(r.Context(), chi.URLParam(r, "funnelId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, listOf(preview))
	}
}

func linkProductHandler(svc *service.RevenueService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProductID string `json:"product_id"`
		}
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		funnelID := chi.URLParam(r, "funnelId")
		if err := svc.LinkProduct(r.Context(), funnelID, req.ProductID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, domain.SuccessResponse{Message: "product linked", ID: funnelID})
	}
}

func linkSalesProductHandler(svc *service.RevenueService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProductName string `json:"product_name"`
		}
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		funnelID := chi.URLParam(r, "funnelId")
		if err := svc.LinkSalesProductName(r.Context(), funnelID, req.ProductName); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, domain.SuccessResponse{Message: "sales product linked", ID: funnelID})
	}
}
