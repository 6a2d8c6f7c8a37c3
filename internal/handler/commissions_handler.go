package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/service"
	"github.com/boddenberg/ops-bfa-go/internal/spreadsheet"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Seller commissions
// ============================================================

type assignSellerRequest struct {
	SellerID          string   `json:"seller_id"`
	CommissionPercent *float64 `json:"commission_percent,omitempty"`
}

func assignSellerHandler(svc *service.CommissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sales/{saleId}/seller")
		defer span.End()

		saleID := chi.URLParam(r, "saleId")
		span.SetAttributes(attribute.String("sale.id", saleID))

		var req assignSellerRequest
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		rows, err := svc.AssignSeller(ctx, saleID, req.SellerID, req.CommissionPercent)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, listOf(rows))
	}
}

func saleCommissionsHandler(svc *service.CommissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.SaleCommissions(r.Context(), chi.URLParam(r, "saleId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func payInstallmentHandler(svc *service.CommissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PaidAt *time.Time `json:"paid_at,omitempty"`
		}
		if err := decodeJSON(r, &req, true); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var paidAt time.Time
		if req.PaidAt != nil {
			paidAt = *req.PaidAt
		}

		installmentID := chi.URLParam(r, "installmentId")
		if err := svc.MarkInstallmentPaid(r.Context(), installmentID, paidAt); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "installment paid", ID: installmentID})
	}
}

func listCommissionsHandler(svc *service.CommissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		month, err := parseMonth(q.Get("month"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		filter := domain.CommissionFilter{
			SellerID:        q.Get("seller_id"),
			CompetenceMonth: month,
		}
		if s := q.Get("status"); s != "" {
			if filter.Status, err = domain.ParseCommissionStatus(s); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}

		rows, err := svc.ListCommissions(r.Context(), q.Get("sale_id"), filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, listOf(rows))
	}
}

func commissionStatusHandler(svc *service.CommissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status string `json:"status"`
		}
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		c, err := svc.SetCommissionStatus(r.Context(), chi.URLParam(r, "commissionId"), req.Status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// statementParams reads the required seller_id and month query params.
func statementParams(r *http.Request) (string, time.Time, error) {
	sellerID := r.URL.Query().Get("seller_id")
	month, err := parseMonth(r.URL.Query().Get("month"))
	if err != nil {
		return "", time.Time{}, err
	}
	if month == nil {
		return "", time.Time{}, &domain.ErrValidation{Field: "month", Message: "required"}
	}
	return sellerID, *month, nil
}

func statementHandler(svc *service.CommissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, month, err := statementParams(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		st, err := svc.Statement(r.Context(), sellerID, month)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func exportStatementHandler(svc *service.CommissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, month, err := statementParams(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var buf bytes.Buffer
		if err := svc.ExportStatement(r.Context(), &buf, sellerID, month); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		filename := fmt.Sprintf("comissoes-%s-%s.xlsx", sellerID, month.Format("2006-01"))
		w.Header().Set("Content-Type", spreadsheet.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}
