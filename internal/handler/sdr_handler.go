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
// SDR assignments
// ============================================================

func createSDRAssignmentHandler(svc *service.SDRService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sdr-assignments")
		defer span.End()

		var req domain.SDRAssignmentRequest
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if p, ok := PrincipalFromContext(ctx); ok {
			req.CreatedBy = p.UserID
		}
		span.SetAttributes(attribute.String("sale.id", req.SaleID))

		a, err := svc.Create(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func listSDRAssignmentsHandler(svc *service.SDRService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := svc.List(r.Context(), domain.SDRAssignmentFilter{
			Status: domain.SDRAssignmentStatus(q.Get("status")),
			SDRID:  q.Get("sdr_id"),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, listOf(list))
	}
}

func approveSDRAssignmentHandler(svc *service.SDRService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sdr-assignments/{assignmentId}/approve")
		defer span.End()

		assignmentID := chi.URLParam(r, "assignmentId")
		span.SetAttributes(attribute.String("sdr_assignment.id", assignmentID))

		p, _ := PrincipalFromContext(ctx)
		res, err := svc.Approve(ctx, assignmentID, p.UserID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func rejectSDRAssignmentHandler(svc *service.SDRService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reason string `json:"reason"`
		}
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		assignmentID := chi.URLParam(r, "assignmentId")
		if err := svc.Reject(r.Context(), assignmentID, req.Reason); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "sdr assignment rejected", ID: assignmentID})
	}
}

func deleteSDRAssignmentHandler(svc *service.SDRService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.Delete(r.Context(), chi.URLParam(r, "assignmentId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
	}
}

func listSDRCommissionsHandler(svc *service.SDRService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		month, err := parseMonth(q.Get("month"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		rows, err := svc.ListCommissions(r.Context(), domain.SDRCommissionFilter{
			SDRID:           q.Get("sdr_id"),
			SDRAssignmentID: q.Get("sdr_assignment_id"),
			CompetenceMonth: month,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, listOf(rows))
	}
}
