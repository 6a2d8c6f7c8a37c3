package service

import (
	"context"
	"io"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/boddenberg/ops-bfa-go/internal/infra/observability"
	"github.com/boddenberg/ops-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/ops-bfa-go/internal/port"
	"github.com/boddenberg/ops-bfa-go/internal/qualification"
	"github.com/boddenberg/ops-bfa-go/internal/spreadsheet"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var leadTracer = otel.Tracer("service/lead")

// LeadService ingests strategic-session leads and keeps their
// qualification current.
type LeadService struct {
	store    port.LeadStore
	source   port.LeadSource
	bulkhead *resilience.Bulkhead
	limiter  *rate.Limiter
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewLeadService wires the service. source may be nil when no lead-source
// endpoint is configured; SyncSession then fails with a precondition error.
// ratePerSecond <= 0 disables write throttling during recalculation.
func NewLeadService(
	store port.LeadStore,
	source port.LeadSource,
	maxConcurrency int,
	ratePerSecond float64,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LeadService {
	limit, burst := rate.Inf, 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = max(1, int(ratePerSecond))
	}
	return &LeadService{
		store:    store,
		source:   source,
		bulkhead: resilience.NewBulkhead(maxConcurrency),
		limiter:  rate.NewLimiter(limit, burst),
		metrics:  metrics,
		logger:   logger,
	}
}

// ScorePreview scores an ad-hoc field map against the session's criteria
// without writing anything.
func (s *LeadService) ScorePreview(ctx context.Context, sessionID string, fields map[string]string) (*domain.Qualification, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.ScorePreview")
	defer span.End()

	if err := required("session_id", sessionID); err != nil {
		return nil, err
	}
	criteria, err := s.store.ListCriteria(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	q := qualification.Score(fields, criteria)
	return &q, nil
}

// SyncSession pulls the session's rows from the lead source, scores each
// and upserts them.
func (s *LeadService) SyncSession(ctx context.Context, sessionID string) (*domain.LeadSyncResult, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.SyncSession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	if err := required("session_id", sessionID); err != nil {
		return nil, err
	}
	if s.source == nil {
		return nil, &domain.ErrPrecondition{Message: "lead source is not configured"}
	}

	start := time.Now()
	rows, err := s.source.FetchRows(ctx, sessionID)
	s.metrics.RecordRequestDuration("lead_source", time.Since(start))
	if err != nil {
		s.metrics.IncrExternalError("lead-source")
		s.logger.Error("lead source fetch failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	return s.ingest(ctx, sessionID, rows, "sync")
}

// ImportXLSX runs the sync pipeline over an uploaded workbook whose first
// row is the header.
func (s *LeadService) ImportXLSX(ctx context.Context, sessionID string, r io.Reader) (*domain.LeadSyncResult, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.ImportXLSX")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	if err := required("session_id", sessionID); err != nil {
		return nil, err
	}
	header, rows, err := spreadsheet.ReadSheet(r)
	if err != nil {
		return nil, err
	}
	return s.ingest(ctx, sessionID, qualification.RowsToMaps(header, rows), "import")
}

func (s *LeadService) ingest(ctx context.Context, sessionID string, rows []map[string]string, source string) (*domain.LeadSyncResult, error) {
	criteria, err := s.store.ListCriteria(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result := &domain.LeadSyncResult{SessionID: sessionID, Rows: len(rows)}
	leads := make([]domain.StrategicLead, 0, len(rows))
	pos := make(map[string]int, len(rows))
	for i, row := range rows {
		lead, ok := qualification.LeadFromRow(sessionID, i+1, row)
		if !ok {
			result.Skipped++
			continue
		}
		lead.Apply(qualification.ScoreLead(lead, criteria))
		// A repeated source row id replaces the earlier row in place.
		if j, seen := pos[lead.SourceRowID]; seen {
			leads[j] = lead
			continue
		}
		pos[lead.SourceRowID] = len(leads)
		leads = append(leads, lead)
	}
	for _, lead := range leads {
		if lead.IsQualified {
			result.Qualified++
		}
	}

	if len(leads) > 0 {
		n, err := s.store.UpsertLeads(ctx, leads)
		if err != nil {
			s.logger.Error("lead upsert failed",
				zap.String("session_id", sessionID),
				zap.Int("written", n),
				zap.Error(err),
			)
			return nil, err
		}
		result.Upserted = n
	}

	s.metrics.AddLeadsScored(source, len(leads))
	s.logger.Info("leads ingested",
		zap.String("session_id", sessionID),
		zap.String("source", source),
		zap.Int("rows", result.Rows),
		zap.Int("upserted", result.Upserted),
		zap.Int("qualified", result.Qualified),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// RecalculateAll re-scores every lead of the session with the current
// criteria and writes only the leads whose qualification changed.
func (s *LeadService) RecalculateAll(ctx context.Context, sessionID string) (*domain.RecalcResult, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.RecalculateAll")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	if err := required("session_id", sessionID); err != nil {
		return nil, err
	}

	var (
		criteria []domain.QualificationCriterion
		leads    []domain.StrategicLead
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		criteria, err = s.store.ListCriteria(gCtx, sessionID)
		return err
	})
	g.Go(func() (err error) {
		leads, err = s.store.ListLeads(gCtx, sessionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &domain.RecalcResult{SessionID: sessionID, Total: len(leads)}
	changed := make([]domain.StrategicLead, 0, len(leads))
	for _, lead := range leads {
		q := qualification.ScoreLead(lead, criteria)
		if q.Qualified {
			result.Qualified++
		}
		if lead.Apply(q) {
			changed = append(changed, lead)
		}
	}

	wg, wCtx := errgroup.WithContext(ctx)
	for _, lead := range changed {
		if err := s.bulkhead.Acquire(wCtx); err != nil {
			break
		}
		wg.Go(func() error {
			defer s.bulkhead.Release()
			if err := s.limiter.Wait(wCtx); err != nil {
				return err
			}
			return s.store.UpdateLeadQualification(wCtx, lead.ID, domain.Qualification{
				Score:     lead.QualificationScore,
				Qualified: lead.IsQualified,
			})
		})
	}
	err := wg.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.logger.Error("lead recalculation failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	result.Updated = len(changed)
	s.metrics.AddLeadsScored("recalc", len(leads))
	s.logger.Info("leads recalculated",
		zap.String("session_id", sessionID),
		zap.Int("total", result.Total),
		zap.Int("updated", result.Updated),
		zap.Int("qualified", result.Qualified),
	)
	return result, nil
}

func (s *LeadService) ListLeads(ctx context.Context, sessionID string) ([]domain.StrategicLead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.ListLeads")
	defer span.End()

	if err := required("session_id", sessionID); err != nil {
		return nil, err
	}
	return s.store.ListLeads(ctx, sessionID)
}
