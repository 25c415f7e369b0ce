package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-health-api/internal/dto"
	"github.com/noah-isme/sma-health-api/internal/models"
	"github.com/noah-isme/sma-health-api/internal/repository"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
	"github.com/noah-isme/sma-health-api/pkg/events"
)

type healthReportStore interface {
	Create(ctx context.Context, report *models.HealthReport, actor models.Actor) error
	GetByID(ctx context.Context, id string) (*models.HealthReport, error)
	ListByReporter(ctx context.Context, reporterID string) ([]models.HealthReport, error)
	List(ctx context.Context, filter models.ReportFilter) ([]models.HealthReport, int, error)
	UpdateStatus(ctx context.Context, id string, expected, next models.ReportStatus, actor models.Actor, at time.Time) (*models.HealthReport, error)
}

type referenceCatalog interface {
	LocationIndex(ctx context.Context) (map[string]models.Location, error)
	SymptomIndex(ctx context.Context) (map[string]models.Symptom, error)
}

type aggregateInvalidator interface {
	Invalidate(location string, at time.Time)
}

type cycleTrigger interface {
	Trigger(reason string)
}

// ReportServiceParams groups constructor dependencies.
type ReportServiceParams struct {
	Store      healthReportStore
	Catalog    referenceCatalog
	Aggregates aggregateInvalidator
	Pipeline   cycleTrigger
	Validator  *validator.Validate
	Publisher  events.Publisher
	Metrics    *MetricsService
	Logger     *zap.Logger
}

// ReportService owns the health report lifecycle.
type ReportService struct {
	store      healthReportStore
	catalog    referenceCatalog
	aggregates aggregateInvalidator
	pipeline   cycleTrigger
	validator  *validator.Validate
	events     eventEmitter
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewReportService constructs the report lifecycle service.
func NewReportService(params ReportServiceParams) *ReportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	v := params.Validator
	if v == nil {
		v = validator.New()
	}
	return &ReportService{
		store:      params.Store,
		catalog:    params.Catalog,
		aggregates: params.Aggregates,
		pipeline:   params.Pipeline,
		validator:  v,
		events:     newEventEmitter(params.Publisher, params.Metrics, logger),
		metrics:    params.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// SubmitReport records a new pending report. Students report for themselves; administrators may
// submit on behalf of a student via ReporterID.
func (s *ReportService) SubmitReport(ctx context.Context, actor models.Actor, req dto.CreateReportRequest) (*models.HealthReport, error) {
	if actor.ID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	reporterID := actor.ID
	switch {
	case actor.Role == models.RoleStudent:
		if req.ReporterID != "" && req.ReporterID != actor.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only report for themselves")
		}
	case actor.IsAdmin():
		if req.ReporterID != "" {
			reporterID = strings.TrimSpace(req.ReporterID)
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot submit reports")
	}

	req.Location = strings.TrimSpace(req.Location)
	req.Symptoms = lo.Uniq(lo.Map(req.Symptoms, func(item string, _ int) string { return strings.TrimSpace(item) }))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "symptoms and location are required")
	}
	note, err := normaliseNote(req.Note)
	if err != nil {
		return nil, err
	}
	if err := s.validateReferences(ctx, req.Location, req.Symptoms); err != nil {
		return nil, err
	}

	report := &models.HealthReport{
		ReporterID: reporterID,
		Symptoms:   req.Symptoms,
		LocationID: req.Location,
		Note:       note,
		Status:     models.ReportStatusPending,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Create(ctx, report, actor); err != nil {
		s.logger.Error("create health report failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit report")
	}

	s.afterWrite(report, "report.submitted")
	s.events.emit(ctx, reportEvent(events.TypeReportSubmitted, report))
	return report, nil
}

// TransitionStatus moves a report to the requested status. Administrators only. A lost race
// re-reads and re-validates up to maxTransitionAttempts times.
func (s *ReportService) TransitionStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateStatusRequest) (*models.HealthReport, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can change report status")
	}
	next := models.ReportStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !next.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown report status %q", req.Status))
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		current, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if !current.Status.CanTransitionTo(next) {
			return nil, appErrors.InvalidTransition(string(current.Status), string(next))
		}
		updated, err := s.store.UpdateStatus(ctx, id, current.Status, next, actor, s.now())
		if err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				s.logger.Debug("report transition lost race, retrying", zap.String("report_id", id), zap.Int("attempt", attempt+1))
				continue
			}
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
			}
			s.logger.Error("update report status failed", zap.String("report_id", id), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update report status")
		}

		s.metrics.IncReportTransition(string(next))
		s.afterWrite(updated, "report.status_changed")
		s.events.emit(ctx, reportEvent(events.TypeReportStatusChanged, updated))
		return updated, nil
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "report changed concurrently, retry")
}

// ListMine returns the caller's reports newest first.
func (s *ReportService) ListMine(ctx context.Context, actor models.Actor) ([]models.HealthReport, error) {
	if actor.ID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	reports, err := s.store.ListByReporter(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}
	if reports == nil {
		reports = []models.HealthReport{}
	}
	return reports, nil
}

// ListAll returns filtered reports with the unpaginated total. Administrators only.
func (s *ReportService) ListAll(ctx context.Context, actor models.Actor, filter models.ReportFilter) ([]models.HealthReport, int, error) {
	if !actor.IsAdmin() {
		return nil, 0, appErrors.Clone(appErrors.ErrForbidden, "only administrators can list all reports")
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "unknown report status")
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "from must be before to")
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	reports, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}
	if reports == nil {
		reports = []models.HealthReport{}
	}
	return reports, total, nil
}

// Get returns one report to an administrator or its reporter.
func (s *ReportService) Get(ctx context.Context, actor models.Actor, id string) (*models.HealthReport, error) {
	report, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && report.ReporterID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report belongs to another reporter")
	}
	return report, nil
}

func (s *ReportService) load(ctx context.Context, id string) (*models.HealthReport, error) {
	report, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	return report, nil
}

func (s *ReportService) validateReferences(ctx context.Context, location string, symptoms []string) error {
	if s.catalog == nil {
		return nil
	}
	locations, err := s.catalog.LocationIndex(ctx)
	if err != nil {
		return err
	}
	loc, ok := locations[location]
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, "unknown location "+location)
	}
	if loc.Kind != models.LocationKindRoom {
		return appErrors.Clone(appErrors.ErrValidation, "reports must reference a room, not "+location)
	}
	known, err := s.catalog.SymptomIndex(ctx)
	if err != nil {
		return err
	}
	unknown := lo.Filter(symptoms, func(item string, _ int) bool {
		_, ok := known[item]
		return !ok
	})
	if len(unknown) > 0 {
		return appErrors.Clone(appErrors.ErrValidation, "unknown symptoms: "+strings.Join(unknown, ", "))
	}
	return nil
}

// afterWrite drops the memoised aggregate for the report's bucket and schedules a recomputation.
func (s *ReportService) afterWrite(report *models.HealthReport, reason string) {
	if s.aggregates != nil {
		s.aggregates.Invalidate(report.LocationID, report.CreatedAt)
	}
	if s.pipeline != nil {
		s.pipeline.Trigger(reason)
	}
}

func normaliseNote(note *string) (*string, error) {
	if note == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > models.MaxNoteLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("note exceeds %d characters", models.MaxNoteLength))
	}
	return &trimmed, nil
}

func reportEvent(kind string, report *models.HealthReport) events.Event {
	return events.Event{
		Type:       kind,
		Key:        report.LocationID,
		OccurredAt: report.UpdatedAt,
		Payload: map[string]interface{}{
			"id":         report.ID,
			"location":   report.LocationID,
			"status":     report.Status,
			"symptoms":   []string(report.Symptoms),
			"reporterId": report.ReporterID,
		},
	}
}
