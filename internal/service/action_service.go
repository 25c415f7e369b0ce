package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-health-api/internal/dto"
	"github.com/noah-isme/sma-health-api/internal/models"
	"github.com/noah-isme/sma-health-api/internal/repository"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
	"github.com/noah-isme/sma-health-api/pkg/events"
)

// SystemActorID marks records created by the recomputation pipeline.
const SystemActorID = "system"

const maxTransitionAttempts = 3

type actionStore interface {
	Create(ctx context.Context, action *models.SuggestedAction) error
	GetByID(ctx context.Context, id string) (*models.SuggestedAction, error)
	List(ctx context.Context, filter models.ActionFilter) ([]models.SuggestedAction, error)
	OpenLocations(ctx context.Context) (map[string]struct{}, error)
	CountOpen(ctx context.Context) (int, error)
	UpdateStatus(ctx context.Context, id string, expected, next models.ActionStatus, at time.Time) (*models.SuggestedAction, error)
}

// ActionServiceParams groups constructor dependencies.
type ActionServiceParams struct {
	Store     actionStore
	Locations locationIndexer
	Validator *validator.Validate
	Publisher events.Publisher
	Metrics   *MetricsService
	Logger    *zap.Logger
}

// ActionService manages suggested remediation actions.
type ActionService struct {
	store     actionStore
	locations locationIndexer
	validator *validator.Validate
	events    eventEmitter
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time

	mu              sync.Mutex
	previousHotspot map[string]struct{}
}

// NewActionService constructs the action service.
func NewActionService(params ActionServiceParams) *ActionService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	v := params.Validator
	if v == nil {
		v = validator.New()
	}
	return &ActionService{
		store:           params.Store,
		locations:       params.Locations,
		validator:       v,
		events:          newEventEmitter(params.Publisher, params.Metrics, logger),
		metrics:         params.Metrics,
		logger:          logger,
		now:             time.Now,
		previousHotspot: make(map[string]struct{}),
	}
}

// CreateAction records a manual action. Administrators only.
func (s *ActionService) CreateAction(ctx context.Context, actor models.Actor, req dto.CreateActionRequest) (*models.SuggestedAction, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can create actions")
	}
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid action payload")
	}
	var location *string
	if req.Location != nil && strings.TrimSpace(*req.Location) != "" {
		loc := strings.TrimSpace(*req.Location)
		if err := s.ensureLocation(ctx, loc); err != nil {
			return nil, err
		}
		location = &loc
	}

	now := s.now().UTC()
	action := &models.SuggestedAction{
		Description: req.Description,
		LocationID:  location,
		Priority:    models.ActionPriorityMedium,
		Source:      models.ActionSourceManual,
		Status:      models.ActionStatusPending,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, action); err != nil {
		s.logger.Error("create action failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create action")
	}
	s.metrics.IncActionCreated(string(action.Source))
	s.events.emit(ctx, actionEvent(events.TypeActionCreated, action))
	return action, nil
}

// AutoCreateFromHotspots creates one action per hotspot that was absent from the previous call's
// hotspot set, skipping locations with any non-completed action. Repeating the same hotspots
// creates nothing.
func (s *ActionService) AutoCreateFromHotspots(ctx context.Context, snapshotID string, hotspots []models.HotspotData) ([]models.SuggestedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]struct{}, len(hotspots))
	crossed := make([]models.HotspotData, 0)
	for _, h := range hotspots {
		current[h.LocationID] = struct{}{}
		if _, ok := s.previousHotspot[h.LocationID]; !ok {
			crossed = append(crossed, h)
		}
	}
	if len(crossed) == 0 {
		s.previousHotspot = current
		return nil, nil
	}

	open, err := s.store.OpenLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load open action locations: %w", err)
	}

	created := make([]models.SuggestedAction, 0, len(crossed))
	now := s.now().UTC()
	for _, h := range crossed {
		if _, busy := open[h.LocationID]; busy {
			continue
		}
		loc := h.LocationID
		snap := snapshotID
		score := h.RiskScore
		rank := h.Rank
		action := models.SuggestedAction{
			Description: fmt.Sprintf("Investigate elevated outbreak risk in %s (risk %.2f, %d reports this window)", h.LocationName, h.RiskScore, h.ReportCount),
			LocationID:  &loc,
			Priority:    models.PriorityForRisk(h.RiskScore),
			Source:      models.ActionSourceHotspot,
			Status:      models.ActionStatusPending,
			CreatedBy:   SystemActorID,
			CreatedAt:   now,
			UpdatedAt:   now,
			SnapshotID:  &snap,
			RiskScore:   &score,
			HotspotRank: &rank,
		}
		if err := s.store.Create(ctx, &action); err != nil {
			if errors.Is(err, repository.ErrOpenActionExists) {
				continue
			}
			return created, fmt.Errorf("create hotspot action for %s: %w", h.LocationID, err)
		}
		s.metrics.IncActionCreated(string(action.Source))
		created = append(created, action)
	}

	s.previousHotspot = current
	evts := make([]events.Event, 0, len(created))
	for i := range created {
		evts = append(evts, actionEvent(events.TypeActionCreated, &created[i]))
	}
	s.events.emit(ctx, evts...)
	if len(created) > 0 {
		s.logger.Info("hotspot actions created", zap.String("snapshot_id", snapshotID), zap.Int("count", len(created)))
	}
	return created, nil
}

// TransitionAction moves an action along pending -> in-progress -> completed. Administrators only.
func (s *ActionService) TransitionAction(ctx context.Context, actor models.Actor, id string, req dto.UpdateStatusRequest) (*models.SuggestedAction, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can update actions")
	}
	next := models.ActionStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !next.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown action status %q", req.Status))
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		action, err := s.store.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "action not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load action")
		}
		if !action.Status.CanTransitionTo(next) {
			return nil, appErrors.InvalidTransition(string(action.Status), string(next))
		}
		updated, err := s.store.UpdateStatus(ctx, id, action.Status, next, s.now())
		if err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				continue
			}
			s.logger.Error("update action status failed", zap.String("action_id", id), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update action")
		}
		s.metrics.IncActionTransition(string(next))
		s.events.emit(ctx, actionEvent(events.TypeActionStatusChanged, updated))
		return updated, nil
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "action changed concurrently, retry")
}

// ListActions returns actions newest first.
func (s *ActionService) ListActions(ctx context.Context, filter models.ActionFilter) ([]models.SuggestedAction, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown action status")
	}
	actions, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list actions")
	}
	return actions, nil
}

// CountOpen returns the number of non-completed actions.
func (s *ActionService) CountOpen(ctx context.Context) (int, error) {
	return s.store.CountOpen(ctx)
}

func (s *ActionService) ensureLocation(ctx context.Context, location string) error {
	if s.locations == nil {
		return nil
	}
	index, err := s.locations.LocationIndex(ctx)
	if err != nil {
		return err
	}
	if _, ok := index[location]; !ok {
		return appErrors.Clone(appErrors.ErrValidation, "unknown location "+location)
	}
	return nil
}

func actionEvent(kind string, action *models.SuggestedAction) events.Event {
	key := action.ID
	if action.LocationID != nil {
		key = *action.LocationID
	}
	return events.Event{Type: kind, Key: key, OccurredAt: action.UpdatedAt, Payload: action}
}
