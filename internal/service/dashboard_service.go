package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-health-api/internal/dto"
	"github.com/noah-isme/sma-health-api/internal/models"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
)

type readModelSource interface {
	Snapshot() *ReadModel
	RunCycle(ctx context.Context) (*ReadModel, error)
	Trigger(reason string)
}

type actionLister interface {
	ListActions(ctx context.Context, filter models.ActionFilter) ([]models.SuggestedAction, error)
	CountOpen(ctx context.Context) (int, error)
}

type aggregateReader interface {
	GetAggregate(ctx context.Context, location string, at time.Time) (*models.AggregateWindow, error)
}

type riskResetter interface {
	ResetRisk(ctx context.Context, actor models.Actor, location string, prior *float64) (*models.BayesianParameter, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	ActionsLimit    int
	ForecastHorizon int
	ForecastTimeout time.Duration
	MaxForecasts    int
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Pipeline   readModelSource
	Actions    actionLister
	Aggregates aggregateReader
	Risk       riskResetter
	Forecaster Forecaster
	Metrics    *MetricsService
	Logger     *zap.Logger
	Config     DashboardServiceConfig
}

// DashboardService composes the admin dashboard from the latest published read model.
type DashboardService struct {
	pipeline   readModelSource
	actions    actionLister
	aggregates aggregateReader
	risk       riskResetter
	forecaster Forecaster
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
	cfg        DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.ActionsLimit <= 0 {
		cfg.ActionsLimit = 20
	}
	if cfg.ForecastHorizon <= 0 {
		cfg.ForecastHorizon = 3
	}
	if cfg.ForecastTimeout <= 0 {
		cfg.ForecastTimeout = 2 * time.Second
	}
	if cfg.MaxForecasts <= 0 {
		cfg.MaxForecasts = 5
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	forecaster := params.Forecaster
	if forecaster == nil {
		forecaster = DisabledForecaster{}
	}
	return &DashboardService{
		pipeline:   params.Pipeline,
		actions:    params.Actions,
		aggregates: params.Aggregates,
		risk:       params.Risk,
		forecaster: forecaster,
		metrics:    params.Metrics,
		logger:     logger,
		now:        time.Now,
		cfg:        cfg,
	}
}

// Dashboard returns stats, hotspots, predictions, actions and risk parameters. Without a published
// snapshot a cycle is run inline; if that fails an empty dashboard is served.
func (s *DashboardService) Dashboard(ctx context.Context, actor models.Actor) (*dto.DashboardResponse, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "dashboard requires administrator role")
	}

	model := s.pipeline.Snapshot()
	if model == nil {
		var err error
		model, err = s.pipeline.RunCycle(ctx)
		if err != nil {
			s.logger.Warn("dashboard served without snapshot", zap.Error(err))
		}
	}

	actions, err := s.actions.ListActions(ctx, models.ActionFilter{Limit: s.cfg.ActionsLimit})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actions")
	}
	openActions, err := s.actions.CountOpen(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count actions")
	}

	resp := &dto.DashboardResponse{
		Hotspots:           []models.HotspotData{},
		Predictions:        []models.PredictionData{},
		Actions:            actions,
		BayesianByLocation: []models.BayesianParameter{},
	}
	if resp.Actions == nil {
		resp.Actions = []models.SuggestedAction{}
	}
	if model == nil {
		resp.Stats = models.DashboardStats{
			ReportsByStatus: emptyStatusCounts(),
			OpenActions:     openActions,
			GeneratedAt:     s.now().UTC(),
		}
		return resp, nil
	}

	resp.SnapshotID = model.SnapshotID
	resp.Stats = buildStats(model, openActions)
	if len(model.Hotspots) > 0 {
		resp.Hotspots = model.Hotspots
	}
	if len(model.Parameters) > 0 {
		resp.BayesianByLocation = model.Parameters
		resp.Bayesian = topParameter(model.Parameters)
	}
	resp.Predictions = s.predictions(ctx, model)
	return resp, nil
}

// Aggregate returns the window containing date (today when zero) for the location.
func (s *DashboardService) Aggregate(ctx context.Context, actor models.Actor, location string, date time.Time) (*models.AggregateWindow, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "aggregates require administrator role")
	}
	if date.IsZero() {
		date = s.now()
	}
	return s.aggregates.GetAggregate(ctx, location, date)
}

// ResetRisk overrides a location's risk state and schedules a recomputation.
func (s *DashboardService) ResetRisk(ctx context.Context, actor models.Actor, location string, req dto.ResetRiskRequest) (*models.BayesianParameter, error) {
	param, err := s.risk.ResetRisk(ctx, actor, location, req.Prior)
	if err != nil {
		return nil, err
	}
	s.pipeline.Trigger("risk_reset")
	return param, nil
}

// predictions fans out to the forecaster for hotspots first, then the highest posteriors. Failed
// locations are skipped.
func (s *DashboardService) predictions(ctx context.Context, model *ReadModel) []models.PredictionData {
	targets := forecastTargets(model, s.cfg.MaxForecasts)
	if len(targets) == 0 {
		return []models.PredictionData{}
	}

	results := make([][]models.PredictionData, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, loc := range targets {
		i, loc := i, loc
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, s.cfg.ForecastTimeout)
			defer cancel()
			points, err := s.forecaster.Forecast(callCtx, loc, s.cfg.ForecastHorizon)
			if err != nil {
				s.metrics.IncForecastFailure()
				s.logger.Warn("forecast unavailable", zap.String("location", loc), zap.Error(err))
				return nil
			}
			results[i] = points
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.PredictionData, 0)
	for _, points := range results {
		out = append(out, points...)
	}
	return out
}

func forecastTargets(model *ReadModel, limit int) []string {
	seen := make(map[string]struct{})
	targets := make([]string, 0, limit)
	add := func(loc string) {
		if len(targets) >= limit {
			return
		}
		if _, ok := seen[loc]; ok {
			return
		}
		seen[loc] = struct{}{}
		targets = append(targets, loc)
	}
	for _, h := range model.Hotspots {
		add(h.LocationID)
	}
	for _, p := range sortedByPosterior(model.Parameters) {
		add(p.LocationID)
	}
	return targets
}

func sortedByPosterior(params []models.BayesianParameter) []models.BayesianParameter {
	out := make([]models.BayesianParameter, len(params))
	copy(out, params)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Posterior != out[j].Posterior {
			return out[i].Posterior > out[j].Posterior
		}
		return out[i].LocationID < out[j].LocationID
	})
	return out
}

func topParameter(params []models.BayesianParameter) *models.BayesianParameter {
	if len(params) == 0 {
		return nil
	}
	top := sortedByPosterior(params)[0]
	return &top
}

func buildStats(model *ReadModel, openActions int) models.DashboardStats {
	stats := models.DashboardStats{
		ReportsByStatus: emptyStatusCounts(),
		ActiveHotspots:  len(model.Hotspots),
		OpenActions:     openActions,
		GeneratedAt:     model.GeneratedAt,
	}
	for status, n := range model.StatusCounts {
		stats.ReportsByStatus[status] = n
		stats.TotalReports += n
	}
	for _, series := range model.Aggregates.Series {
		stats.CurrentWindowTotal += series.Current().Total
	}
	if len(model.Parameters) > 0 {
		sum := 0.0
		for _, p := range model.Parameters {
			sum += p.Posterior
			if p.Posterior > stats.HighestRisk {
				stats.HighestRisk = p.Posterior
			}
		}
		stats.AverageRisk = sum / float64(len(model.Parameters))
	}
	return stats
}

func emptyStatusCounts() map[models.ReportStatus]int {
	counts := make(map[models.ReportStatus]int, len(models.ReportStatuses))
	for _, st := range models.ReportStatuses {
		counts[st] = 0
	}
	return counts
}
