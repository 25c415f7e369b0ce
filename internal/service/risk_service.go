package service

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-health-api/internal/models"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
)

// RiskParams holds the Bayesian estimator constants.
type RiskParams struct {
	BaselinePrior      float64
	DefaultBaseline    float64
	MinBaseline        float64
	BaselineWindows    int
	OutbreakMultiplier float64
	MinLikelihoodRatio float64
	MaxLikelihoodRatio float64
	Epsilon            float64
	// PriorFloor bounds the prior carried into a new window from below. Zero keeps the closing
	// posterior as is.
	PriorFloor float64
}

// withDefaults fills zero values.
func (p RiskParams) withDefaults() RiskParams {
	if p.Epsilon <= 0 || p.Epsilon >= 0.5 {
		p.Epsilon = 1e-6
	}
	if p.BaselinePrior <= 0 || p.BaselinePrior >= 1 {
		p.BaselinePrior = 0.01
	}
	if p.DefaultBaseline <= 0 {
		p.DefaultBaseline = 2
	}
	if p.MinBaseline <= 0 {
		p.MinBaseline = 0.5
	}
	if p.BaselineWindows <= 0 {
		p.BaselineWindows = 7
	}
	if p.OutbreakMultiplier <= 1 {
		p.OutbreakMultiplier = 3
	}
	if p.MinLikelihoodRatio <= 0 {
		p.MinLikelihoodRatio = 0.01
	}
	if p.MaxLikelihoodRatio < p.MinLikelihoodRatio {
		p.MaxLikelihoodRatio = 1e6
	}
	if p.PriorFloor < 0 || p.PriorFloor >= 1 {
		p.PriorFloor = 0
	}
	return p
}

// Baseline returns the expected count for the window following history (oldest first). Only windows
// from the location's first reported activity onward count as history; without any, DefaultBaseline
// applies. The mean of the last BaselineWindows entries is floor-clamped to MinBaseline.
func (p RiskParams) Baseline(history []models.AggregateWindow) float64 {
	firstActive := -1
	for i, w := range history {
		if w.Total > 0 {
			firstActive = i
			break
		}
	}
	if firstActive < 0 {
		return p.DefaultBaseline
	}
	from := len(history) - p.BaselineWindows
	if from < firstActive {
		from = firstActive
	}
	sum := 0
	for _, w := range history[from:] {
		sum += w.Total
	}
	mean := float64(sum) / float64(len(history)-from)
	return math.Max(mean, p.MinBaseline)
}

// LikelihoodRatio is the Poisson ratio of observing k under the outbreak rate lambda*m versus the
// baseline rate lambda: m^k * e^{-lambda(m-1)}, clamped.
func (p RiskParams) LikelihoodRatio(k int, lambda float64) float64 {
	m := p.OutbreakMultiplier
	logLR := float64(k)*math.Log(m) - lambda*(m-1)
	lr := math.Exp(logLR)
	if math.IsNaN(lr) {
		lr = p.MinLikelihoodRatio
	}
	return math.Min(math.Max(lr, p.MinLikelihoodRatio), p.MaxLikelihoodRatio)
}

// Posterior applies the odds form of Bayes' rule and clamps the result to [eps, 1-eps].
func (p RiskParams) Posterior(prior, lr float64) float64 {
	prior = p.clamp(prior)
	odds := prior / (1 - prior) * lr
	return p.clamp(odds / (1 + odds))
}

func (p RiskParams) carry(posterior float64) float64 {
	return math.Max(posterior, p.PriorFloor)
}

func (p RiskParams) clamp(v float64) float64 {
	return math.Min(math.Max(v, p.Epsilon), 1-p.Epsilon)
}

// Update advances prev with the series and returns the new parameter. Re-evaluating the same window
// replaces its contribution; advancing folds any missed windows in order before the current one.
// A nil prev starts from BaselinePrior. A zero WindowStart marks state with no window folded yet.
func (p RiskParams) Update(prev *models.BayesianParameter, series models.LocationSeries, now time.Time) models.BayesianParameter {
	if len(series.Windows) == 0 {
		if prev != nil {
			return *prev
		}
		return models.BayesianParameter{LocationID: series.LocationID, Prior: p.BaselinePrior, LikelihoodRatio: 1, Posterior: p.BaselinePrior, LastUpdated: now.UTC()}
	}
	if prev == nil {
		prev = &models.BayesianParameter{LocationID: series.LocationID, Prior: p.BaselinePrior, Posterior: p.BaselinePrior}
	}
	last := len(series.Windows) - 1
	current := series.Windows[last]

	var prior float64
	evidence := prev.EvidenceCount
	switch {
	case prev.WindowStart.IsZero():
		prior = prev.Posterior
		evidence++
	case prev.WindowStart.Equal(current.BucketStart):
		prior = prev.Prior
	case prev.WindowStart.Before(current.BucketStart):
		prior = p.carry(prev.Posterior)
		for i := 0; i < last; i++ {
			w := series.Windows[i]
			if !w.BucketStart.After(prev.WindowStart) {
				continue
			}
			lr := p.LikelihoodRatio(w.Total, p.Baseline(series.Windows[:i]))
			prior = p.carry(p.Posterior(prior, lr))
			evidence++
		}
		evidence++
	default:
		// state is ahead of the snapshot (clock skew); keep it
		return *prev
	}

	lambda := p.Baseline(series.Windows[:last])
	lr := p.LikelihoodRatio(current.Total, lambda)
	return models.BayesianParameter{
		LocationID:      series.LocationID,
		Prior:           prior,
		LikelihoodRatio: lr,
		Posterior:       p.Posterior(prior, lr),
		EvidenceCount:   evidence,
		ObservedCount:   current.Total,
		ExpectedCount:   lambda,
		WindowStart:     current.BucketStart,
		LastUpdated:     now.UTC(),
	}
}

type bayesianStore interface {
	List(ctx context.Context) ([]models.BayesianParameter, error)
	GetByLocation(ctx context.Context, location string) (*models.BayesianParameter, error)
	UpsertMany(ctx context.Context, params []models.BayesianParameter) error
}

// RiskService persists the sequential outbreak estimate per location.
type RiskService struct {
	store     bayesianStore
	locations locationIndexer
	params    RiskParams
	logger    *zap.Logger
	now       func() time.Time

	// serialises read-modify-write of stored parameters against resets
	mu sync.Mutex
}

// NewRiskService constructs the risk service.
func NewRiskService(store bayesianStore, locations locationIndexer, params RiskParams, logger *zap.Logger) *RiskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskService{store: store, locations: locations, params: params.withDefaults(), logger: logger, now: time.Now}
}

// Params returns the effective estimator constants after defaults are applied.
func (s *RiskService) Params() RiskParams {
	return s.params
}

// UpdateRisk advances and stores the estimate for one location. Evaluate is the batch form the
// recompute cycle uses; both apply the same RiskParams.Update.
func (s *RiskService) UpdateRisk(ctx context.Context, location string, series models.LocationSeries) (*models.BayesianParameter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.store.GetByLocation(ctx, location)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load risk state")
	}
	series.LocationID = location
	next := s.params.Update(prev, series, s.now())
	if err := s.store.UpsertMany(ctx, []models.BayesianParameter{next}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store risk state")
	}
	return &next, nil
}

// Evaluate advances every series in the snapshot and stores the results in one batch. Stored
// parameters for locations absent from the snapshot are returned unchanged. Output is sorted by
// location.
func (s *RiskService) Evaluate(ctx context.Context, snapshot models.AggregateSnapshot) ([]models.BayesianParameter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	byLocation := make(map[string]models.BayesianParameter, len(stored))
	for _, p := range stored {
		byLocation[p.LocationID] = p
	}

	now := s.now()
	updated := make([]models.BayesianParameter, 0, len(snapshot.Series))
	for _, loc := range SortedLocations(snapshot) {
		var prev *models.BayesianParameter
		if p, ok := byLocation[loc]; ok {
			prev = &p
		}
		next := s.params.Update(prev, snapshot.Series[loc], now)
		byLocation[loc] = next
		updated = append(updated, next)
	}
	if err := s.store.UpsertMany(ctx, updated); err != nil {
		return nil, err
	}

	result := make([]models.BayesianParameter, 0, len(byLocation))
	for _, p := range byLocation {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LocationID < result[j].LocationID })
	return result, nil
}

// ResetRisk overrides a location's state with the given prior, or BaselinePrior when nil.
func (s *RiskService) ResetRisk(ctx context.Context, actor models.Actor, location string, prior *float64) (*models.BayesianParameter, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can reset risk")
	}
	value := s.params.BaselinePrior
	if prior != nil {
		value = *prior
	}
	if math.IsNaN(value) || value <= 0 || value >= 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "prior must be between 0 and 1")
	}
	if s.locations != nil {
		index, err := s.locations.LocationIndex(ctx)
		if err != nil {
			return nil, err
		}
		if _, ok := index[location]; !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "location not found")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	param := models.BayesianParameter{
		LocationID:      location,
		Prior:           value,
		LikelihoodRatio: 1,
		Posterior:       value,
		LastUpdated:     s.now().UTC(),
	}
	if err := s.store.UpsertMany(ctx, []models.BayesianParameter{param}); err != nil {
		s.logger.Error("reset risk failed", zap.String("location", location), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset risk")
	}
	s.logger.Info("risk reset", zap.String("location", location), zap.String("actor", actor.ID), zap.Float64("prior", value))
	return &param, nil
}
