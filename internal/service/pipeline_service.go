package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/sma-health-api/internal/models"
	"github.com/noah-isme/sma-health-api/pkg/events"
	"github.com/noah-isme/sma-health-api/pkg/jobs"
)

const recomputeJobKey = "recompute"

// ReadModel is one published result of a recomputation cycle. It is immutable once published.
type ReadModel struct {
	SnapshotID   string
	GeneratedAt  time.Time
	Aggregates   models.AggregateSnapshot
	Parameters   []models.BayesianParameter
	Hotspots     []models.HotspotData
	StatusCounts map[models.ReportStatus]int
}

type snapshotSource interface {
	ListCreatedBetween(ctx context.Context, location string, from, to time.Time) ([]models.HealthReport, error)
	CountByStatus(ctx context.Context) (map[models.ReportStatus]int, error)
}

type riskEvaluator interface {
	Evaluate(ctx context.Context, snapshot models.AggregateSnapshot) ([]models.BayesianParameter, error)
}

type hotspotActioner interface {
	AutoCreateFromHotspots(ctx context.Context, snapshotID string, hotspots []models.HotspotData) ([]models.SuggestedAction, error)
}

// PipelineConfig tunes the recomputation cycle. Cycles always run on a single queue worker.
type PipelineConfig struct {
	Interval        time.Duration
	LookbackWindows int
	AutoActions     bool
	MaxRetries      int
	RetryDelay      time.Duration
}

// PipelineServiceParams groups constructor dependencies.
type PipelineServiceParams struct {
	Reports   snapshotSource
	Locations locationIndexer
	Bucketer  Bucketer
	Risk      riskEvaluator
	Ranker    *HotspotRanker
	Actions   hotspotActioner
	Publisher events.Publisher
	Metrics   *MetricsService
	Logger    *zap.Logger
	Config    PipelineConfig
}

// PipelineService runs aggregation, risk estimation, ranking and auto-actions from one consistent
// read of the report store and publishes the result atomically. Cycles run one at a time; triggers
// arriving while one is queued collapse into it.
type PipelineService struct {
	reports   snapshotSource
	locations locationIndexer
	bucketer  Bucketer
	risk      riskEvaluator
	ranker    *HotspotRanker
	actions   hotspotActioner
	events    eventEmitter
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       PipelineConfig
	now       func() time.Time

	queue   *jobs.Queue
	flight  singleflight.Group
	cycleMu sync.Mutex
	current atomic.Pointer[ReadModel]

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewPipelineService constructs the pipeline.
func NewPipelineService(params PipelineServiceParams) *PipelineService {
	cfg := params.Config
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.LookbackWindows <= 0 {
		cfg.LookbackWindows = 14
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PipelineService{
		reports:   params.Reports,
		locations: params.Locations,
		bucketer:  params.Bucketer,
		risk:      params.Risk,
		ranker:    params.Ranker,
		actions:   params.Actions,
		events:    newEventEmitter(params.Publisher, params.Metrics, logger),
		metrics:   params.Metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	// one worker keeps cycles serialised; Evaluate and trend memory assume no overlap
	s.queue = jobs.NewQueue("risk-pipeline", s.handleJob, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 4,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the worker queue and the periodic ticker, and schedules an initial cycle.
func (s *PipelineService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	go s.tick(ctx)
	s.Trigger("startup")
}

// Stop halts the ticker and drains the queue workers.
func (s *PipelineService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.queue.Stop()
	})
}

// Trigger schedules a cycle asynchronously. Duplicate pending triggers coalesce.
func (s *PipelineService) Trigger(reason string) {
	err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Key: recomputeJobKey, Type: "recompute", Payload: reason})
	if err != nil {
		s.logger.Debug("recompute trigger dropped", zap.String("reason", reason), zap.Error(err))
	}
}

// Snapshot returns the latest published read model, or nil before the first successful cycle.
func (s *PipelineService) Snapshot() *ReadModel {
	return s.current.Load()
}

// RunCycle executes a cycle now. Concurrent callers share one execution.
func (s *PipelineService) RunCycle(ctx context.Context) (*ReadModel, error) {
	v, err, _ := s.flight.Do("cycle", func() (interface{}, error) {
		s.cycleMu.Lock()
		defer s.cycleMu.Unlock()
		return s.runCycle(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ReadModel), nil
}

func (s *PipelineService) handleJob(ctx context.Context, job jobs.Job) error {
	_, err := s.RunCycle(ctx)
	return err
}

func (s *PipelineService) tick(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Trigger("interval")
		}
	}
}

func (s *PipelineService) runCycle(ctx context.Context) (model *ReadModel, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveCycle(time.Since(start), err)
		if err != nil {
			s.logger.Warn("risk cycle failed, keeping previous snapshot", zap.Error(err))
		}
	}()

	now := s.now()
	current := s.bucketer.Start(now)
	from := current.Add(-time.Duration(s.cfg.LookbackWindows) * s.bucketer.Size())
	to := current.Add(s.bucketer.Size())

	queryStart := time.Now()
	reports, err := s.reports.ListCreatedBetween(ctx, "", from, to)
	s.metrics.ObserveDBQuery("snapshot_reports", time.Since(queryStart))
	if err != nil {
		return nil, fmt.Errorf("read report snapshot: %w", err)
	}

	locations, err := s.locations.LocationIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("load locations: %w", err)
	}
	rooms := make([]string, 0, len(locations))
	names := make(map[string]string, len(locations))
	for id, loc := range locations {
		names[id] = loc.Name
		if loc.Kind == models.LocationKindRoom {
			rooms = append(rooms, id)
		}
	}
	sort.Strings(rooms)

	counts, err := s.reports.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}

	// Evaluate persists posteriors, so it stays the last step that can fail.
	snapshot := s.bucketer.BuildSnapshot(reports, now, s.cfg.LookbackWindows, rooms...)
	params, err := s.risk.Evaluate(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("evaluate risk: %w", err)
	}
	hotspots, scores := s.ranker.Preview(params, snapshot, names)

	model = &ReadModel{
		SnapshotID:   uuid.NewString(),
		GeneratedAt:  now.UTC(),
		Aggregates:   snapshot,
		Parameters:   params,
		Hotspots:     hotspots,
		StatusCounts: counts,
	}

	if s.cfg.AutoActions && s.actions != nil {
		if _, actErr := s.actions.AutoCreateFromHotspots(ctx, model.SnapshotID, hotspots); actErr != nil {
			s.logger.Error("auto-create hotspot actions failed", zap.String("snapshot_id", model.SnapshotID), zap.Error(actErr))
		}
	}

	previous := s.current.Swap(model)
	s.ranker.Commit(scores)
	s.metrics.SetRiskGauges(len(hotspots), highestPosterior(params))
	s.events.emit(ctx, newHotspotEvents(previous, model)...)
	s.logger.Debug("risk cycle published",
		zap.String("snapshot_id", model.SnapshotID),
		zap.Int("reports", snapshot.TotalReports),
		zap.Int("hotspots", len(hotspots)),
		zap.Duration("took", time.Since(start)))
	return model, nil
}

func newHotspotEvents(previous, current *ReadModel) []events.Event {
	known := make(map[string]struct{})
	if previous != nil {
		for _, h := range previous.Hotspots {
			known[h.LocationID] = struct{}{}
		}
	}
	out := make([]events.Event, 0)
	for _, h := range current.Hotspots {
		if _, ok := known[h.LocationID]; ok {
			continue
		}
		out = append(out, events.Event{
			Type:       events.TypeHotspotDetected,
			Key:        h.LocationID,
			OccurredAt: current.GeneratedAt,
			Payload: map[string]interface{}{
				"snapshotId": current.SnapshotID,
				"hotspot":    h,
			},
		})
	}
	return out
}

func highestPosterior(params []models.BayesianParameter) float64 {
	highest := 0.0
	for _, p := range params {
		if p.Posterior > highest {
			highest = p.Posterior
		}
	}
	return highest
}
