package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-health-api/internal/models"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
)

const maxMemoEntries = 10000

// Bucketer maps instants to fixed-size, non-overlapping windows aligned to midnight 2000-01-01 in
// the configured zone.
type Bucketer struct {
	size   time.Duration
	origin time.Time
}

// NewBucketer builds a bucketer. A non-positive size falls back to 24h and a nil zone to UTC.
func NewBucketer(size time.Duration, loc *time.Location) Bucketer {
	if size <= 0 {
		size = 24 * time.Hour
	}
	if loc == nil {
		loc = time.UTC
	}
	return Bucketer{size: size, origin: time.Date(2000, time.January, 1, 0, 0, 0, 0, loc)}
}

// Size returns the window length.
func (b Bucketer) Size() time.Duration {
	return b.size
}

// Start returns the start of the bucket containing t. Start is inclusive, end exclusive.
func (b Bucketer) Start(t time.Time) time.Time {
	offset := t.Sub(b.origin)
	n := offset / b.size
	if offset < 0 && offset%b.size != 0 {
		n--
	}
	return b.origin.Add(n * b.size)
}

// Window returns the bounds of the bucket containing t.
func (b Bucketer) Window(t time.Time) (time.Time, time.Time) {
	start := b.Start(t)
	return start, start.Add(b.size)
}

// BuildSnapshot groups reports into per-location series covering the current bucket and lookback
// previous buckets. Seed locations receive a series even without reports. Reports outside the range
// are ignored. The result depends only on its arguments.
func (b Bucketer) BuildSnapshot(reports []models.HealthReport, now time.Time, lookback int, seed ...string) models.AggregateSnapshot {
	if lookback < 0 {
		lookback = 0
	}
	current := b.Start(now)
	first := current.Add(-time.Duration(lookback) * b.size)
	end := current.Add(b.size)
	windowCount := lookback + 1

	byLocation := make(map[string][]models.HealthReport)
	for _, loc := range seed {
		if _, ok := byLocation[loc]; !ok {
			byLocation[loc] = nil
		}
	}
	total := 0
	for _, report := range reports {
		if report.CreatedAt.Before(first) || !report.CreatedAt.Before(end) {
			continue
		}
		byLocation[report.LocationID] = append(byLocation[report.LocationID], report)
		total++
	}

	series := make(map[string]models.LocationSeries, len(byLocation))
	for loc, locReports := range byLocation {
		buckets := make([][]models.HealthReport, windowCount)
		for _, report := range locReports {
			idx := int(b.Start(report.CreatedAt).Sub(first) / b.size)
			buckets[idx] = append(buckets[idx], report)
		}
		windows := make([]models.AggregateWindow, windowCount)
		for i := range windows {
			start := first.Add(time.Duration(i) * b.size)
			windows[i] = countWindow(loc, start, start.Add(b.size), buckets[i])
		}
		series[loc] = models.LocationSeries{LocationID: loc, Windows: windows}
	}

	return models.AggregateSnapshot{
		GeneratedAt:   now.UTC(),
		CurrentBucket: current,
		Series:        series,
		TotalReports:  total,
	}
}

// countWindow tallies reports already known to fall inside [start, end) at loc.
func countWindow(loc string, start, end time.Time, reports []models.HealthReport) models.AggregateWindow {
	window := models.AggregateWindow{
		LocationID:  loc,
		BucketStart: start,
		BucketEnd:   end,
		BySymptom:   make(map[string]int),
		ByStatus:    make(map[models.ReportStatus]int, len(models.ReportStatuses)),
	}
	for _, st := range models.ReportStatuses {
		window.ByStatus[st] = 0
	}
	reporters := make(map[string]struct{})
	for _, report := range reports {
		window.Total++
		window.ByStatus[report.Status]++
		for _, sym := range report.Symptoms {
			window.BySymptom[sym]++
		}
		reporters[report.ReporterID] = struct{}{}
	}
	window.DistinctReporters = len(reporters)
	return window
}

type reportRangeReader interface {
	ListCreatedBetween(ctx context.Context, location string, from, to time.Time) ([]models.HealthReport, error)
}

type locationIndexer interface {
	LocationIndex(ctx context.Context) (map[string]models.Location, error)
}

type memoKey struct {
	location string
	start    int64
}

// AggregationService answers windowed aggregate lookups with lazy memoised recomputation.
type AggregationService struct {
	Bucketer

	reports   reportRangeReader
	locations locationIndexer
	logger    *zap.Logger

	mu       sync.Mutex
	memo     map[memoKey]models.AggregateWindow
	versions map[memoKey]uint64
}

// NewAggregationService constructs the aggregation service.
func NewAggregationService(bucketer Bucketer, reports reportRangeReader, locations locationIndexer, logger *zap.Logger) *AggregationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregationService{
		Bucketer:  bucketer,
		reports:   reports,
		locations: locations,
		logger:    logger,
		memo:      make(map[memoKey]models.AggregateWindow),
		versions:  make(map[memoKey]uint64),
	}
}

// GetAggregate returns the window containing at for the location. Results are memoised until a
// lifecycle write invalidates the key; a result computed while an invalidation happened is returned
// but not memoised.
func (s *AggregationService) GetAggregate(ctx context.Context, location string, at time.Time) (*models.AggregateWindow, error) {
	if location == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "location is required")
	}
	if s.locations != nil {
		index, err := s.locations.LocationIndex(ctx)
		if err != nil {
			return nil, err
		}
		if _, ok := index[location]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown location "+location)
		}
	}

	start, end := s.Window(at)
	key := memoKey{location: location, start: start.UnixNano()}

	s.mu.Lock()
	if cached, ok := s.memo[key]; ok {
		s.mu.Unlock()
		return cloneWindow(cached), nil
	}
	version := s.versions[key]
	s.mu.Unlock()

	reports, err := s.reports.ListCreatedBetween(ctx, location, start, end)
	if err != nil {
		s.logger.Error("aggregate query failed", zap.String("location", location), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate reports")
	}
	window := countWindow(location, start, end, reports)

	s.mu.Lock()
	if s.versions[key] == version {
		if len(s.memo) >= maxMemoEntries {
			s.memo = make(map[memoKey]models.AggregateWindow)
		}
		s.memo[key] = window
	}
	s.mu.Unlock()

	return cloneWindow(window), nil
}

// Invalidate drops the memoised window holding at for the location.
func (s *AggregationService) Invalidate(location string, at time.Time) {
	key := memoKey{location: location, start: s.Start(at).UnixNano()}
	s.mu.Lock()
	delete(s.memo, key)
	s.versions[key]++
	s.mu.Unlock()
}

// SortedLocations returns the series keys of a snapshot in ascending order.
func SortedLocations(snapshot models.AggregateSnapshot) []string {
	keys := make([]string, 0, len(snapshot.Series))
	for k := range snapshot.Series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneWindow(w models.AggregateWindow) *models.AggregateWindow {
	out := w
	out.BySymptom = make(map[string]int, len(w.BySymptom))
	for k, v := range w.BySymptom {
		out.BySymptom[k] = v
	}
	out.ByStatus = make(map[models.ReportStatus]int, len(w.ByStatus))
	for k, v := range w.ByStatus {
		out.ByStatus[k] = v
	}
	return &out
}
