package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-health-api/internal/models"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
)

func TestBucketerAlignment(t *testing.T) {
	b := NewBucketer(24*time.Hour, time.UTC)

	start, end := b.Window(time.Date(2024, 3, 4, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), end)

	midnight := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, midnight, b.Start(midnight), "start is inclusive")

	before := time.Date(1999, 12, 31, 13, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC), b.Start(before))

	hourly := NewBucketer(6*time.Hour, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), hourly.Start(time.Date(2024, 3, 4, 17, 59, 0, 0, time.UTC)))
}

func TestBucketerZone(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	b := NewBucketer(24*time.Hour, jakarta)

	// 20:00 UTC on the 4th is 03:00 on the 5th in WIB.
	start := b.Start(time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC))
	assert.True(t, start.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, jakarta)))

	fallback := NewBucketer(0, nil)
	assert.Equal(t, 24*time.Hour, fallback.Size())
}

func snapshotReports(now time.Time) []models.HealthReport {
	return []models.HealthReport{
		{ID: "a", ReporterID: "s1", LocationID: "Room-12A", Symptoms: []string{"fever", "cough"}, Status: models.ReportStatusPending, CreatedAt: now.Add(-time.Hour)},
		{ID: "b", ReporterID: "s1", LocationID: "Room-12A", Symptoms: []string{"fever"}, Status: models.ReportStatusInvestigating, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "c", ReporterID: "s2", LocationID: "Room-12A", Symptoms: []string{"cough"}, Status: models.ReportStatusPending, CreatedAt: now.Add(-26 * time.Hour)},
		{ID: "d", ReporterID: "s3", LocationID: "Room-12B", Symptoms: []string{"headache"}, Status: models.ReportStatusResolved, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "old", ReporterID: "s3", LocationID: "Room-12B", Symptoms: []string{"headache"}, Status: models.ReportStatusPending, CreatedAt: now.Add(-30 * 24 * time.Hour)},
	}
}

func TestBuildSnapshot(t *testing.T) {
	b := NewBucketer(24*time.Hour, time.UTC)
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	snap := b.BuildSnapshot(snapshotReports(now), now, 3, "Room-12A", "Room-12C")

	assert.Equal(t, 4, snap.TotalReports, "reports outside the lookback are ignored")
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), snap.CurrentBucket)
	assert.Equal(t, []string{"Room-12A", "Room-12B", "Room-12C"}, SortedLocations(snap))

	room := snap.Series["Room-12A"]
	require.Len(t, room.Windows, 4)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), room.Windows[0].BucketStart)
	current := room.Current()
	assert.Equal(t, 2, current.Total)
	assert.Equal(t, 1, current.DistinctReporters)
	assert.Equal(t, 2, current.BySymptom["fever"])
	assert.Equal(t, 1, current.ByStatus[models.ReportStatusInvestigating])
	assert.Equal(t, 0, current.ByStatus[models.ReportStatusResolved])
	assert.Equal(t, 1, room.Windows[2].Total)

	seeded := snap.Series["Room-12C"]
	require.Len(t, seeded.Windows, 4)
	assert.Zero(t, seeded.Current().Total)

	again := b.BuildSnapshot(snapshotReports(now), now, 3, "Room-12C", "Room-12A")
	assert.Equal(t, snap, again)
}

type countingReader struct {
	store   *memReportStore
	calls   int
	onQuery func()
}

func (c *countingReader) ListCreatedBetween(ctx context.Context, location string, from, to time.Time) ([]models.HealthReport, error) {
	c.calls++
	if c.onQuery != nil {
		c.onQuery()
	}
	return c.store.ListCreatedBetween(ctx, location, from, to)
}

func TestGetAggregateMemoisesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	store := newMemReportStore()
	for _, r := range snapshotReports(now) {
		store.add(r)
	}
	reader := &countingReader{store: store}
	svc := NewAggregationService(NewBucketer(24*time.Hour, time.UTC), reader, newCatalogStub(), nil)

	window, err := svc.GetAggregate(ctx, "Room-12A", now)
	require.NoError(t, err)
	assert.Equal(t, 2, window.Total)

	window.BySymptom["fever"] = 99
	again, err := svc.GetAggregate(ctx, "Room-12A", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, again.BySymptom["fever"], "callers receive copies")
	assert.Equal(t, 1, reader.calls)

	store.add(models.HealthReport{ReporterID: "s9", LocationID: "Room-12A", Symptoms: []string{"fever"}, CreatedAt: now})
	svc.Invalidate("Room-12A", now)

	updated, err := svc.GetAggregate(ctx, "Room-12A", now)
	require.NoError(t, err)
	assert.Equal(t, window.Total+1, updated.Total)
	assert.Equal(t, 2, reader.calls)
}

func TestGetAggregateSkipsMemoWhenInvalidatedMidQuery(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	store := newMemReportStore()
	reader := &countingReader{store: store}
	svc := NewAggregationService(NewBucketer(24*time.Hour, time.UTC), reader, newCatalogStub(), nil)
	reader.onQuery = func() { svc.Invalidate("Room-12A", now) }

	_, err := svc.GetAggregate(ctx, "Room-12A", now)
	require.NoError(t, err)

	reader.onQuery = nil
	_, err = svc.GetAggregate(ctx, "Room-12A", now)
	require.NoError(t, err)
	assert.Equal(t, 2, reader.calls)
}

func TestGetAggregateValidatesLocation(t *testing.T) {
	svc := NewAggregationService(NewBucketer(24*time.Hour, time.UTC), newMemReportStore(), newCatalogStub(), nil)

	_, err := svc.GetAggregate(context.Background(), "", time.Now())
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = svc.GetAggregate(context.Background(), "Room-404", time.Now())
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
