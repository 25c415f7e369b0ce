package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-health-api/internal/dto"
	"github.com/noah-isme/sma-health-api/internal/models"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
	"github.com/noah-isme/sma-health-api/pkg/events"
)

type reportServiceFixture struct {
	svc       *ReportService
	store     *memReportStore
	catalog   *catalogStub
	trigger   *triggerRecorder
	invalid   *invalidationRecorder
	publisher *publisherRecorder
}

func newReportServiceFixture(t *testing.T) *reportServiceFixture {
	t.Helper()
	f := &reportServiceFixture{
		store:     newMemReportStore(),
		catalog:   newCatalogStub(),
		trigger:   &triggerRecorder{},
		invalid:   &invalidationRecorder{},
		publisher: &publisherRecorder{},
	}
	f.svc = NewReportService(ReportServiceParams{
		Store:      f.store,
		Catalog:    f.catalog,
		Aggregates: f.invalid,
		Pipeline:   f.trigger,
		Publisher:  f.publisher,
		Metrics:    NewMetricsService(),
		Logger:     zap.NewNop(),
	})
	f.svc.now = func() time.Time { return time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC) }
	return f
}

func TestReportLifecycleRoom12AScenario(t *testing.T) {
	f := newReportServiceFixture(t)
	ctx := context.Background()

	first, err := f.svc.SubmitReport(ctx, student(), dto.CreateReportRequest{Symptoms: []string{"fever", "cough"}, Location: "Room-12A"})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusPending, first.Status)
	assert.Equal(t, "stu-1", first.ReporterID)
	assert.Equal(t, []string{"fever", "cough"}, []string(first.Symptoms))

	updated, err := f.svc.TransitionStatus(ctx, admin(), first.ID, dto.UpdateStatusRequest{Status: "investigating"})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusInvestigating, updated.Status)
	require.Len(t, updated.StatusHistory, 2)
	assert.Equal(t, models.ReportStatusInvestigating, updated.StatusHistory[1].Status)
	assert.Equal(t, "admin-1", updated.StatusHistory[1].ActorID)

	second, err := f.svc.SubmitReport(ctx, student(), dto.CreateReportRequest{Symptoms: []string{"fever"}, Location: "Room-12A"})
	require.NoError(t, err)
	_, err = f.svc.TransitionStatus(ctx, admin(), second.ID, dto.UpdateStatusRequest{Status: "reviewed"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
	assert.Contains(t, err.Error(), `"pending"`)
	assert.Contains(t, err.Error(), `"reviewed"`)

	stored, err := f.store.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusPending, stored.Status)

	assert.Equal(t, []string{"report.submitted", "report.status_changed", "report.submitted"}, f.trigger.reasons)
	assert.Len(t, f.invalid.keys, 3)
	assert.Equal(t, []string{events.TypeReportSubmitted, events.TypeReportStatusChanged, events.TypeReportSubmitted}, f.publisher.types())
}

func TestSubmitReportValidation(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("x", models.MaxNoteLength+1)
	blank := "   "

	cases := []struct {
		name  string
		actor models.Actor
		req   dto.CreateReportRequest
		want  *appErrors.Error
	}{
		{"empty symptoms", student(), dto.CreateReportRequest{Location: "Room-12A"}, appErrors.ErrValidation},
		{"blank symptom", student(), dto.CreateReportRequest{Symptoms: []string{" "}, Location: "Room-12A"}, appErrors.ErrValidation},
		{"missing location", student(), dto.CreateReportRequest{Symptoms: []string{"fever"}}, appErrors.ErrValidation},
		{"unknown location", student(), dto.CreateReportRequest{Symptoms: []string{"fever"}, Location: "Room-99"}, appErrors.ErrValidation},
		{"building location", student(), dto.CreateReportRequest{Symptoms: []string{"fever"}, Location: "Building-A"}, appErrors.ErrValidation},
		{"unknown symptom", student(), dto.CreateReportRequest{Symptoms: []string{"fever", "glowing"}, Location: "Room-12A"}, appErrors.ErrValidation},
		{"note too long", student(), dto.CreateReportRequest{Symptoms: []string{"fever"}, Location: "Room-12A", Note: &long}, appErrors.ErrValidation},
		{"student on behalf", student(), dto.CreateReportRequest{Symptoms: []string{"fever"}, Location: "Room-12A", ReporterID: "stu-2"}, appErrors.ErrForbidden},
		{"unknown role", models.Actor{ID: "x", Role: "teacher"}, dto.CreateReportRequest{Symptoms: []string{"fever"}, Location: "Room-12A"}, appErrors.ErrForbidden},
		{"anonymous", models.Actor{}, dto.CreateReportRequest{Symptoms: []string{"fever"}, Location: "Room-12A"}, appErrors.ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newReportServiceFixture(t)
			_, err := f.svc.SubmitReport(ctx, tc.actor, tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.store.reports)
			assert.Empty(t, f.trigger.reasons)
		})
	}

	t.Run("blank note dropped and symptoms deduplicated", func(t *testing.T) {
		f := newReportServiceFixture(t)
		report, err := f.svc.SubmitReport(ctx, student(), dto.CreateReportRequest{Symptoms: []string{"fever", " fever ", "cough"}, Location: " Room-12A ", Note: &blank})
		require.NoError(t, err)
		assert.Nil(t, report.Note)
		assert.Equal(t, []string{"fever", "cough"}, []string(report.Symptoms))
		assert.Equal(t, "Room-12A", report.LocationID)
	})

	t.Run("admin on behalf", func(t *testing.T) {
		f := newReportServiceFixture(t)
		report, err := f.svc.SubmitReport(ctx, admin(), dto.CreateReportRequest{Symptoms: []string{"fever"}, Location: "Room-12A", ReporterID: "stu-9"})
		require.NoError(t, err)
		assert.Equal(t, "stu-9", report.ReporterID)
		assert.Equal(t, models.RoleAdmin, report.StatusHistory[0].ActorRole)
	})
}

func TestTransitionStatusRules(t *testing.T) {
	ctx := context.Background()

	t.Run("students cannot transition", func(t *testing.T) {
		f := newReportServiceFixture(t)
		f.store.add(models.HealthReport{ID: "r1", ReporterID: "stu-1", LocationID: "Room-12A"})
		_, err := f.svc.TransitionStatus(ctx, student(), "r1", dto.UpdateStatusRequest{Status: "investigating"})
		assert.ErrorIs(t, err, appErrors.ErrForbidden)
	})

	t.Run("not found", func(t *testing.T) {
		f := newReportServiceFixture(t)
		_, err := f.svc.TransitionStatus(ctx, admin(), "missing", dto.UpdateStatusRequest{Status: "investigating"})
		assert.ErrorIs(t, err, appErrors.ErrNotFound)
	})

	t.Run("unknown status", func(t *testing.T) {
		f := newReportServiceFixture(t)
		f.store.add(models.HealthReport{ID: "r1", ReporterID: "stu-1", LocationID: "Room-12A"})
		_, err := f.svc.TransitionStatus(ctx, admin(), "r1", dto.UpdateStatusRequest{Status: "closed"})
		assert.ErrorIs(t, err, appErrors.ErrValidation)
	})

	t.Run("resolved is terminal", func(t *testing.T) {
		f := newReportServiceFixture(t)
		f.store.add(models.HealthReport{ID: "r1", ReporterID: "stu-1", LocationID: "Room-12A"})
		_, err := f.svc.TransitionStatus(ctx, admin(), "r1", dto.UpdateStatusRequest{Status: "resolved"})
		require.NoError(t, err)
		for _, next := range models.ReportStatuses {
			_, err := f.svc.TransitionStatus(ctx, admin(), "r1", dto.UpdateStatusRequest{Status: string(next)})
			assert.ErrorIs(t, err, appErrors.ErrInvalidTransition, next)
		}
	})

	t.Run("every status pair", func(t *testing.T) {
		allowed := map[[2]models.ReportStatus]bool{
			{models.ReportStatusPending, models.ReportStatusInvestigating}:  true,
			{models.ReportStatusPending, models.ReportStatusResolved}:       true,
			{models.ReportStatusInvestigating, models.ReportStatusReviewed}: true,
			{models.ReportStatusReviewed, models.ReportStatusResolved}:      true,
		}
		for _, from := range models.ReportStatuses {
			for _, to := range models.ReportStatuses {
				from, to := from, to
				t.Run(string(from)+"->"+string(to), func(t *testing.T) {
					f := newReportServiceFixture(t)
					seeded := []models.StatusHistoryEntry{{ReportID: "r1", Status: from, ActorID: "adm-0"}}
					f.store.add(models.HealthReport{ID: "r1", ReporterID: "stu-1", LocationID: "Room-12A", Status: from, StatusHistory: seeded})

					report, err := f.svc.TransitionStatus(ctx, admin(), "r1", dto.UpdateStatusRequest{Status: string(to)})
					stored, getErr := f.store.GetByID(ctx, "r1")
					require.NoError(t, getErr)

					if allowed[[2]models.ReportStatus{from, to}] {
						require.NoError(t, err)
						assert.Equal(t, to, report.Status)
						assert.Equal(t, to, stored.Status)
						require.Len(t, stored.StatusHistory, 2)
						assert.Equal(t, to, stored.StatusHistory[1].Status)
						return
					}
					assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
					assert.Nil(t, report)
					assert.Equal(t, from, stored.Status)
					assert.Equal(t, seeded, stored.StatusHistory, "rejected transitions leave history untouched")
				})
			}
		}
	})

	t.Run("lost race retried", func(t *testing.T) {
		f := newReportServiceFixture(t)
		f.store.add(models.HealthReport{ID: "r1", ReporterID: "stu-1", LocationID: "Room-12A"})
		f.store.conflict = 2
		report, err := f.svc.TransitionStatus(ctx, admin(), "r1", dto.UpdateStatusRequest{Status: "investigating"})
		require.NoError(t, err)
		assert.Equal(t, models.ReportStatusInvestigating, report.Status)
	})

	t.Run("retries exhausted", func(t *testing.T) {
		f := newReportServiceFixture(t)
		f.store.add(models.HealthReport{ID: "r1", ReporterID: "stu-1", LocationID: "Room-12A"})
		f.store.conflict = maxTransitionAttempts
		_, err := f.svc.TransitionStatus(ctx, admin(), "r1", dto.UpdateStatusRequest{Status: "investigating"})
		assert.ErrorIs(t, err, appErrors.ErrConflict)
	})
}

func TestReportReads(t *testing.T) {
	ctx := context.Background()
	f := newReportServiceFixture(t)
	f.store.add(models.HealthReport{ID: "r1", ReporterID: "stu-1", LocationID: "Room-12A"})
	f.store.add(models.HealthReport{ID: "r2", ReporterID: "stu-2", LocationID: "Room-12B", Status: models.ReportStatusInvestigating})

	mine, err := f.svc.ListMine(ctx, student())
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "r1", mine[0].ID)

	_, err = f.svc.Get(ctx, student(), "r2")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	got, err := f.svc.Get(ctx, admin(), "r2")
	require.NoError(t, err)
	assert.Equal(t, "stu-2", got.ReporterID)

	_, _, err = f.svc.ListAll(ctx, student(), models.ReportFilter{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	status := models.ReportStatusInvestigating
	list, total, err := f.svc.ListAll(ctx, admin(), models.ReportFilter{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "r2", list[0].ID)

	from := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	_, _, err = f.svc.ListAll(ctx, admin(), models.ReportFilter{From: &from, To: &to})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
