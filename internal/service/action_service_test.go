package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-health-api/internal/dto"
	"github.com/noah-isme/sma-health-api/internal/models"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
	"github.com/noah-isme/sma-health-api/pkg/events"
)

func newTestActionService() (*ActionService, *memActionStore, *publisherRecorder) {
	store := newMemActionStore()
	pub := &publisherRecorder{}
	svc := NewActionService(ActionServiceParams{Store: store, Locations: newCatalogStub(), Publisher: pub, Metrics: NewMetricsService()})
	return svc, store, pub
}

func hotspot(loc string, score float64, rank int) models.HotspotData {
	return models.HotspotData{LocationID: loc, LocationName: loc, RiskScore: score, ReportCount: 10, Trend: models.TrendUp, Rank: rank}
}

func TestAutoCreateFromHotspotsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestActionService()
	hotspots := []models.HotspotData{hotspot("Room-12A", 0.92, 1), hotspot("Room-12B", 0.55, 2)}

	created, err := svc.AutoCreateFromHotspots(ctx, "snap-1", hotspots)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, models.ActionPriorityHigh, created[0].Priority)
	assert.Equal(t, models.ActionPriorityMedium, created[1].Priority)
	assert.Equal(t, models.ActionSourceHotspot, created[0].Source)
	assert.Equal(t, SystemActorID, created[0].CreatedBy)
	assert.Equal(t, "snap-1", *created[0].SnapshotID)
	assert.Equal(t, 1, *created[0].HotspotRank)

	again, err := svc.AutoCreateFromHotspots(ctx, "snap-2", hotspots)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Equal(t, 2, store.creates)
	assert.Equal(t, []string{events.TypeActionCreated, events.TypeActionCreated}, pub.types())
}

func TestAutoCreateSkipsLocationsWithOpenActions(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestActionService()
	loc := "Room-12A"
	_, err := svc.CreateAction(ctx, admin(), dto.CreateActionRequest{Description: "Ventilate room", Location: &loc})
	require.NoError(t, err)

	created, err := svc.AutoCreateFromHotspots(ctx, "snap-1", []models.HotspotData{hotspot("Room-12A", 0.4, 1)})
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Equal(t, 1, store.creates)

	// leaving and re-crossing the threshold after completion creates a new action
	for _, next := range []string{"in-progress", "completed"} {
		_, err := svc.TransitionAction(ctx, admin(), "act-001", dto.UpdateStatusRequest{Status: next})
		require.NoError(t, err)
	}
	_, err = svc.AutoCreateFromHotspots(ctx, "snap-2", nil)
	require.NoError(t, err)
	created, err = svc.AutoCreateFromHotspots(ctx, "snap-3", []models.HotspotData{hotspot("Room-12A", 0.35, 1)})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, models.ActionPriorityLow, created[0].Priority)
}

func TestCreateAction(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestActionService()
	unknown := "Room-404"

	_, err := svc.CreateAction(ctx, student(), dto.CreateActionRequest{Description: "x"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = svc.CreateAction(ctx, admin(), dto.CreateActionRequest{Description: "   "})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = svc.CreateAction(ctx, admin(), dto.CreateActionRequest{Description: "Check", Location: &unknown})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	action, err := svc.CreateAction(ctx, admin(), dto.CreateActionRequest{Description: " Remind students to wash hands "})
	require.NoError(t, err)
	assert.Equal(t, "Remind students to wash hands", action.Description)
	assert.Nil(t, action.LocationID)
	assert.Equal(t, models.ActionStatusPending, action.Status)
	assert.Equal(t, models.ActionSourceManual, action.Source)
	assert.Equal(t, "admin-1", action.CreatedBy)
}

func TestTransitionAction(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newTestActionService()
	action, err := svc.CreateAction(ctx, admin(), dto.CreateActionRequest{Description: "Deep clean"})
	require.NoError(t, err)

	_, err = svc.TransitionAction(ctx, student(), action.ID, dto.UpdateStatusRequest{Status: "in-progress"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = svc.TransitionAction(ctx, admin(), action.ID, dto.UpdateStatusRequest{Status: "completed"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
	_, err = svc.TransitionAction(ctx, admin(), action.ID, dto.UpdateStatusRequest{Status: "done"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = svc.TransitionAction(ctx, admin(), "act-999", dto.UpdateStatusRequest{Status: "in-progress"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	updated, err := svc.TransitionAction(ctx, admin(), action.ID, dto.UpdateStatusRequest{Status: "In-Progress"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusInProgress, updated.Status)
	updated, err = svc.TransitionAction(ctx, admin(), action.ID, dto.UpdateStatusRequest{Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusCompleted, updated.Status)

	_, err = svc.TransitionAction(ctx, admin(), action.ID, dto.UpdateStatusRequest{Status: "pending"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
	assert.Equal(t, []string{events.TypeActionCreated, events.TypeActionStatusChanged, events.TypeActionStatusChanged}, pub.types())

	open, err := svc.CountOpen(ctx)
	require.NoError(t, err)
	assert.Zero(t, open)

	completed := models.ActionStatusCompleted
	list, err := svc.ListActions(ctx, models.ActionFilter{Status: &completed})
	require.NoError(t, err)
	require.Len(t, list, 1)
	bogus := models.ActionStatus("archived")
	_, err = svc.ListActions(ctx, models.ActionFilter{Status: &bogus})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
