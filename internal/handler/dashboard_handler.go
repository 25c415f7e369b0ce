package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-health-api/internal/dto"
	"github.com/noah-isme/sma-health-api/internal/models"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
	"github.com/noah-isme/sma-health-api/pkg/response"
)

type dashboardService interface {
	Dashboard(ctx context.Context, actor models.Actor) (*dto.DashboardResponse, error)
	Aggregate(ctx context.Context, actor models.Actor, location string, date time.Time) (*models.AggregateWindow, error)
	ResetRisk(ctx context.Context, actor models.Actor, location string, req dto.ResetRiskRequest) (*models.BayesianParameter, error)
}

type actionService interface {
	CreateAction(ctx context.Context, actor models.Actor, req dto.CreateActionRequest) (*models.SuggestedAction, error)
	TransitionAction(ctx context.Context, actor models.Actor, id string, req dto.UpdateStatusRequest) (*models.SuggestedAction, error)
}

// DashboardHandler wires the dashboard, action and risk operations to HTTP endpoints.
type DashboardHandler struct {
	dashboard dashboardService
	actions   actionService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(dashboard dashboardService, actions actionService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, actions: actions}
}

// Get godoc
// @Summary Admin dashboard
// @Tags Dashboard
// @Produce json
// @Success 200 {object} dto.DashboardResponse
// @Router /dashboard [get]
func (h *DashboardHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	resp, err := h.dashboard.Dashboard(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp)
}

// Aggregate godoc
// @Summary Aggregate window for a location
// @Tags Dashboard
// @Produce json
// @Param location query string true "Location id"
// @Param date query string false "Instant inside the window (YYYY-MM-DD or RFC 3339). Defaults to now"
// @Success 200 {object} models.AggregateWindow
// @Router /dashboard/aggregates [get]
func (h *DashboardHandler) Aggregate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var q dto.AggregateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	location := strings.TrimSpace(q.Location)
	if location == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "location is required"))
		return
	}
	at, err := parseTimeParam("date", q.Date)
	if err != nil {
		response.Error(c, err)
		return
	}
	var date time.Time
	if at != nil {
		date = *at
	}
	window, err := h.dashboard.Aggregate(c.Request.Context(), actor, location, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, window)
}

// CreateAction godoc
// @Summary Create a suggested action
// @Tags Dashboard
// @Accept json
// @Produce json
// @Param payload body dto.CreateActionRequest true "Action payload"
// @Success 201 {object} models.SuggestedAction
// @Router /dashboard/actions [post]
func (h *DashboardHandler) CreateAction(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	action, err := h.actions.CreateAction(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, action)
}

// UpdateActionStatus godoc
// @Summary Transition a suggested action
// @Tags Dashboard
// @Accept json
// @Produce json
// @Param id path string true "Action id"
// @Param payload body dto.UpdateStatusRequest true "Next status"
// @Success 200 {object} models.SuggestedAction
// @Failure 409 {object} appErrors.Error
// @Router /dashboard/actions/{id}/status [patch]
func (h *DashboardHandler) UpdateActionStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "status is required"))
		return
	}
	action, err := h.actions.TransitionAction(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, action)
}

// ResetRisk godoc
// @Summary Override a location's outbreak risk state
// @Tags Dashboard
// @Accept json
// @Produce json
// @Param location path string true "Location id"
// @Param payload body dto.ResetRiskRequest false "Prior"
// @Success 200 {object} models.BayesianParameter
// @Router /dashboard/bayesian/{location}/reset [post]
func (h *DashboardHandler) ResetRisk(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ResetRiskRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "prior must be a number between 0 and 1"))
		return
	}
	param, err := h.dashboard.ResetRisk(c.Request.Context(), actor, c.Param("location"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, param)
}
