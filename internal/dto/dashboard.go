package dto

import "github.com/noah-isme/sma-health-api/internal/models"

// DashboardResponse is the admin dashboard payload.
type DashboardResponse struct {
	SnapshotID         string                     `json:"snapshotId,omitempty"`
	Stats              models.DashboardStats      `json:"stats"`
	Hotspots           []models.HotspotData       `json:"hotspots"`
	Predictions        []models.PredictionData    `json:"predictions"`
	Actions            []models.SuggestedAction   `json:"actions"`
	Bayesian           *models.BayesianParameter  `json:"bayesian"`
	BayesianByLocation []models.BayesianParameter `json:"bayesianByLocation"`
}

// CreateActionRequest captures POST /dashboard/actions payload.
type CreateActionRequest struct {
	Description string  `json:"description" validate:"required,max=500"`
	Location    *string `json:"location,omitempty"`
}

// ResetRiskRequest captures POST /dashboard/bayesian/{location}/reset payload. A missing prior
// resets to the configured baseline prior.
type ResetRiskRequest struct {
	Prior *float64 `json:"prior,omitempty" validate:"omitempty,gt=0,lt=1"`
}

// AggregateQuery holds GET /dashboard/aggregates query parameters.
type AggregateQuery struct {
	Location string `form:"location"`
	Date     string `form:"date"`
}
