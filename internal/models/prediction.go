package models

import "time"

// PredictionData is one forecast point returned by the forecasting collaborator.
type PredictionData struct {
	LocationID    string    `json:"location"`
	Timestamp     time.Time `json:"timestamp"`
	ExpectedCount float64   `json:"expectedCount"`
}
