package models

import "time"

// BayesianParameter is the sequential outbreak estimate for one location.
type BayesianParameter struct {
	LocationID      string    `db:"location_id" json:"location"`
	Prior           float64   `db:"prior" json:"prior"`
	LikelihoodRatio float64   `db:"likelihood_ratio" json:"likelihood"`
	Posterior       float64   `db:"posterior" json:"posterior"`
	EvidenceCount   int       `db:"evidence_count" json:"evidenceCount"`
	ObservedCount   int       `db:"observed_count" json:"observedCount"`
	ExpectedCount   float64   `db:"expected_count" json:"expectedCount"`
	WindowStart     time.Time `db:"window_start" json:"windowStart"`
	LastUpdated     time.Time `db:"last_updated" json:"lastUpdated"`
}
