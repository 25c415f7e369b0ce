package models

import "time"

// AggregateWindow counts reports for one location within one time bucket.
type AggregateWindow struct {
	LocationID        string               `json:"locationId"`
	BucketStart       time.Time            `json:"bucketStart"`
	BucketEnd         time.Time            `json:"bucketEnd"`
	Total             int                  `json:"total"`
	BySymptom         map[string]int       `json:"bySymptom"`
	ByStatus          map[ReportStatus]int `json:"byStatus"`
	DistinctReporters int                  `json:"distinctReporters"`
}

// LocationSeries is a contiguous run of windows for one location, oldest first. The last window is
// the current one.
type LocationSeries struct {
	LocationID string            `json:"locationId"`
	Windows    []AggregateWindow `json:"windows"`
}

// Current returns the most recent window.
func (s LocationSeries) Current() AggregateWindow {
	if len(s.Windows) == 0 {
		return AggregateWindow{LocationID: s.LocationID}
	}
	return s.Windows[len(s.Windows)-1]
}

// AggregateSnapshot groups one consistent read of the report store into per-location series.
type AggregateSnapshot struct {
	GeneratedAt   time.Time                 `json:"generatedAt"`
	CurrentBucket time.Time                 `json:"currentBucket"`
	Series        map[string]LocationSeries `json:"series"`
	TotalReports  int                       `json:"totalReports"`
}
