package models

// Trend compares a location's risk to the previous cycle.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// HotspotData is one ranked location above the hotspot threshold.
type HotspotData struct {
	LocationID   string  `json:"location"`
	LocationName string  `json:"locationName"`
	RiskScore    float64 `json:"riskScore"`
	ReportCount  int     `json:"reportCount"`
	Trend        Trend   `json:"trend"`
	Rank         int     `json:"rank"`
}
