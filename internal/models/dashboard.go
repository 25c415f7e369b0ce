package models

import "time"

// DashboardStats is the read-only summary projected from the latest snapshot.
type DashboardStats struct {
	TotalReports       int                  `json:"totalReports"`
	ReportsByStatus    map[ReportStatus]int `json:"reportsByStatus"`
	CurrentWindowTotal int                  `json:"currentWindowTotal"`
	ActiveHotspots     int                  `json:"activeHotspots"`
	OpenActions        int                  `json:"openActions"`
	HighestRisk        float64              `json:"highestRisk"`
	AverageRisk        float64              `json:"averageRisk"`
	GeneratedAt        time.Time            `json:"generatedAt"`
}
