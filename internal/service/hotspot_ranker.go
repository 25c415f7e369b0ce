package service

import (
	"math"
	"sort"
	"sync"

	"github.com/noah-isme/sma-health-api/internal/models"
)

const trendTolerance = 1e-9

// HotspotRanker orders locations by outbreak risk and remembers the previous cycle's scores for
// trend reporting.
type HotspotRanker struct {
	threshold float64

	mu       sync.Mutex
	previous map[string]float64
}

// NewHotspotRanker builds a ranker. Locations scoring at or below threshold are omitted.
func NewHotspotRanker(threshold float64) *HotspotRanker {
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.3
	}
	return &HotspotRanker{threshold: threshold, previous: make(map[string]float64)}
}

// Threshold returns the configured hotspot cut-off. Scores equal to it are not hotspots.
func (r *HotspotRanker) Threshold() float64 {
	return r.threshold
}

// Rank returns hotspots by descending risk, then higher current report count, then location id,
// and records every evaluated score as trend memory.
func (r *HotspotRanker) Rank(params []models.BayesianParameter, snapshot models.AggregateSnapshot, names map[string]string) []models.HotspotData {
	hotspots, scores := r.Preview(params, snapshot, names)
	r.Commit(scores)
	return hotspots
}

// Preview ranks like Rank without touching trend memory. The returned scores cover every
// evaluated location, including those below the threshold, and are meant for Commit once the
// cycle that produced them has been published.
func (r *HotspotRanker) Preview(params []models.BayesianParameter, snapshot models.AggregateSnapshot, names map[string]string) ([]models.HotspotData, map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hotspots := make([]models.HotspotData, 0)
	scores := make(map[string]float64, len(params))
	for _, p := range params {
		score := p.Posterior
		prev, known := r.previous[p.LocationID]
		scores[p.LocationID] = score
		if score <= r.threshold {
			continue
		}
		name := names[p.LocationID]
		if name == "" {
			name = p.LocationID
		}
		hotspots = append(hotspots, models.HotspotData{
			LocationID:   p.LocationID,
			LocationName: name,
			RiskScore:    score,
			ReportCount:  snapshot.Series[p.LocationID].Current().Total,
			Trend:        trendOf(prev, score, known),
		})
	}

	sort.Slice(hotspots, func(i, j int) bool {
		a, b := hotspots[i], hotspots[j]
		if a.RiskScore != b.RiskScore {
			return a.RiskScore > b.RiskScore
		}
		if a.ReportCount != b.ReportCount {
			return a.ReportCount > b.ReportCount
		}
		return a.LocationID < b.LocationID
	})
	for i := range hotspots {
		hotspots[i].Rank = i + 1
	}
	return hotspots, scores
}

// Commit stores scores as the baseline for the next cycle's trends.
func (r *HotspotRanker) Commit(scores map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for loc, score := range scores {
		r.previous[loc] = score
	}
}

func trendOf(previous, current float64, known bool) models.Trend {
	if !known {
		return models.TrendUp
	}
	switch delta := current - previous; {
	case math.Abs(delta) <= trendTolerance:
		return models.TrendFlat
	case delta > 0:
		return models.TrendUp
	default:
		return models.TrendDown
	}
}
