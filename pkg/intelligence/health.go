package intelligence

import (
	"math"
	"sort"
	"time"

	"github.com/careledger/careledger-go/pkg/storage"
)

// MemoryHealth scores the completeness and freshness of a patient's record
// history.
type MemoryHealth struct {
	// Status is "empty", "excellent", "good", "fair", or "needs_improvement".
	Status string `json:"status"`

	// Score is the weighted overall score in [0, 1].
	Score float64 `json:"score"`

	// RecencyScore reflects the share of records from the last 90 days.
	RecencyScore float64 `json:"recency_score,omitempty"`

	// DiversityScore reflects the spread of record types (five is ideal).
	DiversityScore float64 `json:"diversity_score,omitempty"`

	// ContinuityScore reflects how regularly records arrive.
	ContinuityScore float64 `json:"continuity_score,omitempty"`

	// Recommendations lists concrete ways to improve the history.
	Recommendations []string `json:"recommendations,omitempty"`
}

// AssessMemoryHealth computes the health of a timeline at the reference time.
// The overall score weights recency 0.4, diversity 0.3, and continuity 0.3.
func AssessMemoryHealth(timeline []*storage.Record, now time.Time) MemoryHealth {
	if len(timeline) == 0 {
		return MemoryHealth{Status: "empty", Score: 0}
	}

	total := len(timeline)

	recentCount := 0
	for _, record := range timeline {
		if int(now.Sub(record.Date).Hours()/24) <= 90 {
			recentCount++
		}
	}
	recency := math.Min(1.0, float64(recentCount)/math.Max(1.0, float64(total)*0.3))

	types := map[string]struct{}{}
	for _, record := range timeline {
		types[record.RecordType] = struct{}{}
	}
	diversity := math.Min(1.0, float64(len(types))/5.0)

	continuity := 0.5
	if total > 1 {
		dates := make([]time.Time, 0, total)
		for _, record := range timeline {
			dates = append(dates, record.Date)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		var gapSum float64
		for i := 1; i < len(dates); i++ {
			gapSum += dates[i].Sub(dates[i-1]).Hours() / 24
		}
		avgGap := gapSum / float64(len(dates)-1)
		continuity = math.Max(0, 1.0-avgGap/180.0)
	}

	score := recency*0.4 + diversity*0.3 + continuity*0.3

	return MemoryHealth{
		Status:          healthStatus(score),
		Score:           round2(score),
		RecencyScore:    round2(recency),
		DiversityScore:  round2(diversity),
		ContinuityScore: round2(continuity),
		Recommendations: healthRecommendations(recency, diversity, continuity),
	}
}

func healthStatus(score float64) string {
	switch {
	case score > 0.8:
		return "excellent"
	case score > 0.6:
		return "good"
	case score > 0.4:
		return "fair"
	default:
		return "needs_improvement"
	}
}

func healthRecommendations(recency, diversity, continuity float64) []string {
	var recommendations []string
	if recency < 0.5 {
		recommendations = append(recommendations,
			"Consider uploading recent medical records to improve memory accuracy")
	}
	if diversity < 0.4 {
		recommendations = append(recommendations,
			"Adding different types of records (symptoms, scans, reports) would provide better context")
	}
	if continuity < 0.4 {
		recommendations = append(recommendations,
			"Regular updates to your medical history help identify patterns over time")
	}
	return recommendations
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
