package intelligence

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// InsightDetector mines a query's candidate set for signals the patient or
// clinician may have forgotten: symptoms that stopped being mentioned,
// recommendations that were never followed up, highly similar old episodes
// with no recent context, and seasonal recurrence. Detection is read-only
// and never mutates memory state.
type InsightDetector struct {
	// RecentWindowDays bounds the recent bucket (age <= RecentWindowDays).
	RecentWindowDays int

	// OldWindowDays bounds the old bucket (RecentWindowDays < age <= OldWindowDays).
	// Candidates older than this are excluded from insight mining.
	OldWindowDays int

	// MaxInsights caps the number of emitted insights per query.
	MaxInsights int
}

// NewInsightDetector creates a detector with the given bucket windows (in
// days) and emission cap.
func NewInsightDetector(recentWindowDays, oldWindowDays, maxInsights int) *InsightDetector {
	return &InsightDetector{
		RecentWindowDays: recentWindowDays,
		OldWindowDays:    oldWindowDays,
		MaxInsights:      maxInsights,
	}
}

// Partition splits candidates into the recent and old buckets by record age
// at the reference time. Candidates beyond the old window fall out entirely.
func (d *InsightDetector) Partition(candidates []ScoredCandidate, now time.Time) (recent, old []ScoredCandidate) {
	for _, c := range candidates {
		ageDays := int(now.Sub(c.Record.Date).Hours() / 24)
		switch {
		case ageDays <= d.RecentWindowDays:
			recent = append(recent, c)
		case ageDays <= d.OldWindowDays:
			old = append(old, c)
		}
	}
	return recent, old
}

// Detect runs the four insight checks in fixed priority order over the
// partitioned buckets and returns at most MaxInsights insights.
//
// Priority: forgotten symptom pattern, unfollowed recommendations (one per
// matching record), historical match, recurring seasonal pattern.
func (d *InsightDetector) Detect(recent, old []ScoredCandidate, now time.Time) []Insight {
	var insights []Insight

	if insight, ok := d.symptomGap(recent, old); ok {
		insights = append(insights, insight)
	}
	insights = append(insights, d.unfollowedRecommendations(old, now)...)
	if insight, ok := d.historicalMatch(recent, old, now); ok {
		insights = append(insights, insight)
	}
	if insight, ok := d.recurringPattern(old); ok {
		insights = append(insights, insight)
	}

	if len(insights) > d.MaxInsights {
		insights = insights[:d.MaxInsights]
	}
	return insights
}

// symptomGap reports symptoms present in old records' metadata but absent
// from every recent record.
func (d *InsightDetector) symptomGap(recent, old []ScoredCandidate) (Insight, bool) {
	oldSymptoms := collectSymptoms(old)
	recentSymptoms := collectSymptoms(recent)

	var forgotten []string
	for symptom := range oldSymptoms {
		if _, ok := recentSymptoms[symptom]; !ok {
			forgotten = append(forgotten, symptom)
		}
	}
	if len(forgotten) == 0 {
		return Insight{}, false
	}
	sort.Strings(forgotten)
	if len(forgotten) > 3 {
		forgotten = forgotten[:3]
	}

	var recordIDs []string
	for _, c := range old {
		recordIDs = append(recordIDs, c.Record.RecordID)
	}
	return Insight{
		Category: InsightSymptomGap,
		Text: fmt.Sprintf(
			"FORGOTTEN PATTERN: Similar symptoms (%s) were reported over a year ago "+
				"but haven't been mentioned in recent visits. This historical context "+
				"may be important for your current situation.",
			strings.Join(forgotten, ", ")),
		RecordIDs: recordIDs,
	}, true
}

// unfollowedRecommendations reports old, relevant records carrying an
// unfollowed-recommendation note in their metadata. Each matching record
// yields its own insight.
func (d *InsightDetector) unfollowedRecommendations(old []ScoredCandidate, now time.Time) []Insight {
	var insights []Insight
	for _, c := range old {
		if c.FinalScore <= 0.6 {
			continue
		}
		unfollowed, ok := c.Record.Metadata["unfollowed_recommendation"].(string)
		if !ok || unfollowed == "" {
			continue
		}
		ageMonths := int(now.Sub(c.Record.Date).Hours()/24) / 30
		insights = append(insights, Insight{
			Category: InsightUnfollowedRecommendation,
			Text: fmt.Sprintf(
				"UNFOLLOWED RECOMMENDATION: %d months ago, during a similar episode, "+
					"your doctor recommended '%s' but this was never followed up on. "+
					"This may be worth discussing with your healthcare provider.",
				ageMonths, unfollowed),
			RecordIDs: []string{c.Record.RecordID},
		})
	}
	return insights
}

// historicalMatch reports the first old record scoring above 0.7 when the
// recent bucket is nearly empty.
func (d *InsightDetector) historicalMatch(recent, old []ScoredCandidate, now time.Time) (Insight, bool) {
	if len(recent) >= 2 {
		return Insight{}, false
	}
	for _, c := range old {
		if c.FinalScore <= 0.7 {
			continue
		}
		monthsAgo := int(now.Sub(c.Record.Date).Hours()/24) / 30
		return Insight{
			Category: InsightHistoricalMatch,
			Text: fmt.Sprintf(
				"HISTORICAL MATCH: A very similar situation (%s) was documented "+
					"%d months ago (%s), but there's no recent follow-up on record. "+
					"The previous episode may provide valuable context.",
				c.Record.RecordType, monthsAgo, c.Record.Date.Format("January 2006")),
			RecordIDs: []string{c.Record.RecordID},
		}, true
	}
	return Insight{}, false
}

// recurringPattern reports when three or more old records cluster into at
// most three distinct calendar months, suggesting seasonality.
func (d *InsightDetector) recurringPattern(old []ScoredCandidate) (Insight, bool) {
	if len(old) < 3 {
		return Insight{}, false
	}

	dates := make([]time.Time, 0, len(old))
	recordIDs := make([]string, 0, len(old))
	for _, c := range old {
		dates = append(dates, c.Record.Date)
		recordIDs = append(recordIDs, c.Record.RecordID)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	distinct := map[time.Month]struct{}{}
	for _, d := range dates {
		distinct[d.Month()] = struct{}{}
	}
	if len(distinct) > 3 {
		return Insight{}, false
	}

	monthNames := []string{
		dates[0].Format("January"),
		dates[len(dates)-1].Format("January"),
	}
	return Insight{
		Category: InsightRecurringPattern,
		Text: fmt.Sprintf(
			"RECURRING PATTERN: This type of issue has appeared multiple times "+
				"historically, often in similar months (%s). This suggests a "+
				"potential seasonal or cyclical pattern worth monitoring.",
			strings.Join(monthNames, ", ")),
		RecordIDs: recordIDs,
	}, true
}

// collectSymptoms gathers the symptom strings from candidate metadata.
// The conventional metadata value is []string, but ingestion through JSON
// produces []interface{}, so both shapes are accepted.
func collectSymptoms(candidates []ScoredCandidate) map[string]struct{} {
	symptoms := map[string]struct{}{}
	for _, c := range candidates {
		raw, ok := c.Record.Metadata["symptoms"]
		if !ok {
			continue
		}
		switch values := raw.(type) {
		case []string:
			for _, s := range values {
				symptoms[s] = struct{}{}
			}
		case []interface{}:
			for _, v := range values {
				if s, ok := v.(string); ok {
					symptoms[s] = struct{}{}
				}
			}
		}
	}
	return symptoms
}
