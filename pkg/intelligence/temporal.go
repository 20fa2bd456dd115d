package intelligence

import (
	"fmt"
	"sort"
	"strings"

	"github.com/careledger/careledger-go/pkg/storage"
)

// BuildTemporalContext orders the final candidate list by event time and
// annotates each entry with the gap in days since the previous one. The
// first entry carries no gap.
func BuildTemporalContext(candidates []ScoredCandidate) []TemporalEvent {
	if len(candidates) == 0 {
		return nil
	}

	ordered := make([]ScoredCandidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Record.Date.Before(ordered[j].Record.Date)
	})

	context := make([]TemporalEvent, 0, len(ordered))
	for i, c := range ordered {
		event := TemporalEvent{
			Date:           c.Record.Date,
			RecordType:     c.Record.RecordType,
			Similarity:     c.BaseSimilarity,
			ContentPreview: preview(c.Record.Content, 100),
		}
		if i > 0 {
			gap := int(c.Record.Date.Sub(ordered[i-1].Record.Date).Hours() / 24)
			event.DaysSincePrevious = &gap
		}
		context = append(context, event)
	}
	return context
}

// AnalyzeProgression scans a patient timeline for records mentioning a
// symptom (case-insensitive substring on content) and summarizes the
// occurrence pattern. An empty result has Occurrences 0 and zero times.
func AnalyzeProgression(timeline []*storage.Record, symptom string) Progression {
	progression := Progression{Symptom: symptom, Trend: "isolated"}

	needle := strings.ToLower(symptom)
	var matched []*storage.Record
	for _, record := range timeline {
		if strings.Contains(strings.ToLower(record.Content), needle) {
			matched = append(matched, record)
		}
	}
	if len(matched) == 0 {
		return progression
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Date.Before(matched[j].Date)
	})

	progression.Occurrences = len(matched)
	progression.FirstOccurrence = matched[0].Date
	progression.LatestOccurrence = matched[len(matched)-1].Date
	if len(matched) > 1 {
		span := matched[len(matched)-1].Date.Sub(matched[0].Date).Hours() / 24
		if span > 0 {
			progression.AverageFrequencyDays = span / float64(len(matched))
		}
	}
	if progression.Occurrences >= 3 {
		progression.Trend = "recurring"
	}

	progression.Timeline = make([]ProgressionPoint, 0, len(matched))
	for _, record := range matched {
		progression.Timeline = append(progression.Timeline, ProgressionPoint{
			Date:       record.Date,
			RecordType: record.RecordType,
		})
	}
	return progression
}

// ConsolidateWindow groups a window's records by type and reports the types
// recurring at least three times. It surfaces noise-reducing patterns over
// a short recent window, typically 30 days.
func ConsolidateWindow(records []*storage.Record, windowDays int) []TypePattern {
	grouped := map[string]int{}
	order := []string{}
	for _, record := range records {
		recordType := record.RecordType
		if recordType == "" {
			recordType = "unknown"
		}
		if _, seen := grouped[recordType]; !seen {
			order = append(order, recordType)
		}
		grouped[recordType]++
	}

	var patterns []TypePattern
	for _, recordType := range order {
		count := grouped[recordType]
		if count < 3 {
			continue
		}
		patterns = append(patterns, TypePattern{
			RecordType:  recordType,
			Count:       count,
			Description: describeRecurrence(recordType, count, windowDays),
		})
	}
	return patterns
}

func describeRecurrence(recordType string, count, windowDays int) string {
	return fmt.Sprintf("Recurring %s records (%d occurrences in %d days)",
		recordType, count, windowDays)
}

// preview returns the first max bytes of s.
func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
