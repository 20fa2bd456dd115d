package core

import (
	"fmt"
	"strings"

	"github.com/careledger/careledger-go/pkg/intelligence"
)

// toSimilarCase converts a scored candidate into the public result shape,
// rendering its relevance explanation.
func toSimilarCase(candidate intelligence.ScoredCandidate) SimilarCase {
	record := candidate.Record
	return SimilarCase{
		RecordID:    record.RecordID,
		RecordType:  record.RecordType,
		Content:     record.Content,
		Date:        record.Date,
		Score:       candidate.FinalScore,
		Explanation: relevanceExplanation(candidate),
		Metadata:    record.Metadata,
	}
}

// relevanceExplanation renders a templated human-readable summary of why a
// record matched: similarity band, record type, date, age context, and up to
// two symptoms from metadata.
//
// Example: "Very similar report from 2024-03-01 (4 months ago) - symptoms: fever, cough"
func relevanceExplanation(candidate intelligence.ScoredCandidate) string {
	record := candidate.Record

	// Bands apply to the final weighted score, so reinforcement and recency
	// feed the wording as well as the ordering.
	var relevance string
	switch {
	case candidate.FinalScore > 0.8:
		relevance = "Very similar"
	case candidate.FinalScore > 0.6:
		relevance = "Moderately similar"
	default:
		relevance = "Potentially related"
	}

	recordType := record.RecordType
	if recordType == "" {
		recordType = "record"
	}

	explanation := fmt.Sprintf("%s %s from %s", relevance, recordType, record.Date.Format("2006-01-02"))

	if candidate.DaysOld > 0 {
		switch {
		case candidate.DaysOld < 30:
			explanation += " (recent)"
		case candidate.DaysOld < 180:
			explanation += fmt.Sprintf(" (%d months ago)", candidate.DaysOld/30)
		default:
			explanation += fmt.Sprintf(" (%d years ago)", candidate.DaysOld/365)
		}
	}

	if symptoms := symptomList(record.Metadata); len(symptoms) > 0 {
		if len(symptoms) > 2 {
			symptoms = symptoms[:2]
		}
		explanation += " - symptoms: " + strings.Join(symptoms, ", ")
	}

	return explanation
}

// symptomList extracts the symptoms metadata value, accepting both the
// in-process []string shape and the []interface{} shape produced by JSON.
func symptomList(metadata map[string]interface{}) []string {
	raw, ok := metadata["symptoms"]
	if !ok {
		return nil
	}
	switch values := raw.(type) {
	case []string:
		return values
	case []interface{}:
		var symptoms []string
		for _, v := range values {
			if s, ok := v.(string); ok {
				symptoms = append(symptoms, s)
			}
		}
		return symptoms
	default:
		return nil
	}
}
