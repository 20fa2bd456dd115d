package intelligence

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/careledger/careledger-go/pkg/storage"
)

// textAffinityKeywords boost text-modality records when present in the query.
var textAffinityKeywords = []string{"symptom", "treatment", "medication", "pain"}

// imageAffinityKeywords boost image-modality records when present in the query.
var imageAffinityKeywords = []string{"scan", "x-ray", "image"}

// modalityBoost is the multiplier applied when a keyword rule matches.
const modalityBoost = 1.1

// Scorer re-ranks vector search hits with temporal and modality awareness.
// The raw similarity is blended with an exponential recency term, boosted
// when query keywords hint at a preferred modality, and finally amplified by
// the record's memory weight.
type Scorer struct {
	// HalfLifeDays controls the recency term: a record this many days old has
	// a time factor of 0.5.
	HalfLifeDays float64
}

// NewScorer creates a Scorer with the given recency half-life in days.
func NewScorer(halfLifeDays float64) *Scorer {
	return &Scorer{HalfLifeDays: halfLifeDays}
}

// Score computes the ranking terms for one candidate.
//
// Parameters:
//   - record: the stored record with its search similarity in record.Score
//   - query: the original query text, used for modality keyword matching
//   - timeWeight: blend weight for the recency term, in [0, 1]
//   - modalityWeight: whether the modality keyword boost applies
//   - now: the query timestamp
func (s *Scorer) Score(record *storage.Record, query string, timeWeight float64, modalityWeight bool, now time.Time) ScoredCandidate {
	daysOld := int(now.Sub(record.Date).Hours() / 24)
	if daysOld < 0 {
		// Future-dated records are treated as current rather than rejected.
		daysOld = 0
	}

	timeFactor := math.Pow(0.5, float64(daysOld)/s.HalfLifeDays)

	base := record.Score
	blended := base
	if timeWeight != 0 {
		blended = base*(1.0-timeWeight) + timeFactor*timeWeight
	}

	mult := 1.0
	if modalityWeight && matchesModality(query, record.Modality) {
		mult = modalityBoost
	}

	weight := record.Memory.Weight
	if weight == 0 {
		weight = 1.0
	}

	return ScoredCandidate{
		Record:             record,
		BaseSimilarity:     base,
		TimeFactor:         timeFactor,
		TimeBoosted:        blended,
		ModalityMultiplier: mult,
		FinalScore:         blended * mult * weight,
		DaysOld:            daysOld,
	}
}

// Rank scores all candidates, sorts them by final score descending, and
// truncates to limit. The sort is stable: candidates with equal final scores
// keep their vector-search order.
func (s *Scorer) Rank(records []*storage.Record, query string, timeWeight float64, modalityWeight bool, limit int, now time.Time) []ScoredCandidate {
	scored := make([]ScoredCandidate, 0, len(records))
	for _, record := range records {
		scored = append(scored, s.Score(record, query, timeWeight, modalityWeight, now))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].FinalScore > scored[j].FinalScore
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// matchesModality reports whether the query contains a keyword associated
// with the candidate's modality. At most one rule can apply to a candidate
// because each rule is gated on a distinct modality.
func matchesModality(query, modality string) bool {
	lowered := strings.ToLower(query)
	switch storage.VectorSlot(modality) {
	case storage.SlotText:
		return containsAny(lowered, textAffinityKeywords)
	case storage.SlotImage:
		return containsAny(lowered, imageAffinityKeywords)
	default:
		return false
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
