package core

// SearchOption is a function type for configuring FindSimilarCases queries.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type SearchOption func(*SearchOptions)

// SearchOptions contains configuration options for similarity queries.
type SearchOptions struct {
	// Limit is the maximum number of final results. Default: 5
	Limit int

	// TimeWeight blends the recency term into the score, in [0, 1].
	// 0 disables temporal blending entirely. Default: 0.3
	TimeWeight float64

	// ModalityWeight enables the modality keyword boost. Default: true
	ModalityWeight bool

	// Slot selects the embedding slot to search ("text" or "image").
	// Default: "text"
	Slot string

	// Insights enables forgotten-insight mining on the result set.
	// Default: true
	Insights bool
}

// DefaultSearchOptions returns the baseline query options.
func DefaultSearchOptions() *SearchOptions {
	return &SearchOptions{
		Limit:          5,
		TimeWeight:     0.3,
		ModalityWeight: true,
		Slot:           "text",
		Insights:       true,
	}
}

// WithLimit sets the maximum number of final results.
//
// Example:
//
//	result, _ := client.FindSimilarCases(ctx, patientID, query, core.WithLimit(10))
func WithLimit(limit int) SearchOption {
	return func(opts *SearchOptions) {
		opts.Limit = limit
	}
}

// WithTimeWeight sets the recency blend weight. A weight of 0 ranks purely
// by similarity; a weight of 1 ranks purely by recency.
//
// Example:
//
//	result, _ := client.FindSimilarCases(ctx, patientID, query, core.WithTimeWeight(0.5))
func WithTimeWeight(weight float64) SearchOption {
	return func(opts *SearchOptions) {
		opts.TimeWeight = weight
	}
}

// WithModalityWeight enables or disables the modality keyword boost.
func WithModalityWeight(enabled bool) SearchOption {
	return func(opts *SearchOptions) {
		opts.ModalityWeight = enabled
	}
}

// WithSlot selects the embedding slot to search ("text" or "image").
func WithSlot(slot string) SearchOption {
	return func(opts *SearchOptions) {
		opts.Slot = slot
	}
}

// WithInsights enables or disables forgotten-insight mining.
func WithInsights(enabled bool) SearchOption {
	return func(opts *SearchOptions) {
		opts.Insights = enabled
	}
}
