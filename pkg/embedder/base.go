// Package embedder provides interfaces for embedding providers.
//
// It defines the Provider interface that all embedding implementations must satisfy,
// converting record content into the fixed per-modality vectors used for
// similarity search: 384 dimensions for text, 512 for images.
package embedder

import "context"

const (
	// TextDimensions is the fixed dimension of the text embedding slot.
	TextDimensions = 384

	// ImageDimensions is the fixed dimension of the image embedding slot.
	ImageDimensions = 512
)

// Provider defines the interface for embedding providers.
//
// All embedding implementations must produce vectors with exactly the slot
// dimensions above; the client rejects mismatched vectors before storage.
type Provider interface {
	// EmbedText converts a text string into a vector embedding.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - text: The input text to embed
	//
	// Returns the TextDimensions-length embedding vector and any error.
	EmbedText(ctx context.Context, text string) ([]float64, error)

	// EmbedImage converts raw image bytes into a vector embedding.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - data: The encoded image bytes (PNG or JPEG)
	//
	// Returns the ImageDimensions-length embedding vector and any error.
	EmbedImage(ctx context.Context, data []byte) ([]float64, error)

	// EmbedBatch converts multiple text strings into vector embeddings.
	//
	// This method is more efficient than calling EmbedText multiple times,
	// as it can batch process requests.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - texts: Slice of input texts to embed
	//
	// Returns a slice of embedding vectors and any error.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the vector dimension for the given modality
	// ("text" or "image").
	Dimensions(modality string) int

	// Close closes the provider and releases resources.
	Close() error
}
