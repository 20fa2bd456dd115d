// Package openai implements the embedder.Provider interface on top of the
// OpenAI Embeddings API for text, with a local feature extractor for images.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"github.com/careledger/careledger-go/pkg/embedder"
)

// Client is an OpenAI embedder client.
// Text goes through the OpenAI Embeddings API at the text slot dimension.
// Images are embedded locally from decoded pixel statistics, since the
// Embeddings API is text-only; the resulting vector fills the image slot.
type Client struct {
	client         *openai.Client
	model          openai.EmbeddingModel
	textDimensions int
}

// Config is the configuration for the OpenAI embedder.
// APIKey: OpenAI API key (required)
// Model: Embedding model name, defaults to text-embedding-3-small
// BaseURL: API base URL, defaults to the OpenAI official address
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient creates a new OpenAI embedder client.
//
// Args:
//   - cfg: OpenAI embedder configuration containing APIKey, Model, BaseURL
//
// Returns:
//   - *Client: OpenAI embedder client instance
//   - error: Returns an error if the configuration is invalid
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embedder: API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := openai.SmallEmbedding3
	if cfg.Model != "" {
		model = openai.EmbeddingModel(cfg.Model)
	}

	return &Client{
		client:         openai.NewClientWithConfig(config),
		model:          model,
		textDimensions: embedder.TextDimensions,
	}, nil
}

// EmbedText converts a single text to a vector via the Embeddings API,
// requesting the text slot dimension directly.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      c.model,
		Dimensions: c.textDimensions,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("embedding generation failed: no data returned from OpenAI API")
	}

	return toFloat64(resp.Data[0].Embedding), nil
}

// EmbedBatch converts multiple texts to vectors in a single API request.
// The returned slice matches the input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      c.model,
		Dimensions: c.textDimensions,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding generation failed: unexpected number of results from OpenAI API (got %d, expected %d)", len(resp.Data), len(texts))
	}

	embeddings := make([][]float64, len(texts))
	for i, data := range resp.Data {
		embeddings[i] = toFloat64(data.Embedding)
	}
	return embeddings, nil
}

// EmbedImage converts encoded image bytes into an image slot vector.
//
// The vector is built from decoded pixel statistics: per-region grayscale
// means, a global intensity histogram, and summary moments, zero-padded to
// the slot dimension. Statistics of similar scans land close under cosine
// similarity, which is sufficient for within-patient retrieval.
func (c *Client) EmbedImage(ctx context.Context, data []byte) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: decode image: %w", err)
	}

	return imageFeatures(img, embedder.ImageDimensions), nil
}

// Dimensions returns the vector dimension for the given modality.
func (c *Client) Dimensions(modality string) int {
	if modality == "image" {
		return embedder.ImageDimensions
	}
	return c.textDimensions
}

// Close closes the client. The underlying HTTP client holds no resources
// that need explicit release.
func (c *Client) Close() error {
	return nil
}

// imageFeatures extracts a fixed-length grayscale feature vector:
// a 20x20 grid of region means, a 64-bin intensity histogram, and global
// mean/stddev, padded with zeros to dims and L2-normalized.
func imageFeatures(img image.Image, dims int) []float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	features := make([]float64, dims)
	if width == 0 || height == 0 {
		return features
	}

	const grid = 20
	const bins = 64

	regionSum := make([]float64, grid*grid)
	regionCount := make([]float64, grid*grid)
	histogram := make([]float64, bins)

	var sum, sumSq float64
	total := float64(width * height)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// Luma from 16-bit channels, scaled to [0, 1].
			gray := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 65535.0

			gx := (x - bounds.Min.X) * grid / width
			gy := (y - bounds.Min.Y) * grid / height
			idx := gy*grid + gx
			regionSum[idx] += gray
			regionCount[idx]++

			bin := int(gray * float64(bins))
			if bin >= bins {
				bin = bins - 1
			}
			histogram[bin]++

			sum += gray
			sumSq += gray * gray
		}
	}

	offset := 0
	for i := 0; i < grid*grid && offset < dims; i++ {
		if regionCount[i] > 0 {
			features[offset] = regionSum[i] / regionCount[i]
		}
		offset++
	}
	for i := 0; i < bins && offset < dims; i++ {
		features[offset] = histogram[i] / total
		offset++
	}
	if offset < dims {
		mean := sum / total
		features[offset] = mean
		offset++
		if offset < dims {
			variance := sumSq/total - mean*mean
			if variance < 0 {
				variance = 0
			}
			features[offset] = math.Sqrt(variance)
		}
	}

	var norm float64
	for _, v := range features {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range features {
			features[i] /= norm
		}
	}
	return features
}

func toFloat64(embedding []float32) []float64 {
	out := make([]float64, len(embedding))
	for i, v := range embedding {
		out[i] = float64(v)
	}
	return out
}
