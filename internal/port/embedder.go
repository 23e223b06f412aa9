package port

import (
	"context"
	"image"
)

// Embedder maps text and images into one joint vector space.
type Embedder interface {
	// EmbedText embeds a non-empty query string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedImage embeds a decoded image.
	EmbedImage(ctx context.Context, img image.Image) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}
