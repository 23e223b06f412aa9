package port

import (
	"context"
	"image"
)

// Captioner describes an image in natural language.
// Captions are not guaranteed to be identical across calls.
type Captioner interface {
	Caption(ctx context.Context, img image.Image) (string, error)
	ModelName() string
}
