package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"math"
	"math/rand"
	"strings"

	"findit/internal/domain"
)

// gridSide is the number of cells per axis MockEmbedder averages over.
const gridSide = 4

// MockEmbedder is deterministic: equal inputs always give equal vectors.
// Text vectors are seeded from a hash of the text and image vectors from a
// coarse colour grid, so similar images land close together.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("mock: empty text: %w", domain.ErrInvalidArgument)
	}
	h := fnv.New64a()
	h.Write([]byte(text))
	r := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, e.dimension)
	for i := range vec {
		vec[i] = r.Float32()*2 - 1
	}
	return normalize(vec), nil
}

func (e *MockEmbedder) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	if img == nil {
		return nil, fmt.Errorf("mock: nil image: %w", domain.ErrInvalidArgument)
	}

	features := colourGrid(img)
	vec := make([]float32, e.dimension)
	for i := range vec {
		vec[i] = features[i%len(features)] + 0.05 // never the zero vector
	}
	return normalize(vec), nil
}

func colourGrid(img image.Image) []float32 {
	b := img.Bounds()
	sums := make([]float64, gridSide*gridSide*3)
	counts := make([]float64, gridSide*gridSide)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cell := ((y-b.Min.Y)*gridSide/b.Dy())*gridSide + (x-b.Min.X)*gridSide/b.Dx()
			r, g, bl, _ := img.At(x, y).RGBA()
			sums[cell*3] += float64(r) / 0xffff
			sums[cell*3+1] += float64(g) / 0xffff
			sums[cell*3+2] += float64(bl) / 0xffff
			counts[cell]++
		}
	}

	out := make([]float32, len(sums))
	for i := range sums {
		if n := counts[i/3]; n > 0 {
			out[i] = float32(sums[i] / n)
		}
	}
	return out
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
