package caption

import (
	"context"
	"fmt"
	"image"

	"findit/internal/domain"
)

// MockCaptioner names an image by its size and dominant channel.
type MockCaptioner struct{}

func NewMockCaptioner() *MockCaptioner {
	return &MockCaptioner{}
}

func (c *MockCaptioner) Caption(ctx context.Context, img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("mock caption: nil image: %w", domain.ErrInvalidArgument)
	}
	b := img.Bounds()

	var r, g, bl uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r, g, bl = r+uint64(pr), g+uint64(pg), bl+uint64(pb)
		}
	}

	tone := "grey"
	switch {
	case r > g && r > bl:
		tone = "red"
	case g > r && g > bl:
		tone = "green"
	case bl > r && bl > g:
		tone = "blue"
	}
	return fmt.Sprintf("a mostly %s picture, %dx%d pixels", tone, b.Dx(), b.Dy()), nil
}

func (c *MockCaptioner) ModelName() string {
	return "mock"
}
