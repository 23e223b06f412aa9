package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"findit/internal/domain"
	"findit/internal/port"
)

// pathImage lets fakes recover which file an image came from.
type pathImage struct {
	image.Image
	path string
}

// fakeImages stands in for media.LoadImage: known paths load, others fail
// with a decode error like a corrupt file would.
type fakeImages map[string]bool

func (f fakeImages) load(path string) (image.Image, error) {
	if !f[path] {
		return nil, fmt.Errorf("open %s: %w", path, domain.ErrDecode)
	}
	return pathImage{Image: image.NewRGBA(image.Rect(0, 0, 1, 1)), path: path}, nil
}

// tableEmbedder maps image paths and query texts to fixed vectors.
type tableEmbedder struct {
	dim    int
	images map[string][]float32
	texts  map[string][]float32
	err    error

	textCalls int
}

func (e *tableEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.textCalls++
	if e.err != nil {
		return nil, e.err
	}
	v, ok := e.texts[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

func (e *tableEmbedder) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	p, ok := img.(pathImage)
	if !ok {
		return nil, errors.New("unexpected image")
	}
	v, ok := e.images[p.path]
	if !ok {
		return nil, fmt.Errorf("no vector for %s", p.path)
	}
	return v, nil
}

func (e *tableEmbedder) Dimension() int    { return e.dim }
func (e *tableEmbedder) ModelName() string { return "table" }

// pathCaptioner captions an image with its path and records the call order.
type pathCaptioner struct {
	calls []string
	fail  string
}

func (c *pathCaptioner) Caption(ctx context.Context, img image.Image) (string, error) {
	p := img.(pathImage).path
	c.calls = append(c.calls, p)
	if p == c.fail {
		return "", errors.New("vision model unavailable")
	}
	return "caption of " + p, nil
}

func (c *pathCaptioner) ModelName() string { return "path" }

type fakeTranscriber struct {
	text string
	err  error
}

func (t *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, format port.AudioFormat) (string, error) {
	return t.text, t.err
}

// lengthSynthesizer returns one sample per caption byte so tests can pair
// narrations with captions.
type lengthSynthesizer struct {
	voices []string
}

func (s *lengthSynthesizer) Synthesize(ctx context.Context, text, voice string) (domain.Narration, error) {
	s.voices = append(s.voices, voice)
	return domain.Narration{Samples: make([]float32, len(text)), SampleRate: 16000}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
