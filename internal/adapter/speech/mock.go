package speech

import (
	"context"
	"fmt"
	"math"
	"strings"

	"findit/internal/domain"
	"findit/internal/port"
)

// MockTranscriber validates and normalises audio like the real client, then
// returns a fixed transcript.
type MockTranscriber struct {
	Text string
}

func NewMockTranscriber(text string) *MockTranscriber {
	return &MockTranscriber{Text: text}
}

func (t *MockTranscriber) Transcribe(ctx context.Context, audio []byte, format port.AudioFormat) (string, error) {
	if _, err := normalize(audio, format); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return t.Text, nil
}

const mockSampleRate = 24000

// MockSynthesizer renders a short tone whose length grows with the text.
type MockSynthesizer struct{}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

func (s *MockSynthesizer) Synthesize(ctx context.Context, text, voicePreset string) (domain.Narration, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Narration{}, fmt.Errorf("synthesize: empty text: %w", domain.ErrInvalidArgument)
	}
	n := len(text) * mockSampleRate / 100
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.2 * math.Sin(2*math.Pi*220*float64(i)/mockSampleRate))
	}
	return domain.Narration{Samples: samples, SampleRate: mockSampleRate}, nil
}
