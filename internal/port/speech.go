package port

import (
	"context"

	"findit/internal/domain"
)

// AudioFormat names the container of an audio buffer.
type AudioFormat string

const (
	AudioWAV AudioFormat = "wav"
)

// Transcriber converts recorded speech to text. Transcoding the input into
// whatever the model expects is the implementation's job.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format AudioFormat) (string, error)
}

// Synthesizer converts text into speech using a voice preset.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voicePreset string) (domain.Narration, error)
}
