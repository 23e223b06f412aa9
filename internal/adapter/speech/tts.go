package speech

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"findit/internal/adapter/media"
	"findit/internal/adapter/modelhttp"
	"findit/internal/domain"
)

// DefaultVoicePreset is used when a request names no voice.
const DefaultVoicePreset = "v2/en_speaker_6"

// TTSSynthesizer requests WAV from /audio/speech and decodes it.
type TTSSynthesizer struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func NewTTSSynthesizer(client *http.Client, baseURL, apiKey, model string) *TTSSynthesizer {
	return &TTSSynthesizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  client,
	}
}

func (s *TTSSynthesizer) Synthesize(ctx context.Context, text, voicePreset string) (domain.Narration, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Narration{}, fmt.Errorf("synthesize: empty text: %w", domain.ErrInvalidArgument)
	}
	if voicePreset == "" {
		voicePreset = DefaultVoicePreset
	}

	body, err := modelhttp.PostJSON(ctx, s.client, s.baseURL+"/audio/speech", s.apiKey, speechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          voicePreset,
		ResponseFormat: "wav",
	})
	if err != nil {
		return domain.Narration{}, fmt.Errorf("synthesize: %w", err)
	}

	n, err := media.DecodeWAV(body)
	if err != nil {
		return domain.Narration{}, fmt.Errorf("synthesize: %w", err)
	}
	return n, nil
}
