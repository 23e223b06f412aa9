// Package speech implements port.Transcriber and port.Synthesizer against
// OpenAI-compatible audio endpoints.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"findit/internal/adapter/media"
	"findit/internal/adapter/modelhttp"
	"findit/internal/domain"
	"findit/internal/port"
)

// WhisperTranscriber uploads 16 kHz mono WAV to /audio/transcriptions.
type WhisperTranscriber struct {
	baseURL  string
	apiKey   string
	model    string
	language string
	client   *http.Client
}

type transcriptionResponse struct {
	Text  string    `json:"text"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
}

func NewWhisperTranscriber(client *http.Client, baseURL, apiKey, model, language string) *WhisperTranscriber {
	return &WhisperTranscriber{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		model:    model,
		language: language,
		client:   client,
	}
}

// Transcribe accepts PCM WAV of any rate and channel count. Other formats
// fail with domain.ErrUnsupportedFormat before anything is sent.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, format port.AudioFormat) (string, error) {
	wav, err := normalize(audio, format)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	var body bytes.Buffer
	contentType, err := writeTranscriptionForm(&body, wav, t.model, t.language)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	data, err := modelhttp.Do(t.client, req, t.apiKey)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	var resp transcriptionResponse
	if err := modelhttp.DecodeJSON(data, &resp); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("transcribe: API error: %s", resp.Error.Message)
	}
	return strings.TrimSpace(resp.Text), nil
}

// normalize checks the declared format and re-encodes the audio as
// 16 kHz 16-bit mono WAV.
func normalize(audio []byte, format port.AudioFormat) ([]byte, error) {
	if format != port.AudioWAV {
		return nil, fmt.Errorf("audio format %q: %w", format, domain.ErrUnsupportedFormat)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio: %w", domain.ErrInvalidArgument)
	}
	return media.NormalizeSpeechWAV(audio)
}

// writeTranscriptionForm writes the multipart request body and returns its
// content type.
func writeTranscriptionForm(w io.Writer, wav []byte, model, language string) (string, error) {
	mw := multipart.NewWriter(w)
	fw, err := mw.CreateFormFile("file", "speech.wav")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(wav); err != nil {
		return "", err
	}
	if err := mw.WriteField("model", model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	return mw.FormDataContentType(), nil
}
