// Package caption implements port.Captioner.
package caption

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"

	"findit/internal/adapter/media"
	"findit/internal/adapter/modelhttp"
	"findit/internal/domain"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaCaptioner describes images with a vision model served by Ollama.
type OllamaCaptioner struct {
	baseURL      string
	model        string
	prompt       string
	maxImageSide int
	client       *http.Client
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func NewOllamaCaptioner(client *http.Client, baseURL, model, prompt string, maxImageSide int) *OllamaCaptioner {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaCaptioner{
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        model,
		prompt:       prompt,
		maxImageSide: maxImageSide,
		client:       client,
	}
}

func (c *OllamaCaptioner) Caption(ctx context.Context, img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("ollama caption: nil image: %w", domain.ErrInvalidArgument)
	}
	b64, err := media.EncodePNGBase64(media.Fit(img, c.maxImageSide))
	if err != nil {
		return "", fmt.Errorf("ollama caption: %w", err)
	}

	body, err := modelhttp.PostJSON(ctx, c.client, c.baseURL+"/api/generate", "", generateRequest{
		Model:  c.model,
		Prompt: c.prompt,
		Images: []string{b64},
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("ollama caption: %w", err)
	}

	var resp generateResponse
	if err := modelhttp.DecodeJSON(body, &resp); err != nil {
		return "", fmt.Errorf("ollama caption: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama caption: %s", resp.Error)
	}

	caption := strings.TrimSpace(resp.Response)
	if caption == "" {
		return "", errors.New("ollama caption: model returned an empty caption")
	}
	return caption, nil
}

func (c *OllamaCaptioner) ModelName() string {
	return c.model
}
