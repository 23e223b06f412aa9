package embedding

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"strings"

	"findit/internal/adapter/media"
	"findit/internal/adapter/modelhttp"
	"findit/internal/domain"
)

const defaultJinaURL = "https://api.jina.ai/v1"

// JinaEmbedder embeds text and images into the shared CLIP space through
// an OpenAI-compatible /embeddings endpoint.
type JinaEmbedder struct {
	apiKey       string
	model        string
	baseURL      string
	dimension    int
	maxImageSide int
	client       *http.Client
}

type embeddingInput struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type embeddingRequest struct {
	Model      string           `json:"model"`
	Input      []embeddingInput `json:"input"`
	Normalized bool             `json:"normalized"`
}

type embeddingResponse struct {
	Data   []embeddingData `json:"data"`
	Usage  embeddingUsage  `json:"usage"`
	Detail string          `json:"detail,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingUsage struct {
	TotalTokens int `json:"total_tokens"`
}

// KnownDimension returns the output size of a known CLIP model, or 0.
func KnownDimension(model string) int {
	switch model {
	case "jina-clip-v1":
		return 768
	case "jina-clip-v2":
		return 1024
	}
	return 0
}

// JinaOptions configures a JinaEmbedder.
type JinaOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Dimension    int // used when the model is not known
	MaxImageSide int
}

func NewJinaEmbedder(client *http.Client, opts JinaOptions) (*JinaEmbedder, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("jina: model is required: %w", domain.ErrInvalidArgument)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultJinaURL
	}

	dimension := KnownDimension(opts.Model)
	if dimension == 0 {
		dimension = opts.Dimension
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("jina: unknown dimension for model %s: %w", opts.Model, domain.ErrInvalidArgument)
	}

	return &JinaEmbedder{
		apiKey:       opts.APIKey,
		model:        opts.Model,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		dimension:    dimension,
		maxImageSide: opts.MaxImageSide,
		client:       client,
	}, nil
}

func (e *JinaEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("jina: empty text: %w", domain.ErrInvalidArgument)
	}
	return e.embed(ctx, embeddingInput{Text: text})
}

func (e *JinaEmbedder) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	if img == nil {
		return nil, fmt.Errorf("jina: nil image: %w", domain.ErrInvalidArgument)
	}
	b64, err := media.EncodePNGBase64(media.Fit(img, e.maxImageSide))
	if err != nil {
		return nil, fmt.Errorf("jina: %w", err)
	}
	return e.embed(ctx, embeddingInput{Image: b64})
}

func (e *JinaEmbedder) embed(ctx context.Context, in embeddingInput) ([]float32, error) {
	body, err := modelhttp.PostJSON(ctx, e.client, e.baseURL+"/embeddings", e.apiKey, embeddingRequest{
		Model:      e.model,
		Input:      []embeddingInput{in},
		Normalized: true,
	})
	if err != nil {
		return nil, fmt.Errorf("jina: %w", err)
	}

	var resp embeddingResponse
	if err := modelhttp.DecodeJSON(body, &resp); err != nil {
		return nil, fmt.Errorf("jina: %w", err)
	}
	if resp.Detail != "" {
		return nil, fmt.Errorf("jina: API error: %s", resp.Detail)
	}
	if len(resp.Data) != 1 {
		return nil, fmt.Errorf("jina: expected 1 embedding, got %d", len(resp.Data))
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.dimension {
		return nil, fmt.Errorf("jina: model %s returned %d dimensions, want %d: %w",
			e.model, len(vec), e.dimension, domain.ErrDimensionMismatch)
	}
	return vec, nil
}

func (e *JinaEmbedder) Dimension() int {
	return e.dimension
}

func (e *JinaEmbedder) ModelName() string {
	return e.model
}
