package embedding

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"findit/internal/domain"
)

func fakeJina(t *testing.T, dim int, check func(embeddingRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if check != nil {
			check(req)
		}
		vec := make([]float32, dim)
		vec[0] = 1
		json.NewEncoder(w).Encode(embeddingResponse{Data: []embeddingData{{Embedding: vec}}})
	}))
}

func TestJinaEmbedText(t *testing.T) {
	srv := fakeJina(t, 768, func(req embeddingRequest) {
		if req.Model != "jina-clip-v1" || !req.Normalized {
			t.Errorf("unexpected request: %+v", req)
		}
		if len(req.Input) != 1 || req.Input[0].Text != "a red car" || req.Input[0].Image != "" {
			t.Errorf("unexpected input: %+v", req.Input)
		}
	})
	defer srv.Close()

	e, err := NewJinaEmbedder(srv.Client(), JinaOptions{Model: "jina-clip-v1", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimension() != 768 {
		t.Errorf("Dimension() = %d", e.Dimension())
	}

	vec, err := e.EmbedText(context.Background(), "a red car")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 768 {
		t.Errorf("len = %d", len(vec))
	}
}

func TestJinaEmbedImageSendsPNG(t *testing.T) {
	srv := fakeJina(t, 1024, func(req embeddingRequest) {
		data, err := base64.StdEncoding.DecodeString(req.Input[0].Image)
		if err != nil {
			t.Errorf("image is not base64: %v", err)
		}
		if !strings.HasPrefix(string(data), "\x89PNG") {
			t.Error("image is not a PNG")
		}
	})
	defer srv.Close()

	e, _ := NewJinaEmbedder(srv.Client(), JinaOptions{Model: "jina-clip-v2", BaseURL: srv.URL, MaxImageSide: 8})
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	if _, err := e.EmbedImage(context.Background(), img); err != nil {
		t.Fatal(err)
	}
}

func TestJinaRejectsWrongDimension(t *testing.T) {
	srv := fakeJina(t, 512, nil)
	defer srv.Close()

	e, _ := NewJinaEmbedder(srv.Client(), JinaOptions{Model: "jina-clip-v2", BaseURL: srv.URL})
	_, err := e.EmbedText(context.Background(), "hello")
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestJinaInvalidArguments(t *testing.T) {
	e, _ := NewJinaEmbedder(http.DefaultClient, JinaOptions{Model: "jina-clip-v2"})
	if _, err := e.EmbedText(context.Background(), "  "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("blank text: %v", err)
	}
	if _, err := e.EmbedImage(context.Background(), nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("nil image: %v", err)
	}
	if _, err := NewJinaEmbedder(http.DefaultClient, JinaOptions{Model: "custom-clip"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("unknown dimension: %v", err)
	}
}

func TestJinaServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	e, _ := NewJinaEmbedder(srv.Client(), JinaOptions{Model: "jina-clip-v2", BaseURL: srv.URL})
	_, err := e.EmbedText(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestMockEmbedderDeterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()

	a, _ := e.EmbedText(ctx, "dog")
	b, _ := e.EmbedText(ctx, "dog")
	c, _ := e.EmbedText(ctx, "cat")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("expected equal vectors for equal text")
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("expected different vectors for different text")
	}

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0
	}
	v, err := e.EmbedImage(ctx, img)
	if err != nil {
		t.Fatal(err)
	}
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	if norm < 0.99 || norm > 1.01 {
		t.Errorf("expected unit vector for black image, norm^2 = %f", norm)
	}

	red := image.NewUniform(color.RGBA{255, 0, 0, 255})
	redImg := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			redImg.Set(x, y, red.C)
		}
	}
	w, _ := e.EmbedImage(ctx, redImg)
	if w[0] == v[0] {
		t.Error("expected different vectors for different images")
	}
}
