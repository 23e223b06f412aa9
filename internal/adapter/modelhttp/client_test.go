package modelhttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"findit/config"
)

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewClient(config.DefaultConfig().HTTP)
	body, err := PostJSON(context.Background(), client, srv.URL, "secret", map[string]string{"a": "b"})
	if err != nil {
		t.Fatal(err)
	}

	var out struct {
		OK bool `json:"ok"`
	}
	if err := DecodeJSON(body, &out); err != nil || !out.OK {
		t.Errorf("DecodeJSON: %v %+v", err, out)
	}
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("x", 500), http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := PostJSON(context.Background(), srv.Client(), srv.URL, "", struct{}{})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusBadGateway || len(se.Body) != bodyPreviewLen {
		t.Errorf("unexpected status error: code %d body len %d", se.Code, len(se.Body))
	}
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client := NewClient(config.HTTPConfig{TimeoutSec: 5, RateLimitRPS: 0.001, RateBurst: 1})

	// First request consumes the only token.
	if _, err := PostJSON(context.Background(), client, srv.URL, "", struct{}{}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := PostJSON(ctx, client, srv.URL, "", struct{}{}); err == nil {
		t.Fatal("expected cancelled request to fail")
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv("FINDIT_TEST_KEY", "k")
	if key, err := APIKey("FINDIT_TEST_KEY"); err != nil || key != "k" {
		t.Errorf("APIKey = %q, %v", key, err)
	}
	if _, err := APIKey("FINDIT_TEST_MISSING_KEY"); err == nil {
		t.Error("expected error for unset key")
	}
	if key, err := APIKey(""); err != nil || key != "" {
		t.Errorf("empty env: %q, %v", key, err)
	}
}
