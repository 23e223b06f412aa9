// Package modelhttp holds the HTTP plumbing shared by every model server
// adapter: one rate-limited, traced client and JSON request helpers.
package modelhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"findit/config"
)

const bodyPreviewLen = 200

// NewClient builds the client every adapter shares. Requests wait on the
// limiter before they are sent and carry trace context to the model server.
func NewClient(cfg config.HTTPConfig) *http.Client {
	var rt http.RoundTripper = otelhttp.NewTransport(http.DefaultTransport)
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		rt = &limitedTransport{
			limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst),
			next:    rt,
		}
	}
	return &http.Client{
		Timeout:   cfg.Timeout(),
		Transport: rt,
	}
}

type limitedTransport struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return t.next.RoundTrip(req)
}

// APIKey reads the key named by env. An empty env name means no key.
func APIKey(env string) (string, error) {
	if env == "" {
		return "", nil
	}
	key := os.Getenv(env)
	if key == "" {
		return "", fmt.Errorf("API key not found in environment variable: %s", env)
	}
	return key, nil
}

// StatusError is returned when a model server answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Code, e.Body)
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > bodyPreviewLen {
		s = s[:bodyPreviewLen]
	}
	return s
}

// Do sends req and returns the full response body of a 2xx answer.
func Do(client *http.Client, req *http.Request, apiKey string) ([]byte, error) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: preview(body)}
	}
	return body, nil
}

// PostJSON marshals in, posts it to url and returns the raw response body.
func PostJSON(ctx context.Context, client *http.Client, url, apiKey string, in any) ([]byte, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return Do(client, req, apiKey)
}

// DecodeJSON unmarshals body into out, quoting the start of body on failure.
func DecodeJSON(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response (body: %s): %w", preview(body), err)
	}
	return nil
}
