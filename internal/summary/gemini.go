package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/hackgods/surgical-authorization-tracker/internal/surgical"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	requestTimeout = 90 * time.Second

	// DisabledText is returned instead of a summary when no API key is set.
	DisabledText = "Gemini API key not configured. Summary generation is disabled."
)

type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[string]
}

type Option func(*GeminiClient)

// WithBaseURL points the client at another endpoint, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *GeminiClient) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *GeminiClient) { c.httpClient = hc }
}

func NewGeminiClient(apiKey, model string, opts ...Option) *GeminiClient {
	c := &GeminiClient{
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	// Open after five consecutive failures, probe again after a minute.
	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "gemini-summary",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return c
}

// Summarize returns a Spanish summary and suggested next action for c.
func (c *GeminiClient) Summarize(ctx context.Context, sc surgical.Case) (string, error) {
	if c.apiKey == "" {
		return DisabledText, nil
	}

	text, err := c.breaker.Execute(func() (string, error) {
		return c.generate(ctx, BuildPrompt(sc))
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("summary service temporarily unavailable: %w", err)
	}
	return text, err
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}); err != nil {
		return "", fmt.Errorf("encode summary payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, buf)
	if err != nil {
		return "", fmt.Errorf("create summary request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", decodeAPIError(resp)
	}

	var payload struct {
		Candidates []struct {
			Content content `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode summary response: %w", err)
	}

	var sb strings.Builder
	for _, cand := range payload.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", errors.New("no summary returned")
	}
	return strings.TrimSpace(sb.String()), nil
}

func decodeAPIError(resp *http.Response) error {
	var apiErr struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("gemini api error: status %d %s: %s", resp.StatusCode, apiErr.Error.Status, apiErr.Error.Message)
	}

	return fmt.Errorf("gemini api error: status %d body %s", resp.StatusCode, string(body))
}
