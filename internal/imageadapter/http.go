package imageadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPAdapter calls an external text-to-image HTTP service. Request/response
// shape and status-code classification are grounded on
// ecoker-launchpad/internal/ai/openai.go's OpenAIProvider.
type HTTPAdapter struct {
	Endpoint   string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// NewHTTPAdapter builds an HTTPAdapter with a sensible default timeout.
func NewHTTPAdapter(endpoint, apiKey, model string) *HTTPAdapter {
	return &HTTPAdapter{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		Model:      model,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type generateRequest struct {
	Model          string  `json:"model"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Guidance       float64 `json:"guidance,omitempty"`
	Aspect         string  `json:"aspect"`
}

type generateResponse struct {
	ImageBase64 string `json:"image_base64"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Seed        *int64 `json:"seed,omitempty"`
}

// Generate implements Adapter.
func (a *HTTPAdapter) Generate(ctx context.Context, spec Spec) ([]byte, Meta, error) {
	if !spec.Purpose.Valid() {
		return nil, Meta{}, &Error{Kind: ErrInvalidInput, Message: fmt.Sprintf("unknown purpose %q", spec.Purpose)}
	}
	if !spec.Aspect.Valid() {
		return nil, Meta{}, &Error{Kind: ErrInvalidInput, Message: fmt.Sprintf("unknown aspect %q", spec.Aspect)}
	}

	reqBody := generateRequest{
		Model:          a.Model,
		Prompt:         spec.Prompt,
		NegativePrompt: spec.NegativePrompt,
		Guidance:       spec.Guidance,
		Aspect:         string(spec.Aspect),
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, Meta{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, Meta{}, &Error{Kind: ErrRetryable, Message: "network error", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Meta{}, &Error{Kind: ErrRetryable, Message: "read body failed", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := classifyStatus(resp.StatusCode)
		return nil, Meta{}, &Error{Kind: kind, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body))}
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, Meta{}, fmt.Errorf("decode response: %w", err)
	}
	imgBytes, err := decodeBase64(out.ImageBase64)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("decode image payload: %w", err)
	}

	return imgBytes, Meta{Model: a.Model, Width: out.Width, Height: out.Height, Seed: out.Seed}, nil
}
