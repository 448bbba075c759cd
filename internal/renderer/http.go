package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"labelgen/internal/labeldoc"
)

// HTTPClient renders by POSTing the document DSL to an out-of-process
// rasterizer, per the render endpoint contract in spec.md §6: request
// {dsl, debug?}, response image/png with X-Render-Time / Cache-Control
// headers on success, structured error on failure.
type HTTPClient struct {
	Endpoint   string
	HTTPClient *http.Client
}

// NewHTTPClient builds an HTTPClient targeting a rasterizer endpoint.
func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{Endpoint: endpoint, HTTPClient: http.DefaultClient}
}

type renderRequest struct {
	DSL   labeldoc.Document `json:"dsl"`
	Debug bool              `json:"debug,omitempty"`
}

// Render implements Client.
func (c *HTTPClient) Render(ctx context.Context, doc labeldoc.Document, opts Options) ([]byte, error) {
	payload, err := json.Marshal(renderRequest{DSL: doc, Debug: opts.Debug})
	if err != nil {
		return nil, fmt.Errorf("renderer: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("renderer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("renderer: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("renderer: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("renderer: HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
