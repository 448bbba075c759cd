package llmharness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPModel calls a Chat Completions-shaped HTTP endpoint, retrying on
// rate-limit responses. Grounded directly on
// ecoker-launchpad/internal/ai/openai.go's OpenAIProvider.Send: same
// request/response envelope shape, same 429 retry-with-sleep loop.
type HTTPModel struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewHTTPModel builds an HTTPModel targeting endpoint (a Chat
// Completions-compatible URL) with the given API key.
func NewHTTPModel(endpoint, apiKey string) *HTTPModel {
	return &HTTPModel{
		apiKey:     apiKey,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// chatMessage's Content is either a plain string or a []contentPart slice
// for multimodal turns, mirroring the pdf-extractor llm client's Message
// shape.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// contentPart is one piece of a multimodal message: either {type:"text",
// text} or {type:"image_url", image_url:{url}}.
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete implements TextModel.
func (m *HTTPModel) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	return m.send(ctx, model, chatMessage{Role: "system", Content: systemPrompt}, chatMessage{Role: "user", Content: userPrompt})
}

// CompleteWithImage implements MultimodalModel by attaching imageURL to
// the user turn as a second content part, per the pdf-extractor client's
// ContentPart{type:"image_url"} shape.
func (m *HTTPModel) CompleteWithImage(ctx context.Context, model, systemPrompt, userPrompt, imgURL string) (string, error) {
	userMsg := chatMessage{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: userPrompt},
			{Type: "image_url", ImageURL: &imageURL{URL: imgURL}},
		},
	}
	return m.send(ctx, model, chatMessage{Role: "system", Content: systemPrompt}, userMsg)
}

func (m *HTTPModel) send(ctx context.Context, model string, messages ...chatMessage) (string, error) {
	body := chatRequest{Model: model, Messages: messages}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("http: %w", err)
		}
		respBytes, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return "", fmt.Errorf("read body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("model endpoint returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBytes)))
		}

		var out chatResponse
		if err := json.Unmarshal(respBytes, &out); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if len(out.Choices) == 0 {
			return "", fmt.Errorf("empty choices in model response")
		}
		return out.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("rate limited after 3 attempts")
}

// MockModel is a deterministic TextModel for tests: it looks up a canned
// reply by stage name (found in the system or user prompt) or falls back to a
// default responder function.
type MockModel struct {
	Responses map[string]string
	Fallback  func(model, systemPrompt, userPrompt string) (string, error)
}

// Complete implements TextModel.
func (m *MockModel) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	for key, reply := range m.Responses {
		if strings.Contains(systemPrompt, key) || strings.Contains(userPrompt, key) {
			return reply, nil
		}
	}
	if m.Fallback != nil {
		return m.Fallback(model, systemPrompt, userPrompt)
	}
	return "", fmt.Errorf("mock model: no response configured for prompt")
}

// CompleteWithImage implements MultimodalModel by ignoring the image and
// delegating to Complete — tests don't need real vision to exercise the
// refiner's JSON plumbing.
func (m *MockModel) CompleteWithImage(ctx context.Context, model, systemPrompt, userPrompt, imageURL string) (string, error) {
	return m.Complete(ctx, model, systemPrompt, userPrompt)
}
