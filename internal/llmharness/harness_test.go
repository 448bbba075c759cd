package llmharness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoSchema struct{ requireField string }

func (s echoSchema) Validate(raw json.RawMessage) (any, []string) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, []string{err.Error()}
	}
	if s.requireField != "" {
		if _, ok := m[s.requireField]; !ok {
			return nil, []string{"missing field " + s.requireField}
		}
	}
	return m, nil
}

func TestInvokeStructuredSucceedsFirstTry(t *testing.T) {
	model := &MockModel{Fallback: func(model, sys, user string) (string, error) {
		return `{"ok": true}`, nil
	}}
	h := New(model, nil)
	v, err := h.InvokeStructured(context.Background(), "design-scheme", "gpt-test", "prompt {x}", map[string]string{"x": "y"}, echoSchema{requireField: "ok"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, true, v.(map[string]any)["ok"])
}

func TestInvokeStructuredRepairsOnBadSchema(t *testing.T) {
	calls := 0
	model := &MockModel{Fallback: func(model, sys, user string) (string, error) {
		calls++
		if calls < 3 {
			return `{"nope": true}`, nil
		}
		return `{"ok": true}`, nil
	}}
	h := New(model, nil)
	v, err := h.InvokeStructured(context.Background(), "image-prompts", "gpt-test", "prompt", nil, echoSchema{requireField: "ok"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, true, v.(map[string]any)["ok"])
}

func TestInvokeStructuredFailsAfterMaxRetries(t *testing.T) {
	calls := 0
	model := &MockModel{Fallback: func(model, sys, user string) (string, error) {
		calls++
		return `{"nope": true}`, nil
	}}
	h := New(model, nil)
	_, err := h.InvokeStructured(context.Background(), "detailed-layout", "gpt-test", "prompt", nil, echoSchema{requireField: "ok"}, nil, nil)
	require.Error(t, err)
	var sf *StageFailed
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, "detailed-layout", sf.Stage)
	assert.Equal(t, 3, calls) // initial + 2 repairs
}

func TestInvokeStructuredBadInputFailsFast(t *testing.T) {
	model := &MockModel{Fallback: func(model, sys, user string) (string, error) {
		t.Fatal("model should not be called when input validation fails")
		return "", nil
	}}
	h := New(model, nil)
	badInputSchema := echoSchema{requireField: "must-exist"}
	_, err := h.InvokeStructured(context.Background(), "detailed-layout", "gpt-test", "prompt", nil, echoSchema{}, badInputSchema, json.RawMessage(`{}`))
	require.Error(t, err)
	var bi *BadInput
	require.ErrorAs(t, err, &bi)
}
