// Package imageadapter generates label imagery from a text prompt, and
// classifies transport failures into the retryable/non-retryable taxonomy
// the orchestrator needs to decide whether to retry a stage.
package imageadapter

import (
	"context"
	"fmt"
)

// Purpose is the closed set of image roles a generated asset can serve.
// Grounded on the closed-enum-with-String()/Parse() idiom in
// other_examples/.../imagegen-sd-types.go (ImageFormat, SampleMethod).
type Purpose string

const (
	PurposeBackground Purpose = "background"
	PurposeForeground Purpose = "foreground"
	PurposeDecoration Purpose = "decoration"
)

func (p Purpose) Valid() bool {
	switch p {
	case PurposeBackground, PurposeForeground, PurposeDecoration:
		return true
	default:
		return false
	}
}

// Aspect is the closed set of supported aspect ratios.
type Aspect string

const (
	Aspect1x1  Aspect = "1:1"
	Aspect3x2  Aspect = "3:2"
	Aspect4x3  Aspect = "4:3"
	Aspect16x9 Aspect = "16:9"
	Aspect2x3  Aspect = "2:3"
	Aspect3x4  Aspect = "3:4"
)

func (a Aspect) Valid() bool {
	switch a {
	case Aspect1x1, Aspect3x2, Aspect4x3, Aspect16x9, Aspect2x3, Aspect3x4:
		return true
	default:
		return false
	}
}

// dimensions returns a representative pixel size for the aspect ratio,
// used by the mock adapter to produce plausibly-shaped images.
func (a Aspect) dimensions() (w, h int) {
	switch a {
	case Aspect1x1:
		return 1024, 1024
	case Aspect3x2:
		return 1200, 800
	case Aspect4x3:
		return 1024, 768
	case Aspect16x9:
		return 1280, 720
	case Aspect2x3:
		return 800, 1200
	case Aspect3x4:
		return 768, 1024
	default:
		return 1024, 1024
	}
}

// Spec describes one requested image generation, per spec.md §4.3.
type Spec struct {
	ID             string
	Purpose        Purpose
	Prompt         string
	NegativePrompt string
	Guidance       float64 // [1,20], 0 means "use adapter default"
	Aspect         Aspect
}

// Meta is the generation metadata returned alongside the image bytes.
type Meta struct {
	Model  string
	Width  int
	Height int
	Seed   *int64
}

// ErrorKind classifies an adapter failure per spec.md §4.3/§7.
type ErrorKind string

const (
	ErrRetryable    ErrorKind = "retryable"    // 429, 5xx, network
	ErrInvalidInput ErrorKind = "invalid_input" // 400, non-retryable
	ErrAuth         ErrorKind = "auth"          // 401/403, non-retryable
)

// Error wraps an adapter failure with its retry classification.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("imageadapter(%s): %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("imageadapter(%s): %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the error should be retried with backoff.
func (e *Error) Retryable() bool { return e.Kind == ErrRetryable }

// Adapter generates image bytes from a Spec.
type Adapter interface {
	Generate(ctx context.Context, spec Spec) ([]byte, Meta, error)
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == 429 || status >= 500:
		return ErrRetryable
	case status == 401 || status == 403:
		return ErrAuth
	default:
		return ErrInvalidInput
	}
}
