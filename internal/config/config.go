// Package config loads the pipeline's environment-variable configuration,
// with an optional YAML file overlay for the stage→model map and the
// refinement-loop tunables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full set of environment knobs from spec.md §6
// ("Environment"): text LLM model per stage, image model identity,
// vision model identity, storage bucket, database connection, max
// edits, max iterations, max delta, max image concurrency.
type Config struct {
	Addr string

	DatabasePath string
	StorageRoot  string
	BaseURL      string

	TextLLMEndpoint    string
	TextLLMAPIKey      string
	ImageModelEndpoint string
	ImageModelAPIKey   string
	VisionModelAPIKey  string

	// StageModels maps each pipeline stage to the model identity that
	// serves it, e.g. "design-scheme" -> "gpt-4.1".
	StageModels map[string]string
	ImageModel  string
	VisionModel string

	// MaxEdits and MaxDelta are loaded (env and overlay) but not passed
	// to the edit mapper, which always applies its own fixed limits of
	// 10 edits and 0.2 per delta.
	MaxEdits            int
	MaxIterations       int
	MaxDelta            float64
	MaxImageConcurrency int

	// WebhookSecret, if set, requires HMAC-signed job-delivery requests.
	WebhookSecret string

	// JobQueueURL, if set, is a queue-consumer endpoint the dispatcher
	// posts new generation ids to instead of running the orchestrator
	// inline. Empty means loopback/dev mode.
	JobQueueURL string
}

// defaultStageModels mirrors spec.md §4.8's LLM-backed stages
// (image-generate calls C3, not C2, so it has no model entry here).
func defaultStageModels() map[string]string {
	return map[string]string{
		"design-scheme":   "gpt-4.1-mini",
		"image-prompts":   "gpt-4.1-mini",
		"detailed-layout": "gpt-4.1",
		"refine":          "gpt-4.1",
	}
}

// Load builds a Config from environment variables, then applies an
// optional YAML overlay file at LABELGEN_CONFIG_PATH if set.
func Load() (Config, error) {
	cfg := Config{
		Addr:                env("LABELGEN_ADDR", ":8080"),
		BaseURL:             strings.TrimRight(env("LABELGEN_BASE_URL", "http://localhost:8080"), "/"),
		DatabasePath:        env("LABELGEN_DB_PATH", "data/labelgen.sqlite"),
		StorageRoot:         env("LABELGEN_STORAGE_ROOT", "data/label-images"),
		TextLLMEndpoint:     env("LABELGEN_TEXT_LLM_ENDPOINT", ""),
		TextLLMAPIKey:       env("LABELGEN_TEXT_LLM_API_KEY", ""),
		ImageModelEndpoint:  env("LABELGEN_IMAGE_MODEL_ENDPOINT", ""),
		ImageModelAPIKey:    env("LABELGEN_IMAGE_MODEL_API_KEY", ""),
		VisionModelAPIKey:   env("LABELGEN_VISION_MODEL_API_KEY", ""),
		ImageModel:          env("LABELGEN_IMAGE_MODEL", "mock-image-v1"),
		VisionModel:         env("LABELGEN_VISION_MODEL", "gpt-4.1"),
		WebhookSecret:       env("LABELGEN_WEBHOOK_SECRET", ""),
		JobQueueURL:         env("LABELGEN_JOB_QUEUE_URL", ""),
		StageModels:         defaultStageModels(),
		MaxEdits:            10,
		MaxIterations:       2,
		MaxDelta:            0.2,
		MaxImageConcurrency: 3,
	}

	if v := env("LABELGEN_MAX_EDITS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid LABELGEN_MAX_EDITS: %w", err)
		}
		cfg.MaxEdits = n
	}
	if v := env("LABELGEN_MAX_ITERATIONS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid LABELGEN_MAX_ITERATIONS: %w", err)
		}
		cfg.MaxIterations = n
	}
	if v := env("LABELGEN_MAX_DELTA", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid LABELGEN_MAX_DELTA: %w", err)
		}
		cfg.MaxDelta = f
	}
	if v := env("LABELGEN_MAX_IMAGE_CONCURRENCY", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid LABELGEN_MAX_IMAGE_CONCURRENCY: %w", err)
		}
		cfg.MaxImageConcurrency = n
	}

	if path := env("LABELGEN_CONFIG_PATH", ""); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read overlay %s: %w", path, err)
		}
		if err := cfg.applyYAMLOverlay(b); err != nil {
			return Config{}, fmt.Errorf("config: parse overlay %s: %w", path, err)
		}
	}

	return cfg, nil
}

// overlay is the YAML shape of an optional LABELGEN_CONFIG_PATH file,
// letting operators tune the stage→model map and pipeline limits without
// an environment variable per stage.
type overlay struct {
	StageModels         map[string]string `yaml:"stage_models"`
	ImageModel          string            `yaml:"image_model"`
	VisionModel         string            `yaml:"vision_model"`
	MaxEdits            int               `yaml:"max_edits"`
	MaxIterations       int               `yaml:"max_iterations"`
	MaxDelta            float64           `yaml:"max_delta"`
	MaxImageConcurrency int               `yaml:"max_image_concurrency"`
}

func (cfg *Config) applyYAMLOverlay(b []byte) error {
	var ov overlay
	if err := yaml.Unmarshal(b, &ov); err != nil {
		return err
	}
	for stage, model := range ov.StageModels {
		cfg.StageModels[stage] = model
	}
	if ov.ImageModel != "" {
		cfg.ImageModel = ov.ImageModel
	}
	if ov.VisionModel != "" {
		cfg.VisionModel = ov.VisionModel
	}
	if ov.MaxEdits > 0 {
		cfg.MaxEdits = ov.MaxEdits
	}
	if ov.MaxIterations > 0 {
		cfg.MaxIterations = ov.MaxIterations
	}
	if ov.MaxDelta > 0 {
		cfg.MaxDelta = ov.MaxDelta
	}
	if ov.MaxImageConcurrency > 0 {
		cfg.MaxImageConcurrency = ov.MaxImageConcurrency
	}
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
