// Package dispatcher is the C9 job dispatcher: it turns an incoming
// submission into a persisted Generation row and hands the generation id
// off to the orchestrator, either inline (dev/loopback) or over an
// HTTP queue-consumer endpoint.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"labelgen/internal/orchestrator"
	"labelgen/internal/persistence"
)

// Runner executes a generation's pipeline; production wiring passes an
// *orchestrator.Orchestrator, tests can substitute a stub.
type Runner interface {
	Run(ctx context.Context, generationID string, job orchestrator.Job) error
}

// Dispatcher owns the submission -> generation handoff. QueueURL, when
// set, is a queue-consumer endpoint the dispatcher POSTs the new
// generation id to instead of running the orchestrator inline, per
// spec.md §4.9's "enqueues a work item... keyed on the generation id"
// contract. An empty QueueURL means loopback mode: the dispatcher calls
// Runner.Run directly in a background goroutine, the same
// fire-and-forget shape the teacher's webhook handler used to drive
// release-note generation synchronously inside the HTTP handler's own
// goroutine.
type Dispatcher struct {
	db     *persistence.Gateway
	runner Runner
	log    *zap.Logger

	queueURL      string
	webhookSecret string
	httpClient    *http.Client
}

// New builds a Dispatcher. queueURL and webhookSecret are read once at
// startup from config.Config.
func New(db *persistence.Gateway, runner Runner, queueURL, webhookSecret string, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		db:            db,
		runner:        runner,
		log:           log,
		queueURL:      queueURL,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Submit persists sub and a fresh pending Generation row, then dispatches
// the generation for processing. It returns the submission and generation
// ids immediately; Run() for that generation may still be in flight when
// Submit returns.
func (d *Dispatcher) Submit(ctx context.Context, sub persistence.Submission) (submissionID, generationID string, err error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.CreatedAt = time.Now().UTC()
	if err := d.db.InsertSubmission(ctx, sub); err != nil {
		return "", "", fmt.Errorf("dispatcher: insert submission: %w", err)
	}

	genID := uuid.NewString()
	if err := d.db.InsertGeneration(ctx, persistence.Generation{ID: genID, SubmissionID: sub.ID}); err != nil {
		return "", "", fmt.Errorf("dispatcher: insert generation: %w", err)
	}

	if err := d.dispatch(ctx, genID, sub); err != nil {
		return "", "", err
	}
	return sub.ID, genID, nil
}

// dispatch hands genID off for processing: posts to the configured queue,
// or runs inline when no queue is configured.
func (d *Dispatcher) dispatch(ctx context.Context, genID string, sub persistence.Submission) error {
	if d.queueURL == "" {
		d.runInline(genID, sub)
		return nil
	}
	return d.postToQueue(ctx, genID)
}

// runInline starts the orchestrator in its own goroutine, detached from
// the request context, so a client disconnect never aborts an
// already-accepted generation — the same fire-and-forget shape the
// teacher used for its webhook-triggered markdown generation.
func (d *Dispatcher) runInline(genID string, sub persistence.Submission) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := d.runner.Run(ctx, genID, orchestrator.Job{Submission: sub}); err != nil {
			d.log.Error("inline generation run failed", zap.String("generation", genID), zap.Error(err))
		}
	}()
}

// jobPayload is the queue-consumer endpoint's request body.
type jobPayload struct {
	GenerationID string `json:"generationId"`
}

func (d *Dispatcher) postToQueue(ctx context.Context, genID string) error {
	body, err := json.Marshal(jobPayload{GenerationID: genID})
	if err != nil {
		return fmt.Errorf("dispatcher: marshal job payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.queueURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dispatcher: build queue request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.webhookSecret != "" {
		req.Header.Set("X-Label-Signature-256", "sha256="+hexHMAC(body, []byte(d.webhookSecret)))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dispatcher: queue post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dispatcher: queue post returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// RunNow executes the generation synchronously, used by the queue-consumer
// HTTP handler once it has verified the request (and, optionally, its
// signature).
func (d *Dispatcher) RunNow(ctx context.Context, genID string) error {
	gen, err := d.db.GetGeneration(ctx, genID)
	if err != nil {
		return fmt.Errorf("dispatcher: load generation %s: %w", genID, err)
	}
	sub, err := d.db.GetSubmission(ctx, gen.SubmissionID)
	if err != nil {
		return fmt.Errorf("dispatcher: load submission %s: %w", gen.SubmissionID, err)
	}
	return d.runner.Run(ctx, genID, orchestrator.Job{Submission: sub})
}
