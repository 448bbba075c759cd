// Package api wires the C9 job dispatcher's HTTP surface: submission
// intake, generation status lookup, and the queue-consumer endpoint. The
// router shape (healthz + /api sub-router, chi.Router) is lifted directly
// from the teacher's server.go; the handler bodies are new.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"labelgen/internal/dispatcher"
	"labelgen/internal/persistence"
)

// Server is the C9 HTTP surface.
type Server struct {
	db            *persistence.Gateway
	dispatcher    *dispatcher.Dispatcher
	webhookSecret string
	staticDir     string
	baseURL       string
	log           *zap.Logger
}

// New builds a Server. staticDir, when non-empty, is mounted under
// /static/content/ to serve the local disk blob backend for dev/local
// runs; production deployments serve content straight from the bucket
// and leave this empty. baseURL, when non-empty, prefixes the statusUrl
// returned from a submission; an empty baseURL yields a relative path.
func New(db *persistence.Gateway, disp *dispatcher.Dispatcher, webhookSecret, staticDir, baseURL string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{db: db, dispatcher: disp, webhookSecret: webhookSecret, staticDir: staticDir, baseURL: strings.TrimRight(baseURL, "/"), log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/submissions", s.handleCreateSubmission)
		r.Get("/generations/{id}", s.handleGetGeneration)
		r.Post("/jobs/generation", s.handleJobGeneration)
	})

	if s.staticDir != "" {
		fs := http.StripPrefix("/static/content/", cacheForeverFileServer(http.Dir(s.staticDir)))
		r.Get("/static/content/*", fs.ServeHTTP)
	}

	return r
}

// submissionRequest is the POST /api/submissions request body.
type submissionRequest struct {
	ProducerName string `json:"producerName"`
	WineName     string `json:"wineName"`
	Vintage      string `json:"vintage"`
	Variety      string `json:"variety"`
	Region       string `json:"region"`
	Appellation  string `json:"appellation"`
	Style        string `json:"style"`
}

var vintageRe = regexp.MustCompile(`^\d{4}$`)

func (req submissionRequest) validate() []string {
	var problems []string
	if strings.TrimSpace(req.ProducerName) == "" {
		problems = append(problems, "producerName is required")
	}
	if strings.TrimSpace(req.WineName) == "" {
		problems = append(problems, "wineName is required")
	}
	if !vintageRe.MatchString(req.Vintage) {
		problems = append(problems, "vintage must be a 4-digit year")
	}
	if strings.TrimSpace(req.Variety) == "" {
		problems = append(problems, "variety is required")
	}
	if strings.TrimSpace(req.Region) == "" {
		problems = append(problems, "region is required")
	}
	if strings.TrimSpace(req.Appellation) == "" {
		problems = append(problems, "appellation is required")
	}
	if !persistence.Style(req.Style).Valid() {
		problems = append(problems, "style must be one of classic, modern, elegant, funky")
	}
	return problems
}

type submissionResponse struct {
	SubmissionID string `json:"submissionId"`
	GenerationID string `json:"generationId"`
	StatusURL    string `json:"statusUrl"`
}

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, CodeValidation, "invalid JSON body: "+err.Error())
		return
	}
	if problems := req.validate(); len(problems) > 0 {
		writeError(w, CodeValidation, strings.Join(problems, "; "))
		return
	}

	sub := persistence.Submission{
		ProducerName: req.ProducerName,
		WineName:     req.WineName,
		Vintage:      req.Vintage,
		Variety:      req.Variety,
		Region:       req.Region,
		Appellation:  req.Appellation,
		Style:        persistence.Style(req.Style),
	}

	subID, genID, err := s.dispatcher.Submit(r.Context(), sub)
	if err != nil {
		s.log.Error("submit failed", zap.Error(err))
		writeError(w, CodeDatabase, "failed to create generation")
		return
	}

	writeJSON(w, http.StatusCreated, submissionResponse{
		SubmissionID: subID,
		GenerationID: genID,
		StatusURL:    s.baseURL + "/api/generations/" + genID,
	})
}

// generationResponse is the GET /api/generations/{id} response body.
type generationResponse struct {
	ID            string          `json:"id"`
	SubmissionID  string          `json:"submissionId"`
	Status        string          `json:"status"`
	Phase         string          `json:"phase,omitempty"`
	DesignScheme  json.RawMessage `json:"designScheme,omitempty"`
	Description   json.RawMessage `json:"description,omitempty"`
	PreviewURL    string          `json:"previewUrl,omitempty"`
	PreviewWidth  int             `json:"previewWidth,omitempty"`
	PreviewHeight int             `json:"previewHeight,omitempty"`
	PreviewFormat string          `json:"previewFormat,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}

func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	gen, err := s.db.GetGeneration(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, CodeGenerationNotFound, "no generation with id "+id)
			return
		}
		s.log.Error("get generation failed", zap.Error(err), zap.String("generation", id))
		writeError(w, CodeDatabase, "failed to load generation")
		return
	}

	writeJSON(w, http.StatusOK, generationResponse{
		ID:            gen.ID,
		SubmissionID:  gen.SubmissionID,
		Status:        string(gen.Status),
		Phase:         string(gen.Phase),
		DesignScheme:  gen.DesignScheme,
		Description:   gen.Description,
		PreviewURL:    gen.PreviewURL,
		PreviewWidth:  gen.PreviewWidth,
		PreviewHeight: gen.PreviewHeight,
		PreviewFormat: gen.PreviewFormat,
		Error:         gen.Error,
		CreatedAt:     gen.CreatedAt,
		UpdatedAt:     gen.UpdatedAt,
		CompletedAt:   gen.CompletedAt,
	})
}

// jobRequest is the queue-consumer endpoint's body (dispatcher.jobPayload
// mirrored here since the field is otherwise unexported).
type jobRequest struct {
	GenerationID string `json:"generationId"`
}

// handleJobGeneration is the at-least-once delivery sink for queued work
// items: it verifies the optional shared-secret signature, then runs the
// generation synchronously. Deduplication across redelivery is the
// orchestrator's own per-step claim semantics, not this handler's job —
// a duplicate delivery for an already-completed generation is a cheap
// no-op (Run returns immediately).
func (s *Server) handleJobGeneration(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, CodeValidation, "failed to read body")
		return
	}
	defer r.Body.Close()

	if s.webhookSecret != "" {
		sig := r.Header.Get("X-Label-Signature-256")
		if sig == "" || !dispatcher.VerifySignature(sig, body, []byte(s.webhookSecret)) {
			writeError(w, CodeValidation, "invalid or missing signature")
			return
		}
	}

	var req jobRequest
	if err := json.Unmarshal(body, &req); err != nil || req.GenerationID == "" {
		writeError(w, CodeValidation, "generationId is required")
		return
	}

	if err := s.dispatcher.RunNow(r.Context(), req.GenerationID); err != nil {
		s.log.Error("job run failed", zap.Error(err), zap.String("generation", req.GenerationID))
		writeError(w, CodeQueue, "generation run failed")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// cacheForeverFileServer wraps a file server to set the immutable
// long-lived Cache-Control contract for content-addressed image paths
// (spec.md §4.4, §6), mirroring the bucket-backed public_url() headers a
// production object-store would set.
func cacheForeverFileServer(root http.FileSystem) http.Handler {
	fs := http.FileServer(root)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		fs.ServeHTTP(w, r)
	})
}
