package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelgen/internal/dispatcher"
	"labelgen/internal/orchestrator"
	"labelgen/internal/persistence"
)

func hmacHex(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func openTestGateway(t *testing.T) *persistence.Gateway {
	t.Helper()
	g, err := persistence.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

// stubRunner lets submission-path tests exercise the dispatcher's inline
// mode without constructing a real orchestrator.
type stubRunner struct {
	mu   sync.Mutex
	seen []string
	done chan struct{}
}

func newStubRunner() *stubRunner {
	return &stubRunner{done: make(chan struct{}, 8)}
}

func (s *stubRunner) Run(_ context.Context, generationID string, _ orchestrator.Job) error {
	s.mu.Lock()
	s.seen = append(s.seen, generationID)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func newTestServer(t *testing.T) (*Server, *persistence.Gateway) {
	t.Helper()
	db := openTestGateway(t)
	disp := dispatcher.New(db, newStubRunner(), "", "", nil)
	return New(db, disp, "", "", "http://localhost:8080", nil), db
}

func validSubmissionBody() map[string]string {
	return map[string]string{
		"producerName": "Clos des Vents",
		"wineName":     "Terrasse",
		"vintage":      "2021",
		"variety":      "Syrah",
		"region":       "Rhone Valley",
		"appellation":  "Cote-Rotie",
		"style":        "elegant",
	}
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestCreateSubmissionAccepted(t *testing.T) {
	s, _ := newTestServer(t)
	rec := postJSON(t, s.Router(), "/api/submissions", validSubmissionBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp submissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SubmissionID)
	assert.NotEmpty(t, resp.GenerationID)
	assert.Equal(t, "http://localhost:8080/api/generations/"+resp.GenerationID, resp.StatusURL)
}

func TestCreateSubmissionValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(map[string]string)
		wantMsg string
	}{
		{"missing producer", func(b map[string]string) { b["producerName"] = "" }, "producerName"},
		{"missing wine name", func(b map[string]string) { b["wineName"] = "" }, "wineName"},
		{"bad vintage", func(b map[string]string) { b["vintage"] = "21" }, "vintage"},
		{"missing variety", func(b map[string]string) { b["variety"] = "" }, "variety"},
		{"missing region", func(b map[string]string) { b["region"] = "" }, "region"},
		{"missing appellation", func(b map[string]string) { b["appellation"] = "" }, "appellation"},
		{"bad style", func(b map[string]string) { b["style"] = "bogus" }, "style"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			body := validSubmissionBody()
			tc.mutate(body)
			rec := postJSON(t, s.Router(), "/api/submissions", body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var env errorEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, CodeValidation, env.Error)
			assert.Contains(t, env.Message, tc.wantMsg)
		})
	}
}

func TestCreateSubmissionInvalidJSON(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/submissions", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetGenerationFound(t *testing.T) {
	s, db := newTestServer(t)
	require.NoError(t, db.InsertSubmission(context.Background(), persistence.Submission{
		ID: "sub-1", ProducerName: "P", WineName: "W", Vintage: "2020",
		Variety: "Syrah", Region: "R", Appellation: "A", Style: persistence.StyleClassic,
	}))
	require.NoError(t, db.InsertGeneration(context.Background(), persistence.Generation{ID: "gen-1", SubmissionID: "sub-1"}))

	req := httptest.NewRequest(http.MethodGet, "/api/generations/gen-1", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp generationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "gen-1", resp.ID)
	assert.Equal(t, "sub-1", resp.SubmissionID)
	assert.Equal(t, string(persistence.StatusPending), resp.Status)
	assert.False(t, resp.CreatedAt.IsZero())
	assert.False(t, resp.UpdatedAt.IsZero())
	assert.Nil(t, resp.CompletedAt)
	assert.Empty(t, resp.DesignScheme)
	assert.Empty(t, resp.Description)
}

func TestGetGenerationNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/generations/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, CodeGenerationNotFound, env.Error)
}

func TestJobGenerationNoSignatureRequiredWhenSecretEmpty(t *testing.T) {
	db := openTestGateway(t)
	runner := newStubRunner()
	disp := dispatcher.New(db, runner, "", "", nil)
	s := New(db, disp, "", "", "http://localhost:8080", nil)

	require.NoError(t, db.InsertSubmission(context.Background(), persistence.Submission{
		ID: "sub-2", ProducerName: "P", WineName: "W", Vintage: "2020",
		Variety: "Syrah", Region: "R", Appellation: "A", Style: persistence.StyleClassic,
	}))
	require.NoError(t, db.InsertGeneration(context.Background(), persistence.Generation{ID: "gen-2", SubmissionID: "sub-2"}))

	rec := postJSON(t, s.Router(), "/api/jobs/generation", jobRequest{GenerationID: "gen-2"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-runner.done
	assert.Equal(t, []string{"gen-2"}, runner.seen)
}

func TestJobGenerationRejectsMissingSignatureWhenSecretConfigured(t *testing.T) {
	db := openTestGateway(t)
	disp := dispatcher.New(db, newStubRunner(), "", "topsecret", nil)
	s := New(db, disp, "topsecret", "", "http://localhost:8080", nil)

	rec := postJSON(t, s.Router(), "/api/jobs/generation", jobRequest{GenerationID: "gen-3"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, CodeValidation, env.Error)
}

func TestJobGenerationAcceptsValidSignature(t *testing.T) {
	db := openTestGateway(t)
	runner := newStubRunner()
	disp := dispatcher.New(db, runner, "", "topsecret", nil)
	s := New(db, disp, "topsecret", "", "http://localhost:8080", nil)

	require.NoError(t, db.InsertSubmission(context.Background(), persistence.Submission{
		ID: "sub-4", ProducerName: "P", WineName: "W", Vintage: "2020",
		Variety: "Syrah", Region: "R", Appellation: "A", Style: persistence.StyleClassic,
	}))
	require.NoError(t, db.InsertGeneration(context.Background(), persistence.Generation{ID: "gen-4", SubmissionID: "sub-4"}))

	body, err := json.Marshal(jobRequest{GenerationID: "gen-4"})
	require.NoError(t, err)
	sig := "sha256=" + hmacHex(body, []byte("topsecret"))

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/generation", bytes.NewReader(body))
	req.Header.Set("X-Label-Signature-256", sig)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	<-runner.done
}
