package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/deck-evaluator/internal/domain"
	"github.com/spherical/deck-evaluator/internal/loader"
)

type fakeProcessor struct {
	received []domain.DocumentDescriptor
	err      error
}

func (p *fakeProcessor) ProcessQueue(ctx context.Context, docs []domain.DocumentDescriptor) (*domain.BatchSummary, error) {
	p.received = docs
	if p.err != nil {
		return nil, p.err
	}
	summary := &domain.BatchSummary{BatchID: "batch-7", Duration: 1500 * time.Millisecond}
	for _, d := range docs {
		if d.Identity == "broken" {
			summary.Results = append(summary.Results, domain.NewErrorResult(d.Identity, domain.DocumentParseError("bad xref", nil), 0))
			summary.Failed++
			continue
		}
		summary.Results = append(summary.Results, domain.NewSuccessResult(d.Identity, &domain.FinalScoreCard{TeamName: d.Identity, FeasibilityScore: 9}, 0))
		summary.Succeeded++
	}
	return summary, nil
}

type failingSource struct{}

func (failingSource) Discover(context.Context) ([]domain.DocumentDescriptor, error) {
	return nil, domain.FilesystemError("permission denied", nil)
}

func (failingSource) Source() string { return "locked" }

func serve(t *testing.T, source DocumentSource, proc QueueProcessor, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	router := NewRouter(nil, NewEvaluationHandler(nil, source, proc), RouterConfig{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestHealth(t *testing.T) {
	rec, body := serve(t, failingSource{}, &fakeProcessor{}, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "healthy", "service": "deck-evaluator"}, body)
}

func TestEvaluate_NoDocuments(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test_ppts")
	proc := &fakeProcessor{}

	rec, body := serve(t, loader.New(dir, ".pdf", nil), proc, http.MethodPost, "/api/v1/evaluations")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No PDFs found in '"+dir+"' folder.", body["message"])
	assert.Nil(t, proc.received)
	assert.DirExists(t, dir)
}

func TestEvaluate_MixedResults(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"acme.pdf", "broken.PDF", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF"), 0o644))
	}
	proc := &fakeProcessor{}

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/evaluations"},
		{http.MethodGet, "/test_pipeline"},
	} {
		rec, body := serve(t, loader.New(dir, ".pdf", nil), proc, route.method, route.path)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Success", body["status"])
		assert.Equal(t, "batch-7", body["batch_id"])
		assert.Equal(t, float64(2), body["total_evaluated"])
		assert.Equal(t, float64(1), body["succeeded"])
		assert.Equal(t, float64(1), body["failed"])
		assert.Equal(t, float64(1500), body["duration_ms"])

		results := body["results"].([]any)
		require.Len(t, results, 2)
		assert.Equal(t, "acme", results[0].(map[string]any)["team_name"])
		assert.Equal(t, float64(9), results[0].(map[string]any)["feasibility_score"])
		assert.Equal(t, "broken", results[1].(map[string]any)["team_name"])
		assert.Contains(t, results[1].(map[string]any)["error"], "bad xref")
	}
}

func TestEvaluate_DiscoveryFailure(t *testing.T) {
	rec, body := serve(t, failingSource{}, &fakeProcessor{}, http.MethodPost, "/api/v1/evaluations")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to discover documents", body["error"])
	assert.Contains(t, body["details"], "permission denied")
}

func TestEvaluate_BatchSetupFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "acme.pdf"), []byte("%PDF"), 0o644))

	proc := &fakeProcessor{err: domain.FilesystemError("disk full", nil)}
	rec, body := serve(t, loader.New(dir, ".pdf", nil), proc, http.MethodPost, "/api/v1/evaluations")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to run evaluation batch", body["error"])
}
