package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spherical/deck-evaluator/internal/domain"
	"github.com/spherical/deck-evaluator/internal/observability"
)

// DocumentSource discovers the decks of one batch.
type DocumentSource interface {
	Discover(ctx context.Context) ([]domain.DocumentDescriptor, error)
	Source() string
}

// QueueProcessor evaluates a list of decks.
type QueueProcessor interface {
	ProcessQueue(ctx context.Context, docs []domain.DocumentDescriptor) (*domain.BatchSummary, error)
}

// EvaluationHandler runs a batch over the configured source directory.
type EvaluationHandler struct {
	logger    *observability.Logger
	source    DocumentSource
	processor QueueProcessor
}

// NewEvaluationHandler creates a new evaluation handler.
func NewEvaluationHandler(logger *observability.Logger, source DocumentSource, processor QueueProcessor) *EvaluationHandler {
	if logger == nil {
		logger = observability.Nop()
	}
	return &EvaluationHandler{
		logger:    logger.WithOperation("evaluations"),
		source:    source,
		processor: processor,
	}
}

// EvaluationResponseDTO is the body of a completed batch.
type EvaluationResponseDTO struct {
	Status         string               `json:"status"`
	BatchID        string               `json:"batch_id"`
	TotalEvaluated int                  `json:"total_evaluated"`
	Succeeded      int                  `json:"succeeded"`
	Failed         int                  `json:"failed"`
	DurationMS     int64                `json:"duration_ms"`
	Results        []domain.BatchResult `json:"results"`
}

// MessageDTO is returned when there is nothing to evaluate.
type MessageDTO struct {
	Message string `json:"message"`
}

// Evaluate handles POST /api/v1/evaluations and GET /test_pipeline.
func (h *EvaluationHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.WithContext(ctx)

	docs, err := h.source.Discover(ctx)
	if err != nil {
		logger.Error().Err(err).Str("source", h.source.Source()).Msg("Discovery failed")
		h.writeError(w, http.StatusInternalServerError, "Failed to discover documents", err.Error())
		return
	}

	if len(docs) == 0 {
		h.writeJSON(w, http.StatusOK, MessageDTO{
			Message: fmt.Sprintf("No PDFs found in '%s' folder.", h.source.Source()),
		})
		return
	}

	logger.Info().Int("documents", len(docs)).Str("source", h.source.Source()).Msg("Starting evaluation")

	summary, err := h.processor.ProcessQueue(ctx, docs)
	if err != nil {
		logger.Error().Err(err).Msg("Batch setup failed")
		h.writeError(w, http.StatusInternalServerError, "Failed to run evaluation batch", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, EvaluationResponseDTO{
		Status:         "Success",
		BatchID:        summary.BatchID,
		TotalEvaluated: summary.Total(),
		Succeeded:      summary.Succeeded,
		Failed:         summary.Failed,
		DurationMS:     summary.Duration.Milliseconds(),
		Results:        summary.Results,
	})
}

func (h *EvaluationHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func (h *EvaluationHandler) writeError(w http.ResponseWriter, status int, message, details string) {
	resp := map[string]string{"error": message}
	if details != "" {
		resp["details"] = details
	}
	h.writeJSON(w, status, resp)
}
