package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Score bounds for every FinalScoreCard sub-score.
const (
	MinSubScore = 0
	MaxSubScore = 20
)

// DocumentDescriptor identifies one input deck discovered by the loader.
type DocumentDescriptor struct {
	ID       string `json:"id"`        // e.g. "local_acme"
	Identity string `json:"team_name"` // file stem, used as the team name
	Path     string `json:"path"`
	Name     string `json:"name"` // file name including extension
}

// DesignReport is the visual-quality judgment of the first slides.
type DesignReport struct {
	QualitySummary string   `json:"quality_summary"`
	MissingFields  []string `json:"missing_fields"`
}

// ContentReport is the textual judgment of the whole extracted deck text.
type ContentReport struct {
	ProblemSolutionFit    string `json:"problem_solution_fit"`
	FeasibilityAnalysis   string `json:"feasibility_analysis"`
	UniquenessAnalysis    string `json:"uniqueness_analysis"`
	ContentQualitySummary string `json:"content_quality_summary"`
}

// FinalScoreCard is the judge's verdict. Sub-scores are 0-20 each; no total
// is implied.
type FinalScoreCard struct {
	TeamName                string `json:"team_name"`
	PPTQualityScore         int    `json:"ppt_quality_score"`
	ContentQualityScore     int    `json:"content_quality_score"`
	ProblemSolutionFitScore int    `json:"problem_solution_fit_score"`
	FeasibilityScore        int    `json:"feasibility_score"`
	UniquenessScore         int    `json:"uniqueness_score"`
	Reasoning               string `json:"reasoning"`
}

// Validate checks that every sub-score lies within bounds.
func (c *FinalScoreCard) Validate() error {
	scores := []struct {
		name  string
		value int
	}{
		{"ppt_quality_score", c.PPTQualityScore},
		{"content_quality_score", c.ContentQualityScore},
		{"problem_solution_fit_score", c.ProblemSolutionFitScore},
		{"feasibility_score", c.FeasibilityScore},
		{"uniqueness_score", c.UniquenessScore},
	}
	for _, s := range scores {
		if s.value < MinSubScore || s.value > MaxSubScore {
			return ValidationError(fmt.Sprintf("%s must be between %d and %d, got %d",
				s.name, MinSubScore, MaxSubScore, s.value), nil)
		}
	}
	return nil
}

// EvaluationState is the per-document record threaded through the workflow.
// It is owned by exactly one execution.
type EvaluationState struct {
	Identity   string
	SourcePath string
	ScratchDir string

	RawText    string
	AssetPaths []string

	Design  *DesignReport
	Content *ContentReport
	Score   *FinalScoreCard
}

// NewEvaluationState builds the initial state for a document.
func NewEvaluationState(doc DocumentDescriptor, scratchDir string) *EvaluationState {
	return &EvaluationState{
		Identity:   doc.Identity,
		SourcePath: doc.Path,
		ScratchDir: scratchDir,
		AssetPaths: []string{},
	}
}

// Extraction is the partial state produced by the Extract stage.
type Extraction struct {
	RawText    string
	AssetPaths []string
	PageCount  int // pages actually processed
}

// ErrorRecord is returned in place of a score when a document fails.
type ErrorRecord struct {
	Identity string `json:"team_name"`
	Error    string `json:"error"`
}

// BatchResult is the outcome for one document: exactly one of Score and Err
// is set.
type BatchResult struct {
	Identity string
	Score    *FinalScoreCard
	Err      *ErrorRecord
	Duration time.Duration
}

// Succeeded reports whether the document produced a score card.
func (r BatchResult) Succeeded() bool {
	return r.Score != nil
}

// MarshalJSON renders the result as either the score card or the error record.
func (r BatchResult) MarshalJSON() ([]byte, error) {
	if r.Score != nil {
		return json.Marshal(r.Score)
	}
	if r.Err != nil {
		return json.Marshal(r.Err)
	}
	return json.Marshal(ErrorRecord{Identity: r.Identity, Error: "no result"})
}

// NewSuccessResult wraps a score card.
func NewSuccessResult(identity string, card *FinalScoreCard, d time.Duration) BatchResult {
	return BatchResult{Identity: identity, Score: card, Duration: d}
}

// NewErrorResult wraps a failure.
func NewErrorResult(identity string, err error, d time.Duration) BatchResult {
	return BatchResult{
		Identity: identity,
		Err:      &ErrorRecord{Identity: identity, Error: err.Error()},
		Duration: d,
	}
}

// BatchSummary collects the results of one ProcessQueue call in input order.
type BatchSummary struct {
	BatchID   string        `json:"batch_id"`
	Results   []BatchResult `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Total returns the number of evaluated documents.
func (s *BatchSummary) Total() int {
	return len(s.Results)
}
