// Package workflow runs the fixed per-document evaluation graph:
// Extract, then Design and Content side by side, then Score.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical/deck-evaluator/internal/domain"
	"github.com/spherical/deck-evaluator/internal/observability"
)

// Phase is how far a document got through the graph.
type Phase string

const (
	PhaseStart       Phase = "start"
	PhaseExtracted   Phase = "extracted"
	PhaseDesignDone  Phase = "design_done"
	PhaseContentDone Phase = "content_done"
	PhaseScored      Phase = "scored"
	PhaseFailed      Phase = "failed"
)

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseScored || p == PhaseFailed
}

// Stage names used in failure reports.
const (
	StageExtract = "extract"
	StageDesign  = "design"
	StageContent = "content"
	StageScore   = "score"
)

// Outcome is the result of one graph execution. Phase is PhaseScored with
// Score set, or PhaseFailed with Err and FailedStage set.
type Outcome struct {
	Phase       Phase
	State       domain.EvaluationState
	Score       *domain.FinalScoreCard
	Err         error
	FailedStage string
	Trace       []Phase
	Duration    time.Duration
}

// Stages bundles the four graph nodes.
type Stages struct {
	Extractor domain.Extractor
	Design    domain.DesignEvaluator
	Content   domain.ContentEvaluator
	Scorer    domain.Scorer
}

// Graph executes Stages for one document at a time. It holds no per-document
// state, so one Graph may serve many concurrent executions.
type Graph struct {
	stages   Stages
	parallel bool
	logger   *observability.Logger
}

// Option configures a Graph
type Option func(*Graph)

// WithParallelStages runs Design and Content concurrently.
func WithParallelStages(parallel bool) Option {
	return func(g *Graph) { g.parallel = parallel }
}

// WithLogger sets the graph logger
func WithLogger(logger *observability.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGraph wires the stages into a graph. Middle stages run in parallel
// unless WithParallelStages(false) is given.
func NewGraph(stages Stages, opts ...Option) *Graph {
	g := &Graph{
		stages:   stages,
		parallel: true,
		logger:   observability.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.WithOperation("workflow")
	return g
}

// Run drives state from PhaseStart to a terminal phase.
func (g *Graph) Run(ctx context.Context, state domain.EvaluationState) Outcome {
	start := time.Now()
	run := &execution{state: state, trace: []Phase{PhaseStart}}
	logger := g.logger.WithDocument(state.Identity)

	outcome := g.run(ctx, run)
	outcome.Duration = time.Since(start)

	if outcome.Phase == PhaseFailed {
		logger.Warn().Str("stage", outcome.FailedStage).Err(outcome.Err).Dur("duration", outcome.Duration).Msg("Evaluation failed")
	} else {
		logger.Info().Dur("duration", outcome.Duration).Msg("Evaluation scored")
	}
	return outcome
}

type execution struct {
	state domain.EvaluationState
	trace []Phase
}

func (e *execution) advance(p Phase) {
	e.trace = append(e.trace, p)
}

func (e *execution) fail(stage string, err error) Outcome {
	e.advance(PhaseFailed)
	return Outcome{
		Phase:       PhaseFailed,
		State:       e.state,
		Err:         err,
		FailedStage: stage,
		Trace:       e.trace,
	}
}

func (g *Graph) run(ctx context.Context, e *execution) Outcome {
	extraction, err := g.stages.Extractor.Extract(ctx, e.state)
	if err != nil {
		return e.fail(StageExtract, err)
	}
	e.state.RawText = extraction.RawText
	e.state.AssetPaths = extraction.AssetPaths
	if e.state.AssetPaths == nil {
		e.state.AssetPaths = []string{}
	}
	e.advance(PhaseExtracted)

	design, content, stage, err := g.review(ctx, e.state)
	if design != nil {
		e.state.Design = design
		e.advance(PhaseDesignDone)
	}
	if content != nil {
		e.state.Content = content
		e.advance(PhaseContentDone)
	}
	if err != nil {
		return e.fail(stage, err)
	}

	card, err := g.stages.Scorer.Score(ctx, e.state.Identity, *design, *content)
	if err != nil {
		return e.fail(StageScore, err)
	}
	e.state.Score = card
	e.advance(PhaseScored)

	return Outcome{
		Phase: PhaseScored,
		State: e.state,
		Score: card,
		Trace: e.trace,
	}
}

// review runs the two middle stages. Both see the same post-extract state.
// The first failure wins and, in parallel mode, cancels the sibling.
func (g *Graph) review(ctx context.Context, state domain.EvaluationState) (*domain.DesignReport, *domain.ContentReport, string, error) {
	var (
		design  *domain.DesignReport
		content *domain.ContentReport
	)

	runDesign := func(ctx context.Context) (err error) {
		defer recoverStage(StageDesign, &err)
		r, err := g.stages.Design.EvaluateDesign(ctx, state)
		if err != nil {
			return stageError{stage: StageDesign, err: err}
		}
		if r == nil {
			return stageError{stage: StageDesign, err: domain.AnalysisError("design stage returned no report", nil)}
		}
		design = r
		return nil
	}
	runContent := func(ctx context.Context) (err error) {
		defer recoverStage(StageContent, &err)
		r, err := g.stages.Content.EvaluateContent(ctx, state)
		if err != nil {
			return stageError{stage: StageContent, err: err}
		}
		if r == nil {
			return stageError{stage: StageContent, err: domain.AnalysisError("content stage returned no report", nil)}
		}
		content = r
		return nil
	}

	var err error
	if g.parallel {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.Go(func() error { return runDesign(egCtx) })
		eg.Go(func() error { return runContent(egCtx) })
		err = eg.Wait()
	} else {
		err = runDesign(ctx)
		if err == nil {
			err = runContent(ctx)
		}
	}

	var se stageError
	if errors.As(err, &se) {
		return design, content, se.stage, se.err
	}
	return design, content, "", err
}

// recoverStage turns a panic in a middle stage into that stage's error.
// errgroup does not recover panics raised on its goroutines.
func recoverStage(stage string, err *error) {
	if r := recover(); r != nil {
		*err = stageError{stage: stage, err: domain.AnalysisError(fmt.Sprintf("panic in %s stage: %v", stage, r), nil)}
	}
}

type stageError struct {
	stage string
	err   error
}

func (e stageError) Error() string {
	return fmt.Sprintf("%s: %v", e.stage, e.err)
}

func (e stageError) Unwrap() error {
	return e.err
}
