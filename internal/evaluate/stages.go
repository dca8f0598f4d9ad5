package evaluate

import (
	"context"
	"fmt"
	"time"

	"github.com/spherical/deck-evaluator/internal/domain"
	"github.com/spherical/deck-evaluator/internal/observability"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultMaxDesignAssets = 3
	DefaultCallTimeout     = 2 * time.Minute
)

// Options tunes the analysis stages.
type Options struct {
	MaxDesignAssets int
	CallTimeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxDesignAssets <= 0 {
		o.MaxDesignAssets = DefaultMaxDesignAssets
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	return o
}

// DesignStage reviews the first slides with the vision capability.
type DesignStage struct {
	vision domain.VisionAnalyzer
	opts   Options
	logger *observability.Logger
}

// NewDesignStage creates the design review stage.
func NewDesignStage(vision domain.VisionAnalyzer, opts Options, logger *observability.Logger) *DesignStage {
	if logger == nil {
		logger = observability.Nop()
	}
	return &DesignStage{vision: vision, opts: opts.withDefaults(), logger: logger.WithOperation("design")}
}

// EvaluateDesign sends at most MaxDesignAssets assets, in page order.
func (s *DesignStage) EvaluateDesign(ctx context.Context, state domain.EvaluationState) (*domain.DesignReport, error) {
	assets := state.AssetPaths
	if len(assets) > s.opts.MaxDesignAssets {
		assets = assets[:s.opts.MaxDesignAssets]
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	var report domain.DesignReport
	if err := s.vision.AnalyzeImages(ctx, DesignInstruction(), assets, &report); err != nil {
		return nil, asAnalysisError("design review failed", err)
	}
	if report.MissingFields == nil {
		report.MissingFields = []string{}
	}

	s.logger.WithDocument(state.Identity).Debug().
		Int("assets", len(assets)).
		Strs("missing_fields", report.MissingFields).
		Msg("Design review complete")
	return &report, nil
}

// ContentStage reviews the extracted deck text with the text capability.
type ContentStage struct {
	text   domain.TextAnalyzer
	opts   Options
	logger *observability.Logger
}

// NewContentStage creates the content review stage.
func NewContentStage(text domain.TextAnalyzer, opts Options, logger *observability.Logger) *ContentStage {
	if logger == nil {
		logger = observability.Nop()
	}
	return &ContentStage{text: text, opts: opts.withDefaults(), logger: logger.WithOperation("content")}
}

func (s *ContentStage) EvaluateContent(ctx context.Context, state domain.EvaluationState) (*domain.ContentReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	var report domain.ContentReport
	if err := s.text.AnalyzeText(ctx, ContentPrompt(state.RawText), &report); err != nil {
		return nil, asAnalysisError("content review failed", err)
	}

	s.logger.WithDocument(state.Identity).Debug().Int("text_length", len(state.RawText)).Msg("Content review complete")
	return &report, nil
}

// ScoreStage asks the judgment capability for the final score card.
type ScoreStage struct {
	judge  domain.TextAnalyzer
	opts   Options
	logger *observability.Logger
}

// NewScoreStage creates the judgment stage.
func NewScoreStage(judge domain.TextAnalyzer, opts Options, logger *observability.Logger) *ScoreStage {
	if logger == nil {
		logger = observability.Nop()
	}
	return &ScoreStage{judge: judge, opts: opts.withDefaults(), logger: logger.WithOperation("score")}
}

// Score returns a validated card. A card with an empty team name gets the
// document identity; one with out-of-range scores is rejected.
func (s *ScoreStage) Score(ctx context.Context, identity string, design domain.DesignReport, content domain.ContentReport) (*domain.FinalScoreCard, error) {
	prompt, err := JudgePrompt(identity, design, content)
	if err != nil {
		return nil, domain.AnalysisError("cannot build judgment prompt", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	var card domain.FinalScoreCard
	if err := s.judge.AnalyzeText(ctx, prompt, &card); err != nil {
		return nil, asAnalysisError("judgment failed", err)
	}

	if card.TeamName == "" {
		card.TeamName = identity
	}
	if err := card.Validate(); err != nil {
		return nil, domain.AnalysisError(fmt.Sprintf("judgment for %s out of range", identity), err)
	}

	s.logger.WithDocument(identity).Debug().
		Int("ppt_quality_score", card.PPTQualityScore).
		Int("content_quality_score", card.ContentQualityScore).
		Msg("Judgment complete")
	return &card, nil
}

func asAnalysisError(message string, err error) error {
	if domain.IsErrorType(err, domain.ErrorTypeAnalysis) {
		return err
	}
	return domain.AnalysisError(message, err)
}
