package domain

import "context"

// Extractor pulls raw text and slide assets out of a source document
type Extractor interface {
	// Extract writes assets into state.ScratchDir and returns what it produced.
	// It must not modify state.
	Extract(ctx context.Context, state EvaluationState) (*Extraction, error)
}

// DesignEvaluator judges the visual quality of the extracted slide assets
type DesignEvaluator interface {
	EvaluateDesign(ctx context.Context, state EvaluationState) (*DesignReport, error)
}

// ContentEvaluator judges the extracted raw text
type ContentEvaluator interface {
	EvaluateContent(ctx context.Context, state EvaluationState) (*ContentReport, error)
}

// Scorer turns both reports into the final score card
type Scorer interface {
	Score(ctx context.Context, identity string, design DesignReport, content ContentReport) (*FinalScoreCard, error)
}

// VisionAnalyzer is the visual-analysis capability. Implementations decode the
// structured answer into out.
type VisionAnalyzer interface {
	AnalyzeImages(ctx context.Context, instruction string, imagePaths []string, out any) error
}

// TextAnalyzer is the text-analysis and judgment capability.
type TextAnalyzer interface {
	AnalyzeText(ctx context.Context, instruction string, out any) error
}
