package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/deck-evaluator/internal/domain"
)

// fakeAnalyzer answers every call with a canned JSON reply.
type fakeAnalyzer struct {
	reply        string
	err          error
	instructions []string
	images       [][]string
	deadline     time.Time
}

func (f *fakeAnalyzer) AnalyzeImages(ctx context.Context, instruction string, imagePaths []string, out any) error {
	f.images = append(f.images, imagePaths)
	return f.AnalyzeText(ctx, instruction, out)
}

func (f *fakeAnalyzer) AnalyzeText(ctx context.Context, instruction string, out any) error {
	f.instructions = append(f.instructions, instruction)
	f.deadline, _ = ctx.Deadline()
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.reply), out)
}

func tenAssets() []string {
	assets := make([]string, 10)
	for i := range assets {
		assets[i] = fmt.Sprintf("/scratch/acme/slide_%d.png", i)
	}
	return assets
}

func TestDesignStage_SendsFirstThreeAssets(t *testing.T) {
	vision := &fakeAnalyzer{reply: `{"quality_summary":"tidy","missing_fields":["Team Name"]}`}
	stage := NewDesignStage(vision, Options{}, nil)

	report, err := stage.EvaluateDesign(context.Background(), domain.EvaluationState{Identity: "acme", AssetPaths: tenAssets()})
	require.NoError(t, err)

	require.Len(t, vision.images, 1)
	assert.Equal(t, tenAssets()[:3], vision.images[0])
	assert.Equal(t, "tidy", report.QualitySummary)
	assert.Equal(t, []string{"Team Name"}, report.MissingFields)
	assert.Contains(t, vision.instructions[0], "missing fields (Title, Team Name)")
}

func TestDesignStage_FewerAssetsThanLimit(t *testing.T) {
	vision := &fakeAnalyzer{reply: `{"quality_summary":"sparse"}`}
	stage := NewDesignStage(vision, Options{MaxDesignAssets: 5}, nil)

	report, err := stage.EvaluateDesign(context.Background(), domain.EvaluationState{AssetPaths: []string{"a.png"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png"}, vision.images[0])
	assert.NotNil(t, report.MissingFields)
}

func TestDesignStage_AppliesCallTimeout(t *testing.T) {
	vision := &fakeAnalyzer{reply: `{}`}
	stage := NewDesignStage(vision, Options{CallTimeout: time.Minute}, nil)

	before := time.Now()
	_, err := stage.EvaluateDesign(context.Background(), domain.EvaluationState{})
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(time.Minute), vision.deadline, 5*time.Second)
}

func TestDesignStage_FailureIsAnalysisError(t *testing.T) {
	stage := NewDesignStage(&fakeAnalyzer{err: errors.New("connection reset")}, Options{}, nil)

	_, err := stage.EvaluateDesign(context.Background(), domain.EvaluationState{})
	require.Error(t, err)
	assert.True(t, domain.IsErrorType(err, domain.ErrorTypeAnalysis))
}

func TestContentStage_PromptCarriesRawText(t *testing.T) {
	text := &fakeAnalyzer{reply: `{"problem_solution_fit":"strong","feasibility_analysis":"ok","uniqueness_analysis":"meh","content_quality_summary":"good"}`}
	stage := NewContentStage(text, Options{}, nil)

	report, err := stage.EvaluateContent(context.Background(), domain.EvaluationState{RawText: "We fix invoices.\n"})
	require.NoError(t, err)

	assert.Equal(t, "strong", report.ProblemSolutionFit)
	assert.Equal(t, "good", report.ContentQualitySummary)
	assert.Contains(t, text.instructions[0], "Analyze this pitch deck text:\nWe fix invoices.\n")
	assert.Contains(t, text.instructions[0], "Evaluate: Problem-Solution Fit, Feasibility, Uniqueness.")
}

func TestContentStage_EmptyTextStillAnalyzed(t *testing.T) {
	text := &fakeAnalyzer{reply: `{"content_quality_summary":"nothing to read"}`}

	report, err := NewContentStage(text, Options{}, nil).EvaluateContent(context.Background(), domain.EvaluationState{})
	require.NoError(t, err)
	assert.Equal(t, "nothing to read", report.ContentQualitySummary)
}

func TestScoreStage(t *testing.T) {
	design := domain.DesignReport{QualitySummary: "clean", MissingFields: []string{}}
	content := domain.ContentReport{ProblemSolutionFit: "fits"}

	tests := []struct {
		name     string
		reply    string
		wantErr  bool
		wantTeam string
	}{
		{
			name:     "valid card",
			reply:    `{"team_name":"acme","ppt_quality_score":15,"content_quality_score":12,"problem_solution_fit_score":18,"feasibility_score":10,"uniqueness_score":20,"reasoning":"solid"}`,
			wantTeam: "acme",
		},
		{
			name:     "missing team name is filled",
			reply:    `{"ppt_quality_score":1,"content_quality_score":2,"problem_solution_fit_score":3,"feasibility_score":4,"uniqueness_score":5}`,
			wantTeam: "acme",
		},
		{
			name:    "score above range",
			reply:   `{"team_name":"acme","ppt_quality_score":25}`,
			wantErr: true,
		},
		{
			name:    "negative score",
			reply:   `{"team_name":"acme","uniqueness_score":-1}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := &fakeAnalyzer{reply: tt.reply}
			card, err := NewScoreStage(judge, Options{}, nil).Score(context.Background(), "acme", design, content)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.IsErrorType(err, domain.ErrorTypeAnalysis))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTeam, card.TeamName)

			prompt := judge.instructions[0]
			assert.Contains(t, prompt, "Act as a Venture Capitalist Judge.")
			assert.Contains(t, prompt, "Team: acme")
			assert.Contains(t, prompt, `"quality_summary":"clean"`)
			assert.Contains(t, prompt, `"problem_solution_fit":"fits"`)
		})
	}
}

func TestScoreStage_CapabilityFailure(t *testing.T) {
	cause := domain.AnalysisError("Model request failed", errors.New("503"))
	_, err := NewScoreStage(&fakeAnalyzer{err: cause}, Options{}, nil).
		Score(context.Background(), "acme", domain.DesignReport{}, domain.ContentReport{})

	require.Error(t, err)
	assert.Same(t, cause, err)
}
