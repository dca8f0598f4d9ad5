// Package evaluate holds the three analysis stages of a deck evaluation:
// design review of the first slides, content review of the deck text, and
// the final judgment that turns both reviews into a score card.
package evaluate

import (
	"encoding/json"
	"fmt"

	"github.com/spherical/deck-evaluator/internal/domain"
)

const designInstruction = `Analyze these slides for visual clarity, professionalism, and missing fields (Title, Team Name). Output JSON.

Respond with a single JSON object of this shape:
{"quality_summary": "<assessment of the visual quality>", "missing_fields": ["<field>", ...]}`

const contentTemplate = `Analyze this pitch deck text:
%s

Evaluate: Problem-Solution Fit, Feasibility, Uniqueness.

Respond with a single JSON object of this shape:
{"problem_solution_fit": "...", "feasibility_analysis": "...", "uniqueness_analysis": "...", "content_quality_summary": "..."}`

const judgeTemplate = `Act as a Venture Capitalist Judge. Assign scores (0-20) based on these reports.

Team: %s
Design Report: %s
Content Report: %s

Respond with a single JSON object of this shape, every score an integer from 0 to 20:
{"team_name": "%s", "ppt_quality_score": 0, "content_quality_score": 0, "problem_solution_fit_score": 0, "feasibility_score": 0, "uniqueness_score": 0, "reasoning": "..."}`

// DesignInstruction returns the instruction sent with the slide images.
func DesignInstruction() string {
	return designInstruction
}

// ContentPrompt renders the content review prompt for the deck text.
func ContentPrompt(rawText string) string {
	return fmt.Sprintf(contentTemplate, rawText)
}

// JudgePrompt renders the judgment prompt with both reports inlined as JSON.
func JudgePrompt(identity string, design domain.DesignReport, content domain.ContentReport) (string, error) {
	designJSON, err := json.Marshal(design)
	if err != nil {
		return "", fmt.Errorf("marshal design report: %w", err)
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("marshal content report: %w", err)
	}
	return fmt.Sprintf(judgeTemplate, identity, designJSON, contentJSON, identity), nil
}
