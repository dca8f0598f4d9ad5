package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/spherical/deck-evaluator/internal/domain"
)

var scoreHeaders = []string{"TEAM", "DESIGN", "CONTENT", "FIT", "FEASIBILITY", "UNIQUENESS", "STATUS"}

// ScoreTable prints one row per result, in input order.
func ScoreTable(w io.Writer, results []domain.BatchResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(scoreHeaders, "\t"))
	separator := make([]string, len(scoreHeaders))
	for i, h := range scoreHeaders {
		separator[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(separator, "\t"))

	ok := color.New(color.FgGreen).SprintFunc()
	failed := color.New(color.FgRed).SprintFunc()

	for _, r := range results {
		if r.Succeeded() {
			s := r.Score
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				r.Identity, s.PPTQualityScore, s.ContentQualityScore,
				s.ProblemSolutionFitScore, s.FeasibilityScore, s.UniquenessScore, ok("scored"))
			continue
		}
		msg := "failed"
		if r.Err != nil {
			msg = "failed: " + r.Err.Error
		}
		fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t%s\n", r.Identity, failed(msg))
	}

	_ = tw.Flush()
}

// Reasoning prints the judge's reasoning for each scored deck.
func Reasoning(w io.Writer, results []domain.BatchResult) {
	for _, r := range results {
		if !r.Succeeded() || r.Score.Reasoning == "" {
			continue
		}
		color.New(color.FgYellow).Fprintf(w, "  %s: ", r.Identity)
		fmt.Fprintln(w, r.Score.Reasoning)
	}
}
