package scoring

import (
	"context"
	"fmt"

	"starboard-backend/core/settlement"
)

// Mock scores submissions by content richness. It is the default driver so
// the daemon runs end to end without a scoring service configured.
type Mock struct{}

// NewMock creates a mock scoring client.
func NewMock() *Mock {
	return &Mock{}
}

// GenerateRubric returns a fixed five-criterion rubric.
func (m *Mock) GenerateRubric(_ context.Context, title, _ string) (settlement.Rubric, error) {
	return settlement.Rubric{
		Name: fmt.Sprintf("Generated: %s", title),
		Criteria: []settlement.Criterion{
			{Name: "Relevance", Weight: "25%"},
			{Name: "Completeness", Weight: "25%"},
			{Name: "Quality", Weight: "20%"},
			{Name: "Originality", Weight: "15%"},
			{Name: "Presentation", Weight: "15%"},
		},
	}, nil
}

// Evaluate scores each submission by content length and declares the
// longest one the winner.
func (m *Mock) Evaluate(_ context.Context, req settlement.EvaluationRequest) (settlement.Verdict, error) {
	verdict := settlement.Verdict{Scores: make(map[string]settlement.SubmissionScore, len(req.Submissions))}
	best := -1
	for _, sub := range req.Submissions {
		score := len(sub.Content)
		if score > 100 {
			score = 100
		}
		verdict.Scores[sub.ID] = settlement.SubmissionScore{
			Score:     score,
			Reasoning: "mock score derived from content richness",
		}
		if score > best {
			best = score
			verdict.WinnerID = sub.ID
		}
	}
	return verdict, nil
}
