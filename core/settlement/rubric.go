package settlement

import (
	"context"
	"log"
	"strings"
)

// Criterion is one weighted scoring dimension within a rubric.
type Criterion struct {
	Name   string `json:"name"`
	Weight string `json:"weight"` // e.g. "30%"
}

// Rubric is an ordered list of weighted criteria used to score submissions.
type Rubric struct {
	Name     string      `json:"name"`
	Criteria []Criterion `json:"criteria"`
}

// GenericRubric is the rubric of last resort: applied when a category is
// unknown and rubric generation is unavailable.
var GenericRubric = Rubric{
	Name: "General Quality",
	Criteria: []Criterion{
		{Name: "Relevance to the task brief", Weight: "30%"},
		{Name: "Completeness", Weight: "25%"},
		{Name: "Quality of execution", Weight: "25%"},
		{Name: "Originality", Weight: "20%"},
	},
}

// categoryRubrics maps a task category to its fixed rubric.
var categoryRubrics = map[string]Rubric{
	"DESIGN": {
		Name: "Design",
		Criteria: []Criterion{
			{Name: "Visual appeal and polish", Weight: "30%"},
			{Name: "Fit with the stated brand or brief", Weight: "25%"},
			{Name: "Usability and clarity", Weight: "25%"},
			{Name: "Originality", Weight: "20%"},
		},
	},
	"DEVELOPMENT": {
		Name: "Development",
		Criteria: []Criterion{
			{Name: "Correctness against the requirements", Weight: "35%"},
			{Name: "Code quality and structure", Weight: "25%"},
			{Name: "Documentation and reproducibility", Weight: "20%"},
			{Name: "Robustness and edge case handling", Weight: "20%"},
		},
	},
	"WRITING": {
		Name: "Writing",
		Criteria: []Criterion{
			{Name: "Clarity and readability", Weight: "30%"},
			{Name: "Accuracy and depth", Weight: "30%"},
			{Name: "Structure and flow", Weight: "20%"},
			{Name: "Tone fit for the audience", Weight: "20%"},
		},
	},
	"RESEARCH": {
		Name: "Research",
		Criteria: []Criterion{
			{Name: "Rigor of methodology", Weight: "30%"},
			{Name: "Quality of sources", Weight: "25%"},
			{Name: "Depth of analysis", Weight: "25%"},
			{Name: "Actionability of conclusions", Weight: "20%"},
		},
	},
	"MARKETING": {
		Name: "Marketing",
		Criteria: []Criterion{
			{Name: "Message clarity", Weight: "30%"},
			{Name: "Audience targeting", Weight: "25%"},
			{Name: "Creativity", Weight: "25%"},
			{Name: "Call-to-action strength", Weight: "20%"},
		},
	},
}

// RubricSource yields the rubric used to score a task's submissions.
// Select never fails; every variant bottoms out at GenericRubric.
type RubricSource interface {
	Select(ctx context.Context) Rubric
}

// predefinedRubric serves a fixed rubric from the category table.
type predefinedRubric struct {
	rubric Rubric
}

func (p predefinedRubric) Select(_ context.Context) Rubric { return p.rubric }

// generatedRubric asks the scoring client to build a rubric for an
// unrecognized category, falling back to the generic rubric on failure.
type generatedRubric struct {
	client ScoringClient
	task   Task
}

func (g generatedRubric) Select(ctx context.Context) Rubric {
	if g.client == nil {
		return GenericRubric
	}
	rubric, err := g.client.GenerateRubric(ctx, g.task.Title, g.task.Description)
	if err != nil {
		log.Printf("rubric generation failed for task %s: %v", g.task.ID, err)
		return GenericRubric
	}
	if rubric.Name == "" || len(rubric.Criteria) == 0 {
		return GenericRubric
	}
	return rubric
}

// NewRubricSource picks the rubric strategy for a task: the fixed table for
// known categories, client-side generation otherwise.
func NewRubricSource(task Task, client ScoringClient) RubricSource {
	if rubric, ok := categoryRubrics[strings.ToUpper(strings.TrimSpace(task.Category))]; ok {
		return predefinedRubric{rubric: rubric}
	}
	return generatedRubric{client: client, task: task}
}
