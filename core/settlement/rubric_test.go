package settlement

import (
	"context"
	"fmt"
	"testing"
)

func TestNewRubricSource(t *testing.T) {
	ctx := context.Background()

	t.Run("Known category uses predefined rubric", func(t *testing.T) {
		source := NewRubricSource(Task{Category: "DEVELOPMENT"}, nil)
		rubric := source.Select(ctx)
		if rubric.Name != "Development" {
			t.Errorf("Expected Development rubric but got %q", rubric.Name)
		}
	})

	t.Run("Category lookup ignores case and whitespace", func(t *testing.T) {
		source := NewRubricSource(Task{Category: "  writing "}, nil)
		rubric := source.Select(ctx)
		if rubric.Name != "Writing" {
			t.Errorf("Expected Writing rubric but got %q", rubric.Name)
		}
	})

	t.Run("Unknown category generates rubric via scoring client", func(t *testing.T) {
		generated := Rubric{
			Name:     "Community Moderation",
			Criteria: []Criterion{{Name: "Responsiveness", Weight: "100%"}},
		}
		source := NewRubricSource(Task{Category: "MODERATION"}, &fakeScoring{rubric: generated})
		rubric := source.Select(ctx)
		if rubric.Name != generated.Name {
			t.Errorf("Expected generated rubric but got %q", rubric.Name)
		}
	})

	t.Run("Generation failure falls back to generic rubric", func(t *testing.T) {
		source := NewRubricSource(Task{Category: "MODERATION"}, &fakeScoring{rubricErr: fmt.Errorf("unavailable")})
		rubric := source.Select(ctx)
		if rubric.Name != GenericRubric.Name {
			t.Errorf("Expected generic rubric but got %q", rubric.Name)
		}
	})

	t.Run("Empty generated rubric falls back to generic rubric", func(t *testing.T) {
		source := NewRubricSource(Task{Category: "MODERATION"}, &fakeScoring{rubric: Rubric{Name: "Empty"}})
		rubric := source.Select(ctx)
		if rubric.Name != GenericRubric.Name {
			t.Errorf("Expected generic rubric but got %q", rubric.Name)
		}
	})

	t.Run("Nil client falls back to generic rubric", func(t *testing.T) {
		source := NewRubricSource(Task{Category: "MODERATION"}, nil)
		rubric := source.Select(ctx)
		if rubric.Name != GenericRubric.Name {
			t.Errorf("Expected generic rubric but got %q", rubric.Name)
		}
	})
}
