package main

import (
	"testing"
)

// TestAssignLabels tests label assignment over Stage 1 results
func TestAssignLabels(t *testing.T) {
	t.Run("labels follow fixed member order", func(t *testing.T) {
		set := AssignLabels(SampleStage1Results())

		want := []string{"Response A", "Response B", "Response C"}
		if len(set.Labels) != len(want) {
			t.Fatalf("got %d labels, want %d", len(set.Labels), len(want))
		}
		for i, label := range want {
			if set.Labels[i] != label {
				t.Errorf("Labels[%d] = %q, want %q", i, set.Labels[i], label)
			}
		}

		// The timed-out third member is skipped, so the fourth gets C
		if set.LabelToModel["Response A"] != "test/model1" {
			t.Errorf("Response A = %q, want test/model1", set.LabelToModel["Response A"])
		}
		if set.LabelToModel["Response C"] != "test/model4" {
			t.Errorf("Response C = %q, want test/model4", set.LabelToModel["Response C"])
		}
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		stage1 := SampleStage1Results()
		first := AssignLabels(stage1)
		second := AssignLabels(stage1)

		for label, model := range first.LabelToModel {
			if second.LabelToModel[label] != model {
				t.Errorf("label %q maps to %q then %q", label, model, second.LabelToModel[label])
			}
		}
	})

	t.Run("all members failed", func(t *testing.T) {
		stage1 := []Stage1Result{
			{Model: "test/model1", ErrorKind: ErrKindRateLimit},
			{Model: "test/model2", ErrorKind: ErrKindConnection},
		}
		set := AssignLabels(stage1)
		if len(set.Labels) != 0 {
			t.Errorf("got %d labels, want 0", len(set.Labels))
		}
	})
}

// TestReveal tests label-to-model substitution
func TestReveal(t *testing.T) {
	set := AssignLabels([]Stage1Result{
		{Model: "openai/gpt-5.1", Response: "first"},
		{Model: "anthropic/claude-sonnet-4.5", Response: "second"},
	})

	t.Run("substitutes every occurrence", func(t *testing.T) {
		text := "Response A beats Response B, though Response A is verbose."
		got := set.Reveal(text)
		want := "openai/gpt-5.1 beats anthropic/claude-sonnet-4.5, though openai/gpt-5.1 is verbose."
		if got != want {
			t.Errorf("Reveal = %q, want %q", got, want)
		}
	})

	t.Run("substitution is literal", func(t *testing.T) {
		got := set.Reveal("See Response A.")
		if got != "See openai/gpt-5.1." {
			t.Errorf("Reveal = %q", got)
		}
	})

	t.Run("text without labels is unchanged", func(t *testing.T) {
		text := "No labels here, just A.I. musings."
		if got := set.Reveal(text); got != text {
			t.Errorf("Reveal = %q, want unchanged", got)
		}
	})

	t.Run("empty set is identity", func(t *testing.T) {
		empty := AssignLabels(nil)
		if got := empty.Reveal("Response A"); got != "Response A" {
			t.Errorf("Reveal = %q, want unchanged", got)
		}
	})
}
