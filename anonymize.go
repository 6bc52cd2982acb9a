package main

import (
	"fmt"
	"strings"
)

// maxCouncilMembers bounds the council size to the label alphabet. Labels are
// "Response A" through "Response Z"; single-letter suffixes keep no label a
// substring of another.
const maxCouncilMembers = 26

// AnonymizedSet maps anonymization labels to the successful Stage 1 results
// they stand for. Built once per run and never mutated afterward; failed
// members are excluded here but retained in the Stage 1 result list.
type AnonymizedSet struct {
	Labels       []string
	Responses    map[string]Stage1Result
	LabelToModel map[string]string
}

// AssignLabels assigns labels to the successful results in fixed member
// order: "Response A" is the first member with a successful result,
// "Response B" the next, and so on. Deterministic per run, so replaying a
// run with logged inputs reproduces identical labels.
func AssignLabels(stage1 []Stage1Result) *AnonymizedSet {
	set := &AnonymizedSet{
		Responses:    make(map[string]Stage1Result),
		LabelToModel: make(map[string]string),
	}

	for _, result := range stage1 {
		if !result.OK() {
			continue
		}
		label := fmt.Sprintf("Response %c", rune('A'+len(set.Labels)))
		set.Labels = append(set.Labels, label)
		set.Responses[label] = result
		set.LabelToModel[label] = result.Model
	}

	return set
}

// Reveal substitutes every label occurrence in text with the model name it
// stands for. Substitution is a literal single-pass replacement in label
// insertion order; ranking text ultimately echoes user input, so no
// pattern-matching engine is involved.
func (s *AnonymizedSet) Reveal(text string) string {
	if len(s.Labels) == 0 {
		return text
	}

	pairs := make([]string, 0, len(s.Labels)*2)
	for _, label := range s.Labels {
		pairs = append(pairs, label, s.LabelToModel[label])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
