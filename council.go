package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// BuildStage1Prompt assembles the Stage 1 prompt: prior conversation turns
// (bounded by the context window, codec-encoded), any extracted page/file
// text, and the user's question. Returns the prompt plus the history
// payload's token accounting.
func BuildStage1Prompt(query Query) (string, TokenStats) {
	var b strings.Builder
	var stats TokenStats

	history := query.History
	if ContextWindowSize >= 0 && len(history) > ContextWindowSize {
		history = history[len(history)-ContextWindowSize:]
	}

	if len(history) > 0 {
		rows := make([][]string, 0, len(history))
		for _, msg := range history {
			rows = append(rows, []string{msg.Role, msg.Content})
		}
		payload := EncodeForPrompt(ToonTable{Name: "history", Fields: []string{"role", "content"}, Rows: rows})
		stats = payload.Stats()

		b.WriteString("Previous conversation for context:\n\n")
		b.WriteString(payload.Text)
		b.WriteString("\n\n")
	}

	if query.ExtractedText != "" {
		b.WriteString("Attached content:\n\n")
		b.WriteString(query.ExtractedText)
		b.WriteString("\n\n")
	}

	b.WriteString(query.Text)
	return b.String(), stats
}

// BuildRankingPrompt assembles the Stage 2 prompt from the anonymized
// Stage 1 responses. Returns the prompt plus the response payload's token
// accounting.
func BuildRankingPrompt(userQuery string, set *AnonymizedSet) (string, TokenStats) {
	rows := make([][]string, 0, len(set.Labels))
	for _, label := range set.Labels {
		rows = append(rows, []string{label, set.Responses[label].Response})
	}
	payload := EncodeForPrompt(ToonTable{Name: "responses", Fields: []string{"label", "response"}, Rows: rows})

	prompt := fmt.Sprintf(`You are evaluating different responses to the following question:

Question: %s

Here are the responses from different models (anonymized, one record per response):

%s

Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`, userQuery, payload.Text)

	return prompt, payload.Stats()
}

// BuildChairmanPrompt assembles the Stage 3 prompt from all prior stage
// outputs. Errored members contribute nothing; an empty aggregate just means
// the chairman synthesizes from the raw responses alone.
func BuildChairmanPrompt(userQuery string, stage1 []Stage1Result, stage2 []Stage2Result, aggregate []AggregateRanking) (string, TokenStats) {
	responseRows := make([][]string, 0, len(stage1))
	for _, result := range stage1 {
		if !result.OK() {
			continue
		}
		responseRows = append(responseRows, []string{result.Model, result.Response})
	}
	responses := EncodeForPrompt(ToonTable{Name: "responses", Fields: []string{"model", "response"}, Rows: responseRows})

	rankingRows := make([][]string, 0, len(stage2))
	for _, result := range stage2 {
		if !result.OK() {
			continue
		}
		rankingRows = append(rankingRows, []string{result.Model, result.Ranking})
	}
	rankings := EncodeForPrompt(ToonTable{Name: "rankings", Fields: []string{"model", "ranking"}, Rows: rankingRows})

	var consensus strings.Builder
	if len(aggregate) == 0 {
		consensus.WriteString("No peer rankings could be collected; rely on the individual responses.")
	} else {
		consensus.WriteString("Aggregate peer ranking (lower average is better):\n")
		for i, agg := range aggregate {
			fmt.Fprintf(&consensus, "%d. %s (%s) - average rank %.2f over %d rankings\n",
				i+1, agg.Label, agg.Model, agg.AverageRank, agg.RankingsCount)
		}
	}

	prompt := fmt.Sprintf(`You are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses.

Original Question: %s

STAGE 1 - Individual Responses:
%s

STAGE 2 - Peer Rankings:
%s

%s

Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The peer rankings and what they reveal about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`,
		userQuery, responses.Text, rankings.Text, consensus.String())

	stats := CombineTokenStats(responses.Stats(), rankings.Stats())
	return prompt, stats
}

// ParseRanking extracts an ordered label sequence from free-form ranking
// text. Only labels from knownLabels are accepted; each label is scanned for
// literally, so numbered lists, markdown and trailing commentary all parse.
// The section after "FINAL RANKING:" is preferred when present. No match at
// all yields an empty sequence, which is valid.
func ParseRanking(text string, knownLabels []string) []string {
	section := text
	if idx := strings.Index(text, "FINAL RANKING:"); idx >= 0 {
		section = text[idx+len("FINAL RANKING:"):]
	}

	ranked := scanLabels(section, knownLabels)
	if len(ranked) == 0 && len(section) != len(text) {
		ranked = scanLabels(text, knownLabels)
	}
	return ranked
}

// scanLabels returns the known labels present in text, ordered by first
// occurrence, duplicates dropped.
func scanLabels(text string, knownLabels []string) []string {
	type hit struct {
		pos   int
		label string
	}

	var hits []hit
	for _, label := range knownLabels {
		start := 0
		for {
			i := strings.Index(text[start:], label)
			if i < 0 {
				break
			}
			hits = append(hits, hit{pos: start + i, label: label})
			start += i + len(label)
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[string]bool, len(knownLabels))
	var ranked []string
	for _, h := range hits {
		if seen[h.label] {
			continue
		}
		seen[h.label] = true
		ranked = append(ranked, h.label)
	}
	return ranked
}

// AggregateRankings computes the cross-member consensus ordering: per label,
// the mean 1-based position over every member ranking that contains it.
// Labels no member ranked are omitted rather than scored as worst, and
// errored members simply do not contribute. Sorted ascending by mean rank,
// ties broken by contribution count descending, then by label order.
func AggregateRankings(stage2 []Stage2Result, set *AnonymizedSet) []AggregateRanking {
	positions := make(map[string][]int)
	for _, result := range stage2 {
		if !result.OK() {
			continue
		}
		for pos, label := range result.ParsedRanking {
			if _, known := set.LabelToModel[label]; known {
				positions[label] = append(positions[label], pos+1)
			}
		}
	}

	labelOrder := make(map[string]int, len(set.Labels))
	var aggregate []AggregateRanking
	for i, label := range set.Labels {
		labelOrder[label] = i
		ranks := positions[label]
		if len(ranks) == 0 {
			continue
		}

		sum := 0
		for _, rank := range ranks {
			sum += rank
		}
		aggregate = append(aggregate, AggregateRanking{
			Label:         label,
			Model:         set.LabelToModel[label],
			AverageRank:   float64(sum) / float64(len(ranks)),
			RankingsCount: len(ranks),
		})
	}

	sort.SliceStable(aggregate, func(i, j int) bool {
		if aggregate[i].AverageRank != aggregate[j].AverageRank {
			return aggregate[i].AverageRank < aggregate[j].AverageRank
		}
		if aggregate[i].RankingsCount != aggregate[j].RankingsCount {
			return aggregate[i].RankingsCount > aggregate[j].RankingsCount
		}
		return labelOrder[aggregate[i].Label] < labelOrder[aggregate[j].Label]
	})

	return aggregate
}

// GenerateConversationTitle generates a short title for a conversation.
// Uses the configured fast model to create a 3-5 word summary of the user's
// query. Returns the generated title or an error if generation fails.
func GenerateConversationTitle(ctx context.Context, userQuery string) (string, error) {
	titlePrompt := fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, userQuery)

	messages := []ChatMessage{
		{Role: "user", Content: titlePrompt},
	}

	response, err := QueryCouncilModel(ctx, TitleModel, messages, TitleGenTimeout)
	if err != nil {
		return "", fmt.Errorf("title generation failed: %w", err)
	}

	title := strings.TrimSpace(response.Content)

	// Clean up the title - remove quotes
	title = strings.Trim(title, "\"'")

	// Truncate if too long
	if len(title) > 50 {
		title = title[:47] + "..."
	}

	return title, nil
}
