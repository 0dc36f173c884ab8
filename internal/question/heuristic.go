// Package question generates research questions and topic summaries, with a
// deterministic heuristic fallback when no language model is available.
package question

import (
	"context"
	"fmt"
	"strings"
)

// Heuristic returns a deterministic list of template questions for a topic,
// capped at target. It is the degradation path when the primary generator is
// disabled or failing, so a research run never blocks on generator
// availability.
func Heuristic(topic string, target int) []string {
	seeds := []string{
		fmt.Sprintf("What are the core concepts of %s?", topic),
		fmt.Sprintf("How is %s used in practice?", topic),
		fmt.Sprintf("What are common misconceptions about %s?", topic),
		fmt.Sprintf("What tools and libraries support %s?", topic),
		fmt.Sprintf("What are the historical milestones of %s?", topic),
		fmt.Sprintf("What are the pros and cons of %s?", topic),
		fmt.Sprintf("How does %s compare to alternatives?", topic),
		fmt.Sprintf("What are the best resources to learn %s?", topic),
		fmt.Sprintf("What are advanced topics within %s?", topic),
		fmt.Sprintf("What are current trends related to %s?", topic),
		fmt.Sprintf("Explain %s for beginners.", topic),
		fmt.Sprintf("Explain %s for experts.", topic),
		fmt.Sprintf("Case studies about %s.", topic),
	}
	if target < 0 {
		target = 0
	}
	if target > len(seeds) {
		target = len(seeds)
	}
	return seeds[:target]
}

// HeuristicSummary builds a bullet summary from the first context lines.
func HeuristicSummary(topic, docContext string) string {
	var lines []string
	for _, l := range strings.Split(docContext, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if r := []rune(l); len(r) > 160 {
			l = string(r[:160])
		}
		lines = append(lines, l)
		if len(lines) == 20 {
			break
		}
	}
	if len(lines) == 0 {
		return fmt.Sprintf("Topic: %s\n(no stored content yet)", topic)
	}
	return fmt.Sprintf("Topic: %s\n- %s", topic, strings.Join(lines, "\n- "))
}

// HeuristicSource is a QuestionSource and Summarizer backed purely by the
// template lists above. It never errors.
type HeuristicSource struct{}

// Generate returns the heuristic question list; docContext is ignored.
func (HeuristicSource) Generate(_ context.Context, topic, _ string, target int) ([]string, error) {
	return Heuristic(topic, target), nil
}

// Summarize returns the heuristic bullet summary.
func (HeuristicSource) Summarize(_ context.Context, topic, docContext string) (string, error) {
	return HeuristicSummary(topic, docContext), nil
}
