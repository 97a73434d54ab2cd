package llm

import (
	"fmt"
	"strings"

	"labelbot/internal/domain"
)

func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if maxLen > 0 && len(r) > maxLen {
		return string(r[:maxLen]) + "..."
	}
	return s
}

func buildPrompts(cfg Config, items []Item, examples []Example, guide *LabelGuide) (string, string) {
	var labelLines strings.Builder
	for _, label := range domain.Labels {
		line := fmt.Sprintf("- %s: %s", label, label.DisplayName())
		if desc := guide.Description(label); desc != "" {
			line += " - " + desc
		}
		labelLines.WriteString(line + "\n")
	}

	systemPrompt := fmt.Sprintf(`You label instruction/output pairs from a question answering dataset.
Choose exactly one label for each item from:
%s
Set confidence between 0 and 1.

Respond with JSON only (no markdown):
[{"index": 12, "label": "policy", "confidence": 0.87}, ...]`, labelLines.String())

	exampleMaxLen := cfg.LLMExampleMaxLen
	examplesBlock := "none\n"
	if len(examples) > 0 {
		var b strings.Builder
		for _, ex := range examples {
			b.WriteString(fmt.Sprintf("- EX|%s|%s\n", ex.Label, truncate(ex.Text, exampleMaxLen)))
		}
		examplesBlock = b.String()
	}

	var itemLines strings.Builder
	for _, item := range items {
		itemLines.WriteString(fmt.Sprintf("INDEX:%d\nINSTRUCTION: %s\nOUTPUT: %s\n\n",
			item.Index, strings.TrimSpace(item.Instruction), strings.TrimSpace(item.Output)))
	}

	userPrompt := "Labeled examples:\n" + examplesBlock +
		"\nLabel these items:\n\n" + itemLines.String()
	return systemPrompt, userPrompt
}
