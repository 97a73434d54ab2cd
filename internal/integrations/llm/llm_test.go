package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"labelbot/internal/domain"
)

func TestLLMBatchConcurrencyLimit(t *testing.T) {
	tests := []struct {
		total int
		want  int
	}{
		{total: 0, want: 1},
		{total: 1, want: 1},
		{total: 2, want: 2},
		{total: 4, want: 4},
		{total: 10, want: 4},
	}
	for _, tt := range tests {
		if got := llmBatchConcurrencyLimit(tt.total); got != tt.want {
			t.Fatalf("llmBatchConcurrencyLimit(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestParseSuggestionResponse(t *testing.T) {
	response := "```json\n" + `[
		{"index": 3, "label": "policy", "confidence": 0.8},
		{"index": 4, "label": "전문용어", "confidence": 1.4},
		{"index": 5, "label": "opinion", "confidence": 0.9},
		{"index": 6, "label": "", "confidence": 0.9}
	]` + "\n```"

	got, err := parseSuggestionResponse(response)
	if err != nil {
		t.Fatalf("parseSuggestionResponse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %d: %+v", len(got), got)
	}
	if got[3].Label != domain.LabelPolicy || got[3].Confidence != 0.8 {
		t.Fatalf("unexpected suggestion for 3: %+v", got[3])
	}
	if got[4].Label != domain.LabelTerminology || got[4].Confidence != 1 {
		t.Fatalf("expected alias label and clamped confidence, got %+v", got[4])
	}

	if _, err := parseSuggestionResponse("not json"); err == nil {
		t.Fatal("expected error for malformed response")
	}
}

func TestApplyGuideOverrides(t *testing.T) {
	guide := &LabelGuide{
		Terms: []GuideTerm{
			{Phrase: "Unknown Label Phrase", Label: "opinion"},
			{Phrase: "시행령", Label: "정책"},
		},
	}
	items := []Item{
		{Index: 1, Instruction: "개정 시행령의 적용 대상은?", Output: "..."},
		{Index: 2, Instruction: "unrelated", Output: "text"},
	}
	suggestions := map[int]Suggestion{
		1: {Label: domain.LabelTerminology, Confidence: 0.2},
		2: {Label: domain.LabelNotApplicable, Confidence: 0.6},
	}

	applyGuideOverrides(items, suggestions, guide)

	if got := suggestions[1]; got.Label != domain.LabelPolicy || got.Confidence < 0.99 || !got.FromGuide {
		t.Fatalf("expected guide to override item 1, got %+v", got)
	}
	if got := suggestions[2]; got.Label != domain.LabelNotApplicable || got.FromGuide {
		t.Fatalf("item 2 should be untouched, got %+v", got)
	}
}

func TestBuildPrompts_UsesExampleLimitsAndGuide(t *testing.T) {
	cfg := Config{LLMExampleCount: 1, LLMExampleMaxLen: 10}
	guide := &LabelGuide{Descriptions: map[string]string{"terminology": "asks what a term means"}}
	items := []Item{{Index: 7, Instruction: "What is a writ?", Output: "A formal order."}}
	examples := []Example{{Text: "123456789012345", Label: domain.LabelPolicy}}

	systemPrompt, userPrompt := buildPrompts(cfg, items, examples, guide)
	if !strings.Contains(systemPrompt, " - asks what a term means") {
		t.Fatalf("expected guide description in system prompt: %s", systemPrompt)
	}
	if !strings.Contains(userPrompt, "EX|policy|1234567890...") {
		t.Fatalf("expected truncated example, prompt=%s", userPrompt)
	}
	if !strings.Contains(userPrompt, "INDEX:7") {
		t.Fatalf("expected item index in prompt, prompt=%s", userPrompt)
	}
}

func TestSuggestWithBatchesAndSumsUsage(t *testing.T) {
	cfg := Config{LLMBatchSize: 2, LLMExampleCount: 5, LLMExampleMaxLen: 100}
	items := []Item{
		{Index: 0, Instruction: "a"}, {Index: 1, Instruction: "b"},
		{Index: 2, Instruction: "c"}, {Index: 3, Instruction: "d"},
		{Index: 4, Instruction: "e"},
	}
	var mu sync.Mutex
	calls := 0
	fake := func(_ context.Context, _, user string) (string, Usage, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		var parts []string
		for _, item := range items {
			if strings.Contains(user, fmt.Sprintf("INDEX:%d\n", item.Index)) {
				parts = append(parts, fmt.Sprintf(`{"index": %d, "label": "policy", "confidence": 0.5}`, item.Index))
			}
		}
		return "[" + strings.Join(parts, ",") + "]", Usage{InputTokens: 10, OutputTokens: 2}, nil
	}

	got, usage, err := suggestWith(context.Background(), cfg, items, nil, nil, fake)
	if err != nil {
		t.Fatalf("suggestWith: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 batches, got %d", calls)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 suggestions, got %d", len(got))
	}
	if usage.TotalTokens() != 36 {
		t.Fatalf("expected summed usage 36, got %d", usage.TotalTokens())
	}
}

func TestSuggestWithPropagatesErrors(t *testing.T) {
	boom := errors.New("rate limited")
	fake := func(context.Context, string, string) (string, Usage, error) {
		return "", Usage{InputTokens: 1}, boom
	}
	_, _, err := suggestWith(context.Background(), Config{LLMBatchSize: 1}, []Item{{Index: 0}}, nil, nil, fake)
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestSuggestLabelsDisabled(t *testing.T) {
	_, _, err := SuggestLabels(context.Background(), Config{LLMProvider: "none"}, []Item{{Index: 0}}, nil)
	if err == nil {
		t.Fatal("expected error when provider is none")
	}
}

func TestCallOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"[]"}}],"usage":{"prompt_tokens":7,"completion_tokens":3}}`))
	}))
	defer srv.Close()

	original := openAIEndpoint
	openAIEndpoint = srv.URL
	t.Cleanup(func() { openAIEndpoint = original })

	text, usage, err := callOpenAI(context.Background(), "sk-test", "gpt-test", "sys", "user")
	if err != nil {
		t.Fatalf("callOpenAI: %v", err)
	}
	if text != "[]" || usage.InputTokens != 7 || usage.OutputTokens != 3 {
		t.Fatalf("unexpected response text=%q usage=%+v", text, usage)
	}
}

func TestAppendGuideTerm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.yaml")
	if err := AppendGuideTerm(path, "시행령", domain.LabelPolicy); err != nil {
		t.Fatalf("AppendGuideTerm: %v", err)
	}
	if err := AppendGuideTerm(path, " 시행령 ", domain.LabelTerminology); err != nil {
		t.Fatalf("AppendGuideTerm duplicate: %v", err)
	}
	if err := AppendGuideTerm(path, "x", domain.LabelUnset); err == nil {
		t.Fatal("expected error for unset label")
	}

	guide, err := LoadLabelGuide(path)
	if err != nil {
		t.Fatalf("LoadLabelGuide: %v", err)
	}
	if len(guide.Terms) != 1 || guide.Terms[0].Label != "policy" {
		t.Fatalf("unexpected guide terms: %+v", guide.Terms)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("guide file missing: %v", err)
	}
}
