package llm

import (
	"testing"

	"labelbot/internal/domain"
)

func TestTokenizeKeepsHangulWords(t *testing.T) {
	got := tokenize("세금 신고, 기한은? (2024)")
	want := []string{"세금", "신고", "기한은", "2024"}
	if len(got) != len(want) {
		t.Fatalf("tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokenize = %v, want %v", got, want)
		}
	}
}

func TestTFIDFTopKForBatch(t *testing.T) {
	examples := []Example{
		{Text: "tax filing deadline for residents", Label: domain.LabelAdministrativeProcedure},
		{Text: "definition of the term easement", Label: domain.LabelTerminology},
		{Text: "new housing subsidy policy announced", Label: domain.LabelPolicy},
	}
	idx := buildTFIDFIndex(examples)

	got := idx.topKForBatch([]string{"what does easement mean"}, 2)
	if len(got) != 1 || got[0].Label != domain.LabelTerminology {
		t.Fatalf("expected only the easement example, got %+v", got)
	}

	got = idx.topKForBatch([]string{"tax deadline", "subsidy policy"}, 5)
	if len(got) != 2 {
		t.Fatalf("expected two distinct examples, got %+v", got)
	}
	if idx.topKForBatch([]string{"nothing matches"}, 3) != nil {
		t.Fatal("expected no examples for unrelated query")
	}
}

func TestExamplesFromSamples(t *testing.T) {
	samples := []domain.Sample{{Instruction: "q1", Output: "a1"}, {Instruction: "q2", Output: "a2"}}
	got := ExamplesFromSamples(samples, []domain.Label{domain.LabelPolicy, domain.LabelUnset})
	if len(got) != 1 || got[0].Text != "q1 a1" {
		t.Fatalf("unexpected examples: %+v", got)
	}
}
