package graph

import (
	"strings"
	"testing"
)

func newTestAssembler(t *testing.T, budget int) *Assembler {
	t.Helper()
	a, err := NewWordAssembler(budget)
	if err != nil {
		t.Fatalf("NewWordAssembler(%d): %v", budget, err)
	}
	return a
}

func TestAssemblerRejectsNonPositiveBudget(t *testing.T) {
	if _, err := NewWordAssembler(0); err == nil {
		t.Fatal("expected error for zero budget")
	}
	if _, err := NewWordAssembler(-5); err == nil {
		t.Fatal("expected error for negative budget")
	}
}

func TestAssemblerEmptyText(t *testing.T) {
	a := newTestAssembler(t, 10)
	if _, err := a.Assemble("   \n\t  "); err == nil {
		t.Fatal("expected validation error for blank text")
	}
}

func TestAssemblerWithinBudget(t *testing.T) {
	a := newTestAssembler(t, 10)
	assembly, err := a.Assemble("Alice met Bob in Paris.")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if assembly.Truncated {
		t.Error("text within budget must not be truncated")
	}
	if len(assembly.Segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(assembly.Segments))
	}
	if got := assembly.Prompt(); got != "Alice met Bob in Paris." {
		t.Errorf("Prompt() = %q", got)
	}
	if assembly.Tokens != 5 {
		t.Errorf("Tokens = %d, want 5", assembly.Tokens)
	}
}

func TestAssemblerTruncatesOnSentenceBoundaries(t *testing.T) {
	a := newTestAssembler(t, 6)
	text := "Alice met Bob in Paris. They visited the Louvre together yesterday. Bob flew home."
	assembly, err := a.Assemble(text)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !assembly.Truncated {
		t.Fatal("over-budget text must be marked truncated")
	}
	if len(assembly.Segments) < 2 {
		t.Fatalf("segments = %d, want at least 2", len(assembly.Segments))
	}
	for i, segment := range assembly.Segments {
		if n := len(strings.Fields(segment)); n > 6 {
			t.Errorf("segment %d has %d tokens, budget is 6: %q", i, n, segment)
		}
	}
	if !strings.HasPrefix(assembly.Prompt(), "Alice met Bob") {
		t.Errorf("prompt must start with the first sentence, got %q", assembly.Prompt())
	}
}

func TestAssemblerHardCutsOversizedSentence(t *testing.T) {
	a := newTestAssembler(t, 3)
	// One sentence, no boundary to split on.
	assembly, err := a.Assemble("one two three four five six seven")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !assembly.Truncated {
		t.Fatal("expected truncation")
	}
	for i, segment := range assembly.Segments {
		if n := len(strings.Fields(segment)); n > 3 {
			t.Errorf("segment %d has %d tokens, budget is 3", i, n)
		}
	}
	joined := strings.Join(assembly.Segments, " ")
	if joined != "one two three four five six seven" {
		t.Errorf("hard cut lost content: %q", joined)
	}
}
