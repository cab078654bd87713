package retrieval

import (
	"strings"
	"testing"
)

func TestFormatResults_EmptyIsNoResultsMessage(t *testing.T) {
	got := FormatResults(nil)
	if got != "No relevant policy information found." {
		t.Fatalf("unexpected empty-result message: %q", got)
	}
	if got != FormatResults([]Result{}) {
		t.Fatal("nil and empty slices must format identically")
	}
}

func TestFormatResults_SingleResult(t *testing.T) {
	got := FormatResults([]Result{
		{Content: "Employees get 20 days leave.", Source: "hr_policy.pdf"},
	})
	want := "Content: Employees get 20 days leave.\nSource: hr_policy.pdf"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormatResults_MissingSourceDefaultsToUnknown(t *testing.T) {
	got := FormatResults([]Result{{Content: "Some excerpt."}})
	if !strings.Contains(got, "Source: Unknown") {
		t.Fatalf("expected Unknown source, got %q", got)
	}
}

func TestFormatResults_PreservesOrderWithSeparator(t *testing.T) {
	got := FormatResults([]Result{
		{Content: "First excerpt.", Source: "a.pdf"},
		{Content: "Second excerpt.", Source: "b.pdf"},
		{Content: "Third excerpt.", Source: "c.pdf"},
	})

	blocks := strings.Split(got, "\n\n---\n\n")
	if len(blocks) != 3 {
		t.Fatalf("expected 3 separated blocks, got %d: %q", len(blocks), got)
	}
	wantOrder := []string{"a.pdf", "b.pdf", "c.pdf"}
	for i, source := range wantOrder {
		if !strings.Contains(blocks[i], "Source: "+source) {
			t.Fatalf("block %d out of retrieval order: %q", i, blocks[i])
		}
	}
}
