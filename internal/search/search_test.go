package search

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// mockProvider is a simple test provider.
type mockProvider struct {
	name    string
	results []Result
	err     error
	queries []string
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Search(_ context.Context, q string, _ Options) ([]Result, error) {
	m.queries = append(m.queries, q)
	return m.results, m.err
}

func TestManagerSearch(t *testing.T) {
	mgr := NewManager("mock")
	mgr.Register(&mockProvider{
		name: "mock",
		results: []Result{
			{Title: "Test", URL: "https://example.com", Snippet: "A test result"},
		},
	})

	results, err := mgr.Search(context.Background(), "test", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Title != "Test" {
		t.Errorf("expected title 'Test', got %q", results[0].Title)
	}
}

func TestManagerUnconfigured(t *testing.T) {
	mgr := NewManager("missing")
	_, err := mgr.Search(context.Background(), "test", Options{})
	if err == nil {
		t.Fatal("expected error for missing provider")
	}
}

func TestManagerProviders(t *testing.T) {
	mgr := NewManager("b")
	mgr.Register(&mockProvider{name: "b"})
	mgr.Register(&mockProvider{name: "a"})
	if got := strings.Join(mgr.Providers(), ","); got != "a,b" {
		t.Errorf("Providers() = %q, want a,b", got)
	}
}

func TestFormatResults(t *testing.T) {
	results := []Result{
		{Title: "First", URL: "https://a.com", Snippet: strings.Repeat("é", 300)},
		{Title: "Second", URL: "https://b.com"},
	}
	out := FormatResults("go tests", results)

	if !strings.HasPrefix(out, `Web search results for "go tests":`) {
		t.Errorf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "1. First\n   "+strings.Repeat("é", 250)+"\n   URL: https://a.com") {
		t.Error("first result should carry a snippet cut to 250 runes")
	}
	if !strings.Contains(out, "2. Second\n   URL: https://b.com") {
		t.Error("second result should have no snippet line")
	}
}

func TestFormatResultsEmpty(t *testing.T) {
	out := FormatResults("nothing", nil)
	if out != `No web search results found for "nothing".` {
		t.Errorf("unexpected output %q", out)
	}
}

func TestMockProviderError(t *testing.T) {
	mgr := NewManager("mock")
	mgr.Register(&mockProvider{name: "mock", err: errors.New("down")})
	if _, err := mgr.Search(context.Background(), "q", Options{}); err == nil {
		t.Fatal("expected provider error")
	}
}
