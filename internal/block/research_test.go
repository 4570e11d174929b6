package block

import (
	"reflect"
	"strings"
	"testing"

	"github.com/learnchat/learnchat/internal/model"
)

func TestParseResearchLinksBasic(t *testing.T) {
	content := `I'll use :::research{term="react-query" display="React Query" url="https://tanstack.com/query"}::: for data fetching.`

	res := ParseResearchLinks(content)

	if len(res.Links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(res.Links))
	}
	want := model.ResearchLink{Term: "react-query", Display: "React Query", URL: "https://tanstack.com/query"}
	if !reflect.DeepEqual(res.Links[0], want) {
		t.Errorf("link = %+v, want %+v", res.Links[0], want)
	}

	wantSegs := []string{"I'll use ", "[[RESEARCH_LINK:0]]", " for data fetching."}
	if !reflect.DeepEqual(res.Segments, wantSegs) {
		t.Errorf("segments = %q, want %q", res.Segments, wantSegs)
	}
}

func TestParseResearchLinksDisplayDefaultsToTerm(t *testing.T) {
	res := ParseResearchLinks(`:::research{term="zustand"}:::`)
	if len(res.Links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(res.Links))
	}
	if res.Links[0].Display != "zustand" {
		t.Errorf("display = %q, want term fallback", res.Links[0].Display)
	}
}

func TestParseResearchLinksEmptyTermDropped(t *testing.T) {
	res := ParseResearchLinks(`before :::research{display="Nameless"}::: after`)

	if len(res.Links) != 0 {
		t.Fatalf("expected no links, got %+v", res.Links)
	}
	joined := strings.Join(res.Segments, "")
	if strings.Contains(joined, "research") || strings.Contains(joined, "RESEARCH_LINK") {
		t.Errorf("dropped link leaked into prose: %q", joined)
	}
	if joined != "before  after" {
		t.Errorf("prose = %q", joined)
	}
}

func TestParseResearchLinksPlaceholderConsistency(t *testing.T) {
	content := `Use :::research{term="react"}::: and :::research{term="vite"}::: plus :::research{term="vitest"}:::.`

	res := ParseResearchLinks(content)

	if len(res.Links) != 3 {
		t.Fatalf("expected 3 links, got %d", len(res.Links))
	}
	prose := strings.Join(res.Segments, "")
	if got := PlaceholderCount(prose); got != len(res.Links) {
		t.Errorf("placeholder count = %d, links = %d", got, len(res.Links))
	}
	for i := range res.Links {
		if !strings.Contains(prose, Placeholder(i)) {
			t.Errorf("missing placeholder %d in %q", i, prose)
		}
	}
	// Indices must be sequential from zero, so index == position in Links.
	if !strings.Contains(prose, "[[RESEARCH_LINK:0]]") || strings.Contains(prose, "[[RESEARCH_LINK:3]]") {
		t.Errorf("placeholder indices not 0-based sequential: %q", prose)
	}
}

func TestParseResearchLinksSegmentsKeepWhitespace(t *testing.T) {
	res := ParseResearchLinks("  padded  ")
	if !reflect.DeepEqual(res.Segments, []string{"  padded  "}) {
		t.Errorf("segments = %q, whitespace must survive the inline pass", res.Segments)
	}
}

func TestParseResearchLinksNone(t *testing.T) {
	res := ParseResearchLinks("no links at all")
	if len(res.Links) != 0 {
		t.Fatalf("expected no links, got %+v", res.Links)
	}
	if !reflect.DeepEqual(res.Segments, []string{"no links at all"}) {
		t.Errorf("segments = %q", res.Segments)
	}
	if HasResearchLinks("no links at all") {
		t.Error("HasResearchLinks() = true for plain text")
	}
}
