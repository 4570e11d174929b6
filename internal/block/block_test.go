package block

import (
	"strings"
	"testing"
)

func TestParseMessageAppliesGrammarsInOrder(t *testing.T) {
	content := `Plan:
- :::research{term="react" display="React 18" url="https://react.dev"}::: for the UI

:::mcq
{"id":"q1","topic":"react-hooks","difficulty":"medium","stem":"What does useState return?","options":[{"id":"A","text":"a value"},{"id":"B","text":"a tuple of value and setter"},{"id":"C","text":"a setter"},{"id":"D","text":"a ref"}],"correct":"B","feedback":{"correct":"Right","incorrect":"Not quite","explanation":"useState returns [value, setter]"}}
:::

:::artifact{id="demo" type="react" title="Demo"}
function App() { return <p>See research{term="hidden"} inside</p>; }
:::

Done.`

	msg := ParseMessage(content)

	if len(msg.Items) != 1 || msg.Items[0].ID != "q1" {
		t.Fatalf("items = %+v", msg.Items)
	}
	if len(msg.Artifacts) != 1 || msg.Artifacts[0].ID != "demo" {
		t.Fatalf("artifacts = %+v", msg.Artifacts)
	}

	// Link-shaped text inside the artifact body must NOT be extracted:
	// later grammars only see prose remainders, never payload bodies.
	if len(msg.Links) != 1 {
		t.Fatalf("expected exactly 1 link, got %+v", msg.Links)
	}
	if msg.Links[0].Term != "react" {
		t.Errorf("link term = %q, want react", msg.Links[0].Term)
	}
	if !strings.Contains(msg.Artifacts[0].Content, `research{term="hidden"}`) {
		t.Errorf("artifact body lost its inline text: %q", msg.Artifacts[0].Content)
	}
}

func TestParseMessageSegmentOrder(t *testing.T) {
	content := `intro :::research{term="vite"}::: outro
:::artifact{id="a1" type="code" title="Snip"}
x := 1
:::
tail`

	msg := ParseMessage(content)

	var kinds []SegmentKind
	for _, seg := range msg.Segments {
		kinds = append(kinds, seg.Kind)
	}
	want := []SegmentKind{SegmentProse, SegmentLink, SegmentProse, SegmentArtifact, SegmentProse}
	if len(kinds) != len(want) {
		t.Fatalf("segment kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("segment kinds = %v, want %v", kinds, want)
		}
	}

	if msg.Segments[1].LinkIndex != 0 {
		t.Errorf("link segment index = %d, want 0", msg.Segments[1].LinkIndex)
	}
	if msg.Segments[3].Artifact == nil || msg.Segments[3].Artifact.ID != "a1" {
		t.Errorf("artifact segment = %+v", msg.Segments[3])
	}
}

func TestParseMessagePlainText(t *testing.T) {
	msg := ParseMessage("nothing special here")
	if len(msg.Segments) != 1 || msg.Segments[0].Kind != SegmentProse {
		t.Fatalf("segments = %+v", msg.Segments)
	}
	if len(msg.Items)+len(msg.Artifacts)+len(msg.Links)+len(msg.InvalidBlocks) != 0 {
		t.Errorf("extracted payloads from plain text: %+v", msg)
	}
}

func TestParseMessageLinkIndicesGlobal(t *testing.T) {
	content := `first :::research{term="a"}::: then
:::artifact{id="x" type="code" title="T"}
body
:::
and :::research{term="b"}::: last`

	msg := ParseMessage(content)

	if len(msg.Links) != 2 {
		t.Fatalf("links = %+v", msg.Links)
	}
	var linkIdx []int
	for _, seg := range msg.Segments {
		if seg.Kind == SegmentLink {
			linkIdx = append(linkIdx, seg.LinkIndex)
		}
	}
	if len(linkIdx) != 2 || linkIdx[0] != 0 || linkIdx[1] != 1 {
		t.Errorf("link indices = %v, want [0 1]", linkIdx)
	}
	if msg.Links[0].Term != "a" || msg.Links[1].Term != "b" {
		t.Errorf("links out of order: %+v", msg.Links)
	}
}
