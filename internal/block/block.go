// Package block implements the delimited-block extraction protocol: it scans
// assembled assistant text for :::mcq, :::artifact and :::research blocks,
// validates the decoded payloads, and splits the text into ordered prose and
// payload segments. Parsing never fails; malformed blocks land in an invalid
// bucket and disappear from the prose output.
package block

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/learnchat/learnchat/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SegmentKind identifies what a segment of a parsed message holds.
type SegmentKind string

const (
	SegmentProse    SegmentKind = "prose"
	SegmentItem     SegmentKind = "item"
	SegmentArtifact SegmentKind = "artifact"
	SegmentLink     SegmentKind = "link"
)

// Segment is one ordered piece of a parsed message. Exactly one of Text,
// Item, Artifact or LinkIndex is meaningful, per Kind.
type Segment struct {
	Kind      SegmentKind
	Text      string
	Item      *model.Item
	Artifact  *model.Artifact
	LinkIndex int
}

// Message is the result of running all three grammars over an assistant turn.
type Message struct {
	Segments      []Segment
	Items         []model.Item
	Artifacts     []model.Artifact
	Links         []model.ResearchLink
	InvalidBlocks []string
}

// ParseMessage applies the three grammars in their fixed order: mcq blocks
// are extracted from the raw text first, then artifact blocks from the prose
// that remains, then research links from what remains after that. The order
// is load-bearing: research syntax inside an artifact body must stay inside
// the artifact, so later passes only ever see prose remainders, never
// extracted payload bodies.
func ParseMessage(content string) Message {
	var msg Message

	for _, seg := range scanMCQ(content, &msg.Items, &msg.InvalidBlocks) {
		if seg.Kind != SegmentProse {
			msg.Segments = append(msg.Segments, seg)
			continue
		}
		for _, aseg := range scanArtifacts(seg.Text, &msg.Artifacts, &msg.InvalidBlocks) {
			if aseg.Kind != SegmentProse {
				msg.Segments = append(msg.Segments, aseg)
				continue
			}
			msg.Segments = append(msg.Segments, scanResearch(aseg.Text, &msg.Links)...)
		}
	}

	return msg
}

// Placeholder returns the token inserted into prose in place of the i-th
// research link. Indices are 0-based into the parsed link slice.
func Placeholder(i int) string {
	return fmt.Sprintf("[[RESEARCH_LINK:%d]]", i)
}
