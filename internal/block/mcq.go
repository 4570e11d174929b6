package block

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/learnchat/learnchat/internal/model"
)

// mcqBlockRE matches :::mcq blocks and captures the JSON payload between the
// delimiters. An unterminated opener simply never matches and stays prose.
var mcqBlockRE = regexp.MustCompile(`(?s):::mcq\s*(.*?)\s*:::`)

// MCQResult holds the outcome of scanning one message for question blocks.
type MCQResult struct {
	// Segments are the trimmed prose pieces between blocks, in input order.
	Segments []string
	// Items are the validated question items, in input order.
	Items []model.Item
	// InvalidBlocks holds the raw payloads that failed to decode or
	// validate, kept for diagnostics only.
	InvalidBlocks []string
}

// ParseMCQ extracts all :::mcq blocks from content. Malformed blocks are
// dropped from both the item list and the prose output.
func ParseMCQ(content string) MCQResult {
	res := MCQResult{}
	for _, seg := range scanMCQ(content, &res.Items, &res.InvalidBlocks) {
		if seg.Kind == SegmentProse {
			res.Segments = append(res.Segments, seg.Text)
		}
	}
	return res
}

// HasMCQ reports whether content contains at least one question block.
func HasMCQ(content string) bool {
	return mcqBlockRE.MatchString(content)
}

func scanMCQ(content string, items *[]model.Item, invalid *[]string) []Segment {
	var segs []Segment
	last := 0
	for _, m := range mcqBlockRE.FindAllStringSubmatchIndex(content, -1) {
		if before := strings.TrimSpace(content[last:m[0]]); before != "" {
			segs = append(segs, Segment{Kind: SegmentProse, Text: before})
		}

		payload := strings.TrimSpace(content[m[2]:m[3]])
		item, err := decodeItem(payload)
		if err != nil {
			slog.Warn("dropping malformed mcq block", "error", err)
			*invalid = append(*invalid, payload)
		} else {
			*items = append(*items, item)
			segs = append(segs, Segment{Kind: SegmentItem, Item: &item})
		}

		last = m[1]
	}
	if after := strings.TrimSpace(content[last:]); after != "" {
		segs = append(segs, Segment{Kind: SegmentProse, Text: after})
	}
	return segs
}

// decodeItem parses and validates one question payload. The check that
// Correct names an existing option is layered on top of the schema: the
// schema alone cannot express the reference.
func decodeItem(payload string) (model.Item, error) {
	var item model.Item
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return model.Item{}, fmt.Errorf("decode item JSON: %w", err)
	}
	if err := validate.Struct(item); err != nil {
		return model.Item{}, fmt.Errorf("validate item: %w", err)
	}
	for _, opt := range item.Options {
		if opt.ID == item.Correct {
			return item, nil
		}
	}
	return model.Item{}, fmt.Errorf("correct answer %q does not reference an option", item.Correct)
}
