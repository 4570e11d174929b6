package block

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/learnchat/learnchat/internal/model"
)

// artifactBlockRE matches :::artifact blocks: a {key="value" ...} header
// followed by the content body.
var artifactBlockRE = regexp.MustCompile(`(?s):::artifact\{([^}]+)\}\s*(.*?)\s*:::`)

// attrRE matches one key="value" pair inside a block header.
var attrRE = regexp.MustCompile(`(\w+)="([^"]*)"`)

// nowMS is swapped out in tests to make default artifact IDs predictable.
var nowMS = func() int64 { return time.Now().UnixMilli() }

// ArtifactResult holds the outcome of scanning one message for artifacts.
type ArtifactResult struct {
	Segments      []string
	Artifacts     []model.Artifact
	InvalidBlocks []string
}

// ParseArtifacts extracts all :::artifact blocks from content. Header
// attributes are order-insensitive and duplicate keys take the last value.
// Missing id, type and title fall back to a timestamp-derived id, "code"
// and "Untitled" respectively.
func ParseArtifacts(content string) ArtifactResult {
	res := ArtifactResult{}
	for _, seg := range scanArtifacts(content, &res.Artifacts, &res.InvalidBlocks) {
		if seg.Kind == SegmentProse {
			res.Segments = append(res.Segments, seg.Text)
		}
	}
	return res
}

// HasArtifacts reports whether content contains at least one artifact block.
func HasArtifacts(content string) bool {
	return artifactBlockRE.MatchString(content)
}

func scanArtifacts(content string, artifacts *[]model.Artifact, invalid *[]string) []Segment {
	var segs []Segment
	last := 0
	for _, m := range artifactBlockRE.FindAllStringSubmatchIndex(content, -1) {
		if before := strings.TrimSpace(content[last:m[0]]); before != "" {
			segs = append(segs, Segment{Kind: SegmentProse, Text: before})
		}

		attrs := parseAttrs(content[m[2]:m[3]])
		body := strings.TrimSpace(content[m[4]:m[5]])

		artifact := model.Artifact{
			ID:       attrs["id"],
			Type:     model.ArtifactType(attrs["type"]),
			Title:    attrs["title"],
			Language: attrs["language"],
			Content:  body,
		}
		if artifact.ID == "" {
			artifact.ID = fmt.Sprintf("artifact-%d", nowMS())
		}
		if artifact.Type == "" {
			artifact.Type = model.ArtifactCode
		}
		if artifact.Title == "" {
			artifact.Title = "Untitled"
		}

		if err := validate.Struct(artifact); err != nil {
			slog.Warn("dropping malformed artifact block", "error", err)
			*invalid = append(*invalid, body)
		} else {
			*artifacts = append(*artifacts, artifact)
			segs = append(segs, Segment{Kind: SegmentArtifact, Artifact: &artifact})
		}

		last = m[1]
	}
	if after := strings.TrimSpace(content[last:]); after != "" {
		segs = append(segs, Segment{Kind: SegmentProse, Text: after})
	}
	return segs
}

// parseAttrs decodes key="value" pairs from a block header. Last value wins
// on duplicate keys.
func parseAttrs(header string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRE.FindAllStringSubmatch(header, -1) {
		attrs[m[1]] = m[2]
	}
	return attrs
}
