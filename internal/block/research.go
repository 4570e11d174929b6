package block

import (
	"regexp"

	"github.com/learnchat/learnchat/internal/model"
)

// researchLinkRE matches single-line :::research{...}::: inline links.
var researchLinkRE = regexp.MustCompile(`:::research\{([^}]+)\}:::`)

// placeholderRE matches the tokens ParseResearchLinks substitutes for links.
// Renderers use it to resolve placeholders back to the link slice by index.
var placeholderRE = regexp.MustCompile(`\[\[RESEARCH_LINK:(\d+)\]\]`)

// ResearchResult holds the outcome of scanning one message for inline links.
// Unlike the block grammars, prose segments keep their whitespace: links are
// inline and the surrounding text must re-render byte for byte.
type ResearchResult struct {
	Segments []string
	Links    []model.ResearchLink
}

// ParseResearchLinks extracts all inline research links from content. Each
// extracted link is replaced in the segment stream by a positional
// placeholder token, so the i-th placeholder always resolves to Links[i].
// Links with an empty term are silently dropped, placeholder and all.
func ParseResearchLinks(content string) ResearchResult {
	res := ResearchResult{}
	for _, seg := range scanResearch(content, &res.Links) {
		switch seg.Kind {
		case SegmentProse:
			res.Segments = append(res.Segments, seg.Text)
		case SegmentLink:
			res.Segments = append(res.Segments, Placeholder(seg.LinkIndex))
		}
	}
	return res
}

// HasResearchLinks reports whether content contains at least one link.
func HasResearchLinks(content string) bool {
	return researchLinkRE.MatchString(content)
}

// PlaceholderCount returns how many link placeholders the prose contains.
func PlaceholderCount(prose string) int {
	return len(placeholderRE.FindAllString(prose, -1))
}

func scanResearch(content string, links *[]model.ResearchLink) []Segment {
	var segs []Segment
	last := 0
	for _, m := range researchLinkRE.FindAllStringSubmatchIndex(content, -1) {
		if before := content[last:m[0]]; before != "" {
			segs = append(segs, Segment{Kind: SegmentProse, Text: before})
		}

		attrs := parseAttrs(content[m[2]:m[3]])
		link := model.ResearchLink{
			Term:    attrs["term"],
			Display: attrs["display"],
			URL:     attrs["url"],
		}
		if link.Display == "" {
			link.Display = link.Term
		}

		// Inline links have no invalid bucket: a link without a term
		// just vanishes from the prose.
		if err := validate.Struct(link); err == nil {
			*links = append(*links, link)
			segs = append(segs, Segment{Kind: SegmentLink, LinkIndex: len(*links) - 1})
		}

		last = m[1]
	}
	if after := content[last:]; after != "" {
		segs = append(segs, Segment{Kind: SegmentProse, Text: after})
	}
	return segs
}
