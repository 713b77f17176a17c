package chat

import "regexp"

var (
	doubleBracketOpen  = regexp.MustCompile(`\[\[[cC]itation`)
	doubleBracketClose = regexp.MustCompile(`[cC]itation:(\d+)\]\]`)
	citationMarker     = regexp.MustCompile(`\[[cC]itation:(\d+)\]`)
)

// NormalizeCitations rewrites the citation markers models emit
// ([[citation:1]], [Citation:1]) into markdown links of the form
// [citation](1). Markers already followed by a link target are left alone, so
// the function is idempotent and safe to run on every streamed update.
func NormalizeCitations(content string) string {
	if content == "" {
		return content
	}

	content = doubleBracketOpen.ReplaceAllString(content, "[citation")
	content = doubleBracketClose.ReplaceAllString(content, "citation:$1]")

	matches := citationMarker.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content
	}

	out := make([]byte, 0, len(content)+len(matches)*2)
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if end < len(content) && content[end] == '(' {
			continue
		}
		out = append(out, content[last:start]...)
		out = append(out, "[citation]("...)
		out = append(out, content[m[2]:m[3]]...)
		out = append(out, ')')
		last = end
	}
	out = append(out, content[last:]...)
	return string(out)
}
