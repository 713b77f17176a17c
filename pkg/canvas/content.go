// Package canvas holds the document-editing collaborators fed by streamed
// replies: extraction of the tagged canvas region, the editor event bus, the
// AI-editing flag and the intent result store.
package canvas

import (
	"regexp"
	"strings"
)

const closeTag = "</reflyCanvas>"

var (
	openTagPattern = regexp.MustCompile(`<reflyCanvas[^>]*>`)
	markupPattern  = regexp.MustCompile(`</?reflyCanvas[^>]*>`)
	escapedMarkup  = strings.NewReplacer(
		"&lt;/reflyCanvas&gt;", "",
		"&lt;reflyCanvas&gt;", "",
		"&lt;/reflyCanvas", "",
	)
)

// HasOpenTag reports whether content contains a canvas open tag
func HasOpenTag(content string) bool {
	return openTagPattern.MatchString(content)
}

// HasCloseTag reports whether content contains the canvas close tag
func HasCloseTag(content string) bool {
	return strings.Contains(content, closeTag)
}

// ExtractContent returns the text inside the first canvas region. While the
// region is still streaming, everything after the open tag is returned except
// a trailing fragment of the close tag.
func ExtractContent(content string) string {
	loc := openTagPattern.FindStringIndex(content)
	if loc == nil {
		return ""
	}
	inner := content[loc[1]:]
	if i := strings.Index(inner, closeTag); i >= 0 {
		return inner[:i]
	}
	return trimPartialClose(inner)
}

func trimPartialClose(s string) string {
	n := len(closeTag) - 1
	if n > len(s) {
		n = len(s)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(s, closeTag[:n]) {
			return s[:len(s)-n]
		}
	}
	return s
}

// Delta returns the canvas text added between prev and cur, with any
// delimiter markup (raw or entity-escaped) removed.
func Delta(prev, cur string) string {
	before := ExtractContent(prev)
	after := ExtractContent(cur)
	if len(after) <= len(before) {
		return ""
	}
	return Clean(after[len(before):])
}

// Clean strips canvas delimiter markup from s
func Clean(s string) string {
	if s == "" {
		return s
	}
	s = markupPattern.ReplaceAllString(s, "")
	return escapedMarkup.Replace(s)
}
