package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/killallgit/skillstream/pkg/logger"
)

const defaultWrap = 100

// MarkdownRenderer renders finished replies with glamour
type MarkdownRenderer struct {
	renderer *glamour.TermRenderer
}

// NewMarkdownRenderer builds a renderer for style ("auto", "dark", "light",
// "notty", ...) wrapping at width columns
func NewMarkdownRenderer(style string, width int) (*MarkdownRenderer, error) {
	if width <= 0 {
		width = defaultWrap
	}

	styleOpt := glamour.WithStylePath(style)
	if style == "" || style == "auto" {
		styleOpt = glamour.WithAutoStyle()
	}

	renderer, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &MarkdownRenderer{renderer: renderer}, nil
}

// Render returns content as terminal markdown, or content unchanged when
// rendering fails
func (r *MarkdownRenderer) Render(content string) string {
	rendered, err := r.renderer.Render(content)
	if err != nil {
		logger.Warn("Failed to render markdown: %v", err)
		return content
	}
	return strings.TrimRight(rendered, "\n") + "\n"
}
