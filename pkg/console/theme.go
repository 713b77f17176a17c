package console

import (
	"github.com/charmbracelet/lipgloss"
)

// Autumn base16 palette
var (
	ColorBase03 = lipgloss.Color("#5c5044")
	ColorBase05 = lipgloss.Color("#ab937b")
	ColorBase07 = lipgloss.Color("#f5d7b9")

	ColorRed    = lipgloss.Color("#d95f5f")
	ColorOrange = lipgloss.Color("#eb8755")
	ColorYellow = lipgloss.Color("#f5b761")
	ColorGreen  = lipgloss.Color("#93b56b")
	ColorCyan   = lipgloss.Color("#61afaf")
	ColorPurple = lipgloss.Color("#976bb5")

	ColorMuted = ColorBase03
	ColorError = ColorRed
	ColorInfo  = ColorCyan
)

// Styles are the lipgloss styles used for terminal output
type Styles struct {
	Question  lipgloss.Style
	Reply     lipgloss.Style
	SkillName lipgloss.Style
	Log       lipgloss.Style
	Usage     lipgloss.Style
	Error     lipgloss.Style
	Status    lipgloss.Style
}

// DefaultStyles returns the default styles
func DefaultStyles() *Styles {
	return &Styles{
		Question: lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true),
		Reply: lipgloss.NewStyle().
			Foreground(ColorBase07),
		SkillName: lipgloss.NewStyle().
			Foreground(ColorPurple).
			Bold(true),
		Log: lipgloss.NewStyle().
			Foreground(ColorMuted).
			Italic(true),
		Usage: lipgloss.NewStyle().
			Foreground(ColorInfo),
		Error: lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true),
		Status: lipgloss.NewStyle().
			Foreground(ColorBase05),
	}
}
