package ui

import "github.com/charmbracelet/lipgloss"

// Palette: a single teal accent over grays.
const (
	ColorAccent    = "37"  // #00AFAF
	ColorAccentDim = "30"  // inactive stages and borders
	ColorGray      = "245" // labels
	ColorDarkGray  = "238" // separators
	ColorRed       = "196"
	ColorYellow    = "220"
)

// Styles holds the lipgloss styles used by the renderers.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Active  lipgloss.Style
	Label   lipgloss.Style
	Border  lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Active:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Border:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentDim)),
	}
}

// NoColorStyles returns unstyled components.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:  plain,
		Success: plain,
		Warning: plain,
		Error:   plain,
		Dim:     plain,
		Active:  plain,
		Label:   plain,
		Border:  plain,
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
