package main

import "github.com/charmbracelet/lipgloss"

var (
	brandGreen = lipgloss.Color("#1B7F5C")
	brandGold  = lipgloss.Color("#C9A227")
	inkDark    = lipgloss.Color("#13343B")
	inkLight   = lipgloss.Color("#F5F5F5")
	mutedGray  = lipgloss.Color("#8A8F98")
	errorRed   = lipgloss.Color("#E53935")
	infoBlue   = lipgloss.Color("#2196F3")
)

type styles struct {
	Header    lipgloss.Style
	Mode      lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Label     lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Info      lipgloss.Style
	Panel     lipgloss.Style
}

func newStyles(dark bool) styles {
	fg := inkDark
	if dark {
		fg = inkLight
	}

	return styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(brandGreen),
		Mode:      lipgloss.NewStyle().Foreground(brandGold).Bold(true),
		User:      lipgloss.NewStyle().Foreground(fg),
		Assistant: lipgloss.NewStyle().Foreground(brandGreen),
		Label:     lipgloss.NewStyle().Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(mutedGray),
		Success:   lipgloss.NewStyle().Foreground(brandGreen),
		Error:     lipgloss.NewStyle().Foreground(errorRed),
		Info:      lipgloss.NewStyle().Foreground(infoBlue),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(brandGold).
			Padding(0, 1),
	}
}
