package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles of the board. All colors are ANSI
// 256-color codes.
type Styles struct {
	Title    lipgloss.Style
	Status   lipgloss.Style
	Faint    lipgloss.Style
	Error    lipgloss.Style
	Notice   lipgloss.Style
	Block    lipgloss.Style
	Cell     lipgloss.Style
	Marked   lipgloss.Style
	Empty    lipgloss.Style
	Complete lipgloss.Style
	Banner   lipgloss.Style
	Prompt   lipgloss.Style
}

// DefaultStyles is the built-in dark-terminal scheme.
var DefaultStyles = Styles{
	Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
	Status:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	Faint:    lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
	Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	Notice:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	Block:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1),
	Cell:     lipgloss.NewStyle().Width(4).Align(lipgloss.Center).Foreground(lipgloss.Color("252")),
	Marked:   lipgloss.NewStyle().Width(4).Align(lipgloss.Center).Bold(true).Foreground(lipgloss.Color("16")).Background(lipgloss.Color("220")),
	Empty:    lipgloss.NewStyle().Width(4).Align(lipgloss.Center).Foreground(lipgloss.Color("237")),
	Complete: lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
	Banner:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("16")).Background(lipgloss.Color("46")).Padding(0, 2),
	Prompt:   lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
}
