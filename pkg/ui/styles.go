package ui

import "github.com/charmbracelet/lipgloss"

var (
	docStyle         = lipgloss.NewStyle().Margin(1, 2)
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("62")).Padding(0, 1)
	helpStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	placeholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true).PaddingTop(1).PaddingLeft(2)
	viewportStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62"))
	userStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	botStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	timestampStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF"))
	messageStyle     = lipgloss.NewStyle().PaddingLeft(2)
	typingStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF")).Italic(true)
	spinnerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
)
