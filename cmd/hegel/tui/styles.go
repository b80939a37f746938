package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("39")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	dangerColor  = lipgloss.Color("196")
	mutedColor   = lipgloss.Color("245")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(dangerColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
)
