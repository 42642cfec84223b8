package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	gruvboxBg0    = lipgloss.Color("#282828")
	gruvboxBg1    = lipgloss.Color("#3c3836")
	gruvboxBg2    = lipgloss.Color("#504945")
	gruvboxFg0    = lipgloss.Color("#fbf1c7")
	gruvboxFg1    = lipgloss.Color("#ebdbb2")
	gruvboxFg2    = lipgloss.Color("#d5c4a1")
	gruvboxRed    = lipgloss.Color("#fb4934")
	gruvboxGreen  = lipgloss.Color("#b8bb26")
	gruvboxYellow = lipgloss.Color("#fabd2f")
	gruvboxBlue   = lipgloss.Color("#83a598")
	gruvboxAqua   = lipgloss.Color("#8ec07c")
	gruvboxOrange = lipgloss.Color("#fe8019")
)

// Styles
var (
	// Header styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(gruvboxYellow).
			Background(gruvboxBg1).
			Padding(1, 2).
			Width(80).
			Align(lipgloss.Center)

	// Game title line above the package list
	gameTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(gruvboxAqua)

	// Package and download item styles
	listItemStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Width(80)

	selectedItemStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(gruvboxYellow).
				Padding(0, 1)

	progressBarFilledStyle = lipgloss.NewStyle().
				Foreground(gruvboxGreen)

	progressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(gruvboxBg2)

	statusStyleActive = lipgloss.NewStyle().
				Foreground(gruvboxGreen).
				Bold(true)

	statusStyleProbing = lipgloss.NewStyle().
				Foreground(gruvboxYellow).
				Bold(true)

	statusStyleDone = lipgloss.NewStyle().
			Foreground(gruvboxBlue).
			Bold(true)

	statusStyleFailed = lipgloss.NewStyle().
				Foreground(gruvboxRed).
				Bold(true)

	statusStyleCancelled = lipgloss.NewStyle().
				Foreground(gruvboxOrange).
				Bold(true)

	// Search form styles
	formLabelStyle = lipgloss.NewStyle().
			Foreground(gruvboxFg0).
			MarginRight(1)

	dimStyle = lipgloss.NewStyle().
			Foreground(gruvboxFg2)

	// Error message style
	errorStyle = lipgloss.NewStyle().
			Foreground(gruvboxBg0).
			Background(gruvboxRed).
			Padding(0, 1).
			Margin(1, 0).
			Width(80).
			Align(lipgloss.Center)
)
