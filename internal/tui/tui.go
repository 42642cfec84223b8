package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/psxtools/psupd/internal/fetcher"
	"github.com/psxtools/psupd/internal/manager"
)

// Run starts the TUI application and blocks until the user quits.
func Run(f *fetcher.Fetcher, m *manager.Manager, downloadDir string) error {
	model := NewModel(f, m, downloadDir)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
	)

	_, err := p.Run()

	return err
}
