package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/psxtools/psupd/internal/fetcher"
	"github.com/psxtools/psupd/internal/manager"
	"github.com/psxtools/psupd/internal/utils"
)

// view represents the different screens in the TUI
type view int

const (
	searchView view = iota
	resultsView
	downloadsView
)

const pollInterval = 250 * time.Millisecond

// Message types for the TUI
type (
	// fetchDoneMsg is sent when a metadata lookup finishes.
	fetchDoneMsg struct {
		result *fetcher.Result
	}

	// downloadStartedMsg is sent when a download job has been admitted.
	downloadStartedMsg struct {
		id      uuid.UUID
		version string
		dest    string
	}

	// historyLoadedMsg carries past downloads read from the history
	// store at startup.
	historyLoadedMsg struct {
		items []*downloadItem
	}

	// errorMsg is sent when an operation fails.
	errorMsg struct {
		err error
	}

	// pollMsg drives the periodic progress refresh.
	pollMsg time.Time
)

// Model represents the main TUI state
type Model struct {
	fetcher     *fetcher.Fetcher
	manager     *manager.Manager
	downloadDir string

	help    help.Model
	keys    keyMap
	spinner spinner.Model
	search  textinput.Model

	activeView  view
	result      *fetcher.Result
	downloads   []*downloadItem
	selectedIdx int
	dlIdx       int

	width    int
	height   int
	errorMsg string
	fetching bool
	quitting bool
}

// NewModel creates a new TUI model
func NewModel(f *fetcher.Fetcher, m *manager.Manager, downloadDir string) Model {
	s := spinner.New()
	s.Spinner = spinner.Hamburger
	s.Style = lipgloss.NewStyle().Foreground(gruvboxBlue)

	ti := textinput.New()
	ti.Placeholder = "Enter a title id, e.g. BLES00799"
	ti.CharLimit = 32
	ti.Width = 40
	ti.Focus()

	h := help.New()
	h.ShowAll = false

	return Model{
		fetcher:     f,
		manager:     m,
		downloadDir: downloadDir,
		help:        h,
		keys:        newKeyMap(),
		spinner:     s,
		search:      ti,
		activeView:  searchView,
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		pollTick(),
		loadHistory(m.manager),
		tea.EnterAltScreen,
	)
}

func pollTick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

// Update handles input and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit) && m.activeView != searchView:
			m.quitting = true
			return m, tea.Quit

		case msg.Type == tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case m.activeView == searchView:
			return m.updateSearchView(msg)

		case m.activeView == resultsView:
			return m.updateResultsView(msg)

		case m.activeView == downloadsView:
			return m.updateDownloadsView(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		contentWidth := min(msg.Width-4, 90)
		for _, d := range m.downloads {
			d.width = contentWidth
		}

		return m, tea.ClearScreen

	case fetchDoneMsg:
		m.fetching = false
		m.result = msg.result
		m.selectedIdx = 0
		m.errorMsg = ""
		m.activeView = resultsView

		return m, nil

	case historyLoadedMsg:
		// Past downloads sit below anything started this session.
		for _, item := range msg.items {
			item.width = min(m.width-10, 90)
		}
		m.downloads = append(m.downloads, msg.items...)

		return m, nil

	case downloadStartedMsg:
		item := newDownloadItem(msg.id, m.result.GameTitle, msg.version, msg.dest)
		item.width = min(m.width-10, 90)

		// Newest first, like the history listing.
		m.downloads = append([]*downloadItem{item}, m.downloads...)
		m.dlIdx = 0
		m.activeView = downloadsView

		return m, nil

	case errorMsg:
		m.fetching = false
		m.errorMsg = msg.err.Error()

		return m, nil

	case pollMsg:
		for _, d := range m.downloads {
			if d.fromHistory {
				continue
			}
			p, err := m.manager.Progress(d.id)
			if err == nil {
				d.progress = p
			}
		}

		return m, pollTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		for _, d := range m.downloads {
			if !d.progress.Done {
				d.spinner, _ = d.spinner.Update(msg)
			}
		}

		return m, cmd
	}

	return m, nil
}

func (m Model) updateSearchView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		raw := m.search.Value()
		if raw == "" || m.fetching {
			return m, nil
		}

		m.fetching = true
		m.errorMsg = ""

		return m, fetchUpdates(m.fetcher, raw)

	case key.Matches(msg, m.keys.Tab):
		m.activeView = downloadsView
		return m, nil

	case msg.Type == tea.KeyEsc:
		m.quitting = true
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)

		return m, cmd
	}
}

func (m Model) updateResultsView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Search):
		m.activeView = searchView
		m.search.Focus()
		return m, nil

	case key.Matches(msg, m.keys.Tab):
		m.activeView = downloadsView
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.result != nil && len(m.result.Results) > 0 {
			m.selectedIdx = min(m.selectedIdx+1, len(m.result.Results)-1)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.selectedIdx = max(m.selectedIdx-1, 0)
		return m, nil

	case key.Matches(msg, m.keys.Confirm):
		if m.result == nil || len(m.result.Results) == 0 {
			return m, nil
		}

		pkg := m.result.Results[m.selectedIdx]
		subfolder := utils.SubfolderName(m.result.GameTitle, m.result.TitleID)
		dest := filepath.Join(m.downloadDir, subfolder, pkg.Filename)

		req := manager.DownloadRequest{
			URL:       pkg.URL,
			Dest:      dest,
			GameTitle: m.result.GameTitle,
			TitleID:   m.result.TitleID,
			MultiPart: true,
		}

		return m, startDownload(m.manager, req, pkg.Version)
	}

	return m, nil
}

func (m Model) updateDownloadsView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Search):
		m.activeView = searchView
		m.search.Focus()
		return m, nil

	case key.Matches(msg, m.keys.Tab):
		if m.result != nil {
			m.activeView = resultsView
		} else {
			m.activeView = searchView
			m.search.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if len(m.downloads) > 0 {
			m.dlIdx = min(m.dlIdx+1, len(m.downloads)-1)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.dlIdx = max(m.dlIdx-1, 0)
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		if len(m.downloads) > 0 && m.dlIdx < len(m.downloads) {
			return m, cancelDownload(m.manager, m.downloads[m.dlIdx].id)
		}

	case key.Matches(msg, m.keys.Remove):
		if len(m.downloads) > 0 && m.dlIdx < len(m.downloads) {
			item := m.downloads[m.dlIdx]
			if err := m.manager.Remove(item.id); err != nil {
				m.errorMsg = err.Error()
				return m, nil
			}

			m.downloads = append(m.downloads[:m.dlIdx], m.downloads[m.dlIdx+1:]...)
			if m.dlIdx >= len(m.downloads) {
				m.dlIdx = max(0, len(m.downloads)-1)
			}
		}
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	contentWidth := m.width - 4
	if contentWidth > 90 {
		contentWidth = 90
	}
	if contentWidth < 40 {
		contentWidth = 40
	}

	var content string
	switch m.activeView {
	case searchView:
		content = m.renderSearchView(contentWidth)
	case resultsView:
		content = m.renderResultsView(contentWidth)
	case downloadsView:
		content = m.renderDownloadsView(contentWidth)
	default:
		return "Unknown view"
	}

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m Model) renderSearchView(contentWidth int) string {
	var s strings.Builder

	header := headerStyle.Width(contentWidth).Render("PS3 Update Downloader")
	s.WriteString(header)
	s.WriteString("\n\n")

	if m.errorMsg != "" {
		s.WriteString(errorStyle.Width(contentWidth).Render(m.errorMsg))
		s.WriteString("\n\n")
	}

	form := lipgloss.NewStyle().
		Width(contentWidth-10).
		Padding(1, 2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(gruvboxYellow).
		Render(
			lipgloss.JoinVertical(
				lipgloss.Left,
				formLabelStyle.Render("Look up updates for a title:"),
				m.search.View(),
				"",
				dimStyle.Render("Press Enter to search, Tab for downloads, Esc to quit"),
			),
		)

	if m.fetching {
		form = lipgloss.JoinVertical(
			lipgloss.Center,
			form,
			"",
			fmt.Sprintf("%s fetching update metadata...", m.spinner.View()),
		)
	}

	s.WriteString(lipgloss.NewStyle().Width(contentWidth).Align(lipgloss.Center).Render(form))
	s.WriteString("\n\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

func (m Model) renderResultsView(contentWidth int) string {
	var s strings.Builder

	header := headerStyle.Width(contentWidth).Render("Available Updates")
	s.WriteString(header)
	s.WriteString("\n\n")

	if m.errorMsg != "" {
		s.WriteString(errorStyle.Width(contentWidth).Render(m.errorMsg))
		s.WriteString("\n\n")
	}

	if m.result != nil {
		title := fmt.Sprintf("%s (%s)", m.result.GameTitle, m.result.TitleID)
		s.WriteString(gameTitleStyle.Render(title))
		s.WriteString("\n\n")

		if len(m.result.Results) == 0 {
			s.WriteString(dimStyle.Render("This title has no update packages."))
			s.WriteString("\n")
		}

		for i, pkg := range m.result.Results {
			line := fmt.Sprintf("v%-10s  %-12s  requires firmware %s",
				pkg.Version, pkg.SizeHuman, pkg.SystemVersion)

			if i == m.selectedIdx {
				s.WriteString(selectedItemStyle.Width(contentWidth - 4).Render(line))
			} else {
				s.WriteString(listItemStyle.Width(contentWidth - 4).Render(line))
			}
			s.WriteString("\n")
		}
	}

	s.WriteString("\n")
	s.WriteString(dimStyle.Render("Enter downloads the selected package"))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

func (m Model) renderDownloadsView(contentWidth int) string {
	var s strings.Builder

	header := headerStyle.Width(contentWidth).Render("Downloads")
	s.WriteString(header)
	s.WriteString("\n\n")

	if m.errorMsg != "" {
		s.WriteString(errorStyle.Width(contentWidth).Render(m.errorMsg))
		s.WriteString("\n\n")
	}

	if len(m.downloads) == 0 {
		s.WriteString(dimStyle.Render("No downloads yet. Press 's' to search for a title."))
		s.WriteString("\n")
	}

	for i, d := range m.downloads {
		d.width = contentWidth - 4

		if i == m.dlIdx {
			s.WriteString(selectedItemStyle.Width(contentWidth - 4).Render(d.View()))
		} else {
			s.WriteString(listItemStyle.Width(contentWidth - 4).Render(d.View()))
		}
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

func fetchUpdates(f *fetcher.Fetcher, rawTitleID string) tea.Cmd {
	return func() tea.Msg {
		result, err := f.FetchUpdates(context.Background(), rawTitleID)
		if err != nil {
			return errorMsg{err: err}
		}

		return fetchDoneMsg{result: result}
	}
}

func startDownload(m *manager.Manager, req manager.DownloadRequest, version string) tea.Cmd {
	return func() tea.Msg {
		id, err := m.StartDownload(req)
		if err != nil {
			return errorMsg{err: err}
		}

		return downloadStartedMsg{id: id, version: version, dest: req.Dest}
	}
}

// loadHistory reads past downloads from the history store so the
// downloads screen starts populated.
func loadHistory(m *manager.Manager) tea.Cmd {
	return func() tea.Msg {
		records, err := m.History()
		if err != nil {
			return errorMsg{err: err}
		}

		items := make([]*downloadItem, 0, len(records))
		for _, rec := range records {
			id, err := uuid.Parse(rec.ID)
			if err != nil {
				continue
			}
			items = append(items, historyItem(id, rec))
		}

		return historyLoadedMsg{items: items}
	}
}

func cancelDownload(m *manager.Manager, id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		if err := m.Cancel(id); err != nil {
			return errorMsg{err: err}
		}

		return nil
	}
}
