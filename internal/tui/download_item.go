package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/psxtools/psupd/internal/job"
	"github.com/psxtools/psupd/internal/repository"
	"github.com/psxtools/psupd/internal/utils"
)

// downloadItem is one tracked download in the TUI. Items for jobs in
// this session refresh their progress snapshot on every poll tick;
// items loaded from the history store are static.
type downloadItem struct {
	id          uuid.UUID
	gameTitle   string
	version     string
	dest        string
	fromHistory bool
	progress    job.Progress
	spinner     spinner.Model
	width       int
}

func newDownloadItem(id uuid.UUID, gameTitle, version, dest string) *downloadItem {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(gruvboxGreen)

	return &downloadItem{
		id:        id,
		gameTitle: gameTitle,
		version:   version,
		dest:      dest,
		spinner:   s,
		width:     80,
	}
}

// historyItem builds a static item from a stored history record.
func historyItem(id uuid.UUID, rec *repository.Record) *downloadItem {
	var percent float64
	if rec.TotalBytes > 0 {
		percent = float64(rec.Downloaded) / float64(rec.TotalBytes) * 100
		if percent > 100 {
			percent = 100
		}
	}

	item := newDownloadItem(id, rec.GameTitle, "", rec.Path)
	item.fromHistory = true
	item.progress = job.Progress{
		Filename:   rec.Filename,
		Total:      rec.TotalBytes,
		Downloaded: rec.Downloaded,
		Percent:    percent,
		Done:       true,
		Error:      rec.Error,
	}

	return item
}

// View renders the download item.
func (d *downloadItem) View() string {
	p := d.progress

	maxFilenameLen := 30
	filename := p.Filename
	if filename == "" {
		filename = d.gameTitle
	}
	if len(filename) > maxFilenameLen {
		filename = filename[:maxFilenameLen-3] + "..."
	}

	var statusStr string
	switch {
	case p.Done && p.Error == "":
		statusStr = statusStyleDone.Render("done")
	case p.Done && p.Error == job.ErrCancelled.Error():
		statusStr = statusStyleCancelled.Render("cancelled")
	case p.Done:
		statusStr = statusStyleFailed.Render("failed")
	case p.Total == 0 && p.Downloaded == 0:
		statusStr = statusStyleProbing.Render(fmt.Sprintf("%s probing", d.spinner.View()))
	default:
		statusStr = statusStyleActive.Render(fmt.Sprintf("%s %s", d.spinner.View(), p.Mode))
	}

	firstLine := fmt.Sprintf("%-30s  %s", filename, statusStr)
	if d.version != "" {
		firstLine = fmt.Sprintf("%-30s  v%s  %s", filename, d.version, statusStr)
	}

	location := dimStyle.Faint(true).Render(d.dest)

	barWidth := d.width - 30
	if barWidth < 20 {
		barWidth = 20
	}
	progressBar := renderProgressBar(barWidth, p.Percent/100.0)

	var infoLine string
	switch {
	case p.Done && p.Error != "":
		infoLine = statusStyleFailed.Render(p.Error)
	case p.Done:
		infoLine = utils.FormatSize(p.Downloaded)
	default:
		infoLine = fmt.Sprintf("%.1f%%  %s / %s  %s",
			p.Percent,
			utils.FormatSize(p.Downloaded),
			utils.FormatSize(p.Total),
			utils.FormatSpeed(p.Speed))
	}

	return fmt.Sprintf("%s\n%s\n%s  %s", firstLine, location, progressBar, infoLine)
}

func renderProgressBar(width int, percent float64) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 1 {
		percent = 1
	}

	filled := int(float64(width) * percent)
	empty := width - filled

	return progressBarFilledStyle.Render(strings.Repeat("█", filled)) +
		progressBarEmptyStyle.Render(strings.Repeat("░", empty))
}
