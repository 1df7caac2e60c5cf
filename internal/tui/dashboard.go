package tui

import (
	"fmt"
	"strings"

	"github.com/user/portage/internal/model"
)

// Dashboard is the job table view.
type Dashboard struct {
	jobs   []model.Job
	width  int
	height int
}

// NewDashboard creates a new dashboard.
func NewDashboard(jobs []model.Job, width, height int) *Dashboard {
	return &Dashboard{
		jobs:   jobs,
		width:  width,
		height: height,
	}
}

// SetSize updates the dashboard size.
func (d *Dashboard) SetSize(width, height int) {
	d.width = width
	d.height = height
}

// View renders the dashboard with the selected row highlighted.
func (d *Dashboard) View(selected int) string {
	var sb strings.Builder

	header := HeaderStyle.Width(d.width).Render("⛵ Portage Jobs")
	sb.WriteString(header)
	sb.WriteString("\n\n")

	sb.WriteString(d.renderJobsSection(selected))
	sb.WriteString("\n")

	help := HelpStyle.Render("↑/↓ select • 'c' cancel • 'r' refresh • 'q' quit")
	sb.WriteString(help)

	return sb.String()
}

func (d *Dashboard) renderJobsSection(selected int) string {
	sectionWidth := d.width - 4
	if sectionWidth < 60 {
		sectionWidth = 60
	}

	if len(d.jobs) == 0 {
		content := DimStyle.Render("No jobs yet")
		return SectionStyle.Width(sectionWidth).Render(
			SectionTitleStyle.Render("Jobs") + "\n" + content)
	}

	var rows []string
	rows = append(rows, fmt.Sprintf("%-10s %-9s %-10s %-22s %s", "ID", "Type", "Status", "Endpoint", "Progress"))
	rows = append(rows, strings.Repeat("─", 64))

	maxRows := d.height - 10
	if maxRows < 5 {
		maxRows = 5
	}
	shown := len(d.jobs)
	if shown > maxRows {
		shown = maxRows
	}

	for i := 0; i < shown; i++ {
		j := d.jobs[i]
		row := fmt.Sprintf("%-10s %-9s %-10s %-22s %s",
			shortID(j.ID), j.Type, renderJobStatus(j.Status), endpoint(j), progressCell(j))
		if i == selected {
			row = SelectedRowStyle.Render(row)
		}
		rows = append(rows, row)
	}

	if len(d.jobs) > shown {
		rows = append(rows, DimStyle.Render(fmt.Sprintf("... and %d more", len(d.jobs)-shown)))
	}

	content := strings.Join(rows, "\n")
	return SectionStyle.Width(sectionWidth).Render(
		SectionTitleStyle.Render("Jobs") + "\n" + content)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func endpoint(j model.Job) string {
	if j.Source == nil {
		return "-"
	}
	host := j.Source.Host
	if len(host) > 20 {
		host = host[:17] + "..."
	}
	return host
}

// progressCell renders a bar for running jobs, the outcome otherwise.
func progressCell(j model.Job) string {
	switch {
	case j.Status == model.StatusFailed && j.ErrorMessage != "":
		msg := j.ErrorMessage
		if len(msg) > 28 {
			msg = msg[:25] + "..."
		}
		return ErrorStyle.Render(msg)
	case j.ScanProgress != nil && !j.Status.Terminal():
		return fmt.Sprintf("%s %d files",
			RenderBar(int(j.ScanProgress.PercentComplete), 100, 12),
			j.ScanProgress.FilesScanned)
	case j.TransferProgress != nil && !j.Status.Terminal():
		p := j.TransferProgress
		if p.FilesTotal > 0 {
			return fmt.Sprintf("%s %d/%d", RenderBar(int(p.FilesDone), int(p.FilesTotal), 12), p.FilesDone, p.FilesTotal)
		}
		return p.Status
	case j.ScanResult != nil:
		return fmt.Sprintf("%d files", j.ScanResult.Statistics.TotalFiles)
	case j.TransferResult != nil:
		return fmt.Sprintf("%d files moved", j.TransferResult.FilesTransferred)
	default:
		return "-"
	}
}

func renderJobStatus(s model.JobStatus) string {
	switch s {
	case model.StatusCompleted:
		return SuccessStyle.Render(string(s))
	case model.StatusFailed, model.StatusCancelled:
		return ErrorStyle.Render(string(s))
	case model.StatusPaused:
		return WarningStyle.Render(string(s))
	default:
		return string(s)
	}
}
