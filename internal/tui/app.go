// Package tui provides a terminal dashboard over the portage API.
package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/portage/internal/model"
)

const refreshInterval = 2 * time.Second

// App is the main TUI application. It polls the API server for jobs;
// it holds no job state of its own.
type App struct {
	baseURL string
}

// NewApp creates a TUI application against an API base URL, e.g.
// "http://localhost:8080".
func NewApp(baseURL string) *App {
	return &App{baseURL: baseURL}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(newModel(a.baseURL), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// uiModel is the main bubbletea model.
type uiModel struct {
	baseURL   string
	dashboard *Dashboard
	spinner   spinner.Model
	ready     bool
	width     int
	height    int
	selected  int
	err       error
}

func newModel(baseURL string) uiModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	return uiModel{
		baseURL: baseURL,
		spinner: s,
	}
}

// Init initializes the model.
func (m uiModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		loadJobs(m.baseURL),
		tick(),
	)
}

// Update handles messages.
func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, loadJobs(m.baseURL)
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.dashboard != nil && m.selected < len(m.dashboard.jobs)-1 {
				m.selected++
			}
		case "c":
			if m.dashboard != nil && m.selected < len(m.dashboard.jobs) {
				return m, cancelJob(m.baseURL, m.dashboard.jobs[m.selected].ID)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.dashboard != nil {
			m.dashboard.SetSize(msg.Width, msg.Height)
		}

	case jobsMsg:
		m.ready = true
		m.err = nil
		m.dashboard = NewDashboard(msg.jobs, m.width, m.height)
		if m.selected >= len(msg.jobs) && len(msg.jobs) > 0 {
			m.selected = len(msg.jobs) - 1
		}

	case errMsg:
		m.err = msg.err

	case tickMsg:
		return m, tea.Batch(loadJobs(m.baseURL), tick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the UI.
func (m uiModel) View() string {
	if m.err != nil {
		return ErrorStyle.Render("Error: "+m.err.Error()) + "\n" +
			HelpStyle.Render("Press 'r' to retry • 'q' to quit")
	}

	if !m.ready {
		return LoadingStyle.Render(m.spinner.View() + " Connecting to " + m.baseURL + "...")
	}

	return m.dashboard.View(m.selected)
}

// Messages
type jobsMsg struct {
	jobs []model.Job
}

type errMsg struct {
	err error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func loadJobs(baseURL string) tea.Cmd {
	return func() tea.Msg {
		jobs, err := fetchJobs(baseURL)
		if err != nil {
			return errMsg{err}
		}
		return jobsMsg{jobs: jobs}
	}
}

func cancelJob(baseURL, id string) tea.Cmd {
	return func() tea.Msg {
		resp, err := http.Post(baseURL+"/api/jobs/"+id+"/cancel", "application/json", nil)
		if err != nil {
			return errMsg{err}
		}
		resp.Body.Close()
		jobs, err := fetchJobs(baseURL)
		if err != nil {
			return errMsg{err}
		}
		return jobsMsg{jobs: jobs}
	}
}

func fetchJobs(baseURL string) ([]model.Job, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/api/jobs")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned %s", resp.Status)
	}
	var jobs []model.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return nil, err
	}
	// Newest first for display.
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}
