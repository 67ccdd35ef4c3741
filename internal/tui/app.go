// Package tui provides the interactive outbox dashboard.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/recsync/internal/controlplane"
)

// RefreshInterval is how often the dashboard polls the daemon.
const RefreshInterval = 2 * time.Second

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(12)

	onlineStyle  = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	offlineStyle = lipgloss.NewStyle().Foreground(errorColor)
)

type mode int

const (
	modeList mode = iota
	modeDetail
)

// App is the main TUI application model.
type App struct {
	client   *Client
	jobs     *JobListModel
	viewport viewport.Model
	mode     mode
	detail   *JobDetail
	health   *controlplane.HealthResponse
	message  string
	width    int
	height   int
}

// New creates a new TUI application.
func New(apiAddr string) *App {
	client := NewClient(apiAddr)
	return &App{
		client:   client,
		jobs:     NewJobListModel(client),
		viewport: viewport.New(80, 20),
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.jobs.Refresh(), a.checkHealth(), tick())
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.mode == modeList && a.jobs.Filtering() {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "esc":
			if a.mode == modeDetail {
				a.mode = modeList
				a.detail = nil
				return a, a.jobs.Refresh()
			}
		case "tab":
			if a.mode == modeList {
				return a, a.jobs.CycleFilter()
			}
		case "r":
			return a, a.refresh()
		case "enter":
			if a.mode == modeList {
				if job := a.jobs.Selected(); job != nil {
					a.mode = modeDetail
					return a, a.fetchDetail(job.ID)
				}
			}
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.jobs.SetSize(msg.Width, msg.Height-4)
		a.viewport.Width = msg.Width
		a.viewport.Height = msg.Height - 4

	case tickMsg:
		return a, tea.Batch(a.refresh(), tick())

	case healthMsg:
		a.health = msg.health
		return a, nil

	case jobsLoadedMsg:
		a.message = ""
		return a, a.jobs.Update(msg)

	case detailLoadedMsg:
		a.detail = msg.detail
		a.viewport.SetContent(renderDetail(msg.detail))
		return a, nil

	case errMsg:
		a.message = "Error: " + msg.err.Error()
		return a, nil
	}

	if a.mode == modeDetail {
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}
	return a, a.jobs.Update(msg)
}

func (a *App) refresh() tea.Cmd {
	cmds := []tea.Cmd{a.checkHealth()}
	if a.mode == modeDetail && a.detail != nil {
		cmds = append(cmds, a.fetchDetail(a.detail.ID))
	} else {
		cmds = append(cmds, a.jobs.Refresh())
	}
	return tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	header := titleStyle.Render("recsync outbox")
	if a.health != nil && a.health.OK {
		header += "  " + onlineStyle.Render("● "+a.health.Client)
		if n, ok := a.health.Scheduler["active_workers"]; ok {
			header += "  " + helpStyle.Render(fmt.Sprintf("%v in flight", n))
		}
	} else {
		header += "  " + offlineStyle.Render("○ daemon offline")
	}
	b.WriteString(header + "\n\n")

	if a.mode == modeDetail {
		b.WriteString(a.viewport.View())
	} else {
		b.WriteString(a.jobs.View())
	}
	b.WriteString("\n")

	help := "tab: filter • enter: details • r: refresh • q: quit"
	if a.mode == modeDetail {
		help = "esc: back • ↑/↓: scroll • r: refresh • q: quit"
	}
	if a.message != "" {
		help = a.message + "  " + help
	}
	b.WriteString(statusBarStyle.Render(help))
	return b.String()
}

func renderDetail(d *JobDetail) string {
	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}
	row("Job", d.ID)
	row("Operation", d.Operation)
	row("Status", formatStatus(d.Status))
	row("Attempt", fmt.Sprint(d.Attempt+1))
	for _, c := range d.Claims {
		row("Claim", fmt.Sprintf("%s %d #%d", c.Entity.Kind, c.Entity.ID, c.SequenceNumber))
	}
	if d.Error != "" {
		row("Error", statusFailed.Render(d.Error))
	}
	if len(d.Response) > 0 {
		row("Response", string(d.Response))
	}
	if len(d.History) > 0 {
		b.WriteString("\n" + listTitleStyle.Render("History") + "\n")
		for _, e := range d.History {
			line := fmt.Sprintf("%s  %-14s %s", e.Timestamp.Local().Format(time.TimeOnly), e.Action, e.Outcome)
			if e.Details != "" {
				line += "  " + helpStyle.Render(e.Details)
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

func (a *App) fetchDetail(id string) tea.Cmd {
	return func() tea.Msg {
		d, err := a.client.GetJob(id)
		if err != nil {
			return errMsg{err}
		}
		return detailLoadedMsg{d}
	}
}

func (a *App) checkHealth() tea.Cmd {
	return func() tea.Msg {
		h, err := a.client.Health()
		if err != nil {
			return healthMsg{}
		}
		return healthMsg{h}
	}
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

type tickMsg struct{}

type healthMsg struct {
	health *controlplane.HealthResponse
}

type detailLoadedMsg struct {
	detail *JobDetail
}

type errMsg struct {
	err error
}
