package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/recsync/internal/models"
)

var (
	listTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusSubmitted = lipgloss.NewStyle().Foreground(lipgloss.Color("4")) // Blue
	statusPending   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	statusCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	statusFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
)

// JobItem implements list.Item for the job list
type JobItem struct {
	*models.Job
}

func (i JobItem) FilterValue() string { return i.Operation + " " + i.ID }
func (i JobItem) Title() string       { return i.Operation }
func (i JobItem) Description() string {
	desc := formatStatus(i.Status) + " • " + shortID(i.ID)
	if i.Attempt > 0 {
		desc += fmt.Sprintf(" • attempt %d", i.Attempt+1)
	}
	if i.Status == models.JobStatusSubmitted && i.Attempt > 0 {
		desc += " • next " + i.NextAttemptAt.Local().Format(time.TimeOnly)
	}
	return desc
}

func formatStatus(status models.JobStatus) string {
	switch status {
	case models.JobStatusSubmitted:
		return statusSubmitted.Render("● submitted")
	case models.JobStatusPending:
		return statusPending.Render("● pending")
	case models.JobStatusCompleted:
		return statusCompleted.Render("● completed")
	case models.JobStatusFailed:
		return statusFailed.Render("● failed")
	default:
		return string(status)
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

var filters = []models.JobStatus{"", models.JobStatusSubmitted, models.JobStatusPending, models.JobStatusCompleted, models.JobStatusFailed}
var filterLabels = []string{"all", "submitted", "pending", "completed", "failed"}

// JobListModel manages the job list screen
type JobListModel struct {
	client      *Client
	list        list.Model
	filterIndex int
	loaded      bool
}

// NewJobListModel creates a new job list model
func NewJobListModel(client *Client) *JobListModel {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 80, 20)
	l.Title = "Jobs [all]"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = listTitleStyle

	return &JobListModel{client: client, list: l}
}

// SetSize sets the list dimensions
func (m *JobListModel) SetSize(w, h int) {
	m.list.SetSize(w, h)
}

// Filtering reports whether the list is capturing keys for its filter.
func (m *JobListModel) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

// Selected returns the currently selected job
func (m *JobListModel) Selected() *JobItem {
	if item, ok := m.list.SelectedItem().(JobItem); ok {
		return &item
	}
	return nil
}

// CycleFilter moves to the next status filter.
func (m *JobListModel) CycleFilter() tea.Cmd {
	m.filterIndex = (m.filterIndex + 1) % len(filters)
	m.list.Title = fmt.Sprintf("Jobs [%s]", filterLabels[m.filterIndex])
	return m.Refresh()
}

// Refresh fetches jobs from the API
func (m *JobListModel) Refresh() tea.Cmd {
	status := string(filters[m.filterIndex])
	return func() tea.Msg {
		jobs, err := m.client.ListJobs(status)
		if err != nil {
			return errMsg{err}
		}
		return jobsLoadedMsg{jobs}
	}
}

// Update handles messages
func (m *JobListModel) Update(msg tea.Msg) tea.Cmd {
	if msg, ok := msg.(jobsLoadedMsg); ok {
		m.loaded = true
		items := make([]list.Item, len(msg.jobs))
		for i, j := range msg.jobs {
			items[i] = j
		}
		return m.list.SetItems(items)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return cmd
}

// View renders the job list
func (m *JobListModel) View() string {
	if !m.loaded {
		return "Loading jobs..."
	}
	return m.list.View()
}

type jobsLoadedMsg struct {
	jobs []JobItem
}
