package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/recsync/internal/models"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

func statusStyle(status models.JobStatus) lipgloss.Style {
	switch status {
	case models.JobStatusCompleted:
		return okStyle
	case models.JobStatusPending:
		return warnStyle
	case models.JobStatusFailed:
		return errStyle
	default:
		return dimStyle
	}
}

func field(label, value string) string {
	return labelStyle.Render(label) + value
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
