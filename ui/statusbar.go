package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// StatusBarData holds the contextual information displayed in the status bar.
type StatusBarData struct {
	ProjectName  string
	Branch       string
	LiveSessions int
	JobLabel     string // e.g. "worktree feature/x: creating_worktree", empty when idle
	JobFailed    bool
	FocusMode    bool
}

// StatusBar is the bottom status bar component.
type StatusBar struct {
	width int
	data  StatusBarData
}

// NewStatusBar creates a new StatusBar.
func NewStatusBar() *StatusBar {
	return &StatusBar{}
}

// SetSize sets the terminal width for the status bar.
func (s *StatusBar) SetSize(width int) {
	s.width = width
}

// SetData updates the status bar content.
func (s *StatusBar) SetData(data StatusBarData) {
	s.data = data
}

var (
	statusBarStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Background(ColorSurface)

	statusProjectStyle = lipgloss.NewStyle().
				Foreground(ColorBase).
				Background(ColorIris).
				Padding(0, 1).
				Bold(true)

	statusBranchStyle = lipgloss.NewStyle().
				Foreground(ColorPine).
				Background(ColorSurface).
				Padding(0, 1)

	statusJobStyle = lipgloss.NewStyle().
			Foreground(ColorGold).
			Background(ColorSurface).
			Padding(0, 1)

	statusJobFailedStyle = lipgloss.NewStyle().
				Foreground(ColorLove).
				Background(ColorSurface).
				Padding(0, 1)

	statusModeStyle = lipgloss.NewStyle().
			Foreground(ColorBase).
			Background(ColorFoam).
			Padding(0, 1)
)

// Render draws the status bar.
func (s *StatusBar) Render() string {
	var left []string
	if s.data.ProjectName != "" {
		left = append(left, statusProjectStyle.Render(s.data.ProjectName))
	}
	if s.data.Branch != "" {
		left = append(left, statusBranchStyle.Render(" "+s.data.Branch))
	}
	if s.data.JobLabel != "" {
		style := statusJobStyle
		if s.data.JobFailed {
			style = statusJobFailedStyle
		}
		left = append(left, style.Render(s.data.JobLabel))
	}

	var right []string
	if s.data.LiveSessions > 0 {
		right = append(right, statusBarStyle.Padding(0, 1).Render(
			fmt.Sprintf("%d shell%s", s.data.LiveSessions, plural(s.data.LiveSessions))))
	}
	if s.data.FocusMode {
		right = append(right, statusModeStyle.Render("SHELL ctrl+space to leave"))
	} else {
		right = append(right, statusBarStyle.Padding(0, 1).Foreground(ColorSubtle).Render("? for help"))
	}

	leftStr := lipgloss.JoinHorizontal(lipgloss.Top, left...)
	rightStr := lipgloss.JoinHorizontal(lipgloss.Top, right...)

	gap := s.width - lipgloss.Width(leftStr) - lipgloss.Width(rightStr)
	if gap < 1 {
		gap = 1
	}
	return leftStr + statusBarStyle.Render(strings.Repeat(" ", gap)) + rightStr
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
