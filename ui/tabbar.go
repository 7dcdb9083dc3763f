package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// TabInfo is what the tab bar needs to know about one workspace tab.
type TabInfo struct {
	Title  string
	Active bool
	Panes  int
}

var (
	activeTabStyle = lipgloss.NewStyle().
			Foreground(ColorBase).
			Background(ColorIris).
			Padding(0, 1).
			Bold(true)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(ColorSubtle).
				Background(ColorOverlay).
				Padding(0, 1)

	tabBarFillStyle = lipgloss.NewStyle().Background(ColorBase)
)

// TabBar is the single-row tab strip at the top of the workspace.
type TabBar struct {
	width int
}

// NewTabBar creates a tab bar.
func NewTabBar() *TabBar {
	return &TabBar{}
}

// SetSize sets the render width.
func (t *TabBar) SetSize(width int) {
	t.width = width
}

// Render draws the tab strip. Tabs show their title and, when split, the
// pane count.
func (t *TabBar) Render(tabs []TabInfo) string {
	if len(tabs) == 0 {
		return tabBarFillStyle.Width(t.width).Render("")
	}

	rendered := make([]string, 0, len(tabs))
	for i, tab := range tabs {
		label := fmt.Sprintf("%d %s", i+1, tab.Title)
		if tab.Panes > 1 {
			label = fmt.Sprintf("%s (%d)", label, tab.Panes)
		}
		style := inactiveTabStyle
		if tab.Active {
			style = activeTabStyle
		}
		rendered = append(rendered, style.Render(label))
	}

	row := lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
	if w := lipgloss.Width(row); w < t.width {
		row = lipgloss.JoinHorizontal(lipgloss.Top, row, tabBarFillStyle.Width(t.width-w).Render(""))
	}
	return row
}
