package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/kastheco/haven/workspace/layout"
)

// Rect is a pane's cell geometry within the workspace area.
type Rect struct {
	X, Y          int
	Width, Height int
}

// Inner returns the content geometry inside the pane border.
func (r Rect) Inner() (cols, rows int) {
	cols = r.Width - 2
	rows = r.Height - 2
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return cols, rows
}

// PaneRects computes each leaf's geometry for the given area by walking the
// split tree and distributing cells according to the ratios. The app uses
// this to size the underlying ptys; the renderer uses it for drawing.
func PaneRects(root *layout.Node, width, height int) map[string]Rect {
	rects := make(map[string]Rect)
	placeRects(root, Rect{0, 0, width, height}, rects)
	return rects
}

func placeRects(n *layout.Node, area Rect, out map[string]Rect) {
	if n == nil {
		return
	}
	if n.IsPane() {
		out[n.SessionID] = area
		return
	}

	total := area.Width
	if n.Orientation == layout.Vertical {
		total = area.Height
	}

	// Integer cell shares; the last child absorbs rounding.
	used := 0
	for i, c := range n.Children {
		share := int(float64(total) * n.Ratios[i])
		if i == len(n.Children)-1 {
			share = total - used
		}
		child := area
		if n.Orientation == layout.Horizontal {
			child.X = area.X + used
			child.Width = share
		} else {
			child.Y = area.Y + used
			child.Height = share
		}
		used += share
		placeRects(c, child, out)
	}
}

// ContentFunc produces a pane's visible content at the given inner size.
type ContentFunc func(sessionID string, cols, rows int) string

var (
	focusedPaneBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorIris)

	blurredPaneBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorMuted)
)

// RenderPanes draws the split tree into a width×height cell area. The
// focused pane gets the highlight border.
func RenderPanes(root *layout.Node, width, height int, focusedSessionID string, content ContentFunc) string {
	if root == nil {
		return lipgloss.NewStyle().Width(width).Height(height).Render("")
	}
	return renderNode(root, width, height, focusedSessionID, content)
}

func renderNode(n *layout.Node, width, height int, focused string, content ContentFunc) string {
	if n.IsPane() {
		style := blurredPaneBorder
		if n.SessionID == focused {
			style = focusedPaneBorder
		}
		cols, rows := (Rect{Width: width, Height: height}).Inner()
		return style.
			Width(cols).
			Height(rows).
			MaxWidth(width).
			Render(content(n.SessionID, cols, rows))
	}

	total := width
	if n.Orientation == layout.Vertical {
		total = height
	}

	parts := make([]string, 0, len(n.Children))
	used := 0
	for i, c := range n.Children {
		share := int(float64(total) * n.Ratios[i])
		if i == len(n.Children)-1 {
			share = total - used
		}
		used += share
		if n.Orientation == layout.Horizontal {
			parts = append(parts, renderNode(c, share, height, focused, content))
		} else {
			parts = append(parts, renderNode(c, width, share, focused, content))
		}
	}

	if n.Orientation == layout.Horizontal {
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
