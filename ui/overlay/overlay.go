// Package overlay renders floating dialogs on top of the workspace view.
package overlay

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/kastheco/haven/ui"
)

var boxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ui.ColorIris).
	Background(ui.ColorSurface).
	Padding(1, 2)

var boxTitleStyle = lipgloss.NewStyle().
	Foreground(ui.ColorIris).
	Bold(true)

// Box renders a titled dialog box.
func Box(title, content string) string {
	if title != "" {
		content = boxTitleStyle.Render(title) + "\n\n" + content
	}
	return boxStyle.Render(content)
}

// PlaceOverlay composites fg on top of bg. With center set, x and y are
// ignored and the overlay is centered. Escape sequences in both layers are
// preserved.
func PlaceOverlay(x, y int, fg, bg string, center bool) string {
	fgLines, fgWidth := getLines(fg)
	bgLines, bgWidth := getLines(bg)
	fgHeight := len(fgLines)
	bgHeight := len(bgLines)

	if fgWidth >= bgWidth && fgHeight >= bgHeight {
		return fg
	}
	if center {
		x = (bgWidth - fgWidth) / 2
		y = (bgHeight - fgHeight) / 2
	}
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}

	var b strings.Builder
	for i, bgLine := range bgLines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if i < y || i >= y+fgHeight {
			b.WriteString(bgLine)
			continue
		}

		left := ansi.Truncate(bgLine, x, "")
		if pad := x - ansi.StringWidth(left); pad > 0 {
			left += strings.Repeat(" ", pad)
		}

		fgLine := fgLines[i-y]
		if pad := fgWidth - ansi.StringWidth(fgLine); pad > 0 {
			fgLine += strings.Repeat(" ", pad)
		}

		right := ansi.TruncateLeft(bgLine, x+fgWidth, "")
		b.WriteString(left)
		b.WriteString(fgLine)
		b.WriteString(right)
	}
	return b.String()
}

func getLines(s string) ([]string, int) {
	lines := strings.Split(s, "\n")
	width := 0
	for _, line := range lines {
		if w := ansi.StringWidth(line); w > width {
			width = w
		}
	}
	return lines, width
}
