package overlay

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kastheco/haven/ui"
)

// BranchInputOverlay is the create-worktree dialog: a branch name input and
// a new-branch toggle. Tab cycles focus, enter submits, esc cancels.
type BranchInputOverlay struct {
	input        textinput.Model
	CreateBranch bool
	FocusIndex   int // 0 input, 1 toggle
	Submitted    bool
	Canceled     bool
}

// NewBranchInputOverlay creates the dialog. createBranch is the initial
// toggle state.
func NewBranchInputOverlay(createBranch bool) *BranchInputOverlay {
	input := textinput.New()
	input.Placeholder = "feature/branch-name"
	input.CharLimit = 120
	input.Width = 36
	input.Focus()

	return &BranchInputOverlay{
		input:        input,
		CreateBranch: createBranch,
	}
}

// Value returns the entered branch name.
func (b *BranchInputOverlay) Value() string {
	return strings.TrimSpace(b.input.Value())
}

// HandleKeyPress processes a key press. Returns true when the overlay
// should be closed (submitted or cancelled).
func (b *BranchInputOverlay) HandleKeyPress(msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyEsc:
		b.Canceled = true
		return true
	case tea.KeyEnter:
		if b.Value() == "" {
			return false
		}
		b.Submitted = true
		return true
	case tea.KeyTab, tea.KeyShiftTab:
		b.FocusIndex = (b.FocusIndex + 1) % 2
		if b.FocusIndex == 0 {
			b.input.Focus()
		} else {
			b.input.Blur()
		}
		return false
	case tea.KeySpace:
		if b.FocusIndex == 1 {
			b.CreateBranch = !b.CreateBranch
			return false
		}
	}
	if b.FocusIndex == 0 {
		b.input, _ = b.input.Update(msg)
	}
	return false
}

var (
	dialogLabelStyle = lipgloss.NewStyle().Foreground(ui.ColorSubtle)
	toggleOnStyle    = lipgloss.NewStyle().Foreground(ui.ColorFoam).Bold(true)
	toggleOffStyle   = lipgloss.NewStyle().Foreground(ui.ColorMuted)
	toggleFocusStyle = lipgloss.NewStyle().Foreground(ui.ColorIris).Bold(true)
)

// Render draws the dialog.
func (b *BranchInputOverlay) Render() string {
	toggle := "[ ] create new branch"
	if b.CreateBranch {
		toggle = "[x] create new branch"
	}
	toggleStyle := toggleOffStyle
	if b.CreateBranch {
		toggleStyle = toggleOnStyle
	}
	if b.FocusIndex == 1 {
		toggleStyle = toggleFocusStyle
	}

	content := strings.Join([]string{
		dialogLabelStyle.Render("branch"),
		b.input.View(),
		"",
		toggleStyle.Render(toggle),
		"",
		dialogLabelStyle.Render("enter create · tab toggle · esc cancel"),
	}, "\n")
	return Box("new worktree", content)
}
