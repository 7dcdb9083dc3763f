package keys

import (
	"github.com/charmbracelet/bubbles/key"
)

type KeyName int

const (
	KeyQuit KeyName = iota
	KeyHelp

	// Pane management
	KeySplitRight
	KeySplitDown
	KeyClosePane
	KeyFocusNext
	KeyFocusPrev
	KeyGrowPane
	KeyShrinkPane

	// Tab management
	KeyNewTab
	KeyCloseTab
	KeyNextTab
	KeyPrevTab

	// Worktrees
	KeyWorktree     // open the create-worktree dialog
	KeyJobs         // show worktree job progress
	KeyCancelJob    // cancel the selected job
	KeyRetryJob     // retry the selected failed job
	KeyCopyDiag     // copy job diagnostics to the clipboard
	KeyOpenWorktree // open the finished worktree as a new tab

	// Focus mode: keystrokes go to the shell until ctrl+space
	KeyEnterFocus
	KeyExitFocus
)

// GlobalKeyStringsMap maps command-mode key strings to key names. Immutable.
// Terminals deliver ctrl+space as NUL, which bubbletea names ctrl+@, so both
// spellings map to KeyExitFocus.
var GlobalKeyStringsMap = map[string]KeyName{
	"q":          KeyQuit,
	"?":          KeyHelp,
	"v":          KeySplitRight,
	"s":          KeySplitDown,
	"x":          KeyClosePane,
	"tab":        KeyFocusNext,
	"shift+tab":  KeyFocusPrev,
	">":          KeyGrowPane,
	"<":          KeyShrinkPane,
	"t":          KeyNewTab,
	"X":          KeyCloseTab,
	"]":          KeyNextTab,
	"[":          KeyPrevTab,
	"w":          KeyWorktree,
	"j":          KeyJobs,
	"C":          KeyCancelJob,
	"r":          KeyRetryJob,
	"y":          KeyCopyDiag,
	"o":          KeyOpenWorktree,
	"enter":      KeyEnterFocus,
	"i":          KeyEnterFocus,
	"ctrl+@":     KeyExitFocus,
	"ctrl+space": KeyExitFocus,
}

// GlobalkeyBindings is a global, immutable map of KeyName to the
// key.Binding carrying its help text.
var GlobalkeyBindings = map[KeyName]key.Binding{
	KeyQuit: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "quit"),
	),
	KeyHelp: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	KeySplitRight: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "split right"),
	),
	KeySplitDown: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "split down"),
	),
	KeyClosePane: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "close pane"),
	),
	KeyFocusNext: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next pane"),
	),
	KeyFocusPrev: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "prev pane"),
	),
	KeyGrowPane: key.NewBinding(
		key.WithKeys(">"),
		key.WithHelp(">", "grow pane"),
	),
	KeyShrinkPane: key.NewBinding(
		key.WithKeys("<"),
		key.WithHelp("<", "shrink pane"),
	),
	KeyNewTab: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "new tab"),
	),
	KeyCloseTab: key.NewBinding(
		key.WithKeys("X"),
		key.WithHelp("X", "close tab"),
	),
	KeyNextTab: key.NewBinding(
		key.WithKeys("]"),
		key.WithHelp("]", "next tab"),
	),
	KeyPrevTab: key.NewBinding(
		key.WithKeys("["),
		key.WithHelp("[", "prev tab"),
	),
	KeyWorktree: key.NewBinding(
		key.WithKeys("w"),
		key.WithHelp("w", "new worktree"),
	),
	KeyJobs: key.NewBinding(
		key.WithKeys("j"),
		key.WithHelp("j", "worktree jobs"),
	),
	KeyCancelJob: key.NewBinding(
		key.WithKeys("C"),
		key.WithHelp("C", "cancel job"),
	),
	KeyRetryJob: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "retry job"),
	),
	KeyCopyDiag: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "copy diagnostics"),
	),
	KeyOpenWorktree: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "open worktree"),
	),
	KeyEnterFocus: key.NewBinding(
		key.WithKeys("enter", "i"),
		key.WithHelp("enter", "focus shell"),
	),
	KeyExitFocus: key.NewBinding(
		key.WithKeys("ctrl+space"),
		key.WithHelp("ctrl+space", "leave shell"),
	),
}
