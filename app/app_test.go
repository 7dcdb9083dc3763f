package app

import (
	"context"
	"os"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kastheco/haven/config"
	"github.com/kastheco/haven/log"
	"github.com/kastheco/haven/project"
	"github.com/kastheco/haven/session/git"
	"github.com/kastheco/haven/session/pty"
	"github.com/kastheco/haven/workspace"
	"github.com/kastheco/haven/workspace/layout"
	"github.com/kastheco/haven/worktreeinit"
)

func TestMain(m *testing.M) {
	log.Initialize(false)
	defer log.Close()
	os.Exit(m.Run())
}

func newTestHome(t *testing.T) *home {
	t.Helper()
	dir := t.TempDir()

	fileStore, err := workspace.NewFileStore(t.TempDir())
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	registry := pty.NewRegistry("/bin/sh", 50*time.Millisecond)
	t.Cleanup(registry.CloseAll)

	saver := workspace.NewSaver(fileStore, func(sessionID string) (string, bool) {
		return registry.Snapshot(pty.Key{WindowLabel: windowLabel, SessionID: sessionID})
	}, 10*time.Millisecond)

	proj := project.Project{ID: "p1", Name: "demo", Path: dir}
	ws := workspace.Default(proj.ID, proj.Path)

	gitClient := git.NewClient()
	jobs := worktreeinit.NewManager(gitClient, nil, worktreeinit.NewSetupRunner("/bin/sh"))

	h := newHome(context.Background(), cfg, proj, ws, saver, registry, jobs, gitClient)
	t.Cleanup(h.jobCancel)

	m, _ := h.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m.(*home)
}

func pressKey(t *testing.T, h *home, keyStr string) *home {
	t.Helper()
	var msg tea.KeyMsg
	switch keyStr {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+space":
		msg = tea.KeyMsg{Type: tea.KeyCtrlAt}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keyStr)}
	}
	m, _ := h.Update(msg)
	return m.(*home)
}

func activeLeafCount(h *home) int {
	return len(layout.SessionIDs(h.ws.ActiveTab().Root))
}

func TestSplitPaneAddsSessionAndMount(t *testing.T) {
	h := newTestHome(t)
	require.Equal(t, 1, activeLeafCount(h))

	h = pressKey(t, h, "v")

	assert.Equal(t, 2, activeLeafCount(h))
	assert.Len(t, h.ws.Sessions, 2)
	assert.Len(t, h.mounted, 2)
	// Focus moves to the new pane.
	tab := h.ws.ActiveTab()
	assert.Contains(t, layout.CollectSessionIDs(tab.Root), tab.ActiveSessionID)
}

func TestSplitDownNestsAcrossOrientation(t *testing.T) {
	h := newTestHome(t)
	h = pressKey(t, h, "v")
	h = pressKey(t, h, "s")

	assert.Equal(t, 3, activeLeafCount(h))
	root := h.ws.ActiveTab().Root
	require.True(t, root.Valid())
	assert.Equal(t, layout.Horizontal, root.Orientation)
}

func TestClosePaneReleasesSession(t *testing.T) {
	h := newTestHome(t)
	h = pressKey(t, h, "v")
	closing := h.ws.ActiveTab().ActiveSessionID

	h = pressKey(t, h, "x")

	assert.Equal(t, 1, activeLeafCount(h))
	assert.NotContains(t, h.ws.Sessions, closing)
	assert.NotContains(t, h.mounted, closing)
}

func TestCloseLastPaneClosesTabAndQuits(t *testing.T) {
	h := newTestHome(t)
	h = pressKey(t, h, "x")

	assert.Empty(t, h.ws.Tabs)
	assert.True(t, h.quit)
	assert.Empty(t, h.mounted)
}

func TestFocusCycling(t *testing.T) {
	h := newTestHome(t)
	h = pressKey(t, h, "v")
	second := h.ws.ActiveTab().ActiveSessionID

	h = pressKey(t, h, "tab")
	assert.NotEqual(t, second, h.ws.ActiveTab().ActiveSessionID)
	h = pressKey(t, h, "tab")
	assert.Equal(t, second, h.ws.ActiveTab().ActiveSessionID)
}

func TestGrowPaneMovesDivider(t *testing.T) {
	h := newTestHome(t)
	h = pressKey(t, h, "v")
	before := h.ws.ActiveTab().Root.Ratios[0]

	h = pressKey(t, h, "<")

	after := h.ws.ActiveTab().Root.Ratios[0]
	assert.NotEqual(t, before, after)
	assert.InDelta(t, 1.0, h.ws.ActiveTab().Root.Ratios[0]+h.ws.ActiveTab().Root.Ratios[1], 1e-9)
}

func TestNewTabAndCycle(t *testing.T) {
	h := newTestHome(t)
	first := h.ws.ActiveTabID

	h = pressKey(t, h, "t")
	require.Len(t, h.ws.Tabs, 2)
	assert.NotEqual(t, first, h.ws.ActiveTabID)

	h = pressKey(t, h, "]")
	assert.Equal(t, first, h.ws.ActiveTabID)
	h = pressKey(t, h, "[")
	assert.NotEqual(t, first, h.ws.ActiveTabID)
}

func TestCloseTabReleasesItsSessions(t *testing.T) {
	h := newTestHome(t)
	h = pressKey(t, h, "t")
	h = pressKey(t, h, "v")
	require.Len(t, h.ws.Sessions, 3)

	h = pressKey(t, h, "X")

	assert.Len(t, h.ws.Tabs, 1)
	assert.Len(t, h.ws.Sessions, 1)
	assert.Len(t, h.mounted, 1)
}

func TestFocusModeSwallowsCommandKeys(t *testing.T) {
	h := newTestHome(t)
	h = pressKey(t, h, "enter")
	require.True(t, h.focusMode)

	h = pressKey(t, h, "v")
	assert.Equal(t, 1, activeLeafCount(h))

	h = pressKey(t, h, "ctrl+space")
	assert.False(t, h.focusMode)

	h = pressKey(t, h, "v")
	assert.Equal(t, 2, activeLeafCount(h))
}

func TestWorktreeOverlayOpenAndCancel(t *testing.T) {
	h := newTestHome(t)
	h = pressKey(t, h, "w")
	require.Equal(t, overlayWorktree, h.overlay)
	require.NotNil(t, h.branchInput)

	h = pressKey(t, h, "esc")
	assert.Equal(t, overlayNone, h.overlay)
	assert.Nil(t, h.branchInput)
}

func TestWorktreeSubmitOnNonRepoShowsFailure(t *testing.T) {
	h := newTestHome(t)
	h = pressKey(t, h, "w")
	h = pressKey(t, h, "feature")
	h = pressKey(t, h, "enter")

	assert.Equal(t, overlayNone, h.overlay)
	require.Eventually(t, func() bool {
		jobs := h.jobs.Jobs(h.proj.ID)
		return len(jobs) == 1 && jobs[0].Step == worktreeinit.StepFailed
	}, 5*time.Second, 20*time.Millisecond)
}

func TestJobsOverlayToggle(t *testing.T) {
	h := newTestHome(t)
	h = pressKey(t, h, "j")
	require.Equal(t, overlayJobs, h.overlay)
	assert.Contains(t, h.renderJobs(), "no jobs yet")

	h = pressKey(t, h, "esc")
	assert.Equal(t, overlayNone, h.overlay)
}

func TestHelpOverlayToggle(t *testing.T) {
	h := newTestHome(t)
	h = pressKey(t, h, "?")
	require.Equal(t, overlayHelp, h.overlay)
	assert.Contains(t, h.renderHelp(), "split right")

	h = pressKey(t, h, "q")
	assert.Equal(t, overlayNone, h.overlay)
}

func TestViewSmoke(t *testing.T) {
	h := newTestHome(t)
	view := h.View()
	assert.Contains(t, view, "demo")
	assert.Contains(t, view, "Terminal")
}

func TestKeyToBytes(t *testing.T) {
	assert.Equal(t, []byte("ls"), keyToBytes(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("ls")}))
	assert.Equal(t, []byte{0x1b, 'f'}, keyToBytes(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f"), Alt: true}))
	assert.Equal(t, []byte{'\r'}, keyToBytes(tea.KeyMsg{Type: tea.KeyEnter}))
	assert.Equal(t, []byte{0x03}, keyToBytes(tea.KeyMsg{Type: tea.KeyCtrlC}))
	assert.Equal(t, []byte("\x1b[A"), keyToBytes(tea.KeyMsg{Type: tea.KeyUp}))
	assert.Equal(t, []byte("\x1b[Z"), keyToBytes(tea.KeyMsg{Type: tea.KeyShiftTab}))
}

func TestTruncateLines(t *testing.T) {
	assert.Equal(t, "c\nd", truncateLines("a\nb\nc\nd", 2))
	assert.Equal(t, "a\nb", truncateLines("a\nb", 5))
	assert.Equal(t, "a\nb", truncateLines("a\nb", 0))
}
