package app

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kastheco/haven/keys"
	"github.com/kastheco/haven/log"
	"github.com/kastheco/haven/session/pty"
	"github.com/kastheco/haven/ui"
	"github.com/kastheco/haven/ui/overlay"
	"github.com/kastheco/haven/workspace"
	"github.com/kastheco/haven/workspace/layout"
	"github.com/kastheco/haven/worktreeinit"
)

// ratioStep is how much one grow/shrink keypress moves a divider.
const ratioStep = 0.05

func (h *home) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch h.overlay {
	case overlayWorktree:
		return h.handleWorktreeKey(msg)
	case overlayJobs:
		return h.handleJobsKey(msg)
	case overlayHelp:
		h.overlay = overlayNone
		return h, nil
	}

	if h.focusMode {
		return h.handleFocusKey(msg)
	}

	name, ok := keys.GlobalKeyStringsMap[msg.String()]
	if !ok {
		return h, nil
	}

	switch name {
	case keys.KeyQuit:
		h.quit = true
		return h, tea.Quit
	case keys.KeyHelp:
		h.overlay = overlayHelp
	case keys.KeySplitRight:
		h.splitActivePane(layout.DirRight)
	case keys.KeySplitDown:
		h.splitActivePane(layout.DirDown)
	case keys.KeyClosePane:
		return h.closeActivePane()
	case keys.KeyFocusNext:
		h.cycleFocus(1)
	case keys.KeyFocusPrev:
		h.cycleFocus(-1)
	case keys.KeyGrowPane:
		h.nudgeActivePane(ratioStep)
	case keys.KeyShrinkPane:
		h.nudgeActivePane(-ratioStep)
	case keys.KeyNewTab:
		h.newTab("Terminal", h.proj.Path)
	case keys.KeyCloseTab:
		return h.closeActiveTab()
	case keys.KeyNextTab:
		h.cycleTab(1)
	case keys.KeyPrevTab:
		h.cycleTab(-1)
	case keys.KeyWorktree:
		h.branchInput = overlay.NewBranchInputOverlay(true)
		h.overlay = overlayWorktree
	case keys.KeyJobs:
		h.jobCursor = 0
		h.overlay = overlayJobs
	case keys.KeyEnterFocus:
		h.enterFocus()
	}
	return h, nil
}

// handleFocusKey forwards raw key bytes to the focused pane's shell.
func (h *home) handleFocusKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if name, ok := keys.GlobalKeyStringsMap[msg.String()]; ok && name == keys.KeyExitFocus {
		h.focusMode = false
		return h, nil
	}

	tab := h.ws.ActiveTab()
	if tab == nil || tab.ActiveSessionID == "" {
		h.focusMode = false
		return h, nil
	}
	key := pty.Key{WindowLabel: windowLabel, SessionID: tab.ActiveSessionID}

	data := keyToBytes(msg)
	if len(data) == 0 {
		return h, nil
	}
	if err := h.registry.Write(key, data); err != nil {
		if errors.Is(err, pty.ErrNoProcess) && msg.Type == tea.KeyEnter {
			h.restartSession(tab.ActiveSessionID)
			return h, nil
		}
		log.WarningLog.Printf("pty write: %v", err)
	}
	return h, nil
}

func (h *home) handleWorktreeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	h.branchInput.HandleKeyPress(msg)
	if h.branchInput.Canceled {
		h.overlay = overlayNone
		h.branchInput = nil
		return h, nil
	}
	if !h.branchInput.Submitted {
		return h, nil
	}

	req := worktreeinit.Request{
		ProjectID:    h.proj.ID,
		ProjectPath:  h.proj.Path,
		Branch:       h.branchInput.Value(),
		CreateBranch: h.branchInput.CreateBranch,
	}
	h.overlay = overlayNone
	h.branchInput = nil
	if _, err := h.jobs.Start(req); err != nil {
		h.showToast(err.Error(), true)
	} else {
		h.showToast(fmt.Sprintf("provisioning worktree %s", req.Branch), false)
	}
	return h, nil
}

func (h *home) handleJobsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	jobs := h.jobs.Jobs(h.proj.ID)
	if h.jobCursor >= len(jobs) {
		h.jobCursor = 0
	}

	switch msg.String() {
	case "esc", "q", "j":
		h.overlay = overlayNone
	case "down", "ctrl+n":
		if h.jobCursor < len(jobs)-1 {
			h.jobCursor++
		}
	case "up", "ctrl+p":
		if h.jobCursor > 0 {
			h.jobCursor--
		}
	case "C":
		if job, ok := h.selectedJob(jobs); ok {
			if err := h.jobs.Cancel(job.ID); err != nil {
				h.showToast(err.Error(), true)
			}
		}
	case "r":
		if job, ok := h.selectedJob(jobs); ok {
			if err := h.jobs.Retry(job.ID); err != nil {
				h.showToast(err.Error(), true)
			}
		}
	case "y":
		if job, ok := h.selectedJob(jobs); ok {
			diag, err := h.jobs.Diagnostics(job.ID)
			if err == nil {
				err = clipboard.WriteAll(diag)
			}
			if err != nil {
				h.showToast(err.Error(), true)
			} else {
				h.showToast("diagnostics copied", false)
			}
		}
	case "o":
		if job, ok := h.selectedJob(jobs); ok {
			if job.Step != worktreeinit.StepReady {
				h.showToast("worktree is not ready yet", true)
				return h, nil
			}
			h.overlay = overlayNone
			h.newTab(job.Branch, job.WorktreePath)
		}
	}
	return h, nil
}

func (h *home) selectedJob(jobs []worktreeinit.Job) (worktreeinit.Job, bool) {
	if h.jobCursor < 0 || h.jobCursor >= len(jobs) {
		return worktreeinit.Job{}, false
	}
	return jobs[h.jobCursor], true
}

func (h *home) enterFocus() {
	tab := h.ws.ActiveTab()
	if tab == nil || tab.ActiveSessionID == "" {
		return
	}
	if _, dead := h.exitCode(tab.ActiveSessionID); dead {
		h.restartSession(tab.ActiveSessionID)
	}
	h.focusMode = true
}

// restartSession respawns the shell of a pane whose process exited.
func (h *home) restartSession(id string) {
	h.clearExited(id)
	key := pty.Key{WindowLabel: windowLabel, SessionID: id}

	cwd := h.proj.Path
	if sess := h.ws.Sessions[id]; sess != nil && sess.Cwd != "" {
		cwd = sess.Cwd
	}

	tab := h.ws.ActiveTab()
	cols, rows := 80, 24
	if tab != nil {
		w, hgt := h.paneArea()
		if rect, ok := ui.PaneRects(tab.Root, w, hgt)[id]; ok {
			cols, rows = rect.Inner()
		}
	}
	if err := h.registry.EnsureProcess(h.ctx, key, pty.SpawnSpec{Cwd: cwd, Cols: cols, Rows: rows}); err != nil {
		h.showToast(err.Error(), true)
	}
}

func (h *home) splitActivePane(dir layout.Direction) {
	tab := h.ws.ActiveTab()
	if tab == nil {
		return
	}
	newID := workspace.NewSessionID()
	next := layout.SplitPane(tab.Root, tab.ActiveSessionID, dir, newID)
	if layout.Equal(next, tab.Root) {
		return
	}
	tab.Root = next
	tab.ActiveSessionID = newID
	h.ws.Sessions[newID] = &workspace.Session{ID: newID, Cwd: h.sessionCwd(tab)}
	h.syncMounts()
	h.resizePanes()
	h.saver.MarkDirty(h.ws)
}

// sessionCwd picks the cwd for a new pane: the focused sibling's cwd so a
// split opens where you are working, else the project root.
func (h *home) sessionCwd(tab *workspace.Tab) string {
	if sess := h.ws.Sessions[tab.ActiveSessionID]; sess != nil && sess.Cwd != "" {
		return sess.Cwd
	}
	return h.proj.Path
}

func (h *home) closeActivePane() (tea.Model, tea.Cmd) {
	tab := h.ws.ActiveTab()
	if tab == nil {
		return h, nil
	}
	closing := tab.ActiveSessionID
	next := layout.RemovePane(tab.Root, closing)
	delete(h.ws.Sessions, closing)
	h.clearExited(closing)

	if next == nil {
		return h.removeTab(tab.ID)
	}
	tab.Root = next
	if ids := layout.SessionIDs(next); len(ids) > 0 {
		tab.ActiveSessionID = ids[0]
	}
	h.syncMounts()
	h.resizePanes()
	h.saver.MarkDirty(h.ws)
	return h, nil
}

func (h *home) cycleFocus(step int) {
	tab := h.ws.ActiveTab()
	if tab == nil {
		return
	}
	ids := layout.SessionIDs(tab.Root)
	if len(ids) < 2 {
		return
	}
	cur := 0
	for i, id := range ids {
		if id == tab.ActiveSessionID {
			cur = i
			break
		}
	}
	tab.ActiveSessionID = ids[(cur+step+len(ids))%len(ids)]
	h.saver.MarkDirty(h.ws)
}

// nudgeActivePane moves the divider next to the focused pane by delta.
func (h *home) nudgeActivePane(delta float64) {
	tab := h.ws.ActiveTab()
	if tab == nil {
		return
	}
	path, ok := layout.FindPath(tab.Root, tab.ActiveSessionID)
	if !ok || len(path) == 0 {
		return
	}

	parent := tab.Root
	for _, i := range path[:len(path)-1] {
		parent = parent.Children[i]
	}
	idx := path[len(path)-1]

	ratios := make([]float64, len(parent.Ratios))
	copy(ratios, parent.Ratios)
	if idx < len(ratios)-1 {
		ratios[idx] += delta
	} else {
		// Last child: move the divider on its left instead.
		ratios[idx-1] -= delta
	}

	next := layout.UpdateSplitRatios(tab.Root, path[:len(path)-1], ratios)
	if layout.Equal(next, tab.Root) {
		return
	}
	tab.Root = next
	h.resizePanes()
	h.saver.MarkDirty(h.ws)
}

func (h *home) newTab(title, cwd string) {
	tab := workspace.NewTab(title)
	h.ws.Sessions[tab.ActiveSessionID] = &workspace.Session{ID: tab.ActiveSessionID, Cwd: cwd}
	h.ws.Tabs = append(h.ws.Tabs, tab)
	h.ws.ActiveTabID = tab.ID
	h.syncMounts()
	h.resizePanes()
	h.saver.MarkDirty(h.ws)
}

func (h *home) closeActiveTab() (tea.Model, tea.Cmd) {
	tab := h.ws.ActiveTab()
	if tab == nil {
		return h, nil
	}
	return h.removeTab(tab.ID)
}

func (h *home) removeTab(tabID string) (tea.Model, tea.Cmd) {
	idx := -1
	for i, t := range h.ws.Tabs {
		if t.ID == tabID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return h, nil
	}

	for id := range layout.CollectSessionIDs(h.ws.Tabs[idx].Root) {
		delete(h.ws.Sessions, id)
		h.clearExited(id)
	}
	h.ws.Tabs = append(h.ws.Tabs[:idx], h.ws.Tabs[idx+1:]...)

	if len(h.ws.Tabs) == 0 {
		h.quit = true
		h.syncZeroTabs()
		return h, tea.Quit
	}
	if idx >= len(h.ws.Tabs) {
		idx = len(h.ws.Tabs) - 1
	}
	h.ws.ActiveTabID = h.ws.Tabs[idx].ID
	h.syncMounts()
	h.resizePanes()
	h.saver.MarkDirty(h.ws)
	return h, nil
}

// syncZeroTabs releases every mounted session when the last tab closes.
func (h *home) syncZeroTabs() {
	for id, unsub := range h.mounted {
		unsub()
		h.registry.Release(pty.Key{WindowLabel: windowLabel, SessionID: id})
		delete(h.mounted, id)
	}
}

func (h *home) cycleTab(step int) {
	if len(h.ws.Tabs) < 2 {
		return
	}
	cur := 0
	for i, t := range h.ws.Tabs {
		if t.ID == h.ws.ActiveTabID {
			cur = i
			break
		}
	}
	h.ws.ActiveTabID = h.ws.Tabs[(cur+step+len(h.ws.Tabs))%len(h.ws.Tabs)].ID
	h.syncMounts()
	h.resizePanes()
	h.saver.MarkDirty(h.ws)
}

// keyToBytes translates a bubbletea key press into the bytes a terminal
// would send for it.
func keyToBytes(msg tea.KeyMsg) []byte {
	switch msg.Type {
	case tea.KeyRunes:
		if msg.Alt {
			return append([]byte{0x1b}, []byte(string(msg.Runes))...)
		}
		return []byte(string(msg.Runes))
	case tea.KeyUp:
		return []byte("\x1b[A")
	case tea.KeyDown:
		return []byte("\x1b[B")
	case tea.KeyRight:
		return []byte("\x1b[C")
	case tea.KeyLeft:
		return []byte("\x1b[D")
	case tea.KeyHome:
		return []byte("\x1b[H")
	case tea.KeyEnd:
		return []byte("\x1b[F")
	case tea.KeyPgUp:
		return []byte("\x1b[5~")
	case tea.KeyPgDown:
		return []byte("\x1b[6~")
	case tea.KeyDelete:
		return []byte("\x1b[3~")
	case tea.KeyInsert:
		return []byte("\x1b[2~")
	case tea.KeyShiftTab:
		return []byte("\x1b[Z")
	case tea.KeySpace:
		return []byte(" ")
	}
	// Control characters map straight through: ctrl+a..ctrl+z, enter, tab,
	// esc, backspace.
	if msg.Type >= 0 && msg.Type < 256 {
		return []byte{byte(msg.Type)}
	}
	return nil
}
