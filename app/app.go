// Package app wires the terminal workspace together: the bubbletea home
// model owns the workspace tree, mounts pty sessions for the active tab's
// panes, and drives worktree jobs and persistence from key input.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kastheco/haven/config"
	"github.com/kastheco/haven/log"
	"github.com/kastheco/haven/project"
	"github.com/kastheco/haven/session/git"
	"github.com/kastheco/haven/session/pty"
	"github.com/kastheco/haven/ui"
	"github.com/kastheco/haven/ui/overlay"
	"github.com/kastheco/haven/workspace"
	"github.com/kastheco/haven/workspace/layout"
	"github.com/kastheco/haven/worktreeinit"
)

// windowLabel partitions registry keys per application window. The TUI has
// a single window.
const windowLabel = "main"

const tickInterval = 100 * time.Millisecond

type tickMsg time.Time

type jobProgressMsg worktreeinit.Progress

type overlayKind int

const (
	overlayNone overlayKind = iota
	overlayWorktree
	overlayJobs
	overlayHelp
)

// home is the root model of the workspace TUI.
type home struct {
	ctx context.Context
	cfg *config.Config

	proj project.Project

	ws       *workspace.Workspace
	saver    *workspace.Saver
	registry *pty.Registry
	jobs     *worktreeinit.Manager
	git      *git.Client

	tabBar    *ui.TabBar
	statusBar *ui.StatusBar

	width, height int

	// focusMode forwards keystrokes to the focused pane's shell.
	focusMode bool

	overlay     overlayKind
	branchInput *overlay.BranchInputOverlay
	jobCursor   int

	// mounted tracks the unsubscribe function per mounted session.
	mounted map[string]func()

	// exited remembers sessions whose shell died, for the pane notice.
	// Written from registry reader goroutines, read from the tea loop.
	exitedMu sync.Mutex
	exited   map[string]int

	// branch is the repo's current branch, refreshed lazily for the
	// status bar.
	branch   string
	branchAt time.Time

	jobCh     <-chan worktreeinit.Progress
	jobCancel func()

	toast     string
	toastErr  bool
	toastTime time.Time

	errMsg string
	quit   bool
}

// Run starts the workspace TUI for the given project and blocks until exit.
func Run(ctx context.Context, cfg *config.Config, proj project.Project, store project.Store) error {
	wsDir, err := config.WorkspacesDir()
	if err != nil {
		return err
	}
	fileStore, err := workspace.NewFileStore(wsDir)
	if err != nil {
		return err
	}

	raw, err := fileStore.Load(proj.Path)
	if err != nil {
		log.WarningLog.Printf("workspace load failed: %v", err)
	}
	ws := workspace.Normalize(raw, proj.Path, proj.ID)

	registry := pty.NewRegistry(cfg.ResolveShell(), cfg.GracePeriod())
	saver := workspace.NewSaver(fileStore, func(sessionID string) (string, bool) {
		snap, ok := registry.Snapshot(pty.Key{WindowLabel: windowLabel, SessionID: sessionID})
		if !ok {
			return "", false
		}
		return truncateLines(snap, cfg.ScrollbackLines), true
	}, cfg.SaveDebounce())

	gitClient := git.NewClient()
	jobs := worktreeinit.NewManager(gitClient, store, worktreeinit.NewSetupRunner(cfg.ResolveShell()))
	jobs.WorktreeDir = cfg.WorktreeDirName

	h := newHome(ctx, cfg, proj, ws, saver, registry, jobs, gitClient)
	defer h.teardown()

	p := tea.NewProgram(h, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}

func newHome(
	ctx context.Context,
	cfg *config.Config,
	proj project.Project,
	ws *workspace.Workspace,
	saver *workspace.Saver,
	registry *pty.Registry,
	jobs *worktreeinit.Manager,
	gitClient *git.Client,
) *home {
	jobCh, jobCancel := jobs.Subscribe()
	return &home{
		ctx:       ctx,
		cfg:       cfg,
		proj:      proj,
		ws:        ws,
		saver:     saver,
		registry:  registry,
		jobs:      jobs,
		git:       gitClient,
		tabBar:    ui.NewTabBar(),
		statusBar: ui.NewStatusBar(),
		mounted:   make(map[string]func()),
		exited:    make(map[string]int),
		jobCh:     jobCh,
		jobCancel: jobCancel,
	}
}

func (h *home) Init() tea.Cmd {
	return tea.Batch(h.tick(), h.waitForJob())
}

func (h *home) tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (h *home) waitForJob() tea.Cmd {
	return func() tea.Msg {
		p, ok := <-h.jobCh
		if !ok {
			return nil
		}
		return jobProgressMsg(p)
	}
}

func (h *home) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h.width, h.height = msg.Width, msg.Height
		h.tabBar.SetSize(msg.Width)
		h.statusBar.SetSize(msg.Width)
		h.syncMounts()
		h.resizePanes()
		return h, nil

	case tickMsg:
		if h.quit {
			return h, tea.Quit
		}
		return h, h.tick()

	case jobProgressMsg:
		if msg.Step.Terminal() {
			if msg.Step == worktreeinit.StepFailed {
				h.showToast(fmt.Sprintf("worktree failed: %s", msg.Err), true)
			} else if msg.Step == worktreeinit.StepReady {
				h.showToast("worktree ready", false)
			}
		}
		return h, h.waitForJob()

	case tea.KeyMsg:
		return h.handleKey(msg)
	}
	return h, nil
}

// paneArea returns the cell area available to the split tree.
func (h *home) paneArea() (int, int) {
	w, hgt := h.width, h.height-2 // tab bar + status bar
	if w < 2 {
		w = 2
	}
	if hgt < 2 {
		hgt = 2
	}
	return w, hgt
}

// syncMounts acquires sessions of the active tab and releases the rest.
// Release starts the grace timer, so flipping between tabs doesn't kill
// shells.
func (h *home) syncMounts() {
	tab := h.ws.ActiveTab()
	want := make(map[string]bool)
	if tab != nil {
		for id := range layout.CollectSessionIDs(tab.Root) {
			want[id] = true
		}
	}

	for id, unsub := range h.mounted {
		if want[id] {
			continue
		}
		unsub()
		h.registry.Release(pty.Key{WindowLabel: windowLabel, SessionID: id})
		delete(h.mounted, id)
	}

	if tab == nil {
		return
	}
	w, hgt := h.paneArea()
	rects := ui.PaneRects(tab.Root, w, hgt)
	for id := range want {
		if _, ok := h.mounted[id]; ok {
			continue
		}
		h.mountSession(id, rects[id])
	}
}

func (h *home) mountSession(id string, rect ui.Rect) {
	key := pty.Key{WindowLabel: windowLabel, SessionID: id}
	h.registry.Acquire(key)

	sess := h.ws.Sessions[id]
	cwd := h.proj.Path
	saved := ""
	if sess != nil {
		if sess.Cwd != "" {
			cwd = sess.Cwd
		}
		saved = sess.SavedState
	}

	cols, rows := rect.Inner()
	if err := h.registry.EnsureProcess(h.ctx, key, pty.SpawnSpec{
		Cwd:   cwd,
		Cols:  cols,
		Rows:  rows,
		Saved: saved,
	}); err != nil {
		h.errMsg = err.Error()
		log.ErrorLog.Printf("mount %s: %v", id, err)
	}

	unsub, err := h.registry.SubscribeOutput(key, func(ev pty.Event) error {
		if ev.Exited {
			h.markExited(id, ev.ExitCode)
		}
		return nil
	})
	if err != nil {
		log.WarningLog.Printf("subscribe %s: %v", id, err)
		unsub = func() {}
	}
	h.mounted[id] = unsub
}

// resizePanes pushes the current pane geometry to every mounted pty.
func (h *home) resizePanes() {
	tab := h.ws.ActiveTab()
	if tab == nil {
		return
	}
	w, hgt := h.paneArea()
	for id, rect := range ui.PaneRects(tab.Root, w, hgt) {
		cols, rows := rect.Inner()
		h.registry.Resize(pty.Key{WindowLabel: windowLabel, SessionID: id}, cols, rows)
	}
}

func (h *home) showToast(text string, isErr bool) {
	h.toast = text
	h.toastErr = isErr
	h.toastTime = time.Now()
}

// teardown flushes state and kills the shells. Run on program exit.
func (h *home) teardown() {
	h.jobCancel()
	h.saver.MarkDirty(h.ws)
	h.saver.Flush()
	h.registry.CloseAll()
}

func (h *home) View() string {
	tab := h.ws.ActiveTab()

	tabs := make([]ui.TabInfo, 0, len(h.ws.Tabs))
	for _, t := range h.ws.Tabs {
		tabs = append(tabs, ui.TabInfo{
			Title:  t.Title,
			Active: t.ID == h.ws.ActiveTabID,
			Panes:  len(layout.CollectSessionIDs(t.Root)),
		})
	}

	var root *layout.Node
	activeID := ""
	if tab != nil {
		root = tab.Root
		activeID = tab.ActiveSessionID
	}
	w, hgt := h.paneArea()
	panes := ui.RenderPanes(root, w, hgt, activeID, h.paneContent)

	h.statusBar.SetData(h.statusData())
	view := h.tabBar.Render(tabs) + "\n" + panes + "\n" + h.statusBar.Render()

	switch h.overlay {
	case overlayWorktree:
		view = overlay.PlaceOverlay(0, 0, h.branchInput.Render(), view, true)
	case overlayJobs:
		view = overlay.PlaceOverlay(0, 0, h.renderJobs(), view, true)
	case overlayHelp:
		view = overlay.PlaceOverlay(0, 0, h.renderHelp(), view, true)
	}

	if h.toast != "" && time.Since(h.toastTime) < 4*time.Second {
		view = overlay.PlaceOverlay(2, 1, h.renderToast(), view, false)
	}

	return ui.FillHeight(view, h.height)
}

func (h *home) markExited(id string, code int) {
	h.exitedMu.Lock()
	h.exited[id] = code
	h.exitedMu.Unlock()
}

func (h *home) exitCode(id string) (int, bool) {
	h.exitedMu.Lock()
	defer h.exitedMu.Unlock()
	code, ok := h.exited[id]
	return code, ok
}

func (h *home) clearExited(id string) {
	h.exitedMu.Lock()
	delete(h.exited, id)
	h.exitedMu.Unlock()
}

func (h *home) paneContent(sessionID string, cols, rows int) string {
	if code, dead := h.exitCode(sessionID); dead {
		return fmt.Sprintf("shell exited (%d)\npress enter to restart", code)
	}
	snap, ok := h.registry.Snapshot(pty.Key{WindowLabel: windowLabel, SessionID: sessionID})
	if !ok {
		return "starting shell..."
	}
	return snap
}

func (h *home) statusData() ui.StatusBarData {
	data := ui.StatusBarData{
		ProjectName:  h.proj.Name,
		LiveSessions: len(h.registry.ListSessions(windowLabel)),
		FocusMode:    h.focusMode,
	}
	data.Branch = h.currentBranch()
	for _, job := range h.jobs.Jobs(h.proj.ID) {
		if !job.Step.Terminal() {
			data.JobLabel = fmt.Sprintf("worktree %s: %s", job.Branch, job.Step)
			break
		}
		if job.Step == worktreeinit.StepFailed && data.JobLabel == "" {
			data.JobLabel = fmt.Sprintf("worktree %s failed", job.Branch)
			data.JobFailed = true
		}
	}
	return data
}

// currentBranch refreshes the status bar's branch name at most every few
// seconds; the status bar redraws on every tick.
func (h *home) currentBranch() string {
	if time.Since(h.branchAt) < 3*time.Second {
		return h.branch
	}
	h.branchAt = time.Now()
	h.branch = ""
	if branches, err := h.git.ListBranches(h.proj.Path); err == nil {
		for _, b := range branches {
			if b.IsCurrent {
				h.branch = b.Name
				break
			}
		}
	}
	return h.branch
}

func (h *home) renderToast() string {
	style := toastInfoStyle
	if h.toastErr {
		style = toastErrStyle
	}
	return style.Render(h.toast)
}

// truncateLines keeps the trailing max lines of a saved terminal state so
// workspace files stay bounded.
func truncateLines(s string, max int) string {
	if max <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= max {
		return s
	}
	return strings.Join(lines[len(lines)-max:], "\n")
}
