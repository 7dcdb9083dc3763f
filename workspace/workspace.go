// Package workspace models the per-project terminal workspace: tabs holding
// split-pane trees, the sessions those panes reference, and persistence of
// the whole structure across runs.
package workspace

import (
	"github.com/google/uuid"

	"github.com/kastheco/haven/workspace/layout"
)

// Session is a logical terminal identity. It may or may not currently have a
// live process backing it; SavedState carries the last serialized buffer so
// a restored pane shows content before the shell reconnects.
type Session struct {
	ID         string `json:"id"`
	Cwd        string `json:"cwd"`
	SavedState string `json:"savedState,omitempty"`
}

// Tab is one workspace tab: a split tree plus which pane has focus.
type Tab struct {
	ID              string       `json:"id"`
	Title           string       `json:"title"`
	Root            *layout.Node `json:"root"`
	ActiveSessionID string       `json:"activeSessionId"`
}

// UIState holds view state worth restoring but not worth validating.
type UIState struct {
	QuickPanelOpen    bool   `json:"quickPanelOpen,omitempty"`
	QuickPanelCommand string `json:"quickPanelCommand,omitempty"`
}

// Workspace is the full persisted state for one project.
type Workspace struct {
	ProjectID   string              `json:"projectId"`
	ProjectPath string              `json:"projectPath"`
	Tabs        []*Tab              `json:"tabs"`
	ActiveTabID string              `json:"activeTabId"`
	Sessions    map[string]*Session `json:"sessions"`
	UI          UIState             `json:"ui"`
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// NewTab returns a tab with a single fresh pane rooted at projectPath. The
// caller must register the returned session in Workspace.Sessions; Normalize
// does this for loaded data.
func NewTab(title string) *Tab {
	sid := NewSessionID()
	return &Tab{
		ID:              uuid.NewString(),
		Title:           title,
		Root:            layout.NewPane(sid),
		ActiveSessionID: sid,
	}
}

// Default returns a fresh workspace: one tab, one pane, one session rooted
// at the project path.
func Default(projectID, projectPath string) *Workspace {
	tab := NewTab("Terminal")
	ws := &Workspace{
		ProjectID:   projectID,
		ProjectPath: projectPath,
		Tabs:        []*Tab{tab},
		ActiveTabID: tab.ID,
		Sessions:    make(map[string]*Session),
	}
	ws.Sessions[tab.ActiveSessionID] = &Session{ID: tab.ActiveSessionID, Cwd: projectPath}
	return ws
}

// ActiveTab returns the focused tab, or the first tab when the active id is
// stale. Returns nil only for an empty tab list, which Normalize prevents.
func (w *Workspace) ActiveTab() *Tab {
	for _, t := range w.Tabs {
		if t.ID == w.ActiveTabID {
			return t
		}
	}
	if len(w.Tabs) > 0 {
		return w.Tabs[0]
	}
	return nil
}

// Tab returns the tab with the given id, or nil.
func (w *Workspace) Tab(id string) *Tab {
	for _, t := range w.Tabs {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Clone returns a deep copy that is safe to read from another goroutine
// while the original keeps mutating. Layout trees are shared between the two:
// every layout transform returns a new tree instead of editing nodes in
// place, so the copy's trees never change underneath it.
func (w *Workspace) Clone() *Workspace {
	if w == nil {
		return nil
	}
	out := &Workspace{
		ProjectID:   w.ProjectID,
		ProjectPath: w.ProjectPath,
		ActiveTabID: w.ActiveTabID,
		Tabs:        make([]*Tab, 0, len(w.Tabs)),
		Sessions:    make(map[string]*Session, len(w.Sessions)),
		UI:          w.UI,
	}
	for _, t := range w.Tabs {
		tab := *t
		out.Tabs = append(out.Tabs, &tab)
	}
	for id, s := range w.Sessions {
		sess := *s
		out.Sessions[id] = &sess
	}
	return out
}

// SessionIDs returns every session id referenced by any tab, in tab order.
func (w *Workspace) SessionIDs() []string {
	var ids []string
	for _, t := range w.Tabs {
		ids = append(ids, layout.SessionIDs(t.Root)...)
	}
	return ids
}

// Normalize repairs a loaded workspace in place of rejecting it, so older or
// corrupted saves degrade to sensible defaults instead of data loss:
//
//   - nil input, empty tab list, or an unsalvageable tree becomes a default
//     single-pane workspace or tab
//   - split trees with mismatched ratios are rebuilt by layout.Repair
//   - panes referencing unknown sessions get entries invented for them
//   - sessions no tab references are dropped
//   - stale active ids fall back to the first tab / first leaf
//
// The result always satisfies the structural invariants, and normalizing
// twice yields the same workspace as normalizing once.
func Normalize(raw *Workspace, projectPath, projectID string) *Workspace {
	if raw == nil {
		return Default(projectID, projectPath)
	}

	ws := &Workspace{
		ProjectID:   projectID,
		ProjectPath: projectPath,
		ActiveTabID: raw.ActiveTabID,
		Sessions:    make(map[string]*Session),
		UI:          raw.UI,
	}

	for _, t := range raw.Tabs {
		if t == nil {
			continue
		}
		root := layout.Repair(t.Root)
		if root == nil {
			continue
		}
		tab := &Tab{
			ID:              t.ID,
			Title:           t.Title,
			Root:            root,
			ActiveSessionID: t.ActiveSessionID,
		}
		if tab.ID == "" {
			tab.ID = uuid.NewString()
		}
		if tab.Title == "" {
			tab.Title = "Terminal"
		}
		leaves := layout.SessionIDs(root)
		if _, ok := layout.CollectSessionIDs(root)[tab.ActiveSessionID]; !ok {
			tab.ActiveSessionID = leaves[0]
		}
		ws.Tabs = append(ws.Tabs, tab)
	}

	if len(ws.Tabs) == 0 {
		tab := NewTab("Terminal")
		ws.Tabs = append(ws.Tabs, tab)
	}
	if ws.Tab(ws.ActiveTabID) == nil {
		ws.ActiveTabID = ws.Tabs[0].ID
	}

	// Keep exactly the sessions the trees reference; invent missing ones,
	// drop orphans.
	for _, id := range ws.SessionIDs() {
		if s, ok := raw.Sessions[id]; ok && s != nil {
			kept := *s
			kept.ID = id
			if kept.Cwd == "" {
				kept.Cwd = projectPath
			}
			ws.Sessions[id] = &kept
			continue
		}
		ws.Sessions[id] = &Session{ID: id, Cwd: projectPath}
	}

	return ws
}
