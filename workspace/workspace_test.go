package workspace

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kastheco/haven/log"
	"github.com/kastheco/haven/workspace/layout"
)

func TestMain(m *testing.M) {
	log.Initialize(false)
	defer log.Close()
	os.Exit(m.Run())
}

func TestDefaultWorkspace(t *testing.T) {
	ws := Default("p1", "/tmp/proj")

	require.Len(t, ws.Tabs, 1)
	tab := ws.Tabs[0]
	assert.Equal(t, tab.ID, ws.ActiveTabID)
	require.True(t, tab.Root.IsPane())
	assert.Equal(t, tab.Root.SessionID, tab.ActiveSessionID)

	sess, ok := ws.Sessions[tab.ActiveSessionID]
	require.True(t, ok)
	assert.Equal(t, "/tmp/proj", sess.Cwd)
}

func TestNormalizeNil(t *testing.T) {
	ws := Normalize(nil, "/tmp/proj", "p1")
	require.Len(t, ws.Tabs, 1)
	assert.Equal(t, "p1", ws.ProjectID)
	assert.Equal(t, "/tmp/proj", ws.ProjectPath)
}

func TestNormalizeInventsMissingSessions(t *testing.T) {
	raw := &Workspace{
		Tabs: []*Tab{{
			ID:              "t1",
			Root:            layout.NewPane("s1"),
			ActiveSessionID: "s1",
		}},
		ActiveTabID: "t1",
		// Sessions map absent entirely.
	}

	ws := Normalize(raw, "/tmp/proj", "p1")
	sess, ok := ws.Sessions["s1"]
	require.True(t, ok, "referenced session should be invented")
	assert.Equal(t, "/tmp/proj", sess.Cwd)
}

func TestNormalizeDropsOrphanSessions(t *testing.T) {
	raw := Default("p1", "/tmp/proj")
	raw.Sessions["orphan"] = &Session{ID: "orphan", Cwd: "/tmp/proj"}

	ws := Normalize(raw, "/tmp/proj", "p1")
	_, ok := ws.Sessions["orphan"]
	assert.False(t, ok)
	assert.Len(t, ws.Sessions, 1)
}

func TestNormalizeRepairsBrokenTree(t *testing.T) {
	raw := &Workspace{
		Tabs: []*Tab{{
			ID: "t1",
			Root: &layout.Node{
				Orientation: layout.Horizontal,
				Children:    []*layout.Node{layout.NewPane("s1"), layout.NewPane("s2")},
				Ratios:      []float64{1}, // mismatched
			},
			ActiveSessionID: "gone",
		}},
		ActiveTabID: "bogus",
		Sessions:    map[string]*Session{},
	}

	ws := Normalize(raw, "/tmp/proj", "p1")
	tab := ws.Tabs[0]
	require.True(t, tab.Root.Valid())
	assert.Equal(t, "s1", tab.ActiveSessionID, "stale active session falls back to first leaf")
	assert.Equal(t, "t1", ws.ActiveTabID)
}

func TestNormalizeEmptyTabsGetsDefault(t *testing.T) {
	ws := Normalize(&Workspace{}, "/tmp/proj", "p1")
	require.Len(t, ws.Tabs, 1)
	assert.True(t, ws.Tabs[0].Root.IsPane())
	_, ok := ws.Sessions[ws.Tabs[0].ActiveSessionID]
	assert.True(t, ok)
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := &Workspace{
		Tabs: []*Tab{
			{ID: "t1", Root: layout.NewPane("s1"), ActiveSessionID: "nope"},
			{Root: &layout.Node{}},
		},
	}
	once := Normalize(raw, "/tmp/proj", "p1")
	twice := Normalize(once, "/tmp/proj", "p1")

	require.Equal(t, len(once.Tabs), len(twice.Tabs))
	for i := range once.Tabs {
		assert.Equal(t, once.Tabs[i].ID, twice.Tabs[i].ID)
		assert.True(t, layout.Equal(once.Tabs[i].Root, twice.Tabs[i].Root))
		assert.Equal(t, once.Tabs[i].ActiveSessionID, twice.Tabs[i].ActiveSessionID)
	}
	assert.Equal(t, once.ActiveTabID, twice.ActiveTabID)
	assert.Equal(t, len(once.Sessions), len(twice.Sessions))
}

func TestWorkspaceSessionIDs(t *testing.T) {
	ws := Default("p1", "/tmp/proj")
	tab := ws.Tabs[0]
	tab.Root = layout.SplitPane(tab.Root, tab.ActiveSessionID, layout.DirRight, "extra")
	ws.Sessions["extra"] = &Session{ID: "extra", Cwd: "/tmp/proj"}

	ids := ws.SessionIDs()
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "extra")
}
