package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPaneLeaf(t *testing.T) {
	root := NewPane("a")

	out := SplitPane(root, "a", DirRight, "b")
	require.NotNil(t, out)
	require.False(t, out.IsPane())
	assert.Equal(t, Horizontal, out.Orientation)
	assert.Equal(t, []string{"a", "b"}, SessionIDs(out))
	assert.Equal(t, []float64{0.5, 0.5}, out.Ratios)

	// Input tree untouched.
	assert.True(t, root.IsPane())
}

func TestSplitPaneDown(t *testing.T) {
	out := SplitPane(NewPane("a"), "a", DirDown, "b")
	require.False(t, out.IsPane())
	assert.Equal(t, Vertical, out.Orientation)
}

func TestSplitPaneMissingTargetIsNoop(t *testing.T) {
	root := NewPane("a")
	out := SplitPane(root, "nope", DirRight, "b")
	assert.Same(t, root, out)
}

func TestSplitPaneFlattensSameOrientation(t *testing.T) {
	root := SplitPane(NewPane("a"), "a", DirRight, "b")
	out := SplitPane(root, "b", DirRight, "c")

	require.Len(t, out.Children, 3, "same-axis split should stay flat")
	assert.Equal(t, []string{"a", "b", "c"}, SessionIDs(out))
	assert.Equal(t, []float64{0.5, 0.25, 0.25}, out.Ratios)
}

func TestSplitPaneNestsAcrossOrientation(t *testing.T) {
	root := SplitPane(NewPane("a"), "a", DirRight, "b")
	out := SplitPane(root, "b", DirDown, "c")

	require.Len(t, out.Children, 2)
	nested := out.Children[1]
	require.False(t, nested.IsPane())
	assert.Equal(t, Vertical, nested.Orientation)
	assert.Equal(t, []string{"b", "c"}, SessionIDs(nested))
}

func TestRemovePaneCollapsesSingleChild(t *testing.T) {
	root := SplitPane(NewPane("a"), "a", DirRight, "b")
	out := RemovePane(root, "b")

	require.NotNil(t, out)
	assert.True(t, out.IsPane())
	assert.Equal(t, "a", out.SessionID)
}

func TestRemoveLastPaneReturnsNil(t *testing.T) {
	assert.Nil(t, RemovePane(NewPane("a"), "a"))
}

func TestRemovePaneMissingIsNoop(t *testing.T) {
	root := SplitPane(NewPane("a"), "a", DirRight, "b")
	assert.Same(t, root, RemovePane(root, "zzz"))
}

func TestRemovePaneRenormalizesSiblings(t *testing.T) {
	root := SplitPane(NewPane("a"), "a", DirRight, "b")
	root = SplitPane(root, "b", DirRight, "c") // [0.5, 0.25, 0.25]

	out := RemovePane(root, "a")
	require.Len(t, out.Children, 2)
	assert.InDelta(t, 0.5, out.Ratios[0], 1e-9)
	assert.InDelta(t, 0.5, out.Ratios[1], 1e-9)
	assert.Equal(t, []string{"b", "c"}, SessionIDs(out))
}

func TestRemovePaneCollapsesNestedSplit(t *testing.T) {
	root := SplitPane(NewPane("a"), "a", DirRight, "b")
	root = SplitPane(root, "b", DirDown, "c")

	out := RemovePane(root, "c")
	require.Len(t, out.Children, 2)
	assert.True(t, out.Children[1].IsPane())
	assert.Equal(t, "b", out.Children[1].SessionID)
}

func TestSplitThenRemoveRoundTrip(t *testing.T) {
	root := SplitPane(NewPane("a"), "a", DirRight, "b")
	root = SplitPane(root, "a", DirDown, "c")

	out := RemovePane(root, "c")
	out = RemovePane(out, "b")
	require.NotNil(t, out)
	assert.True(t, out.IsPane())
	assert.Equal(t, "a", out.SessionID)
}

func TestUpdateSplitRatiosClampsDraggedPair(t *testing.T) {
	root := &Node{
		Orientation: Horizontal,
		Children:    []*Node{NewPane("a"), NewPane("b"), NewPane("c")},
		Ratios:      []float64{0.34, 0.33, 0.33},
	}

	// Drag the first divider far left, past the minimum.
	out := UpdateSplitRatios(root, []int{}, []float64{0.01, 0.66, 0.33})
	require.NotNil(t, out)
	assert.InDelta(t, MinRatio, out.Ratios[0], 1e-9)
	assert.InDelta(t, 0.62, out.Ratios[1], 1e-9, "right neighbor absorbs the clamped remainder")
	assert.InDelta(t, 0.33, out.Ratios[2], 1e-9, "non-adjacent ratio untouched")

	total := out.Ratios[0] + out.Ratios[1] + out.Ratios[2]
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestUpdateSplitRatiosNestedPath(t *testing.T) {
	root := SplitPane(NewPane("a"), "a", DirRight, "b")
	root = SplitPane(root, "b", DirDown, "c")

	out := UpdateSplitRatios(root, []int{1}, []float64{0.7, 0.3})
	require.NotSame(t, root, out)
	nested := out.Children[1]
	assert.InDelta(t, 0.7, nested.Ratios[0], 1e-9)
	assert.InDelta(t, 0.3, nested.Ratios[1], 1e-9)

	// Original untouched.
	assert.InDelta(t, 0.5, root.Children[1].Ratios[0], 1e-9)
}

func TestUpdateSplitRatiosBadPathIsNoop(t *testing.T) {
	root := SplitPane(NewPane("a"), "a", DirRight, "b")
	assert.Same(t, root, UpdateSplitRatios(root, []int{5}, []float64{0.5, 0.5}))
	assert.Same(t, root, UpdateSplitRatios(root, []int{}, []float64{0.5, 0.3, 0.2}))
}

func TestUpdateSplitRatiosPairTotalPreserved(t *testing.T) {
	root := &Node{
		Orientation: Vertical,
		Children:    []*Node{NewPane("a"), NewPane("b"), NewPane("c")},
		Ratios:      []float64{0.2, 0.3, 0.5},
	}
	out := UpdateSplitRatios(root, nil, []float64{0.2, 0.45, 0.35})
	assert.InDelta(t, 0.2, out.Ratios[0], 1e-9)
	assert.InDelta(t, 0.45, out.Ratios[1], 1e-9)
	assert.InDelta(t, 0.35, out.Ratios[2], 1e-9)
}

func TestCollectSessionIDs(t *testing.T) {
	root := SplitPane(NewPane("a"), "a", DirRight, "b")
	root = SplitPane(root, "b", DirDown, "c")

	ids := CollectSessionIDs(root)
	assert.Len(t, ids, 3)
	for _, id := range []string{"a", "b", "c"} {
		_, ok := ids[id]
		assert.True(t, ok, id)
	}
}

func TestFindPath(t *testing.T) {
	root := SplitPane(NewPane("a"), "a", DirRight, "b")
	root = SplitPane(root, "b", DirDown, "c")

	path, ok := FindPath(root, "c")
	require.True(t, ok)
	assert.Equal(t, []int{1, 1}, path)

	_, ok = FindPath(root, "zzz")
	assert.False(t, ok)
}

func TestRepairFixesRatioMismatch(t *testing.T) {
	broken := &Node{
		Orientation: Horizontal,
		Children:    []*Node{NewPane("a"), NewPane("b"), NewPane("c")},
		Ratios:      []float64{0.5, 0.5},
	}
	out := Repair(broken)
	require.True(t, out.Valid())
	for _, r := range out.Ratios {
		assert.InDelta(t, 1.0/3, r, 1e-9)
	}
}

func TestRepairCollapsesSingleChild(t *testing.T) {
	broken := &Node{
		Orientation: Vertical,
		Children:    []*Node{NewPane("a")},
		Ratios:      []float64{1},
	}
	out := Repair(broken)
	assert.True(t, out.IsPane())
	assert.Equal(t, "a", out.SessionID)
}

func TestRepairDropsBlankLeaves(t *testing.T) {
	broken := &Node{
		Orientation: Horizontal,
		Children:    []*Node{NewPane("a"), {}},
		Ratios:      []float64{0.5, 0.5},
	}
	out := Repair(broken)
	assert.True(t, out.IsPane())

	assert.Nil(t, Repair(&Node{}))
	assert.Nil(t, Repair(nil))
}

func TestRepairIdempotent(t *testing.T) {
	root := SplitPane(NewPane("a"), "a", DirRight, "b")
	root = SplitPane(root, "b", DirDown, "c")
	once := Repair(root)
	twice := Repair(once)
	assert.True(t, Equal(once, twice))
}

func TestValid(t *testing.T) {
	assert.True(t, NewPane("a").Valid())
	assert.False(t, (&Node{}).Valid())
	assert.False(t, (&Node{
		Orientation: Horizontal,
		Children:    []*Node{NewPane("a")},
		Ratios:      []float64{1},
	}).Valid(), "single-child split is invalid")
	assert.False(t, (&Node{
		Orientation: Horizontal,
		Children:    []*Node{NewPane("a"), NewPane("b")},
		Ratios:      []float64{0.5},
	}).Valid(), "ratio count must match children")
}
