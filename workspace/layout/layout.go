// Package layout implements the split-pane tree for a workspace tab.
//
// A tree is built from Node values: a leaf pane referencing a session id, or
// a split with an orientation, ordered children, and parallel ratios. All
// transforms are pure — they return a new tree and never mutate the input —
// so the UI can swap whole trees atomically during resize drags without
// torn reads.
package layout

// MinRatio is the smallest share of a split any child may occupy.
const MinRatio = 0.05

// Orientation is the axis along which a split divides its children.
type Orientation string

const (
	// Horizontal lays children out side by side (columns).
	Horizontal Orientation = "horizontal"
	// Vertical stacks children top to bottom (rows).
	Vertical Orientation = "vertical"
)

// Direction is where a new pane is opened relative to the target pane.
type Direction string

const (
	DirRight Direction = "right"
	DirDown  Direction = "down"
)

// orientation returns the split orientation that realizes the direction.
func (d Direction) orientation() Orientation {
	if d == DirDown {
		return Vertical
	}
	return Horizontal
}

// Node is a tagged union: a pane leaf when SessionID is set, otherwise a
// split with Children and Ratios of equal length.
type Node struct {
	SessionID string `json:"sessionId,omitempty"`

	Orientation Orientation `json:"orientation,omitempty"`
	Children    []*Node     `json:"children,omitempty"`
	Ratios      []float64   `json:"ratios,omitempty"`
}

// NewPane returns a leaf node for the given session id.
func NewPane(sessionID string) *Node {
	return &Node{SessionID: sessionID}
}

// IsPane reports whether the node is a leaf pane.
func (n *Node) IsPane() bool {
	return n != nil && n.SessionID != ""
}

// Valid reports whether the tree satisfies the structural invariants:
// panes have a session id, splits have at least two children with a
// matching ratios slice, and ratios are positive.
func (n *Node) Valid() bool {
	if n == nil {
		return false
	}
	if n.IsPane() {
		return len(n.Children) == 0
	}
	if len(n.Children) < 2 || len(n.Children) != len(n.Ratios) {
		return false
	}
	for _, r := range n.Ratios {
		if r <= 0 {
			return false
		}
	}
	for _, c := range n.Children {
		if !c.Valid() {
			return false
		}
	}
	return true
}

// SplitPane opens newSessionID next to targetSessionID, to the right of or
// below it. When an existing split already runs along the requested axis and
// directly contains the target, the new pane is inserted as an additional
// sibling so N-way splits along one axis stay flat instead of nesting. The
// target's share is halved between it and the new pane. Returns the input
// tree unchanged if targetSessionID is not present.
func SplitPane(root *Node, targetSessionID string, dir Direction, newSessionID string) *Node {
	if root == nil {
		return root
	}
	out, found := splitNode(root, targetSessionID, dir.orientation(), newSessionID)
	if !found {
		return root
	}
	return out
}

func splitNode(n *Node, target string, o Orientation, newID string) (*Node, bool) {
	if n.IsPane() {
		if n.SessionID != target {
			return n, false
		}
		return &Node{
			Orientation: o,
			Children:    []*Node{NewPane(target), NewPane(newID)},
			Ratios:      []float64{0.5, 0.5},
		}, true
	}

	// Flat insertion: the target is a direct child of a same-axis split.
	if n.Orientation == o {
		for i, c := range n.Children {
			if c.IsPane() && c.SessionID == target {
				children := make([]*Node, 0, len(n.Children)+1)
				ratios := make([]float64, 0, len(n.Ratios)+1)
				for j, cc := range n.Children {
					if j == i {
						children = append(children, cc, NewPane(newID))
						ratios = append(ratios, n.Ratios[j]/2, n.Ratios[j]/2)
						continue
					}
					children = append(children, cc)
					ratios = append(ratios, n.Ratios[j])
				}
				return &Node{Orientation: n.Orientation, Children: children, Ratios: ratios}, true
			}
		}
	}

	for i, c := range n.Children {
		replaced, found := splitNode(c, target, o, newID)
		if !found {
			continue
		}
		children := make([]*Node, len(n.Children))
		copy(children, n.Children)
		children[i] = replaced
		ratios := make([]float64, len(n.Ratios))
		copy(ratios, n.Ratios)
		return &Node{Orientation: n.Orientation, Children: children, Ratios: ratios}, true
	}
	return n, false
}

// RemovePane removes the leaf holding sessionID. A split left with a single
// child collapses into that child, recursively. Returns nil when the sole
// remaining leaf of the tree is removed (the caller closes the tab), and the
// input tree unchanged when sessionID is not present.
func RemovePane(root *Node, sessionID string) *Node {
	if root == nil {
		return nil
	}
	out, found := removeNode(root, sessionID)
	if !found {
		return root
	}
	return out
}

func removeNode(n *Node, target string) (*Node, bool) {
	if n.IsPane() {
		if n.SessionID == target {
			return nil, true
		}
		return n, false
	}

	for i, c := range n.Children {
		replaced, found := removeNode(c, target)
		if !found {
			continue
		}

		if replaced == nil {
			// Drop child i; siblings absorb its share proportionally.
			children := make([]*Node, 0, len(n.Children)-1)
			ratios := make([]float64, 0, len(n.Ratios)-1)
			remaining := 0.0
			for j := range n.Children {
				if j == i {
					continue
				}
				children = append(children, n.Children[j])
				ratios = append(ratios, n.Ratios[j])
				remaining += n.Ratios[j]
			}
			if len(children) == 1 {
				return children[0], true
			}
			if remaining > 0 {
				for j := range ratios {
					ratios[j] /= remaining
				}
			}
			return &Node{Orientation: n.Orientation, Children: children, Ratios: ratios}, true
		}

		children := make([]*Node, len(n.Children))
		copy(children, n.Children)
		children[i] = replaced
		ratios := make([]float64, len(n.Ratios))
		copy(ratios, n.Ratios)
		return &Node{Orientation: n.Orientation, Children: children, Ratios: ratios}, true
	}
	return n, false
}

// UpdateSplitRatios replaces the ratios of the split at path (child indices
// from the root) with the drag result in ratios. Only one divider moves per
// call: the first index whose ratio differs is clamped to
// [MinRatio, pairTotal-MinRatio] and its right neighbor absorbs the
// remainder, so the two neighbors keep their prior combined share. Returns
// the input tree unchanged when the path or ratio count doesn't match.
func UpdateSplitRatios(root *Node, path []int, ratios []float64) *Node {
	if root == nil {
		return root
	}
	out, ok := updateRatios(root, path, ratios)
	if !ok {
		return root
	}
	return out
}

func updateRatios(n *Node, path []int, ratios []float64) (*Node, bool) {
	if len(path) == 0 {
		if n.IsPane() || len(ratios) != len(n.Ratios) {
			return nil, false
		}
		next := applyDividerDrag(n.Ratios, ratios)
		return &Node{Orientation: n.Orientation, Children: n.Children, Ratios: next}, true
	}

	i := path[0]
	if n.IsPane() || i < 0 || i >= len(n.Children) {
		return nil, false
	}
	replaced, ok := updateRatios(n.Children[i], path[1:], ratios)
	if !ok {
		return nil, false
	}
	children := make([]*Node, len(n.Children))
	copy(children, n.Children)
	children[i] = replaced
	rs := make([]float64, len(n.Ratios))
	copy(rs, n.Ratios)
	return &Node{Orientation: n.Orientation, Children: children, Ratios: rs}, true
}

// applyDividerDrag finds the dragged divider (first differing index) and
// redistributes within that neighbor pair only.
func applyDividerDrag(old, proposed []float64) []float64 {
	next := make([]float64, len(old))
	copy(next, old)

	for i := 0; i < len(old)-1; i++ {
		if proposed[i] == old[i] {
			continue
		}
		pairTotal := old[i] + old[i+1]
		left := clamp(proposed[i], MinRatio, pairTotal-MinRatio)
		next[i] = left
		next[i+1] = pairTotal - left
		return next
	}
	return next
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		// Pair too small to honor both minimums; split it evenly.
		return (lo + hi) / 2
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Repair rebuilds a structurally broken tree into a valid one, keeping as
// much of it as possible: splits whose ratios don't match their children get
// equal shares, single-child splits collapse, empty splits and blank panes
// drop out. Returns nil when nothing salvageable remains. Valid trees come
// back unchanged in meaning, so Repair is idempotent.
func Repair(root *Node) *Node {
	if root == nil {
		return nil
	}
	if root.SessionID != "" {
		return NewPane(root.SessionID)
	}

	var children []*Node
	var ratios []float64
	for i, c := range root.Children {
		fixed := Repair(c)
		if fixed == nil {
			continue
		}
		children = append(children, fixed)
		if i < len(root.Ratios) && root.Ratios[i] > 0 {
			ratios = append(ratios, root.Ratios[i])
		} else {
			ratios = append(ratios, 0)
		}
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}

	total := 0.0
	valid := len(root.Ratios) == len(root.Children)
	for _, r := range ratios {
		if r <= 0 {
			valid = false
		}
		total += r
	}
	if !valid || total <= 0 {
		for i := range ratios {
			ratios[i] = 1.0 / float64(len(ratios))
		}
	} else if total != 1.0 {
		for i := range ratios {
			ratios[i] /= total
		}
	}
	return &Node{Orientation: root.Orientation, Children: children, Ratios: ratios}
}

// CollectSessionIDs returns the set of session ids referenced by the tree's
// leaves. Used to compute which sessions become orphaned after a structural
// change.
func CollectSessionIDs(root *Node) map[string]struct{} {
	ids := make(map[string]struct{})
	walk(root, func(n *Node) {
		if n.IsPane() {
			ids[n.SessionID] = struct{}{}
		}
	})
	return ids
}

// SessionIDs returns the tree's session ids in leaf order.
func SessionIDs(root *Node) []string {
	var ids []string
	walk(root, func(n *Node) {
		if n.IsPane() {
			ids = append(ids, n.SessionID)
		}
	})
	return ids
}

// FindPath returns the child-index path from the root to the leaf holding
// sessionID, and whether it was found.
func FindPath(root *Node, sessionID string) ([]int, bool) {
	if root == nil {
		return nil, false
	}
	if root.IsPane() {
		if root.SessionID == sessionID {
			return []int{}, true
		}
		return nil, false
	}
	for i, c := range root.Children {
		if sub, ok := FindPath(c, sessionID); ok {
			return append([]int{i}, sub...), true
		}
	}
	return nil, false
}

// Equal reports structural equality of two trees.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.SessionID != b.SessionID || a.Orientation != b.Orientation {
		return false
	}
	if len(a.Children) != len(b.Children) || len(a.Ratios) != len(b.Ratios) {
		return false
	}
	for i := range a.Ratios {
		if a.Ratios[i] != b.Ratios[i] {
			return false
		}
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

func walk(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		walk(c, fn)
	}
}
