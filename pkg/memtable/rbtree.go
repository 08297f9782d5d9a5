package memtable

type color uint8

const (
	black color = iota
	red
)

type rbNode struct {
	entry       Entry
	color       color
	left, right int32
}

// RBTree is a red-black tree. The root is black, no red node has a red
// child, and every root-to-leaf path crosses the same number of black nodes.
// Like AVLTree, nodes are kept in a slice and linked by index.
type RBTree struct {
	nodes []rbNode
	root  int32
	accounting
}

// NewRBTree creates an empty red-black tree.
func NewRBTree() *RBTree {
	return &RBTree{root: nilNode}
}

func (t *RBTree) colorOf(n int32) color {
	if n == nilNode {
		return black
	}
	return t.nodes[n].color
}

func (t *RBTree) isRed(n int32) bool {
	return t.colorOf(n) == red
}

func (t *RBTree) rotateLeft(n int32) int32 {
	r := t.nodes[n].right
	t.nodes[n].right = t.nodes[r].left
	t.nodes[r].left = n
	return r
}

func (t *RBTree) rotateRight(n int32) int32 {
	l := t.nodes[n].left
	t.nodes[n].left = t.nodes[l].right
	t.nodes[l].right = n
	return l
}

// fixup repairs a red-red violation between a child of g and a grandchild.
// With a red uncle the colors are pushed down from g; otherwise one of the
// LL, LR, RL or RR rotations is applied and the new subtree root is painted
// black with g beneath it painted red.
func (t *RBTree) fixup(g int32) int32 {
	l, r := t.nodes[g].left, t.nodes[g].right

	var leftViolation, rightViolation bool
	if t.isRed(l) {
		leftViolation = t.isRed(t.nodes[l].left) || t.isRed(t.nodes[l].right)
	}
	if t.isRed(r) {
		rightViolation = t.isRed(t.nodes[r].left) || t.isRed(t.nodes[r].right)
	}
	if !leftViolation && !rightViolation {
		return g
	}

	if t.isRed(l) && t.isRed(r) {
		t.nodes[g].color = red
		t.nodes[l].color = black
		t.nodes[r].color = black
		return g
	}

	var top int32
	if leftViolation {
		if t.isRed(t.nodes[l].right) {
			t.nodes[g].left = t.rotateLeft(l)
		}
		top = t.rotateRight(g)
	} else {
		if t.isRed(t.nodes[r].left) {
			t.nodes[g].right = t.rotateRight(r)
		}
		top = t.rotateLeft(g)
	}
	t.nodes[top].color = black
	t.nodes[g].color = red
	return top
}

func (t *RBTree) insert(n int32, e Entry) int32 {
	if n == nilNode {
		t.nodes = append(t.nodes, rbNode{entry: e, color: red, left: nilNode, right: nilNode})
		t.added(e)
		return int32(len(t.nodes) - 1)
	}

	switch key := t.nodes[n].entry.Key; {
	case e.Key == key:
		t.replaced(t.nodes[n].entry, e)
		t.nodes[n].entry = e
		return n
	case e.Key < key:
		child := t.insert(t.nodes[n].left, e)
		t.nodes[n].left = child
	default:
		child := t.insert(t.nodes[n].right, e)
		t.nodes[n].right = child
	}

	return t.fixup(n)
}

func (t *RBTree) put(e Entry) {
	t.root = t.insert(t.root, e)
	t.nodes[t.root].color = black
}

// Insert upserts key with value.
func (t *RBTree) Insert(key uint64, value []byte) {
	t.put(newEntry(key, value, false))
}

// Remove records a tombstone for key.
func (t *RBTree) Remove(key uint64) {
	t.put(newEntry(key, nil, true))
}

// Search returns the entry stored for key.
func (t *RBTree) Search(key uint64) (Entry, bool) {
	n := t.root
	for n != nilNode {
		node := &t.nodes[n]
		switch {
		case key == node.entry.Key:
			return node.entry, true
		case key < node.entry.Key:
			n = node.left
		default:
			n = node.right
		}
	}
	return Entry{}, false
}

func (t *RBTree) ascend(lo, hi uint64, fn func(Entry) bool) {
	var stack []int32
	n := t.root
	for n != nilNode || len(stack) > 0 {
		for n != nilNode {
			if t.nodes[n].entry.Key < lo {
				n = t.nodes[n].right
				continue
			}
			stack = append(stack, n)
			n = t.nodes[n].left
		}
		if len(stack) == 0 {
			return
		}
		n = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e := t.nodes[n].entry
		if e.Key > hi || !fn(e) {
			return
		}
		n = t.nodes[n].right
	}
}

// Dump drains the tree in ascending key order.
func (t *RBTree) Dump() []Entry {
	out := make([]Entry, 0, t.count)
	t.ascend(0, ^uint64(0), func(e Entry) bool {
		out = append(out, e)
		return true
	})
	t.Reset()
	return out
}

// Range returns the entries with lo <= key <= hi.
func (t *RBTree) Range(lo, hi uint64) []Entry {
	var out []Entry
	t.ascend(lo, hi, func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Size returns the approximate number of bytes held.
func (t *RBTree) Size() int { return t.size }

// Len returns the number of distinct keys.
func (t *RBTree) Len() int { return t.count }

// Reset drops every entry.
func (t *RBTree) Reset() {
	t.nodes = nil
	t.root = nilNode
	t.reset()
}
