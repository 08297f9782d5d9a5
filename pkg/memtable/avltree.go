package memtable

// nilNode marks an absent child in the node arenas used by the tree backends.
const nilNode int32 = -1

type avlNode struct {
	entry       Entry
	height      int32
	left, right int32
}

// AVLTree is a height-balanced binary search tree. Nodes live in a slice
// and refer to each other by index.
type AVLTree struct {
	nodes []avlNode
	root  int32
	accounting
}

// NewAVLTree creates an empty AVL tree.
func NewAVLTree() *AVLTree {
	return &AVLTree{root: nilNode}
}

func (t *AVLTree) height(n int32) int32 {
	if n == nilNode {
		return 0
	}
	return t.nodes[n].height
}

func (t *AVLTree) update(n int32) {
	t.nodes[n].height = max(t.height(t.nodes[n].left), t.height(t.nodes[n].right)) + 1
}

func (t *AVLTree) balance(n int32) int32 {
	return t.height(t.nodes[n].left) - t.height(t.nodes[n].right)
}

func (t *AVLTree) rotateLeft(n int32) int32 {
	r := t.nodes[n].right
	t.nodes[n].right = t.nodes[r].left
	t.nodes[r].left = n
	t.update(n)
	t.update(r)
	return r
}

func (t *AVLTree) rotateRight(n int32) int32 {
	l := t.nodes[n].left
	t.nodes[n].left = t.nodes[l].right
	t.nodes[l].right = n
	t.update(n)
	t.update(l)
	return l
}

// rebalance restores |height(left) - height(right)| <= 1 at n using the
// LL, LR, RL and RR rotation cases.
func (t *AVLTree) rebalance(n int32) int32 {
	switch bf := t.balance(n); {
	case bf > 1:
		if t.balance(t.nodes[n].left) < 0 {
			t.nodes[n].left = t.rotateLeft(t.nodes[n].left)
		}
		return t.rotateRight(n)
	case bf < -1:
		if t.balance(t.nodes[n].right) > 0 {
			t.nodes[n].right = t.rotateRight(t.nodes[n].right)
		}
		return t.rotateLeft(n)
	}
	return n
}

func (t *AVLTree) insert(n int32, e Entry) int32 {
	if n == nilNode {
		t.nodes = append(t.nodes, avlNode{entry: e, height: 1, left: nilNode, right: nilNode})
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

	t.update(n)
	return t.rebalance(n)
}

// Insert upserts key with value.
func (t *AVLTree) Insert(key uint64, value []byte) {
	t.root = t.insert(t.root, newEntry(key, value, false))
}

// Remove records a tombstone for key.
func (t *AVLTree) Remove(key uint64) {
	t.root = t.insert(t.root, newEntry(key, nil, true))
}

// Search returns the entry stored for key.
func (t *AVLTree) Search(key uint64) (Entry, bool) {
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

// ascend visits the entries with lo <= key <= hi in order until fn returns false.
func (t *AVLTree) ascend(lo, hi uint64, fn func(Entry) bool) {
	stack := make([]int32, 0, t.height(t.root))
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
func (t *AVLTree) Dump() []Entry {
	out := make([]Entry, 0, t.count)
	t.ascend(0, ^uint64(0), func(e Entry) bool {
		out = append(out, e)
		return true
	})
	t.Reset()
	return out
}

// Range returns the entries with lo <= key <= hi.
func (t *AVLTree) Range(lo, hi uint64) []Entry {
	var out []Entry
	t.ascend(lo, hi, func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Size returns the approximate number of bytes held.
func (t *AVLTree) Size() int { return t.size }

// Len returns the number of distinct keys.
func (t *AVLTree) Len() int { return t.count }

// Reset drops every entry.
func (t *AVLTree) Reset() {
	t.nodes = nil
	t.root = nilNode
	t.reset()
}

// Height returns the height of the tree.
func (t *AVLTree) Height() int {
	return int(t.height(t.root))
}
