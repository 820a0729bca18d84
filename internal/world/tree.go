package world

// branch is an inner quadtree node with 4x4 children.
// Each level consumes two bits of x and two bits of y, starting at bit 14.
type branch struct {
	children [16]any // *branch or *Leaf
}

// leafLevels is the number of branch levels above the leaves.
const leafLevels = 7

func childIndex(cx, cy uint32) int {
	return int((cx&0xC000)>>14 | (cy&0xC000)>>12)
}

func (b *branch) leaf(x, y int) *Leaf {
	node := b
	cx, cy := uint32(x), uint32(y)
	for level := leafLevels - 1; ; level-- {
		child := node.children[childIndex(cx, cy)]
		switch c := child.(type) {
		case *Leaf:
			return c
		case *branch:
			node = c
			cx <<= 2
			cy <<= 2
		default:
			return nil
		}
		if level == 0 {
			return nil
		}
	}
}

func (b *branch) createLeaf(x, y int) (*Leaf, bool) {
	node := b
	cx, cy := uint32(x), uint32(y)
	for level := leafLevels - 1; ; level-- {
		i := childIndex(cx, cy)
		if level == 0 {
			if l, ok := node.children[i].(*Leaf); ok {
				return l, false
			}
			l := newLeaf(x>>2, y>>2)
			node.children[i] = l
			return l, true
		}
		next, ok := node.children[i].(*branch)
		if !ok {
			next = &branch{}
			node.children[i] = next
		}
		node = next
		cx <<= 2
		cy <<= 2
	}
}

// walk visits every leaf in x-major child order. It stops when fn returns false.
func (b *branch) walk(fn func(*Leaf) bool) bool {
	for _, child := range b.children {
		switch c := child.(type) {
		case *Leaf:
			if !fn(c) {
				return false
			}
		case *branch:
			if !c.walk(fn) {
				return false
			}
		}
	}
	return true
}
