package extract

import (
	"golang.org/x/net/html"
)

// node is one arena slot. Indices replace pointers so pruning never mutates
// the tree while it is being walked.
type node struct {
	html     *html.Node
	parent   int
	children []int
	removed  bool
}

// arena is an owned copy of a parsed document's structure. Slot 0 is the root.
type arena struct {
	nodes []node
}

// buildArena copies the tree under root, dropping comment and doctype nodes.
// The HTML parser already turns CDATA sections, processing instructions and
// bogus declarations into comments.
func buildArena(root *html.Node) *arena {
	a := &arena{}
	a.add(root, -1)
	return a
}

func (a *arena) add(n *html.Node, parent int) {
	idx := len(a.nodes)
	a.nodes = append(a.nodes, node{html: n, parent: parent})

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.CommentNode || c.Type == html.DoctypeNode {
			continue
		}
		a.nodes[idx].children = append(a.nodes[idx].children, len(a.nodes))
		a.add(c, idx)
	}
}

// pruneEmpty marks every element left without child nodes as removed,
// bottom-up, so parents emptied by the removal of their children go too.
// Marks are computed over a post-order listing and applied afterwards.
func (a *arena) pruneEmpty() {
	order := a.postOrder()
	live := make([]int, len(a.nodes))
	var removals []int

	for _, idx := range order {
		n := &a.nodes[idx]
		if n.html.Type != html.ElementNode {
			live[idx] = 1
			continue
		}

		count := 0
		for _, c := range n.children {
			count += live[c]
		}

		if count == 0 {
			removals = append(removals, idx)
			continue
		}
		live[idx] = 1
	}

	for _, idx := range removals {
		a.nodes[idx].removed = true
	}
}

// postOrder lists node indices children-first without recursion.
func (a *arena) postOrder() []int {
	order := make([]int, 0, len(a.nodes))
	type frame struct {
		idx  int
		next int
	}
	stack := []frame{{idx: 0}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		children := a.nodes[top.idx].children
		if top.next < len(children) {
			child := children[top.next]
			top.next++
			stack = append(stack, frame{idx: child})
			continue
		}
		order = append(order, top.idx)
		stack = stack[:len(stack)-1]
	}

	return order
}

// walk visits live nodes in document order.
func (a *arena) walk(fn func(idx int)) {
	stack := []int{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if a.nodes[idx].removed {
			continue
		}
		fn(idx)

		children := a.nodes[idx].children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

// texts returns the live text nodes under idx in document order.
func (a *arena) texts(idx int) []string {
	var out []string
	var visit func(int)
	visit = func(i int) {
		n := &a.nodes[i]
		if n.removed {
			return
		}
		if n.html.Type == html.TextNode {
			out = append(out, n.html.Data)
			return
		}
		for _, c := range n.children {
			visit(c)
		}
	}
	visit(idx)
	return out
}
