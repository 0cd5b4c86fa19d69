package model

import (
	"slices"
)

// Node is a comment with its direct replies.
type Node struct {
	Comment  Comment
	Children []*Node
}

// Row is one visible line of a flattened comment tree.
type Row struct {
	Comment   Comment
	Depth     int
	Replies   int // direct children, including hidden ones
	Collapsed bool
}

// BuildTree arranges comments into reply trees. Comments whose parent is not
// in the slice are treated as roots so nothing loaded is ever hidden. Siblings
// are ordered oldest first, then by id.
func BuildTree(comments []Comment) []*Node {
	nodes := make(map[int64]*Node, len(comments))
	order := make([]*Node, 0, len(comments))
	for _, c := range comments {
		if _, dup := nodes[c.ID]; dup && c.ID != 0 {
			continue
		}
		n := &Node{Comment: c}
		if c.ID != 0 {
			nodes[c.ID] = n
		}
		order = append(order, n)
	}

	var roots []*Node
	for _, n := range order {
		pid := n.Comment.ParentID
		if pid == nil || *pid == n.Comment.ID {
			roots = append(roots, n)
			continue
		}
		parent, ok := nodes[*pid]
		if !ok || createsCycle(nodes, n, parent) {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}

	sortNodes(roots)
	return roots
}

func createsCycle(nodes map[int64]*Node, child, parent *Node) bool {
	seen := 0
	for p := parent; p != nil; {
		if p == child {
			return true
		}
		seen++
		if seen > len(nodes) || p.Comment.ParentID == nil {
			return false
		}
		p = nodes[*p.Comment.ParentID]
	}
	return false
}

func sortNodes(ns []*Node) {
	slices.SortStableFunc(ns, func(a, b *Node) int {
		if c := a.Comment.CreatedAt.Compare(b.Comment.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.Comment.ID < b.Comment.ID:
			return -1
		case a.Comment.ID > b.Comment.ID:
			return 1
		}
		return 0
	})
	for _, n := range ns {
		sortNodes(n.Children)
	}
}

// Flatten walks the trees depth first. Replies of comments whose id is in
// collapsed are skipped.
func Flatten(roots []*Node, collapsed map[int64]bool) []Row {
	var rows []Row
	var walk func(ns []*Node, depth int)
	walk = func(ns []*Node, depth int) {
		for _, n := range ns {
			folded := collapsed[n.Comment.ID]
			rows = append(rows, Row{
				Comment:   n.Comment,
				Depth:     depth,
				Replies:   len(n.Children),
				Collapsed: folded,
			})
			if !folded {
				walk(n.Children, depth+1)
			}
		}
	}
	walk(roots, 0)
	return rows
}

// IndexOf returns the row holding comment id, or -1.
func IndexOf(rows []Row, id int64) int {
	return slices.IndexFunc(rows, func(r Row) bool { return r.Comment.ID == id })
}
