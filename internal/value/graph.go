package value

import (
	"sort"
	"strings"
)

// Node is a graph vertex: an identity, an order-insensitive set
// of labels, and a property map. A Node is owned by exactly one
// (schema, graph) pair, tracked by the storage manager rather than the
// Node itself.
type Node struct {
	ID         ID
	Labels     []string // kept sorted; see SetLabels
	Properties map[string]Value
}

// NewNode builds a Node with its labels normalized into sorted,
// de-duplicated order so two nodes with the same label set always
// compare and encode identically.
func NewNode(id ID, labels []string, props map[string]Value) *Node {
	n := &Node{ID: id, Properties: props}
	n.SetLabels(labels)
	if n.Properties == nil {
		n.Properties = map[string]Value{}
	}
	return n
}

// SetLabels replaces the label set, normalizing order and duplicates.
func (n *Node) SetLabels(labels []string) {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	n.Labels = out
}

// HasLabel reports whether n carries the given label.
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func (n *Node) String() string {
	if n == nil {
		return "null"
	}
	labels := ""
	if len(n.Labels) > 0 {
		labels = ":" + strings.Join(n.Labels, ":")
	}
	return "(" + n.ID.String() + labels + " " + Map(n.Properties).String() + ")"
}

// Edge is a directed, typed graph relationship.
type Edge struct {
	ID         ID
	Type       string
	Src        ID
	Dst        ID
	Properties map[string]Value
}

func NewEdge(id ID, typ string, src, dst ID, props map[string]Value) *Edge {
	if props == nil {
		props = map[string]Value{}
	}
	return &Edge{ID: id, Type: typ, Src: src, Dst: dst, Properties: props}
}

func (e *Edge) String() string {
	if e == nil {
		return "null"
	}
	return "[" + e.ID.String() + ":" + e.Type + " " + e.Src.String() + "->" + e.Dst.String() + "]"
}

// PathDirection records the declared traversal direction of one hop in
// a Path, used to validate that edges connect consecutive nodes in the
// declared direction.
type PathDirection int

const (
	DirOutgoing PathDirection = iota
	DirIncoming
)

// PathHop is one edge step in a Path, with the direction it was
// traversed in.
type PathHop struct {
	Edge      *Edge
	Direction PathDirection
}

// Path is an alternating sequence node, edge, node, .... Nodes has
// length len(Hops)+1.
type Path struct {
	Nodes []*Node
	Hops  []PathHop
}

// Len returns the path length (number of edges).
func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Hops)
}

// Valid checks the alternating-sequence invariant: every hop's edge
// must connect consecutive nodes in the declared direction.
func (p *Path) Valid() bool {
	if p == nil {
		return true
	}
	if len(p.Nodes) != len(p.Hops)+1 {
		return false
	}
	for i, hop := range p.Hops {
		from, to := p.Nodes[i], p.Nodes[i+1]
		var src, dst ID
		if hop.Direction == DirOutgoing {
			src, dst = from.ID, to.ID
		} else {
			src, dst = to.ID, from.ID
		}
		if hop.Edge.Src != src || hop.Edge.Dst != dst {
			return false
		}
	}
	return true
}

func (p *Path) Equal(o *Path) bool {
	if p == nil || o == nil {
		return p == o
	}
	if len(p.Nodes) != len(o.Nodes) || len(p.Hops) != len(o.Hops) {
		return false
	}
	for i := range p.Nodes {
		if p.Nodes[i].ID != o.Nodes[i].ID {
			return false
		}
	}
	for i := range p.Hops {
		if p.Hops[i].Edge.ID != o.Hops[i].Edge.ID {
			return false
		}
	}
	return true
}

func (p *Path) String() string {
	if p == nil || len(p.Nodes) == 0 {
		return "<>"
	}
	var b strings.Builder
	b.WriteString(p.Nodes[0].String())
	for i, hop := range p.Hops {
		if hop.Direction == DirOutgoing {
			b.WriteString("-")
			b.WriteString(hop.Edge.String())
			b.WriteString("->")
		} else {
			b.WriteString("<-")
			b.WriteString(hop.Edge.String())
			b.WriteString("-")
		}
		b.WriteString(p.Nodes[i+1].String())
	}
	return b.String()
}
