package exec

import (
	"context"

	"graphlite/internal/gqlerr"
	"graphlite/internal/planner"
	"graphlite/internal/storage"
	"graphlite/internal/value"
)

// expandIter implements one hop of pattern matching: for each
// row produced by input, it calls storage.Manager.GetNeighbors from
// the row's FromVar binding and emits one output row per surviving
// neighbor, with EdgeVar and ToVar newly bound. An edge already bound
// earlier in the same row (tracked via Row.edges) is skipped, enforcing
// path uniqueness: "an edge variable must not bind the same edge twice
// within one row".
type expandIter struct {
	ectx *Context
	op   *planner.PhysicalExpand

	input Iterator

	cur       Row
	neighbors []storage.Neighbor
	typeSet   map[string]bool
	idx       int
}

func (it *expandIter) Open(ctx context.Context) error {
	if len(it.op.Types) > 0 {
		it.typeSet = make(map[string]bool, len(it.op.Types))
		for _, t := range it.op.Types {
			it.typeSet[t] = true
		}
	}
	return it.input.Open(ctx)
}

func (it *expandIter) Next(ctx context.Context) (Row, bool, error) {
	for {
		if err := checkDeadline(ctx); err != nil {
			return Row{}, false, err
		}
		if it.idx >= len(it.neighbors) {
			row, ok, err := it.input.Next(ctx)
			if err != nil {
				return Row{}, false, err
			}
			if !ok {
				return Row{}, false, nil
			}
			fromVal, ok := row.Get(it.op.FromVar)
			if !ok || fromVal.Kind != value.KindNode || fromVal.Node == nil {
				return Row{}, false, gqlerr.Internalf("exec: expand: %q is not bound to a node", it.op.FromVar)
			}
			ns, err := it.ectx.Storage.GetNeighbors(it.ectx.Tx, it.ectx.Graph, fromVal.Node.ID, storageDirection(it.op.Direction), "")
			if err != nil {
				return Row{}, false, err
			}
			it.cur = row
			it.neighbors = dedupNeighbors(ns)
			it.idx = 0
			continue
		}

		n := it.neighbors[it.idx]
		it.idx++

		edge, err := it.ectx.Storage.GetEdge(it.ectx.Tx, it.ectx.Graph, n.EdgeID)
		if err != nil {
			return Row{}, false, err
		}
		if it.typeSet != nil && !it.typeSet[edge.Type] {
			continue
		}
		if it.cur.hasEdge(edge.ID) {
			continue
		}
		other, err := it.ectx.Storage.GetNode(it.ectx.Tx, it.ectx.Graph, n.OtherID)
		if err != nil {
			return Row{}, false, err
		}
		out := it.cur.withEdgeID(edge.ID)
		out = out.With(it.op.EdgeVar, value.EdgeVal(edge))
		out = out.With(it.op.ToVar, value.NodeVal(other))
		return out, true, nil
	}
}

func (it *expandIter) Close() error { return it.input.Close() }

// dedupNeighbors drops duplicate neighbor entries that can arise for a
// self-loop edge under storage.Both, which would otherwise surface
// once from the outgoing adjacency list and once from the incoming one.
func dedupNeighbors(ns []storage.Neighbor) []storage.Neighbor {
	if len(ns) < 2 {
		return ns
	}
	seen := make(map[value.ID]bool, len(ns))
	out := make([]storage.Neighbor, 0, len(ns))
	for _, n := range ns {
		if seen[n.EdgeID] {
			continue
		}
		seen[n.EdgeID] = true
		out = append(out, n)
	}
	return out
}
