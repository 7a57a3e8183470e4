package exec

import (
	"context"
	"fmt"

	"graphlite/internal/ast"
	"graphlite/internal/gqlerr"
	"graphlite/internal/kv"
	"graphlite/internal/planner"
	"graphlite/internal/storage"
	"graphlite/internal/value"
)

// Mutating operators produce no rows of their own by default beyond
// the bindings INSERT introduces for a later RETURN; every
// write is staged into the active transaction's mutation list via
// Context.stage and only actually applied against a live kv.Tx inside
// internal/session.Manager.Commit. A read made earlier in the same
// transaction therefore never observes that transaction's own
// not-yet-committed writes, since staging only buffers a closure — an
// accepted consequence of how internal/session buffers mutations, not
// something exec works around.

// insertIter evaluates a fresh INSERT pattern once per input row (or
// once against an empty row, for a standalone INSERT with nothing
// preceding it), staging a PutNode/PutEdge per pattern element and
// binding each pattern variable to the new entity for any clause that
// follows.
type insertIter struct {
	ectx *Context
	op   *planner.PhysicalInsert

	input Iterator
	rows  []Row
	idx   int
}

func (it *insertIter) Open(ctx context.Context) error {
	base, err := it.baseRows(ctx)
	if err != nil {
		return err
	}
	rows := make([]Row, 0, len(base))
	for _, row := range base {
		out, err := it.insertPattern(row)
		if err != nil {
			return err
		}
		rows = append(rows, out)
	}
	it.rows = rows
	return nil
}

func (it *insertIter) baseRows(ctx context.Context) ([]Row, error) {
	if it.input == nil {
		return []Row{NewRow()}, nil
	}
	if err := it.input.Open(ctx); err != nil {
		return nil, err
	}
	var rows []Row
	for {
		row, ok, err := it.input.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	if err := it.input.Close(); err != nil {
		return nil, err
	}
	return rows, nil
}

func (it *insertIter) insertPattern(row Row) (Row, error) {
	p := it.op.Pattern
	out := row
	nodeIDs := make([]value.ID, len(p.Nodes))

	for i, np := range p.Nodes {
		n, id, err := it.resolveNode(out, np)
		if err != nil {
			return Row{}, err
		}
		nodeIDs[i] = id
		if np.Variable != "" {
			out = out.With(np.Variable, value.NodeVal(n))
		}
	}

	for i, ep := range p.Edges {
		srcIdx, dstIdx := i, i+1
		if ep.Direction == ast.DirIncoming {
			srcIdx, dstIdx = i+1, i
		}
		props, err := evalPropertyMap(out, it.ectx.Params, ep.Properties)
		if err != nil {
			return Row{}, err
		}
		typ := ""
		if len(ep.Types) > 0 {
			typ = ep.Types[0]
		}
		e := value.NewEdge(value.NewID(), typ, nodeIDs[srcIdx], nodeIDs[dstIdx], props)
		graph := it.ectx.Graph
		it.ectx.stage(func(tx *kv.Tx) error {
			return it.ectx.Storage.PutEdge(tx, graph, e)
		})
		it.ectx.Txn.TrackWrite(e.ID)
		if ep.Variable != "" {
			out = out.With(ep.Variable, value.EdgeVal(e))
		}
	}

	return out, nil
}

// resolveNode creates a new node unless np.Variable is already bound
// in row to a node (an INSERT pattern anchored on a MATCHed node, e.g.
// "MATCH (a) INSERT (a)-[:KNOWS]->(:Person)").
func (it *insertIter) resolveNode(row Row, np *ast.NodePattern) (*value.Node, value.ID, error) {
	if np.Variable != "" {
		if existing, ok := row.Get(np.Variable); ok && existing.Kind == value.KindNode && existing.Node != nil {
			return existing.Node, existing.Node.ID, nil
		}
	}
	props, err := evalPropertyMap(row, it.ectx.Params, np.Properties)
	if err != nil {
		return nil, value.NilID, err
	}
	n := value.NewNode(value.NewID(), np.Labels, props)
	graph := it.ectx.Graph
	it.ectx.stage(func(tx *kv.Tx) error {
		return it.ectx.Storage.PutNode(tx, graph, n)
	})
	it.ectx.Txn.TrackWrite(n.ID)
	return n, n.ID, nil
}

func (it *insertIter) Next(ctx context.Context) (Row, bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return Row{}, false, err
	}
	if it.idx >= len(it.rows) {
		return Row{}, false, nil
	}
	r := it.rows[it.idx]
	it.idx++
	return r, true, nil
}

func (it *insertIter) Close() error { return nil }

func evalPropertyMap(row Row, params map[string]value.Value, props map[string]ast.Expr) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(props))
	for k, e := range props {
		v, err := Eval(row, params, e)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// setPropIter applies SET item.Target = item.Value against a cloned
// copy of the bound node/edge (never the shared storage-read value) and
// stages the updated entity for write.
type setPropIter struct {
	ectx *Context
	op   *planner.PhysicalSetProp

	input Iterator
}

func (it *setPropIter) Open(ctx context.Context) error { return it.input.Open(ctx) }

func (it *setPropIter) Next(ctx context.Context) (Row, bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return Row{}, false, err
	}
	row, ok, err := it.input.Next(ctx)
	if err != nil || !ok {
		return Row{}, false, err
	}

	out := row
	pendingNodes := map[string]*value.Node{}
	pendingEdges := map[string]*value.Edge{}

	for _, item := range it.op.Items {
		name, bound, err := mutationTarget(out, item.Target)
		if err != nil {
			return Row{}, false, err
		}
		pa := item.Target.(*ast.PropertyAccessExpr)
		newVal, err := Eval(out, it.ectx.Params, item.Value)
		if err != nil {
			return Row{}, false, err
		}
		switch bound.Kind {
		case value.KindNode:
			n, ok := pendingNodes[name]
			if !ok {
				n = cloneNode(bound.Node)
				pendingNodes[name] = n
			}
			n.Properties[pa.Property] = newVal
		case value.KindEdge:
			e, ok := pendingEdges[name]
			if !ok {
				e = cloneEdge(bound.Edge)
				pendingEdges[name] = e
			}
			e.Properties[pa.Property] = newVal
		default:
			return Row{}, false, gqlerr.New(gqlerr.TypeError, fmt.Sprintf("SET target %q is not a node or edge", name))
		}
	}

	graph := it.ectx.Graph
	for name, n := range pendingNodes {
		nn := n
		it.ectx.stage(func(tx *kv.Tx) error { return it.ectx.Storage.PutNode(tx, graph, nn) })
		it.ectx.Txn.TrackWrite(nn.ID)
		out = out.With(name, value.NodeVal(nn))
	}
	for name, e := range pendingEdges {
		ee := e
		it.ectx.stage(func(tx *kv.Tx) error { return it.ectx.Storage.PutEdge(tx, graph, ee) })
		it.ectx.Txn.TrackWrite(ee.ID)
		out = out.With(name, value.EdgeVal(ee))
	}

	return out, true, nil
}

func (it *setPropIter) Close() error { return it.input.Close() }

// removePropIter is SET's inverse: deletes named properties rather
// than assigning them.
type removePropIter struct {
	ectx *Context
	op   *planner.PhysicalRemoveProp

	input Iterator
}

func (it *removePropIter) Open(ctx context.Context) error { return it.input.Open(ctx) }

func (it *removePropIter) Next(ctx context.Context) (Row, bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return Row{}, false, err
	}
	row, ok, err := it.input.Next(ctx)
	if err != nil || !ok {
		return Row{}, false, err
	}

	out := row
	pendingNodes := map[string]*value.Node{}
	pendingEdges := map[string]*value.Edge{}

	for _, target := range it.op.Targets {
		name, bound, err := mutationTarget(out, target)
		if err != nil {
			return Row{}, false, err
		}
		pa := target.(*ast.PropertyAccessExpr)
		switch bound.Kind {
		case value.KindNode:
			n, ok := pendingNodes[name]
			if !ok {
				n = cloneNode(bound.Node)
				pendingNodes[name] = n
			}
			delete(n.Properties, pa.Property)
		case value.KindEdge:
			e, ok := pendingEdges[name]
			if !ok {
				e = cloneEdge(bound.Edge)
				pendingEdges[name] = e
			}
			delete(e.Properties, pa.Property)
		default:
			return Row{}, false, gqlerr.New(gqlerr.TypeError, fmt.Sprintf("REMOVE target %q is not a node or edge", name))
		}
	}

	graph := it.ectx.Graph
	for name, n := range pendingNodes {
		nn := n
		it.ectx.stage(func(tx *kv.Tx) error { return it.ectx.Storage.PutNode(tx, graph, nn) })
		it.ectx.Txn.TrackWrite(nn.ID)
		out = out.With(name, value.NodeVal(nn))
	}
	for name, e := range pendingEdges {
		ee := e
		it.ectx.stage(func(tx *kv.Tx) error { return it.ectx.Storage.PutEdge(tx, graph, ee) })
		it.ectx.Txn.TrackWrite(ee.ID)
		out = out.With(name, value.EdgeVal(ee))
	}

	return out, true, nil
}

func (it *removePropIter) Close() error { return it.input.Close() }

// mutationTarget resolves a SET/REMOVE target expression (always a
// PropertyAccessExpr over a bound variable per the planner's
// validation pass) back to the variable name and its current binding.
func mutationTarget(row Row, target ast.Expr) (string, value.Value, error) {
	pa, ok := target.(*ast.PropertyAccessExpr)
	if !ok {
		return "", value.Null, gqlerr.Internalf("exec: SET/REMOVE target must be a property access")
	}
	v, ok := pa.Target.(*ast.VarExpr)
	if !ok {
		return "", value.Null, gqlerr.Internalf("exec: SET/REMOVE target must reference a bound variable")
	}
	bound, ok := row.Get(v.Name)
	if !ok {
		return "", value.Null, gqlerr.Internalf("exec: %q is not bound", v.Name)
	}
	return v.Name, bound, nil
}

func cloneNode(n *value.Node) *value.Node {
	props := make(map[string]value.Value, len(n.Properties))
	for k, v := range n.Properties {
		props[k] = v
	}
	labels := append([]string{}, n.Labels...)
	return value.NewNode(n.ID, labels, props)
}

func cloneEdge(e *value.Edge) *value.Edge {
	props := make(map[string]value.Value, len(e.Properties))
	for k, v := range e.Properties {
		props[k] = v
	}
	return value.NewEdge(e.ID, e.Type, e.Src, e.Dst, props)
}

// deleteIter stages a DELETE/DETACH DELETE per bound target. Node
// deletion's referential-integrity check ("DELETE of a node is
// rejected at commit if any edge still references the node") runs
// inside the staged closure, at commit time, against the live write
// transaction — a read-only snapshot taken at query time could not see
// edges staged for deletion or insertion by the same transaction.
type deleteIter struct {
	ectx *Context
	op   *planner.PhysicalDelete

	input Iterator
}

func (it *deleteIter) Open(ctx context.Context) error { return it.input.Open(ctx) }

func (it *deleteIter) Next(ctx context.Context) (Row, bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return Row{}, false, err
	}
	row, ok, err := it.input.Next(ctx)
	if err != nil || !ok {
		return Row{}, false, err
	}

	for _, target := range it.op.Targets {
		v, ok := target.(*ast.VarExpr)
		if !ok {
			return Row{}, false, gqlerr.Internalf("exec: DELETE target must be a bound variable")
		}
		bound, ok := row.Get(v.Name)
		if !ok {
			return Row{}, false, gqlerr.Internalf("exec: %q is not bound", v.Name)
		}
		switch bound.Kind {
		case value.KindNode:
			it.stageNodeDelete(bound.Node.ID, it.op.Detach)
		case value.KindEdge:
			it.stageEdgeDelete(bound.Edge.ID)
		default:
			return Row{}, false, gqlerr.New(gqlerr.TypeError, fmt.Sprintf("DELETE target %q is not a node or edge", v.Name))
		}
	}

	return row, true, nil
}

func (it *deleteIter) stageNodeDelete(id value.ID, detach bool) {
	graph := it.ectx.Graph
	it.ectx.stage(func(tx *kv.Tx) error {
		neighbors, err := it.ectx.Storage.GetNeighbors(tx, graph, id, storage.Both, "")
		if err != nil {
			return err
		}
		if len(neighbors) > 0 {
			if !detach {
				return gqlerr.Conflictf("cannot delete node %s: %d incident edge(s) remain", id, len(neighbors))
			}
			for _, n := range neighbors {
				if err := it.ectx.Storage.DeleteEdge(tx, graph, n.EdgeID); err != nil {
					return err
				}
			}
		}
		return it.ectx.Storage.DeleteNode(tx, graph, id)
	})
	it.ectx.Txn.TrackWrite(id)
}

func (it *deleteIter) stageEdgeDelete(id value.ID) {
	graph := it.ectx.Graph
	it.ectx.stage(func(tx *kv.Tx) error {
		return it.ectx.Storage.DeleteEdge(tx, graph, id)
	})
	it.ectx.Txn.TrackWrite(id)
}

func (it *deleteIter) Close() error { return it.input.Close() }
