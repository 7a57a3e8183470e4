package exec

import (
	"context"

	"graphlite/internal/ast"
	"graphlite/internal/gqlerr"
	"graphlite/internal/planner"
	"graphlite/internal/storage"
	"graphlite/internal/value"
)

// scanIter materializes a label (or full) scan once on Open, reusing
// storage.Manager.ScanByLabel uniformly regardless of which
// planner.ScanMethod was chosen for cost-estimation purposes: the
// method only changes the plan's estimated cost and signature, not the
// storage call a scan actually issues.
type scanIter struct {
	ectx *Context
	op   *planner.PhysicalScan

	rows []*value.Node
	idx  int
}

func (it *scanIter) Open(ctx context.Context) error {
	var filter *storage.PropertyFilter
	if it.op.Pushed != nil {
		lit, ok := it.op.Pushed.Value.(*ast.Literal)
		if !ok {
			return gqlerr.Internalf("exec: scan: pushed filter on %q is not a literal", it.op.Pushed.Property)
		}
		filter = &storage.PropertyFilter{Property: it.op.Pushed.Property, Value: lit.Value}
	}
	nodes, err := it.ectx.Storage.ScanByLabel(it.ectx.Tx, it.ectx.Graph, it.op.Label, filter)
	if err != nil {
		return err
	}
	it.rows = nodes
	return nil
}

func (it *scanIter) Next(ctx context.Context) (Row, bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return Row{}, false, err
	}
	if it.idx >= len(it.rows) {
		return Row{}, false, nil
	}
	n := it.rows[it.idx]
	it.idx++
	return NewRow().With(it.op.Variable, value.NodeVal(n)), true, nil
}

func (it *scanIter) Close() error { return nil }

// emptyIter is the lowering of LogicalEmpty, the planner's dead-code
// elimination result: a zero-row source for a subtree whose predicate
// folded to a literal false.
type emptyIter struct{}

func (emptyIter) Open(ctx context.Context) error                 { return nil }
func (emptyIter) Next(ctx context.Context) (Row, bool, error) { return Row{}, false, nil }
func (emptyIter) Close() error                                    { return nil }

func storageDirection(d ast.Direction) storage.Direction {
	switch d {
	case ast.DirIncoming:
		return storage.Incoming
	case ast.DirEither:
		return storage.Both
	default:
		return storage.Outgoing
	}
}
