package exec

import (
	"context"

	"graphlite/internal/planner"
	"graphlite/internal/value"
)

// unwindIter flattens a list-valued expression into one output row per
// element, carrying the rest of the input row's bindings along
// unchanged. A non-list, non-null value unwinds to a single row (as if
// it were a one-element list); null unwinds to zero rows.
type unwindIter struct {
	ectx *Context
	op   *planner.PhysicalUnwind

	input Iterator
	cur   Row
	items []value.Value
	idx   int
}

func (it *unwindIter) Open(ctx context.Context) error { return it.input.Open(ctx) }

func (it *unwindIter) Next(ctx context.Context) (Row, bool, error) {
	for {
		if err := checkDeadline(ctx); err != nil {
			return Row{}, false, err
		}
		if it.idx < len(it.items) {
			v := it.items[it.idx]
			it.idx++
			return it.cur.With(it.op.As, v), true, nil
		}
		row, ok, err := it.input.Next(ctx)
		if err != nil || !ok {
			return Row{}, false, err
		}
		listVal, err := Eval(row, it.ectx.Params, it.op.List)
		if err != nil {
			return Row{}, false, err
		}
		it.cur = row
		switch {
		case listVal.Kind == value.KindList:
			it.items = listVal.List
		case listVal.IsNull():
			it.items = nil
		default:
			it.items = []value.Value{listVal}
		}
		it.idx = 0
	}
}

func (it *unwindIter) Close() error { return it.input.Close() }
