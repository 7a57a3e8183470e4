package exec

import (
	"context"

	"graphlite/internal/planner"
)

// filterIter applies a residual predicate row-by-row; only truthy
// results (Value.Truthy: exactly KindBool and true) pass. GQL's
// three-valued logic treats null and non-boolean results as
// not-matching, never as an error.
type filterIter struct {
	ectx *Context
	op   *planner.PhysicalFilter

	input Iterator
}

func (it *filterIter) Open(ctx context.Context) error { return it.input.Open(ctx) }

func (it *filterIter) Next(ctx context.Context) (Row, bool, error) {
	for {
		if err := checkDeadline(ctx); err != nil {
			return Row{}, false, err
		}
		row, ok, err := it.input.Next(ctx)
		if err != nil || !ok {
			return Row{}, false, err
		}
		v, err := Eval(row, it.ectx.Params, it.op.Predicate)
		if err != nil {
			return Row{}, false, err
		}
		if v.Truthy() {
			return row, true, nil
		}
	}
}

func (it *filterIter) Close() error { return it.input.Close() }
