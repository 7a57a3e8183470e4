package exec

import (
	"context"

	"graphlite/internal/ast"
	"graphlite/internal/planner"
	"graphlite/internal/value"
)

// setOpIter materializes both sides fully before combining them
//: UNION concatenates and dedups, UNION ALL concatenates
// without dedup, INTERSECT/EXCEPT are row-set operations that always
// dedup their result. Row equality follows SQL semantics — null is
// never equal to null, even to itself — except for Node/Edge columns,
// where value.Equal already compares by entity identity rather than by
// property contents, which is exactly the identity-based dedup rule
// set operations over graph results need.
type setOpIter struct {
	ectx *Context
	op   *planner.PhysicalSetOp

	left, right Iterator
	rows        []Row
	idx         int
}

func (it *setOpIter) Open(ctx context.Context) error {
	leftRows, err := drain(ctx, it.left)
	if err != nil {
		return err
	}
	rightRows, err := drain(ctx, it.right)
	if err != nil {
		return err
	}

	var out []Row
	switch it.op.Kind {
	case ast.Union:
		if it.op.All {
			out = append(append(out, leftRows...), rightRows...)
		} else {
			out = dedupRows(append(append([]Row{}, leftRows...), rightRows...))
		}
	case ast.Intersect:
		for _, l := range leftRows {
			if rowInSet(l, rightRows) && !rowInSet(l, out) {
				out = append(out, l)
			}
		}
	case ast.Except:
		for _, l := range leftRows {
			if !rowInSet(l, rightRows) && !rowInSet(l, out) {
				out = append(out, l)
			}
		}
	}
	it.rows = out
	return nil
}

func (it *setOpIter) Next(ctx context.Context) (Row, bool, error) {
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

func (it *setOpIter) Close() error { return nil }

func drain(ctx context.Context, it Iterator) ([]Row, error) {
	if err := it.Open(ctx); err != nil {
		return nil, err
	}
	var rows []Row
	for {
		row, ok, err := it.Next(ctx)
		if err != nil {
			_ = it.Close()
			return nil, err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	if err := it.Close(); err != nil {
		return nil, err
	}
	return rows, nil
}

func columnsEqualSQL(a, b value.Value) bool {
	if a.Kind == value.KindNull || b.Kind == value.KindNull {
		return false
	}
	return value.Equal(a, b)
}

func rowsEqualSQL(a, b Row) bool {
	if len(a.Vals) != len(b.Vals) {
		return false
	}
	for k, av := range a.Vals {
		bv, ok := b.Vals[k]
		if !ok || !columnsEqualSQL(av, bv) {
			return false
		}
	}
	return true
}

func rowInSet(r Row, set []Row) bool {
	for _, s := range set {
		if rowsEqualSQL(r, s) {
			return true
		}
	}
	return false
}

func dedupRows(rows []Row) []Row {
	var out []Row
	for _, r := range rows {
		if !rowInSet(r, out) {
			out = append(out, r)
		}
	}
	return out
}
