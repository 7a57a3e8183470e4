package exec

import (
	"context"
	"sort"

	"graphlite/internal/ast"
	"graphlite/internal/gqlerr"
	"graphlite/internal/planner"
	"graphlite/internal/value"
)

// sortIter materializes the full input stream and sorts it once.
// Nulls sort last under ASC, first under DESC.
type sortIter struct {
	ectx *Context
	op   *planner.PhysicalSort

	input Iterator
	rows  []Row
	idx   int
}

func (it *sortIter) Open(ctx context.Context) error {
	if err := it.input.Open(ctx); err != nil {
		return err
	}
	var rows []Row
	for {
		row, ok, err := it.input.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	if err := it.input.Close(); err != nil {
		return err
	}

	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		less, err := rowLess(rows[i], rows[j], it.op.Keys, it.ectx.Params)
		if err != nil {
			sortErr = err
			return false
		}
		return less
	})
	if sortErr != nil {
		return sortErr
	}
	it.rows = rows
	return nil
}

func (it *sortIter) Next(ctx context.Context) (Row, bool, error) {
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

func (it *sortIter) Close() error { return nil }

func rowLess(a, b Row, keys []ast.SortKey, params map[string]value.Value) (bool, error) {
	for _, k := range keys {
		av, err := Eval(a, params, k.Expr)
		if err != nil {
			return false, err
		}
		bv, err := Eval(b, params, k.Expr)
		if err != nil {
			return false, err
		}
		aNull, bNull := av.IsNull(), bv.IsNull()
		if aNull && bNull {
			continue
		}
		if aNull != bNull {
			if k.Desc {
				return aNull, nil
			}
			return bNull, nil
		}
		cmp, ok := value.Compare(av, bv)
		if !ok || cmp == 0 {
			continue
		}
		if k.Desc {
			return cmp > 0, nil
		}
		return cmp < 0, nil
	}
	return false, nil
}

// skipIter and limitIter apply after ORDER BY ("SKIP/LIMIT
// evaluated after ORDER BY") because the planner always places them
// above a Sort node in the physical tree; the iterators themselves are
// plain counters regardless of what sits underneath.
type skipIter struct {
	ectx *Context
	op   *planner.PhysicalSkip

	input   Iterator
	n       int64
	skipped bool
}

func (it *skipIter) Open(ctx context.Context) error { return it.input.Open(ctx) }

func (it *skipIter) Next(ctx context.Context) (Row, bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return Row{}, false, err
	}
	if !it.skipped {
		n, err := evalCountExpr(it.ectx, it.op.Count)
		if err != nil {
			return Row{}, false, err
		}
		it.n = n
		it.skipped = true
		for i := int64(0); i < it.n; i++ {
			_, ok, err := it.input.Next(ctx)
			if err != nil {
				return Row{}, false, err
			}
			if !ok {
				break
			}
		}
	}
	return it.input.Next(ctx)
}

func (it *skipIter) Close() error { return it.input.Close() }

type limitIter struct {
	ectx *Context
	op   *planner.PhysicalLimit

	input   Iterator
	limit   int64
	inited  bool
	emitted int64
}

func (it *limitIter) Open(ctx context.Context) error { return it.input.Open(ctx) }

func (it *limitIter) Next(ctx context.Context) (Row, bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return Row{}, false, err
	}
	if !it.inited {
		n, err := evalCountExpr(it.ectx, it.op.Count)
		if err != nil {
			return Row{}, false, err
		}
		it.limit = n
		it.inited = true
	}
	if it.emitted >= it.limit {
		return Row{}, false, nil
	}
	row, ok, err := it.input.Next(ctx)
	if err != nil || !ok {
		return Row{}, false, err
	}
	it.emitted++
	return row, true, nil
}

func (it *limitIter) Close() error { return it.input.Close() }

func evalCountExpr(ectx *Context, e ast.Expr) (int64, error) {
	v, err := Eval(NewRow(), ectx.Params, e)
	if err != nil {
		return 0, err
	}
	if v.Kind == value.KindInt {
		return v.Int, nil
	}
	f, ok := v.AsFloat64()
	if !ok {
		return 0, gqlerr.New(gqlerr.TypeError, "SKIP/LIMIT expects a numeric value")
	}
	return int64(f), nil
}
