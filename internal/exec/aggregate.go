package exec

import (
	"context"
	"fmt"
	"strings"

	"graphlite/internal/ast"
	"graphlite/internal/planner"
	"graphlite/internal/value"
)

// aggregateIter materializes its input, groups rows by the evaluated
// Groups expressions (the implicit grouping key set is the
// non-aggregate projection columns; null grouping keys group
// together, since the group key is a plain string fingerprint and
// every null stringifies identically), then emits one row per group
// with both the group keys and the aggregate results bound. HAVING is
// not handled here: the planner wraps a LogicalFilter around the
// aggregate's output, lowered to an ordinary PhysicalFilter over this
// iterator.
type aggregateIter struct {
	ectx *Context
	op   *planner.PhysicalAggregate

	input Iterator
	rows  []Row
	idx   int
}

type aggGroup struct {
	keyVals []value.Value
	acc     []aggAccumulator
}

func (it *aggregateIter) Open(ctx context.Context) error {
	if err := it.input.Open(ctx); err != nil {
		return err
	}

	order := make([]string, 0)
	groups := make(map[string]*aggGroup)

	for {
		row, ok, err := it.input.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		keyVals := make([]value.Value, len(it.op.Groups))
		keyParts := make([]string, len(it.op.Groups))
		for i, g := range it.op.Groups {
			v, err := Eval(row, it.ectx.Params, g.Expr)
			if err != nil {
				return err
			}
			keyVals[i] = v
			keyParts[i] = fmt.Sprintf("%d:%s", v.Kind, v.String())
		}
		key := strings.Join(keyParts, "\x1f")

		grp, exists := groups[key]
		if !exists {
			grp = &aggGroup{keyVals: keyVals, acc: make([]aggAccumulator, len(it.op.Aggs))}
			for i, a := range it.op.Aggs {
				grp.acc[i] = newAccumulator(a.Expr)
			}
			groups[key] = grp
			order = append(order, key)
		}

		for i, a := range it.op.Aggs {
			fc, ok := a.Expr.(*ast.FuncCallExpr)
			if !ok {
				continue
			}
			if fc.Star {
				grp.acc[i].Add(value.Null, false)
				continue
			}
			if len(fc.Args) == 0 {
				continue
			}
			v, err := Eval(row, it.ectx.Params, fc.Args[0])
			if err != nil {
				return err
			}
			grp.acc[i].Add(v, v.IsNull())
		}
	}
	if err := it.input.Close(); err != nil {
		return err
	}

	rows := make([]Row, 0, len(order)+1)
	for _, key := range order {
		grp := groups[key]
		r := NewRow()
		for i, g := range it.op.Groups {
			r = r.With(outputName(g), grp.keyVals[i])
		}
		for i, a := range it.op.Aggs {
			r = r.With(outputName(a), grp.acc[i].Result())
		}
		rows = append(rows, r)
	}
	if len(rows) == 0 && len(it.op.Groups) == 0 {
		r := NewRow()
		for _, a := range it.op.Aggs {
			acc := newAccumulator(a.Expr)
			r = r.With(outputName(a), acc.Result())
		}
		rows = append(rows, r)
	}
	it.rows = rows
	return nil
}

func (it *aggregateIter) Next(ctx context.Context) (Row, bool, error) {
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

func (it *aggregateIter) Close() error { return nil }

type aggAccumulator interface {
	Add(v value.Value, isNull bool)
	Result() value.Value
}

func newAccumulator(e ast.Expr) aggAccumulator {
	fc, ok := e.(*ast.FuncCallExpr)
	if !ok {
		return &countAcc{}
	}
	switch strings.ToUpper(fc.Name) {
	case "COUNT":
		if fc.Distinct {
			return &countAcc{distinct: map[string]bool{}}
		}
		return &countAcc{}
	case "SUM":
		return &sumAcc{isInt: true}
	case "AVG":
		return &avgAcc{}
	case "MIN":
		return &minMaxAcc{max: false}
	case "MAX":
		return &minMaxAcc{max: true}
	case "COLLECT":
		return &collectAcc{}
	default:
		return &countAcc{}
	}
}

type countAcc struct {
	n        int64
	distinct map[string]bool
}

func (a *countAcc) Add(v value.Value, isNull bool) {
	if isNull {
		return
	}
	if a.distinct != nil {
		key := fmt.Sprintf("%d:%s", v.Kind, v.String())
		if a.distinct[key] {
			return
		}
		a.distinct[key] = true
	}
	a.n++
}
func (a *countAcc) Result() value.Value { return value.Int(a.n) }

type sumAcc struct {
	sum   float64
	isInt bool
	any   bool
}

func (a *sumAcc) Add(v value.Value, isNull bool) {
	if isNull || !v.IsNumber() {
		return
	}
	a.any = true
	f, _ := v.AsFloat64()
	a.sum += f
	if v.Kind != value.KindInt {
		a.isInt = false
	}
}
func (a *sumAcc) Result() value.Value {
	if !a.any {
		return value.Int(0)
	}
	if a.isInt {
		return value.Int(int64(a.sum))
	}
	return value.Float(a.sum)
}

type avgAcc struct {
	sum float64
	n   int64
}

func (a *avgAcc) Add(v value.Value, isNull bool) {
	if isNull || !v.IsNumber() {
		return
	}
	f, _ := v.AsFloat64()
	a.sum += f
	a.n++
}
func (a *avgAcc) Result() value.Value {
	if a.n == 0 {
		return value.Null
	}
	return value.Float(a.sum / float64(a.n))
}

type minMaxAcc struct {
	v   value.Value
	has bool
	max bool
}

func (a *minMaxAcc) Add(v value.Value, isNull bool) {
	if isNull {
		return
	}
	if !a.has {
		a.v = v
		a.has = true
		return
	}
	cmp, ok := value.Compare(a.v, v)
	if !ok {
		return
	}
	if (a.max && cmp < 0) || (!a.max && cmp > 0) {
		a.v = v
	}
}
func (a *minMaxAcc) Result() value.Value {
	if !a.has {
		return value.Null
	}
	return a.v
}

type collectAcc struct {
	items []value.Value
}

func (a *collectAcc) Add(v value.Value, isNull bool) {
	if isNull {
		return
	}
	a.items = append(a.items, v)
}
func (a *collectAcc) Result() value.Value {
	if a.items == nil {
		return value.List(nil)
	}
	return value.List(a.items)
}
