package exec

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"graphlite/internal/ast"
	"graphlite/internal/planner"
)

// projectIter evaluates each projection item against the input row and
// optionally deduplicates (DISTINCT / implicit WITH distinct).
type projectIter struct {
	ectx *Context
	op   *planner.PhysicalProject

	input Iterator
	seen  map[string]bool
}

func (it *projectIter) Open(ctx context.Context) error {
	if it.op.Distinct {
		it.seen = map[string]bool{}
	}
	return it.input.Open(ctx)
}

func (it *projectIter) Next(ctx context.Context) (Row, bool, error) {
	for {
		if err := checkDeadline(ctx); err != nil {
			return Row{}, false, err
		}
		row, ok, err := it.input.Next(ctx)
		if err != nil || !ok {
			return Row{}, false, err
		}
		out := NewRow()
		for _, item := range it.op.Items {
			v, err := Eval(row, it.ectx.Params, item.Expr)
			if err != nil {
				return Row{}, false, err
			}
			out = out.With(outputName(item), v)
		}
		if it.seen != nil {
			fp := rowFingerprint(out)
			if it.seen[fp] {
				continue
			}
			it.seen[fp] = true
		}
		return out, true, nil
	}
}

func (it *projectIter) Close() error { return it.input.Close() }

// outputName derives a projection item's column name: the explicit
// alias when given, else a default built from the expression's shape.
// The distilled grammar does not pin down this default exactly; this
// follows the common convention of naming a bare property access
// "var.property" and a bare variable reference by its own name.
func outputName(item ast.ProjectionItem) string {
	if item.Alias != "" {
		return item.Alias
	}
	return exprText(item.Expr)
}

func exprText(e ast.Expr) string {
	switch ex := e.(type) {
	case *ast.VarExpr:
		return ex.Name
	case *ast.PropertyAccessExpr:
		return exprText(ex.Target) + "." + ex.Property
	case *ast.Literal:
		return ex.Value.String()
	case *ast.FuncCallExpr:
		return ex.Name
	case *ast.ParamExpr:
		return "$" + ex.Name
	default:
		return ""
	}
}

// rowFingerprint is a canonical string key for DISTINCT/dedup purposes,
// prefixing each value with its Kind so values that stringify alike
// but differ in type (Int(1) vs Float(1)) never collide.
func rowFingerprint(r Row) string {
	keys := make([]string, 0, len(r.Vals))
	for k := range r.Vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		v := r.Vals[k]
		b.WriteString(k)
		b.WriteByte('=')
		fmt.Fprintf(&b, "%d:%s", v.Kind, v.String())
		b.WriteByte(';')
	}
	return b.String()
}
