package planner

import (
	"graphlite/internal/ast"
	"graphlite/internal/value"
)

// Optimize applies the logical rewrites to fixpoint: predicate
// pushdown, projection pruning, constant folding, dead-code
// elimination. Each is a single transform() pass; passes repeat in
// sequence until a full round changes nothing.
func Optimize(plan LogicalOp) LogicalOp {
	for {
		changed := false
		plan, changed = runPass(plan, foldConstants)
		var ch bool
		plan, ch = runPass(plan, pushdownPredicate)
		changed = changed || ch
		plan, ch = runPass(plan, eliminateDeadCode)
		changed = changed || ch
		plan, ch = runPass(plan, pruneIdentityProjects)
		changed = changed || ch
		if !changed {
			return plan
		}
	}
}

func runPass(plan LogicalOp, visit func(LogicalOp) (LogicalOp, bool)) (LogicalOp, bool) {
	return transform(plan, visit)
}

// --- constant folding ---

func foldConstants(op LogicalOp) (LogicalOp, bool) {
	switch o := op.(type) {
	case *LogicalFilter:
		e, ch := foldExpr(o.Predicate)
		if !ch {
			return o, false
		}
		cp := *o
		cp.Predicate = e
		return &cp, true
	case *LogicalProject:
		items, ch := foldProjectionItems(o.Items)
		if !ch {
			return o, false
		}
		cp := *o
		cp.Items = items
		return &cp, true
	case *LogicalAggregate:
		groups, ch1 := foldProjectionItems(o.Groups)
		aggs, ch2 := foldProjectionItems(o.Aggs)
		if !ch1 && !ch2 {
			return o, false
		}
		cp := *o
		cp.Groups, cp.Aggs = groups, aggs
		return &cp, true
	case *LogicalSkip:
		e, ch := foldExpr(o.Count)
		if !ch {
			return o, false
		}
		cp := *o
		cp.Count = e
		return &cp, true
	case *LogicalLimit:
		e, ch := foldExpr(o.Count)
		if !ch {
			return o, false
		}
		cp := *o
		cp.Count = e
		return &cp, true
	case *LogicalUnwind:
		e, ch := foldExpr(o.List)
		if !ch {
			return o, false
		}
		cp := *o
		cp.List = e
		return &cp, true
	default:
		return op, false
	}
}

func foldProjectionItems(items []ast.ProjectionItem) ([]ast.ProjectionItem, bool) {
	changed := false
	out := make([]ast.ProjectionItem, len(items))
	for i, it := range items {
		e, ch := foldExpr(it.Expr)
		out[i] = ast.ProjectionItem{Expr: e, Alias: it.Alias}
		changed = changed || ch
	}
	if !changed {
		return items, false
	}
	return out, true
}

// foldExpr evaluates an expression tree bottom-up, replacing any
// sub-expression whose operands are all literals with the literal
// result ("constant folding"). It never touches variable or
// property references, so it is always safe regardless of row data.
func foldExpr(e ast.Expr) (ast.Expr, bool) {
	switch ex := e.(type) {
	case nil, *ast.Literal, *ast.VarExpr, *ast.ParamExpr:
		return e, false
	case *ast.PropertyAccessExpr:
		target, ch := foldExpr(ex.Target)
		if !ch {
			return ex, false
		}
		return &ast.PropertyAccessExpr{Target: target, Property: ex.Property}, true
	case *ast.BinaryExpr:
		left, ch1 := foldExpr(ex.Left)
		right, ch2 := foldExpr(ex.Right)
		if lit, ok := evalBinary(ex.Op, left, right); ok {
			return lit, true
		}
		if !ch1 && !ch2 {
			return ex, false
		}
		return &ast.BinaryExpr{Op: ex.Op, Left: left, Right: right}, true
	case *ast.UnaryExpr:
		operand, ch := foldExpr(ex.Operand)
		if lit, ok := evalUnary(ex.Op, operand); ok {
			return lit, true
		}
		if !ch {
			return ex, false
		}
		return &ast.UnaryExpr{Op: ex.Op, Operand: operand}, true
	case *ast.FuncCallExpr:
		changed := false
		args := make([]ast.Expr, len(ex.Args))
		for i, a := range ex.Args {
			na, ch := foldExpr(a)
			args[i] = na
			changed = changed || ch
		}
		if !changed {
			return ex, false
		}
		cp := *ex
		cp.Args = args
		return &cp, true
	case *ast.CaseExpr:
		changed := false
		var operand ast.Expr
		if ex.Operand != nil {
			var ch bool
			operand, ch = foldExpr(ex.Operand)
			changed = changed || ch
		}
		whens := make([]ast.WhenClause, len(ex.Whens))
		for i, w := range ex.Whens {
			cond, ch1 := foldExpr(w.Cond)
			then, ch2 := foldExpr(w.Then)
			whens[i] = ast.WhenClause{Cond: cond, Then: then}
			changed = changed || ch1 || ch2
		}
		var elseE ast.Expr
		if ex.Else != nil {
			var ch bool
			elseE, ch = foldExpr(ex.Else)
			changed = changed || ch
		}
		if !changed {
			return ex, false
		}
		return &ast.CaseExpr{Operand: operand, Whens: whens, Else: elseE}, true
	case *ast.ListExpr:
		changed := false
		items := make([]ast.Expr, len(ex.Items))
		for i, it := range ex.Items {
			ni, ch := foldExpr(it)
			items[i] = ni
			changed = changed || ch
		}
		if !changed {
			return ex, false
		}
		return &ast.ListExpr{Items: items}, true
	case *ast.MapExpr:
		changed := false
		entries := make(map[string]ast.Expr, len(ex.Entries))
		for k, v := range ex.Entries {
			nv, ch := foldExpr(v)
			entries[k] = nv
			changed = changed || ch
		}
		if !changed {
			return ex, false
		}
		return &ast.MapExpr{Entries: entries}, true
	default:
		return e, false
	}
}

func asLiteral(e ast.Expr) (value.Value, bool) {
	lit, ok := e.(*ast.Literal)
	if !ok {
		return value.Value{}, false
	}
	return lit.Value, true
}

func valueAdd(a, b value.Value) (value.Value, bool)  { return value.Add(a, b) }
func valueSub(a, b value.Value) (value.Value, bool)  { return value.Sub(a, b) }
func valueMul(a, b value.Value) (value.Value, bool)  { return value.Mul(a, b) }
func valueEqual(a, b value.Value) bool               { return value.Equal(a, b) }
func valueCompare(a, b value.Value) (int, bool)       { return value.Compare(a, b) }
func valueBool(b bool) value.Value                    { return value.Bool(b) }
func valueIsNull(v value.Value) bool                  { return v.IsNull() }

func valueDiv(a, b value.Value) (value.Value, bool) {
	res, ok, divByZero := value.Div(a, b)
	if divByZero {
		return value.Value{}, false
	}
	return res, ok
}

func asBool(v value.Value) (bool, bool) {
	if v.Kind == value.KindBool {
		return v.Bool, true
	}
	return false, false
}

func valueNeg(v value.Value) (value.Value, bool) {
	switch v.Kind {
	case value.KindInt:
		return value.Int(-v.Int), true
	case value.KindFloat:
		return value.Float(-v.Float), true
	default:
		return value.Value{}, false
	}
}

func evalBinary(op ast.BinaryOp, left, right ast.Expr) (*ast.Literal, bool) {
	lv, lok := asLiteral(left)
	rv, rok := asLiteral(right)
	if !lok || !rok {
		return nil, false
	}
	switch op {
	case ast.OpAdd:
		if v, ok := valueAdd(lv, rv); ok {
			return &ast.Literal{Value: v}, true
		}
	case ast.OpSub:
		if v, ok := valueSub(lv, rv); ok {
			return &ast.Literal{Value: v}, true
		}
	case ast.OpMul:
		if v, ok := valueMul(lv, rv); ok {
			return &ast.Literal{Value: v}, true
		}
	case ast.OpDiv:
		if v, ok := valueDiv(lv, rv); ok {
			return &ast.Literal{Value: v}, true
		}
	case ast.OpEq:
		return &ast.Literal{Value: valueBool(valueEqual(lv, rv))}, true
	case ast.OpNeq:
		return &ast.Literal{Value: valueBool(!valueEqual(lv, rv))}, true
	case ast.OpLt, ast.OpGt, ast.OpLte, ast.OpGte:
		if cmp, ok := valueCompare(lv, rv); ok {
			return &ast.Literal{Value: valueBool(compareSatisfies(op, cmp))}, true
		}
	case ast.OpAnd:
		if lb, lbok := asBool(lv); lbok {
			if rb, rbok := asBool(rv); rbok {
				return &ast.Literal{Value: valueBool(lb && rb)}, true
			}
		}
	case ast.OpOr:
		if lb, lbok := asBool(lv); lbok {
			if rb, rbok := asBool(rv); rbok {
				return &ast.Literal{Value: valueBool(lb || rb)}, true
			}
		}
	}
	return nil, false
}

func evalUnary(op ast.UnaryOp, operand ast.Expr) (*ast.Literal, bool) {
	v, ok := asLiteral(operand)
	if !ok {
		return nil, false
	}
	switch op {
	case ast.OpNot:
		if b, ok := asBool(v); ok {
			return &ast.Literal{Value: valueBool(!b)}, true
		}
	case ast.OpNeg:
		if neg, ok := valueNeg(v); ok {
			return &ast.Literal{Value: neg}, true
		}
	case ast.OpIsNull:
		return &ast.Literal{Value: valueBool(valueIsNull(v))}, true
	case ast.OpIsNotNull:
		return &ast.Literal{Value: valueBool(!valueIsNull(v))}, true
	}
	return nil, false
}

func compareSatisfies(op ast.BinaryOp, cmp int) bool {
	switch op {
	case ast.OpLt:
		return cmp < 0
	case ast.OpGt:
		return cmp > 0
	case ast.OpLte:
		return cmp <= 0
	case ast.OpGte:
		return cmp >= 0
	default:
		return false
	}
}

// --- predicate pushdown ---

// pushdownPredicate pushes an equality conjunct of Filter(Scan) down
// into the Scan itself as a FieldFilter, so the physical planner can
// try an index-backed access path ("predicate pushdown").
func pushdownPredicate(op LogicalOp) (LogicalOp, bool) {
	f, ok := op.(*LogicalFilter)
	if !ok {
		return op, false
	}
	scan, ok := f.Input.(*LogicalScan)
	if !ok || scan.Pushed != nil {
		return op, false
	}
	conjuncts := splitAnd(f.Predicate)
	var remaining []ast.Expr
	var pushed *FieldFilter
	for _, c := range conjuncts {
		if pushed == nil {
			if prop, val, ok := equalityOnVar(c, scan.Variable); ok {
				pushed = &FieldFilter{Property: prop, Value: val}
				continue
			}
		}
		remaining = append(remaining, c)
	}
	if pushed == nil {
		return op, false
	}
	newScan := &LogicalScan{Variable: scan.Variable, Label: scan.Label, Pushed: pushed}
	if len(remaining) == 0 {
		return newScan, true
	}
	return &LogicalFilter{Input: newScan, Predicate: andAll(remaining)}, true
}

func splitAnd(e ast.Expr) []ast.Expr {
	if b, ok := e.(*ast.BinaryExpr); ok && b.Op == ast.OpAnd {
		return append(splitAnd(b.Left), splitAnd(b.Right)...)
	}
	return []ast.Expr{e}
}

func equalityOnVar(e ast.Expr, variable string) (property string, val ast.Expr, ok bool) {
	b, isBin := e.(*ast.BinaryExpr)
	if !isBin || b.Op != ast.OpEq {
		return "", nil, false
	}
	if pa, isProp := b.Left.(*ast.PropertyAccessExpr); isProp {
		if v, isVar := pa.Target.(*ast.VarExpr); isVar && v.Name == variable {
			if _, isLit := b.Right.(*ast.Literal); isLit {
				return pa.Property, b.Right, true
			}
		}
	}
	if pa, isProp := b.Right.(*ast.PropertyAccessExpr); isProp {
		if v, isVar := pa.Target.(*ast.VarExpr); isVar && v.Name == variable {
			if _, isLit := b.Left.(*ast.Literal); isLit {
				return pa.Property, b.Left, true
			}
		}
	}
	return "", nil, false
}

// --- dead-code elimination ---

// eliminateDeadCode drops Filter nodes whose predicate folded to a
// constant true, and collapses any subtree whose predicate folded to
// a constant false into LogicalEmpty, propagating emptiness upward
// through operators that cannot produce rows from zero input rows
// ("dead-code elimination").
func eliminateDeadCode(op LogicalOp) (LogicalOp, bool) {
	if f, ok := op.(*LogicalFilter); ok {
		if lit, isLit := f.Predicate.(*ast.Literal); isLit {
			if b, isBool := asBool(lit.Value); isBool {
				if b {
					return f.Input, true
				}
				return &LogicalEmpty{}, true
			}
		}
	}
	switch o := op.(type) {
	case *LogicalExpand:
		if isEmpty(o.Input) {
			return &LogicalEmpty{}, true
		}
	case *LogicalFilter:
		if isEmpty(o.Input) {
			return &LogicalEmpty{}, true
		}
	case *LogicalProject:
		if isEmpty(o.Input) {
			return &LogicalEmpty{}, true
		}
	case *LogicalAggregate:
		// An aggregate over zero groups still yields one row for
		// grouping-free aggregates (e.g. COUNT(*) = 0); only collapse
		// when there is an explicit grouping key, matching standard
		// GROUP BY semantics.
		if isEmpty(o.Input) && len(o.Groups) > 0 {
			return &LogicalEmpty{}, true
		}
	case *LogicalSort:
		if isEmpty(o.Input) {
			return &LogicalEmpty{}, true
		}
	case *LogicalSkip:
		if isEmpty(o.Input) {
			return &LogicalEmpty{}, true
		}
	case *LogicalLimit:
		if isEmpty(o.Input) {
			return &LogicalEmpty{}, true
		}
	case *LogicalUnwind:
		if isEmpty(o.Input) {
			return &LogicalEmpty{}, true
		}
	case *LogicalJoin:
		if isEmpty(o.Left) {
			return &LogicalEmpty{}, true
		}
		if !o.Optional && isEmpty(o.Right) {
			return &LogicalEmpty{}, true
		}
	case *LogicalSetOp:
		switch o.Kind {
		case ast.Union:
			if isEmpty(o.Left) && isEmpty(o.Right) {
				return &LogicalEmpty{}, true
			}
		case ast.Intersect:
			if isEmpty(o.Left) || isEmpty(o.Right) {
				return &LogicalEmpty{}, true
			}
		case ast.Except:
			if isEmpty(o.Left) {
				return &LogicalEmpty{}, true
			}
		}
	}
	return op, false
}

func isEmpty(op LogicalOp) bool {
	_, ok := op.(*LogicalEmpty)
	return ok
}

// --- projection pruning ---

// pruneIdentityProjects collapses a Project directly over another
// Project when the outer one re-selects exactly the columns the inner
// one produced, in the same order and under the same names, dropping the redundant
// intermediate node ("projection pruning").
func pruneIdentityProjects(op LogicalOp) (LogicalOp, bool) {
	outer, ok := op.(*LogicalProject)
	if !ok {
		return op, false
	}
	inner, ok := outer.Input.(*LogicalProject)
	if !ok || inner.Distinct {
		return op, false
	}
	if len(outer.Items) != len(inner.Items) {
		return op, false
	}
	for i, it := range outer.Items {
		v, isVar := it.Expr.(*ast.VarExpr)
		if !isVar || v.Name != outputName(it) || v.Name != outputName(inner.Items[i]) {
			return op, false
		}
	}
	// Every outer item is a pure passthrough of an inner column; the
	// inner project alone already yields the outer's exact row shape.
	return inner, true
}

func outputName(it ast.ProjectionItem) string {
	if it.Alias != "" {
		return it.Alias
	}
	if v, ok := it.Expr.(*ast.VarExpr); ok {
		return v.Name
	}
	return ""
}
