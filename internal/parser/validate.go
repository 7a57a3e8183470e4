package parser

import (
	"github.com/hashicorp/go-multierror"

	"graphlite/internal/ast"
	"graphlite/internal/gqlerr"
)

// aggregateFuncs is the set of built-in aggregate function names
// ("aggregation").
var aggregateFuncs = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true, "COLLECT": true,
}

// scope tracks which variables are bound at a point in a clause
// pipeline, so later clauses can be checked for undefined references
// ("variable scoping").
type scope struct {
	vars   map[string]bool
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: map[string]bool{}, parent: parent}
}

func (s *scope) bind(name string) {
	if name != "" {
		s.vars[name] = true
	}
}

func (s *scope) has(name string) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.vars[name] {
			return true
		}
	}
	return false
}

// Validate performs the semantic pass: variable binding checks,
// duplicate projection aliases and built-in function arity, reporting
// a SemanticError. A projection that mixes aggregate and non-aggregate
// items is accepted; the planner groups by its non-aggregate items. It is run
// separately from Parse so callers can choose to skip it (e.g. for
// EXPLAIN-only tooling that only needs the syntax tree).
func Validate(stmt ast.Statement) error {
	q, ok := stmt.(*ast.Query)
	if !ok {
		return nil
	}
	return validateQuery(q)
}

// validateQuery checks every clause rather than stopping at the first
// bad one, so errors in several clauses are all reported in one pass
// instead of making the caller fix-and-reparse one error at a time;
// within one clause only the first error is reported.
func validateQuery(q *ast.Query) error {
	sc := newScope(nil)
	var errs *multierror.Error
	for _, c := range q.Clauses {
		if err := validateClause(c, sc); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if q.SetOp != nil {
		if err := validateQuery(q.SetOp.Right); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs.ErrorOrNil() == nil {
		return nil
	}
	return gqlerr.Wrap(gqlerr.KindOf(errs.Errors[0]), errs, "%d semantic error(s)", len(errs.Errors))
}

func validateClause(c ast.Clause, sc *scope) error {
	switch cl := c.(type) {
	case *ast.MatchClause:
		bindPattern(cl.Pattern, sc)
		if cl.Where != nil {
			if err := validateExpr(cl.Where, sc); err != nil {
				return err
			}
		}
	case *ast.WithClause:
		if err := validateProjection(cl.Items, sc); err != nil {
			return err
		}
		if cl.Where != nil {
			if err := validateExpr(cl.Where, sc); err != nil {
				return err
			}
		}
		rebindProjection(cl.Items, sc)
	case *ast.ReturnClause:
		if err := validateProjection(cl.Items, sc); err != nil {
			return err
		}
		for _, k := range cl.OrderBy {
			if err := validateExpr(k.Expr, sc); err != nil {
				return err
			}
		}
		if cl.Skip != nil {
			if err := validateExpr(cl.Skip, sc); err != nil {
				return err
			}
		}
		if cl.Limit != nil {
			if err := validateExpr(cl.Limit, sc); err != nil {
				return err
			}
		}
	case *ast.UnwindClause:
		if err := validateExpr(cl.List, sc); err != nil {
			return err
		}
		sc.bind(cl.As)
	case *ast.InsertClause:
		bindPattern(cl.Pattern, sc)
	case *ast.SetClause:
		for _, item := range cl.Items {
			if err := validateExpr(item.Target, sc); err != nil {
				return err
			}
			if err := validateExpr(item.Value, sc); err != nil {
				return err
			}
		}
	case *ast.RemoveClause:
		for _, t := range cl.Targets {
			if err := validateExpr(t, sc); err != nil {
				return err
			}
		}
	case *ast.DeleteClause:
		for _, t := range cl.Targets {
			if err := validateExpr(t, sc); err != nil {
				return err
			}
		}
	case *ast.CallClause:
		for _, a := range cl.Args {
			if err := validateExpr(a, sc); err != nil {
				return err
			}
		}
		for _, y := range cl.Yield {
			sc.bind(y)
		}
	}
	return nil
}

func bindPattern(p *ast.PathPattern, sc *scope) {
	if p == nil {
		return
	}
	sc.bind(p.Variable)
	for _, n := range p.Nodes {
		sc.bind(n.Variable)
	}
	for _, e := range p.Edges {
		sc.bind(e.Variable)
	}
}

func validateProjection(items []ast.ProjectionItem, sc *scope) error {
	seen := map[string]bool{}
	for _, item := range items {
		if item.Alias != "" {
			if seen[item.Alias] {
				return gqlerr.Semanticf(gqlerr.Location{}, "duplicate projection alias %q", item.Alias)
			}
			seen[item.Alias] = true
		}
		if err := validateExpr(item.Expr, sc); err != nil {
			return err
		}
	}
	return nil
}

func rebindProjection(items []ast.ProjectionItem, sc *scope) {
	for _, item := range items {
		if item.Alias != "" {
			sc.bind(item.Alias)
		} else if v, ok := item.Expr.(*ast.VarExpr); ok {
			sc.bind(v.Name)
		}
	}
}

func exprIsAggregate(e ast.Expr) bool {
	switch ex := e.(type) {
	case *ast.FuncCallExpr:
		return aggregateFuncs[normalizedFuncName(ex.Name)]
	case *ast.BinaryExpr:
		return exprIsAggregate(ex.Left) || exprIsAggregate(ex.Right)
	case *ast.UnaryExpr:
		return exprIsAggregate(ex.Operand)
	default:
		return false
	}
}

func isConstExpr(e ast.Expr) bool {
	_, ok := e.(*ast.Literal)
	return ok
}

func normalizedFuncName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// builtinArity lists fixed argument counts for scalar built-ins that
// do not accept a variable number of arguments. Functions absent from
// this map are assumed variadic or are resolved by the executor's
// function registry.
var builtinArity = map[string]int{
	"UPPER": 1, "LOWER": 1, "LENGTH": 1, "ABS": 1, "TOSTRING": 1,
	"TOINTEGER": 1, "TOFLOAT": 1, "SUBSTRING": 3, "NOW": 0,
	"TRIM": 1, "CEIL": 1, "FLOOR": 1, "ROUND": 1, "SQRT": 1, "POW": 2,
}

func validateExpr(e ast.Expr, sc *scope) error {
	switch ex := e.(type) {
	case nil:
		return nil
	case *ast.Literal, *ast.ParamExpr:
		return nil
	case *ast.VarExpr:
		if !sc.has(ex.Name) {
			return gqlerr.Semanticf(gqlerr.Location{}, "undefined variable %q", ex.Name)
		}
		return nil
	case *ast.PropertyAccessExpr:
		return validateExpr(ex.Target, sc)
	case *ast.BinaryExpr:
		if err := validateExpr(ex.Left, sc); err != nil {
			return err
		}
		return validateExpr(ex.Right, sc)
	case *ast.UnaryExpr:
		return validateExpr(ex.Operand, sc)
	case *ast.FuncCallExpr:
		if n, ok := builtinArity[normalizedFuncName(ex.Name)]; ok && !ex.Star && len(ex.Args) != n {
			return gqlerr.Semanticf(gqlerr.Location{}, "function %s expects %d argument(s), got %d", ex.Name, n, len(ex.Args))
		}
		for _, a := range ex.Args {
			if err := validateExpr(a, sc); err != nil {
				return err
			}
		}
		return nil
	case *ast.CaseExpr:
		if ex.Operand != nil {
			if err := validateExpr(ex.Operand, sc); err != nil {
				return err
			}
		}
		for _, w := range ex.Whens {
			if err := validateExpr(w.Cond, sc); err != nil {
				return err
			}
			if err := validateExpr(w.Then, sc); err != nil {
				return err
			}
		}
		if ex.Else != nil {
			return validateExpr(ex.Else, sc)
		}
		return nil
	case *ast.ListExpr:
		for _, item := range ex.Items {
			if err := validateExpr(item, sc); err != nil {
				return err
			}
		}
		return nil
	case *ast.MapExpr:
		for _, v := range ex.Entries {
			if err := validateExpr(v, sc); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}
