package planner

import (
	"graphlite/internal/ast"
	"graphlite/internal/gqlerr"
	"graphlite/internal/value"
)

// Build converts a validated AST statement into an unoptimized logical
// plan ("Logical"). Callers should run parser.Validate first;
// Build does not re-check variable scoping.
func Build(stmt ast.Statement) (LogicalOp, error) {
	switch s := stmt.(type) {
	case *ast.Query:
		return buildQuery(s)
	default:
		return nil, gqlerr.Internalf("planner: statement type %T has no logical plan", stmt)
	}
}

func buildQuery(q *ast.Query) (LogicalOp, error) {
	var plan LogicalOp
	for _, c := range q.Clauses {
		next, err := buildClause(plan, c)
		if err != nil {
			return nil, err
		}
		plan = next
	}
	if plan == nil {
		return nil, gqlerr.Internalf("planner: query has no clauses")
	}
	if q.SetOp != nil {
		right, err := buildQuery(q.SetOp.Right)
		if err != nil {
			return nil, err
		}
		plan = &LogicalSetOp{Kind: q.SetOp.Kind, All: q.SetOp.All, Left: plan, Right: right}
	}
	return plan, nil
}

func buildClause(plan LogicalOp, c ast.Clause) (LogicalOp, error) {
	switch cl := c.(type) {
	case *ast.MatchClause:
		return buildMatch(plan, cl)
	case *ast.WithClause:
		return buildProjection(plan, cl.Items, cl.Distinct, cl.Where, nil, nil, nil)
	case *ast.ReturnClause:
		return buildProjection(plan, cl.Items, cl.Distinct, nil, cl.OrderBy, cl.Skip, cl.Limit)
	case *ast.UnwindClause:
		return &LogicalUnwind{Input: plan, List: cl.List, As: cl.As}, nil
	case *ast.InsertClause:
		return &LogicalInsert{Input: plan, Pattern: cl.Pattern}, nil
	case *ast.SetClause:
		return &LogicalSetProp{Input: plan, Items: cl.Items}, nil
	case *ast.RemoveClause:
		return &LogicalRemoveProp{Input: plan, Targets: cl.Targets}, nil
	case *ast.DeleteClause:
		return &LogicalDelete{Input: plan, Detach: cl.Detach, Targets: cl.Targets}, nil
	case *ast.CallClause:
		return &LogicalCall{Input: plan, Procedure: cl.Procedure, Args: cl.Args}, nil
	default:
		return nil, gqlerr.Internalf("planner: unhandled clause type %T", c)
	}
}

func buildMatch(plan LogicalOp, cl *ast.MatchClause) (LogicalOp, error) {
	pattern, err := buildPattern(cl.Pattern)
	if err != nil {
		return nil, err
	}
	if cl.Where != nil {
		pattern = &LogicalFilter{Input: pattern, Predicate: cl.Where}
	}
	if plan == nil {
		return pattern, nil
	}
	return &LogicalJoin{Left: plan, Right: pattern, Optional: cl.Optional}, nil
}

// buildPattern lowers one path pattern into a Scan followed by a chain
// of Expands, pushing node/edge label and property constraints down as
// Filter predicates the way a hand-written plan would.
func buildPattern(p *ast.PathPattern) (LogicalOp, error) {
	if len(p.Nodes) == 0 {
		return nil, gqlerr.Internalf("planner: empty path pattern")
	}
	first := p.Nodes[0]
	label := ""
	extraLabels := first.Labels
	if len(first.Labels) > 0 {
		label = first.Labels[0]
		extraLabels = first.Labels[1:]
	}
	var plan LogicalOp = &LogicalScan{Variable: first.Variable, Label: label}
	if preds := nodeConstraints(first.Variable, extraLabels, first.Properties); len(preds) > 0 {
		plan = &LogicalFilter{Input: plan, Predicate: andAll(preds)}
	}

	fromVar := first.Variable
	for i, edge := range p.Edges {
		toNode := p.Nodes[i+1]
		plan = &LogicalExpand{
			Input:     plan,
			FromVar:   fromVar,
			EdgeVar:   edge.Variable,
			ToVar:     toNode.Variable,
			Direction: edge.Direction,
			Types:     edge.Types,
		}
		if preds := edgeConstraints(edge.Variable, edge.Properties); len(preds) > 0 {
			plan = &LogicalFilter{Input: plan, Predicate: andAll(preds)}
		}
		if preds := nodeConstraints(toNode.Variable, toNode.Labels, toNode.Properties); len(preds) > 0 {
			plan = &LogicalFilter{Input: plan, Predicate: andAll(preds)}
		}
		fromVar = toNode.Variable
	}
	return plan, nil
}

// hasLabelFunc is the synthetic built-in the planner emits for a label
// constraint that wasn't consumed by the scan's primary label (i.e.
// every label past the first on a node pattern). The executor's
// function registry resolves it against value.Node.HasLabel.
const hasLabelFunc = "HAS_LABEL"

func nodeConstraints(variable string, extraLabels []string, props map[string]ast.Expr) []ast.Expr {
	var preds []ast.Expr
	for _, l := range extraLabels {
		preds = append(preds, &ast.FuncCallExpr{
			Name: hasLabelFunc,
			Args: []ast.Expr{&ast.VarExpr{Name: variable}, &ast.Literal{Value: value.Str(l)}},
		})
	}
	preds = append(preds, propertyConstraints(variable, props)...)
	return preds
}

func edgeConstraints(variable string, props map[string]ast.Expr) []ast.Expr {
	return propertyConstraints(variable, props)
}

func propertyConstraints(variable string, props map[string]ast.Expr) []ast.Expr {
	if variable == "" || len(props) == 0 {
		return nil
	}
	preds := make([]ast.Expr, 0, len(props))
	for k, v := range props {
		preds = append(preds, &ast.BinaryExpr{
			Op:    ast.OpEq,
			Left:  &ast.PropertyAccessExpr{Target: &ast.VarExpr{Name: variable}, Property: k},
			Right: v,
		})
	}
	return preds
}

func andAll(exprs []ast.Expr) ast.Expr {
	if len(exprs) == 0 {
		return nil
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = &ast.BinaryExpr{Op: ast.OpAnd, Left: out, Right: e}
	}
	return out
}

// buildProjection builds a WITH/RETURN clause: an Aggregate if any
// item is an aggregate function, else a plain Project, followed
// optionally by a post-filter (WITH ... WHERE), Sort, Skip and Limit
// (RETURN only — WITH never carries these per the grammar).
func buildProjection(plan LogicalOp, items []ast.ProjectionItem, distinct bool, where ast.Expr, orderBy []ast.SortKey, skip, limit ast.Expr) (LogicalOp, error) {
	isAgg := false
	for _, it := range items {
		if exprIsAggregate(it.Expr) {
			isAgg = true
			break
		}
	}
	var out LogicalOp
	if isAgg {
		var groups, aggs []ast.ProjectionItem
		for _, it := range items {
			if exprIsAggregate(it.Expr) {
				aggs = append(aggs, it)
			} else {
				groups = append(groups, it)
			}
		}
		out = &LogicalAggregate{Input: plan, Groups: groups, Aggs: aggs}
	} else {
		out = &LogicalProject{Input: plan, Items: items, Distinct: distinct}
	}
	if where != nil {
		out = &LogicalFilter{Input: out, Predicate: where}
	}
	if len(orderBy) > 0 {
		out = &LogicalSort{Input: out, Keys: orderBy}
	}
	if skip != nil {
		out = &LogicalSkip{Input: out, Count: skip}
	}
	if limit != nil {
		out = &LogicalLimit{Input: out, Count: limit}
	}
	return out, nil
}

func exprIsAggregate(e ast.Expr) bool {
	switch ex := e.(type) {
	case *ast.FuncCallExpr:
		return aggregateNames[upper(ex.Name)]
	case *ast.BinaryExpr:
		return exprIsAggregate(ex.Left) || exprIsAggregate(ex.Right)
	case *ast.UnaryExpr:
		return exprIsAggregate(ex.Operand)
	default:
		return false
	}
}

var aggregateNames = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true, "COLLECT": true,
}

func upper(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
