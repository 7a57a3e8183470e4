// Package planner turns a validated AST into a physical execution
// plan in two phases: a structural logical plan, rewritten to
// fixpoint, then a cost-based physical plan with a concrete join
// order and per-scan access method.
package planner

import "graphlite/internal/ast"

// LogicalOp is one node of the logical plan tree. It carries no
// access-method or cost information; the physical planner (physical.go)
// decides those. Purely structural.
type LogicalOp interface{ logicalOp() }

// FieldFilter is an equality predicate on a scanned variable's
// property, extracted from a Filter by predicate pushdown so the
// physical planner can try an index-backed scan.
type FieldFilter struct {
	Property string
	Value    ast.Expr // always an *ast.Literal once pushed
}

// LogicalScan produces one row per node carrying Label (or every node
// in the graph if Label == ""), bound to Variable.
type LogicalScan struct {
	Variable string
	Label    string
	Pushed   *FieldFilter // set by predicate pushdown, nil otherwise
}

func (*LogicalScan) logicalOp() {}

// LogicalExpand follows edges from FromVar (already bound by Input)
// to a newly bound ToVar, also binding EdgeVar when named.
type LogicalExpand struct {
	Input     LogicalOp
	FromVar   string
	EdgeVar   string
	ToVar     string
	Direction ast.Direction
	Types     []string
}

func (*LogicalExpand) logicalOp() {}

// LogicalJoin combines two pattern subplans that share zero or more
// bound variables. Optional marks an OPTIONAL MATCH: unmatched Right
// rows are null-filled rather than dropped.
type LogicalJoin struct {
	Left, Right LogicalOp
	Optional    bool
}

func (*LogicalJoin) logicalOp() {}

type LogicalFilter struct {
	Input     LogicalOp
	Predicate ast.Expr
}

func (*LogicalFilter) logicalOp() {}

type LogicalProject struct {
	Input    LogicalOp
	Items    []ast.ProjectionItem
	Distinct bool
}

func (*LogicalProject) logicalOp() {}

// LogicalAggregate groups rows by Groups and computes Aggs over each
// group. Groups holds the non-aggregate projection items;
// Aggs holds the aggregate-function projection items.
type LogicalAggregate struct {
	Input  LogicalOp
	Groups []ast.ProjectionItem
	Aggs   []ast.ProjectionItem
}

func (*LogicalAggregate) logicalOp() {}

type LogicalSort struct {
	Input LogicalOp
	Keys  []ast.SortKey
}

func (*LogicalSort) logicalOp() {}

type LogicalSkip struct {
	Input LogicalOp
	Count ast.Expr
}

func (*LogicalSkip) logicalOp() {}

type LogicalLimit struct {
	Input LogicalOp
	Count ast.Expr
}

func (*LogicalLimit) logicalOp() {}

type LogicalSetOp struct {
	Kind        ast.SetOpKind
	All         bool
	Left, Right LogicalOp
}

func (*LogicalSetOp) logicalOp() {}

type LogicalUnwind struct {
	Input LogicalOp
	List  ast.Expr
	As    string
}

func (*LogicalUnwind) logicalOp() {}

// LogicalInsert appends Pattern's nodes/edges to the graph. Input is
// nil for a standalone INSERT statement, non-nil when INSERT follows
// bound rows from an earlier clause (so literal properties may
// reference those bindings).
type LogicalInsert struct {
	Input   LogicalOp
	Pattern *ast.PathPattern
}

func (*LogicalInsert) logicalOp() {}

type LogicalSetProp struct {
	Input LogicalOp
	Items []ast.SetItem
}

func (*LogicalSetProp) logicalOp() {}

type LogicalRemoveProp struct {
	Input   LogicalOp
	Targets []ast.Expr
}

func (*LogicalRemoveProp) logicalOp() {}

type LogicalDelete struct {
	Input   LogicalOp
	Detach  bool
	Targets []ast.Expr
}

func (*LogicalDelete) logicalOp() {}

type LogicalCall struct {
	Input     LogicalOp
	Procedure string
	Args      []ast.Expr
}

func (*LogicalCall) logicalOp() {}

// LogicalEmpty produces zero rows. Introduced by dead-code elimination
// when a predicate folds to a constant false ("dead-code
// elimination").
type LogicalEmpty struct{}

func (*LogicalEmpty) logicalOp() {}

// children returns op's logical inputs in evaluation order, or nil for
// leaves and nil-Input variants.
func children(op LogicalOp) []LogicalOp {
	switch o := op.(type) {
	case *LogicalExpand:
		return []LogicalOp{o.Input}
	case *LogicalJoin:
		return []LogicalOp{o.Left, o.Right}
	case *LogicalFilter:
		return []LogicalOp{o.Input}
	case *LogicalProject:
		return []LogicalOp{o.Input}
	case *LogicalAggregate:
		return []LogicalOp{o.Input}
	case *LogicalSort:
		return []LogicalOp{o.Input}
	case *LogicalSkip:
		return []LogicalOp{o.Input}
	case *LogicalLimit:
		return []LogicalOp{o.Input}
	case *LogicalSetOp:
		return []LogicalOp{o.Left, o.Right}
	case *LogicalUnwind:
		return []LogicalOp{o.Input}
	case *LogicalInsert:
		if o.Input != nil {
			return []LogicalOp{o.Input}
		}
	case *LogicalSetProp:
		return []LogicalOp{o.Input}
	case *LogicalRemoveProp:
		return []LogicalOp{o.Input}
	case *LogicalDelete:
		return []LogicalOp{o.Input}
	case *LogicalCall:
		if o.Input != nil {
			return []LogicalOp{o.Input}
		}
	}
	return nil
}

// withChildren returns a shallow copy of op with its logical inputs
// replaced by kids, in the same order children(op) reported them.
func withChildren(op LogicalOp, kids []LogicalOp) LogicalOp {
	switch o := op.(type) {
	case *LogicalExpand:
		cp := *o
		cp.Input = kids[0]
		return &cp
	case *LogicalJoin:
		cp := *o
		cp.Left, cp.Right = kids[0], kids[1]
		return &cp
	case *LogicalFilter:
		cp := *o
		cp.Input = kids[0]
		return &cp
	case *LogicalProject:
		cp := *o
		cp.Input = kids[0]
		return &cp
	case *LogicalAggregate:
		cp := *o
		cp.Input = kids[0]
		return &cp
	case *LogicalSort:
		cp := *o
		cp.Input = kids[0]
		return &cp
	case *LogicalSkip:
		cp := *o
		cp.Input = kids[0]
		return &cp
	case *LogicalLimit:
		cp := *o
		cp.Input = kids[0]
		return &cp
	case *LogicalSetOp:
		cp := *o
		cp.Left, cp.Right = kids[0], kids[1]
		return &cp
	case *LogicalUnwind:
		cp := *o
		cp.Input = kids[0]
		return &cp
	case *LogicalInsert:
		cp := *o
		if len(kids) > 0 {
			cp.Input = kids[0]
		}
		return &cp
	case *LogicalSetProp:
		cp := *o
		cp.Input = kids[0]
		return &cp
	case *LogicalRemoveProp:
		cp := *o
		cp.Input = kids[0]
		return &cp
	case *LogicalDelete:
		cp := *o
		cp.Input = kids[0]
		return &cp
	case *LogicalCall:
		cp := *o
		if len(kids) > 0 {
			cp.Input = kids[0]
		}
		return &cp
	default:
		return op
	}
}

// transform rewrites op bottom-up: children are transformed first,
// the rebuilt node is passed to visit, and visit's result (plus its
// changed flag) is returned. Every rewrite pass in rewrite.go is one
// call to transform with a different visit function.
func transform(op LogicalOp, visit func(LogicalOp) (LogicalOp, bool)) (LogicalOp, bool) {
	kids := children(op)
	changed := false
	if len(kids) > 0 {
		newKids := make([]LogicalOp, len(kids))
		for i, k := range kids {
			nk, ch := transform(k, visit)
			newKids[i] = nk
			changed = changed || ch
		}
		if changed {
			op = withChildren(op, newKids)
		}
	}
	out, ch := visit(op)
	return out, changed || ch
}
