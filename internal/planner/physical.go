package planner

import (
	"fmt"

	"graphlite/internal/ast"
)

// Stats supplies cardinality estimates to the cost model. The
// catalog does not yet maintain per-label or per-index-stripe
// counters, so the only implementation in this module, DefaultStats,
// always falls back to a fixed baseline selectivity in the absence of
// real statistics. The interface exists so a future counter-backed
// implementation can be swapped in without touching the cost model.
type Stats interface {
	// RowEstimate returns the estimated row count a scan of label
	// (or the whole graph, if label == "") will produce.
	RowEstimate(label string) float64
}

// DefaultStats reports a fixed baseline cardinality and relies on the
// selectivity constants below for narrowing.
type DefaultStats struct{ BaselineRows float64 }

func (d DefaultStats) RowEstimate(label string) float64 {
	if d.BaselineRows > 0 {
		return d.BaselineRows
	}
	return 1000
}

const (
	equalitySelectivity = 0.1
	rangeSelectivity    = 0.33
	cpuCostPerRow       = 1.0
	ioCostPerRow        = 1.0
)

// ScanMethod is the physical access path chosen for a PhysicalScan.
type ScanMethod int

const (
	FullScan ScanMethod = iota
	LabelScan
	IndexScan
)

func (m ScanMethod) String() string {
	switch m {
	case IndexScan:
		return "IndexScan"
	case LabelScan:
		return "LabelScan"
	default:
		return "FullScan"
	}
}

// PhysicalOp is one node of the physical plan, annotated with the
// estimated cost internal/exec's caller can use for EXPLAIN output.
type PhysicalOp interface {
	physicalOp()
	Cost() float64
}

type costed struct{ cost float64 }

func (c costed) Cost() float64 { return c.cost }

type PhysicalScan struct {
	costed
	Variable string
	Label    string
	Method   ScanMethod
	Pushed   *FieldFilter
	Rows     float64
}

func (*PhysicalScan) physicalOp() {}

type PhysicalExpand struct {
	costed
	Input     PhysicalOp
	FromVar   string
	EdgeVar   string
	ToVar     string
	Direction ast.Direction
	Types     []string
	Tree      string // "adj_out", "adj_in", or "adj_out+adj_in" for Both
}

func (*PhysicalExpand) physicalOp() {}

// PhysicalJoin is a nested-loop join: Build runs once, Probe runs once
// per Build row. The physical planner orders Left/Right (renamed
// Build/Probe) by estimated selectivity ("greedy left-deep
// order").
type PhysicalJoin struct {
	costed
	Build, Probe PhysicalOp
	Optional     bool
}

func (*PhysicalJoin) physicalOp() {}

type PhysicalFilter struct {
	costed
	Input     PhysicalOp
	Predicate ast.Expr
}

func (*PhysicalFilter) physicalOp() {}

type PhysicalProject struct {
	costed
	Input    PhysicalOp
	Items    []ast.ProjectionItem
	Distinct bool
}

func (*PhysicalProject) physicalOp() {}

type PhysicalAggregate struct {
	costed
	Input  PhysicalOp
	Groups []ast.ProjectionItem
	Aggs   []ast.ProjectionItem
}

func (*PhysicalAggregate) physicalOp() {}

type PhysicalSort struct {
	costed
	Input PhysicalOp
	Keys  []ast.SortKey
}

func (*PhysicalSort) physicalOp() {}

type PhysicalSkip struct {
	costed
	Input PhysicalOp
	Count ast.Expr
}

func (*PhysicalSkip) physicalOp() {}

type PhysicalLimit struct {
	costed
	Input PhysicalOp
	Count ast.Expr
}

func (*PhysicalLimit) physicalOp() {}

type PhysicalSetOp struct {
	costed
	Kind        ast.SetOpKind
	All         bool
	Left, Right PhysicalOp
}

func (*PhysicalSetOp) physicalOp() {}

type PhysicalUnwind struct {
	costed
	Input PhysicalOp
	List  ast.Expr
	As    string
}

func (*PhysicalUnwind) physicalOp() {}

type PhysicalInsert struct {
	costed
	Input   PhysicalOp
	Pattern *ast.PathPattern
}

func (*PhysicalInsert) physicalOp() {}

type PhysicalSetProp struct {
	costed
	Input PhysicalOp
	Items []ast.SetItem
}

func (*PhysicalSetProp) physicalOp() {}

type PhysicalRemoveProp struct {
	costed
	Input   PhysicalOp
	Targets []ast.Expr
}

func (*PhysicalRemoveProp) physicalOp() {}

type PhysicalDelete struct {
	costed
	Input   PhysicalOp
	Detach  bool
	Targets []ast.Expr
}

func (*PhysicalDelete) physicalOp() {}

type PhysicalCall struct {
	costed
	Input     PhysicalOp
	Procedure string
	Args      []ast.Expr
}

func (*PhysicalCall) physicalOp() {}

type PhysicalEmpty struct{ costed }

func (*PhysicalEmpty) physicalOp() {}

// PlanPhysical lowers an optimized logical plan into a physical plan,
// choosing a scan access method, a greedy left-deep join order for
// multi-pattern joins, and computing cost(node) = IO_cost + CPU_cost
// bottom-up. It builds exactly one candidate per logical tree and does
// not compare alternatives; the tie-break rule (fewer nodes, then the
// lexicographically smaller signature) lives in CheapestOf, which
// PlanPhysical does not call.
func PlanPhysical(logical LogicalOp, stats Stats) PhysicalOp {
	if stats == nil {
		stats = DefaultStats{}
	}
	return lower(logical, stats)
}

func lower(op LogicalOp, stats Stats) PhysicalOp {
	switch o := op.(type) {
	case *LogicalEmpty:
		return &PhysicalEmpty{}
	case *LogicalScan:
		return lowerScan(o, stats)
	case *LogicalExpand:
		input := lower(o.Input, stats)
		tree := "adj_out"
		if o.Direction == ast.DirIncoming {
			tree = "adj_in"
		} else if o.Direction == ast.DirEither {
			tree = "adj_out+adj_in"
		}
		expandFactor := 4.0 // average fan-out estimate absent edge statistics
		rows := rowsOf(input) * expandFactor
		return &PhysicalExpand{
			costed:    costed{cost: input.Cost() + ioCostPerRow*rows + cpuCostPerRow*rows},
			Input:     input,
			FromVar:   o.FromVar,
			EdgeVar:   o.EdgeVar,
			ToVar:     o.ToVar,
			Direction: o.Direction,
			Types:     o.Types,
			Tree:      tree,
		}
	case *LogicalJoin:
		return lowerJoin(o, stats)
	case *LogicalFilter:
		input := lower(o.Input, stats)
		rows := rowsOf(input)
		return &PhysicalFilter{
			costed:    costed{cost: input.Cost() + cpuCostPerRow*rows},
			Input:     input,
			Predicate: o.Predicate,
		}
	case *LogicalProject:
		input := lower(o.Input, stats)
		rows := rowsOf(input)
		return &PhysicalProject{
			costed:   costed{cost: input.Cost() + cpuCostPerRow*rows*float64(len(o.Items)+1)},
			Input:    input,
			Items:    o.Items,
			Distinct: o.Distinct,
		}
	case *LogicalAggregate:
		input := lower(o.Input, stats)
		rows := rowsOf(input)
		return &PhysicalAggregate{
			costed: costed{cost: input.Cost() + cpuCostPerRow*rows*float64(len(o.Aggs)+len(o.Groups)+1)},
			Input:  input,
			Groups: o.Groups,
			Aggs:   o.Aggs,
		}
	case *LogicalSort:
		input := lower(o.Input, stats)
		rows := rowsOf(input)
		logN := 1.0
		for r := rows; r > 1; r /= 2 {
			logN++
		}
		return &PhysicalSort{
			costed: costed{cost: input.Cost() + cpuCostPerRow*rows*logN},
			Input:  input,
			Keys:   o.Keys,
		}
	case *LogicalSkip:
		input := lower(o.Input, stats)
		return &PhysicalSkip{costed: costed{cost: input.Cost()}, Input: input, Count: o.Count}
	case *LogicalLimit:
		input := lower(o.Input, stats)
		return &PhysicalLimit{costed: costed{cost: input.Cost()}, Input: input, Count: o.Count}
	case *LogicalSetOp:
		left := lower(o.Left, stats)
		right := lower(o.Right, stats)
		rows := rowsOf(left) + rowsOf(right)
		return &PhysicalSetOp{
			costed: costed{cost: left.Cost() + right.Cost() + cpuCostPerRow*rows},
			Kind:   o.Kind, All: o.All, Left: left, Right: right,
		}
	case *LogicalUnwind:
		input := lower(o.Input, stats)
		return &PhysicalUnwind{costed: costed{cost: input.Cost() + cpuCostPerRow*rowsOf(input)}, Input: input, List: o.List, As: o.As}
	case *LogicalInsert:
		var input PhysicalOp
		cost := ioCostPerRow
		if o.Input != nil {
			input = lower(o.Input, stats)
			cost += input.Cost()
		}
		return &PhysicalInsert{costed: costed{cost: cost}, Input: input, Pattern: o.Pattern}
	case *LogicalSetProp:
		input := lower(o.Input, stats)
		return &PhysicalSetProp{costed: costed{cost: input.Cost() + ioCostPerRow*rowsOf(input)}, Input: input, Items: o.Items}
	case *LogicalRemoveProp:
		input := lower(o.Input, stats)
		return &PhysicalRemoveProp{costed: costed{cost: input.Cost() + ioCostPerRow*rowsOf(input)}, Input: input, Targets: o.Targets}
	case *LogicalDelete:
		input := lower(o.Input, stats)
		return &PhysicalDelete{costed: costed{cost: input.Cost() + ioCostPerRow*rowsOf(input)}, Input: input, Detach: o.Detach, Targets: o.Targets}
	case *LogicalCall:
		var input PhysicalOp
		cost := ioCostPerRow
		if o.Input != nil {
			input = lower(o.Input, stats)
			cost += input.Cost()
		}
		return &PhysicalCall{costed: costed{cost: cost}, Input: input, Procedure: o.Procedure, Args: o.Args}
	default:
		panic(fmt.Sprintf("planner: unhandled logical op %T", op))
	}
}

func lowerScan(o *LogicalScan, stats Stats) *PhysicalScan {
	base := stats.RowEstimate(o.Label)
	method := FullScan
	if o.Label != "" {
		method = LabelScan
	}
	rows := base
	if o.Label != "" {
		rows *= equalitySelectivity * 10 // label alone narrows less than an indexed equality
		if rows > base {
			rows = base
		}
	}
	if o.Pushed != nil {
		method = IndexScan
		rows = base * equalitySelectivity
	}
	if rows < 1 {
		rows = 1
	}
	return &PhysicalScan{
		costed:   costed{cost: ioCostPerRow*rows + cpuCostPerRow*rows},
		Variable: o.Variable,
		Label:    o.Label,
		Method:   method,
		Pushed:   o.Pushed,
		Rows:     rows,
	}
}

// lowerJoin implements the greedy left-deep join order: of the two
// sides, the one with the smaller estimated row count becomes the
// build side (the outer loop) and the other probes it (the inner
// loop), since a smaller build side and a
// larger probe side minimizes total nested-loop work when no hash
// join is available ("most-selective anchor first").
func lowerJoin(o *LogicalJoin, stats Stats) PhysicalOp {
	left := lower(o.Left, stats)
	right := lower(o.Right, stats)
	build, probe := left, right
	if !o.Optional && rowsOf(right) < rowsOf(left) {
		build, probe = right, left
	}
	rows := rowsOf(build) * rowsOf(probe)
	return &PhysicalJoin{
		costed:   costed{cost: build.Cost() + probe.Cost() + cpuCostPerRow*rows},
		Build:    build,
		Probe:    probe,
		Optional: o.Optional,
	}
}

// rowsOf extracts the row estimate carried by ops that track one
// (Scan, Join); everything else is approximated as its input's row
// estimate, since intermediate operators don't change cardinality
// enough to matter for this cost model's purposes beyond Filter's
// selectivity discount.
func rowsOf(op PhysicalOp) float64 {
	switch o := op.(type) {
	case *PhysicalScan:
		return o.Rows
	case *PhysicalExpand:
		return rowsOf(o.Input) * 4
	case *PhysicalJoin:
		return rowsOf(o.Build) * rowsOf(o.Probe)
	case *PhysicalFilter:
		sel := equalitySelectivity
		if isRangePredicate(o.Predicate) {
			sel = rangeSelectivity
		}
		r := rowsOf(o.Input) * sel
		if r < 1 {
			r = 1
		}
		return r
	case *PhysicalProject:
		return rowsOf(o.Input)
	case *PhysicalAggregate:
		if len(o.Groups) == 0 {
			return 1
		}
		return rowsOf(o.Input)
	case *PhysicalSort:
		return rowsOf(o.Input)
	case *PhysicalSkip:
		return rowsOf(o.Input)
	case *PhysicalLimit:
		return rowsOf(o.Input)
	case *PhysicalUnwind:
		return rowsOf(o.Input) * 4
	case *PhysicalSetOp:
		return rowsOf(o.Left) + rowsOf(o.Right)
	case *PhysicalEmpty:
		return 0
	default:
		return 1
	}
}

func isRangePredicate(e ast.Expr) bool {
	b, ok := e.(*ast.BinaryExpr)
	if !ok {
		return false
	}
	switch b.Op {
	case ast.OpLt, ast.OpGt, ast.OpLte, ast.OpGte:
		return true
	case ast.OpAnd:
		return isRangePredicate(b.Left) || isRangePredicate(b.Right)
	default:
		return false
	}
}

// Signature returns a deterministic string identifying the shape of a
// physical plan, used by CheapestOf for tie-breaking between equal-cost
// candidates ("lexicographically smaller plan signature") and as the
// plan shape reported in verbose diagnostics. It is not part of the
// plan-cache key, which is a hash of the AST.
func Signature(op PhysicalOp) string {
	var b []byte
	b = appendSignature(b, op)
	return string(b)
}

func appendSignature(b []byte, op PhysicalOp) []byte {
	switch o := op.(type) {
	case *PhysicalScan:
		b = append(b, fmt.Sprintf("Scan(%s,%s,%s)", o.Method, o.Label, o.Variable)...)
	case *PhysicalExpand:
		b = appendSignature(b, o.Input)
		b = append(b, fmt.Sprintf("->Expand(%s,%s)", o.Tree, o.ToVar)...)
	case *PhysicalJoin:
		b = append(b, "Join("...)
		b = appendSignature(b, o.Build)
		b = append(b, ',')
		b = appendSignature(b, o.Probe)
		b = append(b, ')')
	case *PhysicalFilter:
		b = appendSignature(b, o.Input)
		b = append(b, "->Filter"...)
	case *PhysicalProject:
		b = appendSignature(b, o.Input)
		b = append(b, "->Project"...)
	case *PhysicalAggregate:
		b = appendSignature(b, o.Input)
		b = append(b, "->Aggregate"...)
	case *PhysicalSort:
		b = appendSignature(b, o.Input)
		b = append(b, "->Sort"...)
	case *PhysicalSkip:
		b = appendSignature(b, o.Input)
		b = append(b, "->Skip"...)
	case *PhysicalLimit:
		b = appendSignature(b, o.Input)
		b = append(b, "->Limit"...)
	case *PhysicalSetOp:
		b = append(b, "SetOp("...)
		b = appendSignature(b, o.Left)
		b = append(b, ',')
		b = appendSignature(b, o.Right)
		b = append(b, ')')
	case *PhysicalUnwind:
		b = appendSignature(b, o.Input)
		b = append(b, "->Unwind"...)
	case *PhysicalInsert:
		b = append(b, "Insert"...)
	case *PhysicalSetProp:
		b = appendSignature(b, o.Input)
		b = append(b, "->SetProp"...)
	case *PhysicalRemoveProp:
		b = appendSignature(b, o.Input)
		b = append(b, "->RemoveProp"...)
	case *PhysicalDelete:
		b = appendSignature(b, o.Input)
		b = append(b, "->Delete"...)
	case *PhysicalCall:
		b = append(b, fmt.Sprintf("Call(%s)", o.Procedure)...)
	case *PhysicalEmpty:
		b = append(b, "Empty"...)
	}
	return b
}

// CheapestOf breaks a tie between candidate plans of equal cost by
// preferring fewer nodes, then the lexicographically smaller
// signature ("Tie-breaking").
func CheapestOf(candidates []PhysicalOp) PhysicalOp {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	bestSig := Signature(best)
	bestNodes := countNodes(best)
	for _, c := range candidates[1:] {
		cost := c.Cost()
		if cost > best.Cost() {
			continue
		}
		nodes := countNodes(c)
		sig := Signature(c)
		better := cost < best.Cost() ||
			(cost == best.Cost() && nodes < bestNodes) ||
			(cost == best.Cost() && nodes == bestNodes && sig < bestSig)
		if better {
			best, bestSig, bestNodes = c, sig, nodes
		}
	}
	return best
}

func countNodes(op PhysicalOp) int {
	n := 1
	switch o := op.(type) {
	case *PhysicalExpand:
		n += countNodes(o.Input)
	case *PhysicalJoin:
		n += countNodes(o.Build) + countNodes(o.Probe)
	case *PhysicalFilter:
		n += countNodes(o.Input)
	case *PhysicalProject:
		n += countNodes(o.Input)
	case *PhysicalAggregate:
		n += countNodes(o.Input)
	case *PhysicalSort:
		n += countNodes(o.Input)
	case *PhysicalSkip:
		n += countNodes(o.Input)
	case *PhysicalLimit:
		n += countNodes(o.Input)
	case *PhysicalSetOp:
		n += countNodes(o.Left) + countNodes(o.Right)
	case *PhysicalUnwind:
		n += countNodes(o.Input)
	case *PhysicalInsert:
		if o.Input != nil {
			n += countNodes(o.Input)
		}
	case *PhysicalSetProp:
		n += countNodes(o.Input)
	case *PhysicalRemoveProp:
		n += countNodes(o.Input)
	case *PhysicalDelete:
		n += countNodes(o.Input)
	case *PhysicalCall:
		if o.Input != nil {
			n += countNodes(o.Input)
		}
	}
	return n
}
