package exec

import (
	"sort"

	"graphlite/internal/planner"
)

// Columns derives the ordered column names a result stream reports
// alongside its rows ("ordered list of column names"). A top-level
// RETURN/WITH projection or aggregate names its own columns in source
// order, also when it sits under ORDER BY/SKIP/LIMIT or is the left
// side of a set operation; any other plan shape (a bare CALL, a
// mutation with no trailing RETURN) has no declared projection, so the
// columns are the bound names of the first row, alphabetized for a
// stable order.
func Columns(phys planner.PhysicalOp, rows []Row) []string {
	switch op := phys.(type) {
	case *planner.PhysicalSort:
		return Columns(op.Input, rows)
	case *planner.PhysicalSkip:
		return Columns(op.Input, rows)
	case *planner.PhysicalLimit:
		return Columns(op.Input, rows)
	case *planner.PhysicalSetOp:
		return Columns(op.Left, rows)
	case *planner.PhysicalProject:
		names := make([]string, len(op.Items))
		for i, item := range op.Items {
			names[i] = outputName(item)
		}
		return names
	case *planner.PhysicalAggregate:
		names := make([]string, 0, len(op.Groups)+len(op.Aggs))
		for _, g := range op.Groups {
			names = append(names, outputName(g))
		}
		for _, a := range op.Aggs {
			names = append(names, outputName(a))
		}
		return names
	}
	if len(rows) == 0 {
		return nil
	}
	names := make([]string, 0, len(rows[0].Vals))
	for k := range rows[0].Vals {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
