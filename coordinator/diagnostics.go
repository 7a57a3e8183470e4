package coordinator

import "graphlite/internal/planner"

// countPhysNodes walks a physical plan tree and counts its operators,
// for the per-statement diagnostics verbose mode attaches to a
// Summary.
func countPhysNodes(op planner.PhysicalOp) int {
	switch o := op.(type) {
	case *planner.PhysicalScan:
		return 1
	case *planner.PhysicalExpand:
		return 1 + countPhysNodes(o.Input)
	case *planner.PhysicalJoin:
		return 1 + countPhysNodes(o.Build) + countPhysNodes(o.Probe)
	case *planner.PhysicalFilter:
		return 1 + countPhysNodes(o.Input)
	case *planner.PhysicalProject:
		return 1 + countPhysNodes(o.Input)
	case *planner.PhysicalAggregate:
		return 1 + countPhysNodes(o.Input)
	case *planner.PhysicalSort:
		return 1 + countPhysNodes(o.Input)
	case *planner.PhysicalSkip:
		return 1 + countPhysNodes(o.Input)
	case *planner.PhysicalLimit:
		return 1 + countPhysNodes(o.Input)
	case *planner.PhysicalSetOp:
		return 1 + countPhysNodes(o.Left) + countPhysNodes(o.Right)
	case *planner.PhysicalUnwind:
		return 1 + countPhysNodes(o.Input)
	case *planner.PhysicalInsert:
		return 1 + countPhysNodes(o.Input)
	case *planner.PhysicalSetProp:
		return 1 + countPhysNodes(o.Input)
	case *planner.PhysicalRemoveProp:
		return 1 + countPhysNodes(o.Input)
	case *planner.PhysicalDelete:
		return 1 + countPhysNodes(o.Input)
	case *planner.PhysicalCall:
		if o.Input == nil {
			return 1
		}
		return 1 + countPhysNodes(o.Input)
	case *planner.PhysicalEmpty:
		return 1
	}
	return 0
}
