package exec

import (
	"context"

	"graphlite/internal/gqlerr"
	"graphlite/internal/planner"
)

// Iterator is a volcano-style physical operator: Open prepares
// state, Next yields the next row (ok=false signals end of stream),
// Close releases resources. The executor is single-threaded per
// query; an Iterator tree is never shared across goroutines.
type Iterator interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (Row, bool, error)
	Close() error
}

// Build lowers a physical plan node into an iterator tree bound to
// ectx. Every case corresponds to one of the Physical* types in
// internal/planner/physical.go.
func Build(op planner.PhysicalOp, ectx *Context) (Iterator, error) {
	switch o := op.(type) {
	case *planner.PhysicalScan:
		return &scanIter{ectx: ectx, op: o}, nil

	case *planner.PhysicalExpand:
		input, err := Build(o.Input, ectx)
		if err != nil {
			return nil, err
		}
		return &expandIter{ectx: ectx, op: o, input: input}, nil

	case *planner.PhysicalJoin:
		build, err := Build(o.Build, ectx)
		if err != nil {
			return nil, err
		}
		return newJoinIter(ectx, o, build), nil

	case *planner.PhysicalFilter:
		input, err := Build(o.Input, ectx)
		if err != nil {
			return nil, err
		}
		return &filterIter{ectx: ectx, op: o, input: input}, nil

	case *planner.PhysicalProject:
		input, err := Build(o.Input, ectx)
		if err != nil {
			return nil, err
		}
		return &projectIter{ectx: ectx, op: o, input: input}, nil

	case *planner.PhysicalAggregate:
		input, err := Build(o.Input, ectx)
		if err != nil {
			return nil, err
		}
		return &aggregateIter{ectx: ectx, op: o, input: input}, nil

	case *planner.PhysicalSort:
		input, err := Build(o.Input, ectx)
		if err != nil {
			return nil, err
		}
		return &sortIter{ectx: ectx, op: o, input: input}, nil

	case *planner.PhysicalSkip:
		input, err := Build(o.Input, ectx)
		if err != nil {
			return nil, err
		}
		return &skipIter{ectx: ectx, op: o, input: input}, nil

	case *planner.PhysicalLimit:
		input, err := Build(o.Input, ectx)
		if err != nil {
			return nil, err
		}
		return &limitIter{ectx: ectx, op: o, input: input}, nil

	case *planner.PhysicalSetOp:
		left, err := Build(o.Left, ectx)
		if err != nil {
			return nil, err
		}
		right, err := Build(o.Right, ectx)
		if err != nil {
			return nil, err
		}
		return &setOpIter{ectx: ectx, op: o, left: left, right: right}, nil

	case *planner.PhysicalUnwind:
		input, err := Build(o.Input, ectx)
		if err != nil {
			return nil, err
		}
		return &unwindIter{ectx: ectx, op: o, input: input}, nil

	case *planner.PhysicalInsert:
		input, err := buildOptional(o.Input, ectx)
		if err != nil {
			return nil, err
		}
		return &insertIter{ectx: ectx, op: o, input: input}, nil

	case *planner.PhysicalSetProp:
		input, err := Build(o.Input, ectx)
		if err != nil {
			return nil, err
		}
		return &setPropIter{ectx: ectx, op: o, input: input}, nil

	case *planner.PhysicalRemoveProp:
		input, err := Build(o.Input, ectx)
		if err != nil {
			return nil, err
		}
		return &removePropIter{ectx: ectx, op: o, input: input}, nil

	case *planner.PhysicalDelete:
		input, err := Build(o.Input, ectx)
		if err != nil {
			return nil, err
		}
		return &deleteIter{ectx: ectx, op: o, input: input}, nil

	case *planner.PhysicalCall:
		input, err := buildOptional(o.Input, ectx)
		if err != nil {
			return nil, err
		}
		return &callIter{ectx: ectx, op: o, input: input}, nil

	case *planner.PhysicalEmpty:
		return emptyIter{}, nil

	default:
		return nil, gqlerr.Internalf("exec: unhandled physical operator %T", op)
	}
}

// buildOptional lowers op when it may legitimately be nil (a
// standalone INSERT or CALL with no preceding clause).
func buildOptional(op planner.PhysicalOp, ectx *Context) (Iterator, error) {
	if op == nil {
		return nil, nil
	}
	return Build(op, ectx)
}

// Execute runs phys to completion against ectx and returns every
// produced row. ctx is checked for cancellation between rows; it is
// the only cooperative checkpoint within a running query.
func Execute(ctx context.Context, phys planner.PhysicalOp, ectx *Context) ([]Row, error) {
	it, err := Build(phys, ectx)
	if err != nil {
		return nil, err
	}
	if err := it.Open(ctx); err != nil {
		return nil, err
	}
	var rows []Row
	for {
		row, ok, err := it.Next(ctx)
		if err != nil {
			_ = it.Close()
			return nil, err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	if err := it.Close(); err != nil {
		return nil, err
	}
	return rows, nil
}

func checkDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return gqlerr.Wrap(gqlerr.Timeout, err, "query deadline exceeded")
	}
	return nil
}
