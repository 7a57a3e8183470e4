package exec

import (
	"context"

	"graphlite/internal/planner"
	"graphlite/internal/value"
)

// joinIter is a nested-loop join: for each row produced by the build
// side it opens a fresh iterator for the probe side (its subplan has
// no side effects, so re-deriving it per outer row is both simple and
// correct) and merges rows that agree on any variable bound by both
// sides. When a variable is bound on both sides the two values must be
// value-equal or the combination is discarded — this is how a
// second MATCH/OPTIONAL MATCH clause re-anchored on an already-bound
// variable gets reconciled with the earlier binding. When
// Optional is set and the probe side produces nothing at all for a
// given build row, one row is emitted with every probe-side variable
// bound to null instead ("OPTIONAL MATCH... emits null-bound
// rows on no match").
type joinIter struct {
	ectx *Context
	op   *planner.PhysicalJoin
	build Iterator

	curBuildRow Row
	haveBuild   bool
	probe       Iterator
	matchedAny  bool
	probeVars   []string
}

func newJoinIter(ectx *Context, op *planner.PhysicalJoin, build Iterator) *joinIter {
	return &joinIter{ectx: ectx, op: op, build: build, probeVars: boundVars(op.Probe)}
}

func (it *joinIter) Open(ctx context.Context) error {
	return it.build.Open(ctx)
}

func (it *joinIter) Next(ctx context.Context) (Row, bool, error) {
	for {
		if err := checkDeadline(ctx); err != nil {
			return Row{}, false, err
		}
		if !it.haveBuild {
			row, ok, err := it.build.Next(ctx)
			if err != nil {
				return Row{}, false, err
			}
			if !ok {
				return Row{}, false, nil
			}
			probe, err := Build(it.op.Probe, it.ectx)
			if err != nil {
				return Row{}, false, err
			}
			if err := probe.Open(ctx); err != nil {
				return Row{}, false, err
			}
			it.curBuildRow = row
			it.probe = probe
			it.matchedAny = false
			it.haveBuild = true
		}

		prow, ok, err := it.probe.Next(ctx)
		if err != nil {
			return Row{}, false, err
		}
		if !ok {
			if err := it.probe.Close(); err != nil {
				return Row{}, false, err
			}
			buildRow := it.curBuildRow
			emitNull := it.op.Optional && !it.matchedAny
			it.probe = nil
			it.haveBuild = false
			if emitNull {
				return nullFillRow(buildRow, it.probeVars), true, nil
			}
			continue
		}

		merged, ok := mergeRows(it.curBuildRow, prow)
		if !ok {
			continue
		}
		it.matchedAny = true
		return merged, true, nil
	}
}

func (it *joinIter) Close() error {
	if it.probe != nil {
		if err := it.probe.Close(); err != nil {
			return err
		}
	}
	return it.build.Close()
}

// boundVars collects every variable name a physical subplan binds,
// used to null-fill an unmatched OPTIONAL MATCH probe side.
func boundVars(op planner.PhysicalOp) []string {
	switch o := op.(type) {
	case *planner.PhysicalScan:
		return []string{o.Variable}
	case *planner.PhysicalExpand:
		return append(boundVars(o.Input), o.EdgeVar, o.ToVar)
	case *planner.PhysicalFilter:
		return boundVars(o.Input)
	case *planner.PhysicalJoin:
		return append(boundVars(o.Build), boundVars(o.Probe)...)
	default:
		return nil
	}
}

func mergeRows(left, right Row) (Row, bool) {
	out := left.clone()
	for k, v := range right.Vals {
		if existing, ok := out.Vals[k]; ok {
			if !value.Equal(existing, v) {
				return Row{}, false
			}
			continue
		}
		out.Vals[k] = v
	}
	return out, true
}

func nullFillRow(r Row, vars []string) Row {
	out := r.clone()
	for _, v := range vars {
		if _, ok := out.Vals[v]; !ok {
			out.Vals[v] = value.Null
		}
	}
	return out
}
