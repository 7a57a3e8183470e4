package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphlite/internal/ast"
	"graphlite/internal/parser"
)

func buildOptimized(t *testing.T, src string) LogicalOp {
	t.Helper()
	stmt, err := parser.Parse(src)
	require.NoError(t, err)
	require.NoError(t, parser.Validate(stmt))
	plan, err := Build(stmt)
	require.NoError(t, err)
	return Optimize(plan)
}

func TestBuildSimpleScanReturn(t *testing.T) {
	plan := buildOptimized(t, "MATCH (a:Person) RETURN a.name")
	proj, ok := plan.(*LogicalProject)
	require.True(t, ok)
	_, ok = proj.Input.(*LogicalScan)
	assert.True(t, ok)
}

func TestBuildExpandChain(t *testing.T) {
	plan := buildOptimized(t, "MATCH (a:Person)-[r:KNOWS]->(b:Person) RETURN b.name")
	proj := plan.(*LogicalProject)
	expand, ok := proj.Input.(*LogicalExpand)
	require.True(t, ok)
	assert.Equal(t, "r", expand.EdgeVar)
	assert.Equal(t, ast.DirOutgoing, expand.Direction)
	_, ok = expand.Input.(*LogicalScan)
	assert.True(t, ok)
}

func TestPredicatePushdownIntoScan(t *testing.T) {
	plan := buildOptimized(t, "MATCH (a:Person) WHERE a.name = 'Ann' RETURN a")
	proj := plan.(*LogicalProject)
	scan, ok := proj.Input.(*LogicalScan)
	require.True(t, ok, "expected Filter to be pushed into Scan, got %T", proj.Input)
	require.NotNil(t, scan.Pushed)
	assert.Equal(t, "name", scan.Pushed.Property)
}

func TestPredicatePushdownLeavesResidualFilter(t *testing.T) {
	plan := buildOptimized(t, "MATCH (a:Person) WHERE a.name = 'Ann' AND a.age > 20 RETURN a")
	proj := plan.(*LogicalProject)
	filter, ok := proj.Input.(*LogicalFilter)
	require.True(t, ok)
	scan, ok := filter.Input.(*LogicalScan)
	require.True(t, ok)
	require.NotNil(t, scan.Pushed)
}

func TestConstantFoldingInFilter(t *testing.T) {
	plan := buildOptimized(t, "MATCH (a) WHERE 1 + 1 = 2 RETURN a")
	// the predicate folds to literal true, so dead-code elimination
	// should have dropped the Filter node entirely.
	proj := plan.(*LogicalProject)
	_, ok := proj.Input.(*LogicalScan)
	assert.True(t, ok)
}

func TestDeadCodeEliminationFoldsToEmpty(t *testing.T) {
	plan := buildOptimized(t, "MATCH (a) WHERE 1 = 2 RETURN a")
	// the Filter folds to LogicalEmpty, and emptiness propagates up
	// through the Project, so the whole plan is LogicalEmpty.
	_, ok := plan.(*LogicalEmpty)
	assert.True(t, ok)
}

func TestAggregateSeparatesGroupsAndAggs(t *testing.T) {
	plan := buildOptimized(t, "MATCH (a:Person) RETURN a.city AS city, COUNT(a) AS n")
	agg, ok := plan.(*LogicalAggregate)
	require.True(t, ok)
	require.Len(t, agg.Groups, 1)
	require.Len(t, agg.Aggs, 1)
	assert.Equal(t, "city", agg.Groups[0].Alias)
	assert.Equal(t, "n", agg.Aggs[0].Alias)
}

func TestOptionalMatchBuildsJoin(t *testing.T) {
	plan := buildOptimized(t, "MATCH (a:Person) OPTIONAL MATCH (a)-[r:KNOWS]->(b) RETURN a, b")
	proj := plan.(*LogicalProject)
	join, ok := proj.Input.(*LogicalJoin)
	require.True(t, ok)
	assert.True(t, join.Optional)
}

func TestUnionBuildsSetOp(t *testing.T) {
	stmt, err := parser.Parse("MATCH (a) RETURN a.x UNION MATCH (b) RETURN b.x")
	require.NoError(t, err)
	plan, err := Build(stmt)
	require.NoError(t, err)
	setOp, ok := plan.(*LogicalSetOp)
	require.True(t, ok)
	assert.Equal(t, ast.Union, setOp.Kind)
	assert.False(t, setOp.All)
}

func TestPhysicalPlanChoosesIndexScanForPushedEquality(t *testing.T) {
	logical := buildOptimized(t, "MATCH (a:Person) WHERE a.name = 'Ann' RETURN a")
	phys := PlanPhysical(logical, DefaultStats{BaselineRows: 1000})
	proj := phys.(*PhysicalProject)
	scan, ok := proj.Input.(*PhysicalScan)
	require.True(t, ok)
	assert.Equal(t, IndexScan, scan.Method)
}

func TestPhysicalPlanChoosesLabelScanWithoutPushedFilter(t *testing.T) {
	logical := buildOptimized(t, "MATCH (a:Person) RETURN a")
	phys := PlanPhysical(logical, DefaultStats{BaselineRows: 1000})
	proj := phys.(*PhysicalProject)
	scan, ok := proj.Input.(*PhysicalScan)
	require.True(t, ok)
	assert.Equal(t, LabelScan, scan.Method)
}

func TestPhysicalPlanIsDeterministic(t *testing.T) {
	logical := buildOptimized(t, "MATCH (a:Person)-[r:KNOWS]->(b:Person) WHERE a.name = 'Ann' RETURN b")
	p1 := PlanPhysical(logical, DefaultStats{BaselineRows: 500})
	p2 := PlanPhysical(logical, DefaultStats{BaselineRows: 500})
	assert.Equal(t, Signature(p1), Signature(p2))
}

func TestJoinOrdersSmallerSideAsBuild(t *testing.T) {
	logical := buildOptimized(t, "MATCH (a:Person) MATCH (b:Country) RETURN a, b")
	// Person has a pushed-free LabelScan of baseline rows; Country
	// gets a much smaller baseline via a custom Stats to force the
	// greedy order to put it on the build side.
	stats := labelStats{"Person": 10000, "Country": 50}
	phys := PlanPhysical(logical, stats)
	proj := phys.(*PhysicalProject)
	join, ok := proj.Input.(*PhysicalJoin)
	require.True(t, ok)
	build, ok := join.Build.(*PhysicalScan)
	require.True(t, ok)
	assert.Equal(t, "Country", build.Label)
}

type labelStats map[string]float64

func (s labelStats) RowEstimate(label string) float64 {
	if v, ok := s[label]; ok {
		return v
	}
	return 1000
}
