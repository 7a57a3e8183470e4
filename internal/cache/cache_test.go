package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"graphlite/internal/ast"
	"graphlite/internal/exec"
	"graphlite/internal/planner"
	"graphlite/internal/value"
)

func nameFilter(name string) *ast.Query {
	return &ast.Query{
		Clauses: []ast.Clause{
			&ast.MatchClause{
				Pattern: &ast.PathPattern{Nodes: []*ast.NodePattern{{Variable: "a", Labels: []string{"Person"}}}},
				Where: &ast.BinaryExpr{
					Op:    ast.OpEq,
					Left:  &ast.PropertyAccessExpr{Target: &ast.VarExpr{Name: "a"}, Property: "name"},
					Right: &ast.Literal{Value: value.Str(name)},
				},
			},
			&ast.ReturnClause{Items: []ast.ProjectionItem{{Expr: &ast.VarExpr{Name: "a"}, Alias: "a"}}},
		},
	}
}

func TestStatementHashIsDeterministicAndSensitiveToLiterals(t *testing.T) {
	h1 := Hash(nameFilter("Ann"), "/s", "g")
	h2 := Hash(nameFilter("Ann"), "/s", "g")
	require.Equal(t, h1, h2)

	h3 := Hash(nameFilter("Bob"), "/s", "g")
	require.NotEqual(t, h1, h3)

	h4 := Hash(nameFilter("Ann"), "/s", "other")
	require.NotEqual(t, h1, h4)
}

func TestPlanCacheMissesOnDDLVersionChange(t *testing.T) {
	c := NewPlanCache(64)
	h := Hash(nameFilter("Ann"), "/s", "g")
	phys := &planner.PhysicalEmpty{}

	_, ok := c.Get(h, 1, 1)
	require.False(t, ok)

	c.Put(h, 1, 1, phys)
	got, ok := c.Get(h, 1, 1)
	require.True(t, ok)
	require.Same(t, phys, got)

	_, ok = c.Get(h, 2, 1)
	require.False(t, ok, "a bumped schema DDL version must invalidate the cached plan")

	// The stale entry was evicted by the failed Get above.
	_, ok = c.Get(h, 1, 1)
	require.False(t, ok)
}

func TestResultCacheRoundTripsAndFoldsDataVersionIntoKey(t *testing.T) {
	c := NewResultCache(64)
	planHash := Hash(nameFilter("Ann"), "/s", "g")
	columns := []string{"a"}
	rows := []exec.Row{exec.NewRow().With("a", value.Str("Ann"))}
	params := map[string]value.Value{}

	_, ok := c.Get(planHash, params, 5, columns)
	require.False(t, ok)

	c.Put(planHash, params, 5, columns, rows)
	got, ok := c.Get(planHash, params, 5, columns)
	require.True(t, ok)
	require.Len(t, got, 1)

	_, ok = c.Get(planHash, params, 6, columns)
	require.False(t, ok, "a new data version must not see a result cached under the old one")
}

func TestShardedLRUTracksHitsAndMisses(t *testing.T) {
	s := newShardedLRU(64)
	_, ok := s.get(1)
	require.False(t, ok)

	s.add(1, "x")
	v, ok := s.get(1)
	require.True(t, ok)
	require.Equal(t, "x", v)

	snap := s.statSnapshot("test")
	require.Equal(t, int64(1), snap.Hits)
	require.Equal(t, int64(1), snap.Misses)
	require.Equal(t, int64(1), snap.Size)
}
