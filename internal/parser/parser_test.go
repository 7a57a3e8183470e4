package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphlite/internal/ast"
	"graphlite/internal/gqlerr"
)

func TestParseSimpleMatchReturn(t *testing.T) {
	stmt, err := Parse("MATCH (a:Person) WHERE a.age > 30 RETURN a.name AS name")
	require.NoError(t, err)
	q, ok := stmt.(*ast.Query)
	require.True(t, ok)
	require.Len(t, q.Clauses, 2)

	match, ok := q.Clauses[0].(*ast.MatchClause)
	require.True(t, ok)
	assert.False(t, match.Optional)
	require.Len(t, match.Pattern.Nodes, 1)
	assert.Equal(t, "a", match.Pattern.Nodes[0].Variable)
	assert.Equal(t, []string{"Person"}, match.Pattern.Nodes[0].Labels)
	require.NotNil(t, match.Where)

	ret, ok := q.Clauses[1].(*ast.ReturnClause)
	require.True(t, ok)
	require.Len(t, ret.Items, 1)
	assert.Equal(t, "name", ret.Items[0].Alias)
}

func TestParseEdgePatternDirectionsAndTypeAlternation(t *testing.T) {
	stmt, err := Parse("MATCH (a)-[r:KNOWS|LIKES]->(b)<-[s]-(c) RETURN a")
	require.NoError(t, err)
	q := stmt.(*ast.Query)
	match := q.Clauses[0].(*ast.MatchClause)
	require.Len(t, match.Pattern.Nodes, 3)
	require.Len(t, match.Pattern.Edges, 2)

	first := match.Pattern.Edges[0]
	assert.Equal(t, ast.DirOutgoing, first.Direction)
	assert.Equal(t, []string{"KNOWS", "LIKES"}, first.Types)

	second := match.Pattern.Edges[1]
	assert.Equal(t, ast.DirIncoming, second.Direction)
}

func TestParseUndirectedEdge(t *testing.T) {
	stmt, err := Parse("MATCH (a)-[r]-(b) RETURN r")
	require.NoError(t, err)
	q := stmt.(*ast.Query)
	match := q.Clauses[0].(*ast.MatchClause)
	assert.Equal(t, ast.DirEither, match.Pattern.Edges[0].Direction)
}

func TestParseOptionalMatchWithUnion(t *testing.T) {
	stmt, err := Parse("MATCH (a) OPTIONAL MATCH (a)-[r]->(b) RETURN b.x UNION ALL MATCH (c) RETURN c.x")
	require.NoError(t, err)
	q := stmt.(*ast.Query)
	opt, ok := q.Clauses[1].(*ast.MatchClause)
	require.True(t, ok)
	assert.True(t, opt.Optional)
	require.NotNil(t, q.SetOp)
	assert.Equal(t, ast.Union, q.SetOp.Kind)
	assert.True(t, q.SetOp.All)
}

func TestParseInsertSetDeleteClauses(t *testing.T) {
	_, err := Parse("INSERT (a:Person {name: 'Ann', age: 30})")
	require.NoError(t, err)

	stmt, err := Parse("MATCH (a:Person) SET a.age = a.age + 1 RETURN a")
	require.NoError(t, err)
	q := stmt.(*ast.Query)
	set := q.Clauses[1].(*ast.SetClause)
	require.Len(t, set.Items, 1)

	_, err = Parse("MATCH (a:Person) DETACH DELETE a")
	require.NoError(t, err)
}

func TestParseOrderBySkipLimit(t *testing.T) {
	stmt, err := Parse("MATCH (a) RETURN a.x ORDER BY a.x DESC SKIP 5 LIMIT 10")
	require.NoError(t, err)
	q := stmt.(*ast.Query)
	ret := q.Clauses[1].(*ast.ReturnClause)
	require.Len(t, ret.OrderBy, 1)
	assert.True(t, ret.OrderBy[0].Desc)
	require.NotNil(t, ret.Skip)
	require.NotNil(t, ret.Limit)
}

func TestParseCallClauseWithArgs(t *testing.T) {
	stmt, err := Parse("CALL gql.list_graphs('main')")
	require.NoError(t, err)
	q := stmt.(*ast.Query)
	call := q.Clauses[0].(*ast.CallClause)
	assert.Equal(t, "gql.list_graphs", call.Procedure)
	require.Len(t, call.Args, 1)
}

func TestParseCaseExpr(t *testing.T) {
	stmt, err := Parse("MATCH (a) RETURN CASE WHEN a.x > 0 THEN 'pos' ELSE 'neg' END")
	require.NoError(t, err)
	q := stmt.(*ast.Query)
	ret := q.Clauses[1].(*ast.ReturnClause)
	_, ok := ret.Items[0].Expr.(*ast.CaseExpr)
	assert.True(t, ok)
}

func TestParseExpressionPrecedence(t *testing.T) {
	stmt, err := Parse("MATCH (a) RETURN a.x + 1 * 2 = 3 AND NOT a.y")
	require.NoError(t, err)
	q := stmt.(*ast.Query)
	ret := q.Clauses[1].(*ast.ReturnClause)
	top, ok := ret.Items[0].Expr.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.OpAnd, top.Op)
	left, ok := top.Left.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.OpEq, left.Op)
}

func TestParseDDLAndTransactionControl(t *testing.T) {
	stmt, err := Parse("CREATE SCHEMA '/main'")
	require.NoError(t, err)
	cs, ok := stmt.(*ast.CreateSchemaStmt)
	require.True(t, ok)
	assert.Equal(t, "/main", cs.Path)

	stmt, err = Parse("CREATE GRAPH social")
	require.NoError(t, err)
	cg := stmt.(*ast.CreateGraphStmt)
	assert.Equal(t, "social", cg.Name)

	stmt, err = Parse("SESSION SET GRAPH social")
	require.NoError(t, err)
	ss := stmt.(*ast.SessionSetStmt)
	assert.Equal(t, "social", ss.Graph)

	stmt, err = Parse("BEGIN TRANSACTION SERIALIZABLE")
	require.NoError(t, err)
	bg := stmt.(*ast.BeginStmt)
	assert.Equal(t, "SERIALIZABLE", bg.Isolation)

	_, err = Parse("COMMIT")
	require.NoError(t, err)
	_, err = Parse("ROLLBACK")
	require.NoError(t, err)
}

func TestParseSyntaxErrorReportsLocation(t *testing.T) {
	_, err := Parse("MATCH (a RETURN a")
	require.Error(t, err)
	assert.Equal(t, gqlerr.SyntaxError, gqlerr.KindOf(err))
	ge, ok := err.(*gqlerr.Error)
	require.True(t, ok)
	assert.Equal(t, 1, ge.Location.Line)
	assert.Equal(t, 10, ge.Location.Column)
}

func TestValidateRejectsUndefinedVariable(t *testing.T) {
	stmt, err := Parse("MATCH (a) RETURN b.x")
	require.NoError(t, err)
	err = Validate(stmt)
	require.Error(t, err)
	assert.Equal(t, gqlerr.SemanticError, gqlerr.KindOf(err))
}

func TestValidateRejectsDuplicateAlias(t *testing.T) {
	stmt, err := Parse("MATCH (a) RETURN a.x AS v, a.y AS v")
	require.NoError(t, err)
	err = Validate(stmt)
	require.Error(t, err)
}

func TestValidateAllowsImplicitGrouping(t *testing.T) {
	stmt, err := Parse("MATCH (a) RETURN a.x, COUNT(a)")
	require.NoError(t, err)
	err = Validate(stmt)
	require.NoError(t, err)
}

func TestValidateAllowsAggregateAlone(t *testing.T) {
	stmt, err := Parse("MATCH (a) RETURN COUNT(a), COUNT(DISTINCT a.x), COUNT(*)")
	require.NoError(t, err)
	require.NoError(t, Validate(stmt))
}

func TestValidateChecksBuiltinArity(t *testing.T) {
	stmt, err := Parse("MATCH (a) RETURN SUBSTRING(a.name, 1)")
	require.NoError(t, err)
	err = Validate(stmt)
	require.Error(t, err)
	assert.Equal(t, gqlerr.SemanticError, gqlerr.KindOf(err))
}

func TestUnwindBindsLoopVariable(t *testing.T) {
	stmt, err := Parse("UNWIND [1, 2, 3] AS x RETURN x")
	require.NoError(t, err)
	require.NoError(t, Validate(stmt))
}

func TestWithRebindsProjectedNames(t *testing.T) {
	stmt, err := Parse("MATCH (a) WITH a.x AS v WHERE v > 1 RETURN v")
	require.NoError(t, err)
	require.NoError(t, Validate(stmt))
}
