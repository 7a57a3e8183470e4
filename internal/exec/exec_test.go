package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"graphlite/internal/catalog"
	"graphlite/internal/kv"
	"graphlite/internal/parser"
	"graphlite/internal/planner"
	"graphlite/internal/session"
	"graphlite/internal/storage"
	"graphlite/internal/value"
)

type testEnv struct {
	engine  *kv.Engine
	store   *storage.Manager
	cat     *catalog.Manager
	sessMgr *session.Manager
	graph   storage.GraphKey
	sess    *session.Session
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, catalog.EnsureBuckets(e))
	require.NoError(t, storage.EnsureBuckets(e))

	cm := catalog.New()
	require.NoError(t, e.Update(func(tx *kv.Tx) error {
		if err := cm.CreateRole(tx, "admin", []catalog.Permission{{OpClass: catalog.OpAdmin, Resource: "*"}}); err != nil {
			return err
		}
		if err := cm.CreateUser(tx, "alice", []byte("pw"), []string{"admin"}); err != nil {
			return err
		}
		if err := cm.CreateSchema(tx, "/s"); err != nil {
			return err
		}
		return cm.CreateGraph(tx, "/s", "g")
	}))

	sm := session.New(session.Config{Mode: session.Instance}, e, cm)
	t.Cleanup(sm.Stop)
	sess, err := sm.CreateSession("alice", []byte("pw"))
	require.NoError(t, err)
	sess.SetCurrent("/s", "g")

	return &testEnv{
		engine:  e,
		store:   storage.New(),
		cat:     cm,
		sessMgr: sm,
		graph:   storage.GraphKey{Schema: "/s", Graph: "g"},
		sess:    sess,
	}
}

// runQuery parses, validates, plans and executes src to completion
// inside a single read-only view, mirroring how the coordinator will
// drive a read-only statement.
func (e *testEnv) runQuery(t *testing.T, src string) []Row {
	t.Helper()
	stmt, err := parser.Parse(src)
	require.NoError(t, err)
	require.NoError(t, parser.Validate(stmt))
	logical, err := planner.Build(stmt)
	require.NoError(t, err)
	logical = planner.Optimize(logical)
	phys := planner.PlanPhysical(logical, planner.DefaultStats{BaselineRows: 100})

	var rows []Row
	require.NoError(t, e.engine.View(func(tx *kv.Tx) error {
		ectx := &Context{
			Tx:         tx,
			Graph:      e.graph,
			Storage:    e.store,
			Catalog:    e.cat,
			SessionMgr: e.sessMgr,
			Sess:       e.sess,
			Params:     map[string]value.Value{},
		}
		var execErr error
		rows, execErr = Execute(context.Background(), phys, ectx)
		return execErr
	}))
	return rows
}

// runMutation parses, plans, begins a transaction, executes the
// mutating statement (which only stages writes), and commits.
func (e *testEnv) runMutation(t *testing.T, src string) []Row {
	t.Helper()
	stmt, err := parser.Parse(src)
	require.NoError(t, err)
	require.NoError(t, parser.Validate(stmt))
	logical, err := planner.Build(stmt)
	require.NoError(t, err)
	logical = planner.Optimize(logical)
	phys := planner.PlanPhysical(logical, planner.DefaultStats{BaselineRows: 100})

	txn, err := e.sessMgr.Begin(e.sess.ID, session.ReadCommitted)
	require.NoError(t, err)

	var rows []Row
	require.NoError(t, e.engine.View(func(tx *kv.Tx) error {
		ectx := &Context{
			Tx:         tx,
			Graph:      e.graph,
			Storage:    e.store,
			Catalog:    e.cat,
			SessionMgr: e.sessMgr,
			Sess:       e.sess,
			Txn:        txn,
			Params:     map[string]value.Value{},
		}
		var execErr error
		rows, execErr = Execute(context.Background(), phys, ectx)
		return execErr
	}))
	require.NoError(t, e.sessMgr.Commit(e.sess.ID))
	return rows
}

func seedPeople(t *testing.T, env *testEnv) (annID, bobID value.ID) {
	t.Helper()
	require.NoError(t, env.engine.Update(func(tx *kv.Tx) error {
		ann := value.NewNode(value.NewID(), []string{"Person"}, map[string]value.Value{
			"name": value.Str("Ann"),
			"age":  value.Int(30),
		})
		bob := value.NewNode(value.NewID(), []string{"Person"}, map[string]value.Value{
			"name": value.Str("Bob"),
			"age":  value.Int(25),
		})
		if err := env.store.PutNode(tx, env.graph, ann); err != nil {
			return err
		}
		if err := env.store.PutNode(tx, env.graph, bob); err != nil {
			return err
		}
		edge := value.NewEdge(value.NewID(), "KNOWS", ann.ID, bob.ID, nil)
		if err := env.store.PutEdge(tx, env.graph, edge); err != nil {
			return err
		}
		annID, bobID = ann.ID, bob.ID
		return nil
	}))
	return annID, bobID
}

func TestScanAndProjectReturnsBoundProperty(t *testing.T) {
	env := newTestEnv(t)
	seedPeople(t, env)

	rows := env.runQuery(t, "MATCH (a:Person) RETURN a.name AS name ORDER BY name")
	require.Len(t, rows, 2)
	n0, _ := rows[0].Get("name")
	n1, _ := rows[1].Get("name")
	require.Equal(t, "Ann", n0.Str)
	require.Equal(t, "Bob", n1.Str)
}

func TestPushedEqualityFilterNarrowsScan(t *testing.T) {
	env := newTestEnv(t)
	seedPeople(t, env)

	rows := env.runQuery(t, "MATCH (a:Person) WHERE a.name = 'Ann' RETURN a.age AS age")
	require.Len(t, rows, 1)
	age, _ := rows[0].Get("age")
	require.Equal(t, int64(30), age.Int)
}

func TestExpandFollowsOutgoingEdge(t *testing.T) {
	env := newTestEnv(t)
	seedPeople(t, env)

	rows := env.runQuery(t, "MATCH (a:Person)-[r:KNOWS]->(b:Person) WHERE a.name = 'Ann' RETURN b.name AS name")
	require.Len(t, rows, 1)
	name, _ := rows[0].Get("name")
	require.Equal(t, "Bob", name.Str)
}

func TestOptionalMatchNullFillsOnNoMatch(t *testing.T) {
	env := newTestEnv(t)
	seedPeople(t, env)

	rows := env.runQuery(t, "MATCH (a:Person) OPTIONAL MATCH (a)-[r:MANAGES]->(b) WHERE a.name = 'Ann' RETURN a.name AS name, b")
	require.Len(t, rows, 1)
	b, ok := rows[0].Get("b")
	require.True(t, ok)
	require.True(t, b.IsNull())
}

func TestAggregateCountsPerGroup(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.engine.Update(func(tx *kv.Tx) error {
		for _, city := range []string{"Lagos", "Lagos", "Accra"} {
			n := value.NewNode(value.NewID(), []string{"Person"}, map[string]value.Value{"city": value.Str(city)})
			if err := env.store.PutNode(tx, env.graph, n); err != nil {
				return err
			}
		}
		return nil
	}))

	rows := env.runQuery(t, "MATCH (a:Person) RETURN a.city AS city, COUNT(a) AS n ORDER BY city")
	require.Len(t, rows, 2)
	city0, _ := rows[0].Get("city")
	n0, _ := rows[0].Get("n")
	require.Equal(t, "Accra", city0.Str)
	require.Equal(t, int64(1), n0.Int)
	city1, _ := rows[1].Get("city")
	n1, _ := rows[1].Get("n")
	require.Equal(t, "Lagos", city1.Str)
	require.Equal(t, int64(2), n1.Int)
}

func TestOrderBySkipLimit(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.engine.Update(func(tx *kv.Tx) error {
		for i := int64(0); i < 5; i++ {
			n := value.NewNode(value.NewID(), []string{"Person"}, map[string]value.Value{"n": value.Int(i)})
			if err := env.store.PutNode(tx, env.graph, n); err != nil {
				return err
			}
		}
		return nil
	}))

	rows := env.runQuery(t, "MATCH (a:Person) RETURN a.n AS n ORDER BY n DESC SKIP 1 LIMIT 2")
	require.Len(t, rows, 2)
	n0, _ := rows[0].Get("n")
	n1, _ := rows[1].Get("n")
	require.Equal(t, int64(3), n0.Int)
	require.Equal(t, int64(2), n1.Int)
}

func TestUnionDeduplicatesRows(t *testing.T) {
	env := newTestEnv(t)
	seedPeople(t, env)

	rows := env.runQuery(t, "MATCH (a:Person) WHERE a.name = 'Ann' RETURN a.name AS name UNION MATCH (b:Person) WHERE b.name = 'Ann' RETURN b.name AS name")
	require.Len(t, rows, 1)
}

func TestUnionAllKeepsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	seedPeople(t, env)

	rows := env.runQuery(t, "MATCH (a:Person) WHERE a.name = 'Ann' RETURN a.name AS name UNION ALL MATCH (b:Person) WHERE b.name = 'Ann' RETURN b.name AS name")
	require.Len(t, rows, 2)
}

func TestUnwindFlattensList(t *testing.T) {
	env := newTestEnv(t)
	rows := env.runQuery(t, "UNWIND [1, 2, 3] AS x RETURN x")
	require.Len(t, rows, 3)
	var total int64
	for _, r := range rows {
		x, _ := r.Get("x")
		total += x.Int
	}
	require.Equal(t, int64(6), total)
}

func TestInsertStagesNodeVisibleAfterCommit(t *testing.T) {
	env := newTestEnv(t)

	rows := env.runMutation(t, "INSERT (a:Person {name: 'Carol'}) RETURN a.name AS name")
	require.Len(t, rows, 1)
	name, _ := rows[0].Get("name")
	require.Equal(t, "Carol", name.Str)

	readRows := env.runQuery(t, "MATCH (a:Person) WHERE a.name = 'Carol' RETURN a.name AS name")
	require.Len(t, readRows, 1)
}

func TestDeleteNodeRejectedWhenEdgesRemain(t *testing.T) {
	env := newTestEnv(t)
	seedPeople(t, env)

	stmt, err := parser.Parse("MATCH (a:Person) WHERE a.name = 'Ann' DELETE a")
	require.NoError(t, err)
	require.NoError(t, parser.Validate(stmt))
	logical, err := planner.Build(stmt)
	require.NoError(t, err)
	logical = planner.Optimize(logical)
	phys := planner.PlanPhysical(logical, planner.DefaultStats{BaselineRows: 100})

	txn, err := env.sessMgr.Begin(env.sess.ID, session.ReadCommitted)
	require.NoError(t, err)
	require.NoError(t, env.engine.View(func(tx *kv.Tx) error {
		ectx := &Context{Tx: tx, Graph: env.graph, Storage: env.store, Catalog: env.cat, Txn: txn, Params: map[string]value.Value{}}
		_, err := Execute(context.Background(), phys, ectx)
		return err
	}))

	err = env.sessMgr.Commit(env.sess.ID)
	require.Error(t, err, "Ann still has an outgoing KNOWS edge")
}

func TestListSchemasProcedureGoesThroughSessionCache(t *testing.T) {
	env := newTestEnv(t)
	rows := env.runQuery(t, "CALL gql.list_schemas()")
	require.Len(t, rows, 1)
	path, _ := rows[0].Get("path")
	require.Equal(t, "/s", path.Str)
}
