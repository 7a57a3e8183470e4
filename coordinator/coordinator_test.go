package coordinator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"graphlite/internal/catalog"
	"graphlite/internal/gqlerr"
	"graphlite/internal/kv"
	"graphlite/internal/session"
	"graphlite/internal/value"
)

func openTestDB(t *testing.T) *Coordinator {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "db")
	require.NoError(t, Install(dir, "admin", []byte("hunter2"), Config{}))
	c, err := Open(dir, Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func adminSession(t *testing.T, c *Coordinator) (id value.ID) {
	t.Helper()
	sid, err := c.CreateSession("admin", []byte("hunter2"))
	require.NoError(t, err)
	_, err = c.Execute(sid, "SESSION SET SCHEMA '/default'", nil)
	require.NoError(t, err)
	_, err = c.Execute(sid, "CREATE GRAPH g", nil)
	require.NoError(t, err)
	_, err = c.Execute(sid, "SESSION SET GRAPH g", nil)
	require.NoError(t, err)
	return sid
}

func TestInstallAndOpenRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	require.NoError(t, Install(dir, "admin", []byte("hunter2"), Config{Verbose: true}))

	c, err := Open(dir, Config{})
	require.NoError(t, err)
	defer c.Close()

	sid, err := c.CreateSession("admin", []byte("hunter2"))
	require.NoError(t, err)
	require.NoError(t, c.CloseSession(sid))
}

func TestImplicitTransactionAutocommitsOnSuccess(t *testing.T) {
	c := openTestDB(t)
	sid := adminSession(t, c)

	res, err := c.Execute(sid, "INSERT (a:Person {name: 'Carol'}) RETURN a.name AS name", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "Carol", res.Rows[0]["name"].Str)

	res, err = c.Execute(sid, "MATCH (a:Person) WHERE a.name = 'Carol' RETURN a.name AS name", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestImplicitTransactionRollsBackOnFailure(t *testing.T) {
	c := openTestDB(t)
	sid := adminSession(t, c)

	_, err := c.Execute(sid, "INSERT (a:Person {name: 'Ann'})-[:KNOWS]->(b:Person {name: 'Bob'})", nil)
	require.NoError(t, err)

	_, err = c.Execute(sid, "MATCH (a:Person) WHERE a.name = 'Ann' DELETE a", nil)
	require.Error(t, err)

	res, err := c.Execute(sid, "MATCH (a:Person) WHERE a.name = 'Ann' RETURN a.name AS name", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1, "the failed DELETE's implicit transaction must have rolled back, leaving Ann in place")
}

func TestExplicitTransactionIsolatesUntilCommit(t *testing.T) {
	c := openTestDB(t)
	writer := adminSession(t, c)
	reader, err := c.CreateSession("admin", []byte("hunter2"))
	require.NoError(t, err)
	_, err = c.Execute(reader, "SESSION SET SCHEMA '/default'", nil)
	require.NoError(t, err)
	_, err = c.Execute(reader, "SESSION SET GRAPH g", nil)
	require.NoError(t, err)

	_, err = c.Execute(writer, "BEGIN TRANSACTION", nil)
	require.NoError(t, err)
	_, err = c.Execute(writer, "INSERT (a:Person {name: 'Dana'})", nil)
	require.NoError(t, err)

	res, err := c.Execute(reader, "MATCH (a:Person) WHERE a.name = 'Dana' RETURN a.name AS name", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 0, "uncommitted insert must not be visible to a concurrent session")

	_, err = c.Execute(writer, "COMMIT", nil)
	require.NoError(t, err)

	res, err = c.Execute(reader, "MATCH (a:Person) WHERE a.name = 'Dana' RETURN a.name AS name", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestRepeatedQueryHitsPlanAndResultCache(t *testing.T) {
	c := openTestDB(t)
	sid := adminSession(t, c)

	_, err := c.Execute(sid, "INSERT (a:Person {name: 'Ann'})", nil)
	require.NoError(t, err)

	query := "MATCH (a:Person) RETURN a.name AS name"
	res1, err := c.Execute(sid, query, nil)
	require.NoError(t, err)
	require.False(t, res1.Summary.CacheHit)

	res2, err := c.Execute(sid, query, nil)
	require.NoError(t, err)
	require.True(t, res2.Summary.CacheHit)

	var planHits, resultHits int64
	for _, s := range c.CacheStats() {
		switch s.Name {
		case "plan":
			planHits = s.Hits
		case "result":
			resultHits = s.Hits
		}
	}
	require.Greater(t, planHits, int64(0))
	require.Greater(t, resultHits, int64(0))
}

func TestSerializableCommitConflict(t *testing.T) {
	c := openTestDB(t)
	sid := adminSession(t, c)

	_, err := c.Execute(sid, "INSERT (a:Person {name: 'Eve', age: 1})", nil)
	require.NoError(t, err)

	s1, err := c.CreateSession("admin", []byte("hunter2"))
	require.NoError(t, err)
	_, err = c.Execute(s1, "SESSION SET SCHEMA '/default'", nil)
	require.NoError(t, err)
	_, err = c.Execute(s1, "SESSION SET GRAPH g", nil)
	require.NoError(t, err)

	s2, err := c.CreateSession("admin", []byte("hunter2"))
	require.NoError(t, err)
	_, err = c.Execute(s2, "SESSION SET SCHEMA '/default'", nil)
	require.NoError(t, err)
	_, err = c.Execute(s2, "SESSION SET GRAPH g", nil)
	require.NoError(t, err)

	require.NoError(t, c.Begin(s1, session.Serializable))
	require.NoError(t, c.Begin(s2, session.Serializable))

	_, err = c.Execute(s1, "MATCH (a:Person) WHERE a.name = 'Eve' SET a.age = 2", nil)
	require.NoError(t, err)
	_, err = c.Execute(s2, "MATCH (a:Person) WHERE a.name = 'Eve' SET a.age = 3", nil)
	require.NoError(t, err)

	require.NoError(t, c.Commit(s1))

	err = c.Commit(s2)
	require.Error(t, err)
	require.Equal(t, gqlerr.Conflict, gqlerr.KindOf(err))
}

func TestReaderRoleDeniedMutationsButAllowedReads(t *testing.T) {
	c := openTestDB(t)
	admin := adminSession(t, c)
	_, err := c.Execute(admin, "INSERT (a:Person {name: 'Gus'})", nil)
	require.NoError(t, err)

	require.NoError(t, c.engine.Update(func(tx *kv.Tx) error {
		if err := c.catalogMgr.CreateRole(tx, "reader", []catalog.Permission{
			{OpClass: catalog.OpDQL, Resource: "/default/*"},
		}); err != nil {
			return err
		}
		return c.catalogMgr.CreateUser(tx, "bob", []byte("pw"), []string{"reader"})
	}))

	sid, err := c.CreateSession("bob", []byte("pw"))
	require.NoError(t, err)
	_, err = c.Execute(sid, "SESSION SET SCHEMA '/default'", nil)
	require.NoError(t, err)
	_, err = c.Execute(sid, "SESSION SET GRAPH g", nil)
	require.NoError(t, err)

	res, err := c.Execute(sid, "MATCH (a:Person) WHERE a.name = 'Gus' RETURN a.name AS name", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	_, err = c.Execute(sid, "INSERT (a:Person {name: 'Hank'})", nil)
	require.Error(t, err)
	require.Equal(t, gqlerr.PermissionDenied, gqlerr.KindOf(err))

	_, err = c.Execute(sid, "CREATE GRAPH h", nil)
	require.Error(t, err)
	require.Equal(t, gqlerr.PermissionDenied, gqlerr.KindOf(err))
}
