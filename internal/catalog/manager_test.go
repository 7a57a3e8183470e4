package catalog

import (
	"testing"

	"graphlite/internal/gqlerr"
	"graphlite/internal/kv"

	"github.com/stretchr/testify/require"
)

func openTestEngine(t *testing.T) *kv.Engine {
	t.Helper()
	e, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, EnsureBuckets(e))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestCreateSchemaAndGraphLifecycle(t *testing.T) {
	e := openTestEngine(t)
	m := New()

	require.NoError(t, e.Update(func(tx *kv.Tx) error { return m.CreateSchema(tx, "/social") }))

	err := e.Update(func(tx *kv.Tx) error { return m.CreateSchema(tx, "/social") })
	require.Error(t, err)
	require.Equal(t, gqlerr.AlreadyExists, gqlerr.KindOf(err))

	require.NoError(t, e.Update(func(tx *kv.Tx) error { return m.CreateGraph(tx, "/social", "g1") }))

	var s *Schema
	require.NoError(t, e.View(func(tx *kv.Tx) error {
		var err error
		s, err = m.GetSchema(tx, "/social")
		return err
	}))
	require.Equal(t, []string{"g1"}, s.Graphs)
	require.Equal(t, uint64(2), s.DDLVersion)

	err = e.Update(func(tx *kv.Tx) error { return m.DropSchema(tx, "/social") })
	require.Error(t, err, "dropping a schema with graphs must fail")

	require.NoError(t, e.Update(func(tx *kv.Tx) error { return m.DropGraph(tx, "/social", "g1") }))
	require.NoError(t, e.Update(func(tx *kv.Tx) error { return m.DropSchema(tx, "/social") }))
}

func TestBumpDataVersionIsIndependentOfDDLVersion(t *testing.T) {
	e := openTestEngine(t)
	m := New()
	require.NoError(t, e.Update(func(tx *kv.Tx) error {
		if err := m.CreateSchema(tx, "/s"); err != nil {
			return err
		}
		return m.CreateGraph(tx, "/s", "g")
	}))

	require.NoError(t, e.Update(func(tx *kv.Tx) error { return m.BumpDataVersion(tx, "/s", "g") }))
	require.NoError(t, e.Update(func(tx *kv.Tx) error { return m.BumpDataVersion(tx, "/s", "g") }))

	var g *Graph
	require.NoError(t, e.View(func(tx *kv.Tx) error {
		var err error
		g, err = m.GetGraph(tx, "/s", "g")
		return err
	}))
	require.Equal(t, uint64(1), g.DDLVersion)
	require.Equal(t, uint64(2), g.DataVersion)
}

func TestAuthenticateAndCheckPermission(t *testing.T) {
	e := openTestEngine(t)
	m := New()

	require.NoError(t, e.Update(func(tx *kv.Tx) error {
		if err := m.CreateRole(tx, "reader", []Permission{{OpClass: OpDQL, Resource: "/social/*"}}); err != nil {
			return err
		}
		return m.CreateUser(tx, "alice", []byte("s3cret"), []string{"reader"})
	}))

	var p *Principal
	require.NoError(t, e.View(func(tx *kv.Tx) error {
		var err error
		p, err = m.Authenticate(tx, "alice", []byte("s3cret"))
		return err
	}))
	require.Equal(t, "alice", p.User)

	err := e.View(func(tx *kv.Tx) error {
		_, err := m.Authenticate(tx, "alice", []byte("wrong"))
		return err
	})
	require.Error(t, err)

	var allowed, denied bool
	require.NoError(t, e.View(func(tx *kv.Tx) error {
		var err error
		allowed, err = m.CheckPermission(tx, p, OpDQL, "/social/users")
		if err != nil {
			return err
		}
		denied, err = m.CheckPermission(tx, p, OpDDL, "/social/users")
		return err
	}))
	require.True(t, allowed)
	require.False(t, denied)
}
