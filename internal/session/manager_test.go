package session

import (
	"testing"
	"time"

	"graphlite/internal/catalog"
	"graphlite/internal/kv"
	"graphlite/internal/value"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *catalog.Manager, *kv.Engine) {
	t.Helper()
	e, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, catalog.EnsureBuckets(e))
	cm := catalog.New()
	require.NoError(t, e.Update(func(tx *kv.Tx) error {
		if err := cm.CreateRole(tx, "admin", []catalog.Permission{{OpClass: catalog.OpAdmin, Resource: "*"}}); err != nil {
			return err
		}
		return cm.CreateUser(tx, "alice", []byte("pw"), []string{"admin"})
	}))
	m := New(Config{Mode: Instance}, e, cm)
	t.Cleanup(m.Stop)
	return m, cm, e
}

func TestCreateSessionAndBeginRequiresAuth(t *testing.T) {
	m, _, _ := newTestManager(t)

	s, err := m.CreateSession("alice", []byte("pw"))
	require.NoError(t, err)
	require.NotEqual(t, value.NilID, s.ID)

	_, err = m.CreateSession("alice", []byte("wrong"))
	require.Error(t, err)
}

func TestBeginCommitAppliesMutationsAndBumpsDataVersion(t *testing.T) {
	m, cm, e := newTestManager(t)
	require.NoError(t, e.Update(func(tx *kv.Tx) error {
		if err := cm.CreateSchema(tx, "/s"); err != nil {
			return err
		}
		return cm.CreateGraph(tx, "/s", "g")
	}))

	s, err := m.CreateSession("alice", []byte("pw"))
	require.NoError(t, err)

	txn, err := m.Begin(s.ID, ReadCommitted)
	require.NoError(t, err)

	var applied bool
	txn.Stage(GraphRef{Schema: "/s", Graph: "g"}, func(tx *kv.Tx) error {
		applied = true
		return nil
	})

	require.NoError(t, m.Commit(s.ID))
	require.True(t, applied)
	require.Equal(t, Committed, txn.State())
	require.Nil(t, s.Txn())

	var g *catalog.Graph
	require.NoError(t, e.View(func(tx *kv.Tx) error {
		var err error
		g, err = cm.GetGraph(tx, "/s", "g")
		return err
	}))
	require.Equal(t, uint64(1), g.DataVersion)
}

func TestOnlyOneActiveTransactionPerSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	s, err := m.CreateSession("alice", []byte("pw"))
	require.NoError(t, err)

	_, err = m.Begin(s.ID, ReadCommitted)
	require.NoError(t, err)

	_, err = m.Begin(s.ID, ReadCommitted)
	require.Error(t, err)
}

func TestRollbackDiscardsMutations(t *testing.T) {
	m, _, _ := newTestManager(t)
	s, err := m.CreateSession("alice", []byte("pw"))
	require.NoError(t, err)

	txn, err := m.Begin(s.ID, ReadCommitted)
	require.NoError(t, err)

	applied := false
	txn.Stage(GraphRef{Schema: "/s", Graph: "g"}, func(tx *kv.Tx) error {
		applied = true
		return nil
	})

	require.NoError(t, m.Rollback(s.ID))
	require.False(t, applied)
	require.Equal(t, Aborted, txn.State())
	require.Nil(t, s.Txn())
}

func TestSerializableWriteSetConflict(t *testing.T) {
	m, cm, e := newTestManager(t)
	require.NoError(t, e.Update(func(tx *kv.Tx) error {
		if err := cm.CreateSchema(tx, "/s"); err != nil {
			return err
		}
		return cm.CreateGraph(tx, "/s", "g")
	}))
	s1, err := m.CreateSession("alice", []byte("pw"))
	require.NoError(t, err)
	s2, err := m.CreateSession("alice", []byte("pw"))
	require.NoError(t, err)

	id := value.NewID()

	t1, err := m.Begin(s1.ID, Serializable)
	require.NoError(t, err)
	t2, err := m.Begin(s2.ID, Serializable)
	require.NoError(t, err)

	t1.Stage(GraphRef{Schema: "/s", Graph: "g"}, func(tx *kv.Tx) error { return nil })
	t1.TrackWrite(id)
	require.NoError(t, m.Commit(s1.ID))

	t2.Stage(GraphRef{Schema: "/s", Graph: "g"}, func(tx *kv.Tx) error { return nil })
	t2.TrackWrite(id)
	err = m.Commit(s2.ID)
	require.Error(t, err, "t2 began before t1 committed and both wrote the same entity")
}

func TestCloseSessionRollsBackActiveTransaction(t *testing.T) {
	m, _, _ := newTestManager(t)
	s, err := m.CreateSession("alice", []byte("pw"))
	require.NoError(t, err)

	txn, err := m.Begin(s.ID, ReadCommitted)
	require.NoError(t, err)

	require.NoError(t, m.CloseSession(s.ID))
	require.Equal(t, Aborted, txn.State())

	_, err = m.GetSession(s.ID)
	require.Error(t, err)
}

func TestIdleSweepClosesIdleSessions(t *testing.T) {
	e, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, catalog.EnsureBuckets(e))
	cm := catalog.New()
	require.NoError(t, e.Update(func(tx *kv.Tx) error {
		return cm.CreateUser(tx, "bob", []byte("pw"), nil)
	}))

	m := New(Config{Mode: Instance, IdleTimeout: 20 * time.Millisecond}, e, cm)
	t.Cleanup(m.Stop)

	s, err := m.CreateSession("bob", []byte("pw"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := m.GetSession(s.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}
