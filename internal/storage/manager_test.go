package storage

import (
	"testing"

	"graphlite/internal/kv"
	"graphlite/internal/value"

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

func TestPutGetNodeRoundTrip(t *testing.T) {
	e := openTestEngine(t)
	m := New()
	g := GraphKey{Schema: "/s", Graph: "g"}
	id := value.NewID()
	n := value.NewNode(id, []string{"Person"}, map[string]value.Value{
		"name": value.Str("Alice"),
		"age":  value.Int(30),
	})

	require.NoError(t, e.Update(func(tx *kv.Tx) error {
		return m.PutNode(tx, g, n)
	}))

	var got *value.Node
	require.NoError(t, e.View(func(tx *kv.Tx) error {
		var err error
		got, err = m.GetNode(tx, g, id)
		return err
	}))

	require.Equal(t, id, got.ID)
	require.Equal(t, []string{"Person"}, got.Labels)
	require.True(t, value.Equal(value.Str("Alice"), got.Properties["name"]))
	require.True(t, value.Equal(value.Int(30), got.Properties["age"]))
}

func TestGetNodeNotFound(t *testing.T) {
	e := openTestEngine(t)
	m := New()
	g := GraphKey{Schema: "/s", Graph: "g"}

	err := e.View(func(tx *kv.Tx) error {
		_, err := m.GetNode(tx, g, value.NewID())
		return err
	})
	require.Error(t, err)
}

func TestDeleteNode(t *testing.T) {
	e := openTestEngine(t)
	m := New()
	g := GraphKey{Schema: "/s", Graph: "g"}
	id := value.NewID()
	n := value.NewNode(id, []string{"X"}, map[string]value.Value{"i": value.Int(1)})

	require.NoError(t, e.Update(func(tx *kv.Tx) error { return m.PutNode(tx, g, n) }))
	require.NoError(t, e.Update(func(tx *kv.Tx) error { return m.DeleteNode(tx, g, id) }))

	err := e.View(func(tx *kv.Tx) error {
		_, err := m.GetNode(tx, g, id)
		return err
	})
	require.Error(t, err)
}

func TestEdgeAdjacencyTraversal(t *testing.T) {
	e := openTestEngine(t)
	m := New()
	g := GraphKey{Schema: "/s", Graph: "g"}

	a, b, c := value.NewID(), value.NewID(), value.NewID()
	e1, e2 := value.NewID(), value.NewID()

	require.NoError(t, e.Update(func(tx *kv.Tx) error {
		for _, n := range []*value.Node{
			value.NewNode(a, []string{"Person"}, map[string]value.Value{"name": value.Str("A")}),
			value.NewNode(b, []string{"Person"}, map[string]value.Value{"name": value.Str("B")}),
			value.NewNode(c, []string{"Person"}, map[string]value.Value{"name": value.Str("C")}),
		} {
			if err := m.PutNode(tx, g, n); err != nil {
				return err
			}
		}
		if err := m.PutEdge(tx, g, value.NewEdge(e1, "KNOWS", a, b, nil)); err != nil {
			return err
		}
		return m.PutEdge(tx, g, value.NewEdge(e2, "KNOWS", b, c, nil))
	}))

	var hop1, hop2 []Neighbor
	require.NoError(t, e.View(func(tx *kv.Tx) error {
		var err error
		hop1, err = m.GetNeighbors(tx, g, a, Outgoing, "KNOWS")
		if err != nil {
			return err
		}
		hop2, err = m.GetNeighbors(tx, g, hop1[0].OtherID, Outgoing, "KNOWS")
		return err
	}))

	require.Len(t, hop1, 1)
	require.Equal(t, b, hop1[0].OtherID)
	require.Len(t, hop2, 1)
	require.Equal(t, c, hop2[0].OtherID)
}

func TestScanByLabelUsesIndexWhenAvailable(t *testing.T) {
	e := openTestEngine(t)
	m := New()
	g := GraphKey{Schema: "/s", Graph: "g"}

	cities := []string{"NY", "NY", "SF"}
	require.NoError(t, e.Update(func(tx *kv.Tx) error {
		for _, city := range cities {
			n := value.NewNode(value.NewID(), []string{"Person"}, map[string]value.Value{"city": value.Str(city)})
			if err := m.PutNode(tx, g, n); err != nil {
				return err
			}
		}
		return nil
	}))

	filter := &PropertyFilter{Property: "city", Value: value.Str("NY")}
	var ny []*value.Node
	var indexed bool
	require.NoError(t, e.View(func(tx *kv.Tx) error {
		var err error
		ny, err = m.ScanByLabel(tx, g, "Person", filter)
		if err != nil {
			return err
		}
		_, indexed, err = m.scanIndex(tx, g, "Person", filter)
		return err
	}))
	require.Len(t, ny, 2)
	require.True(t, indexed)
}

func TestDropGraphRemovesAllData(t *testing.T) {
	e := openTestEngine(t)
	m := New()
	g := GraphKey{Schema: "/s", Graph: "g"}
	id := value.NewID()

	require.NoError(t, e.Update(func(tx *kv.Tx) error {
		return m.PutNode(tx, g, value.NewNode(id, []string{"X"}, nil))
	}))
	require.NoError(t, e.Update(func(tx *kv.Tx) error {
		return m.DropGraph(tx, g)
	}))

	var nodes []*value.Node
	require.NoError(t, e.View(func(tx *kv.Tx) error {
		var err error
		nodes, err = m.AllNodes(tx, g)
		return err
	}))
	require.Empty(t, nodes)
}
