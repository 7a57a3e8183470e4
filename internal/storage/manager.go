// Package storage implements the storage manager: encoding and
// decoding graph primitivies over the five ordered key-value trees,
// scoped per (schema, graph) pair, atop internal/kv.
package storage

import (
	"errors"

	"graphlite/internal/gqlerr"
	"graphlite/internal/kv"
	"graphlite/internal/value"
)

// Direction selects which adjacency tree GetNeighbors walks.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// Neighbor is one result row of GetNeighbors: the connecting edge and
// the node at its other end.
type Neighbor struct {
	EdgeID  value.ID
	OtherID value.ID
}

// PropertyFilter is the single equality filter the physical planner
// may push into ScanByLabel when a matching index stripe exists.
type PropertyFilter struct {
	Property string
	Value    value.Value
}

// Manager is the storage manager. It is stateless: all state lives in
// the KV engine, addressed through the *kv.Tx passed to every method,
// so the same Manager is safe to share across sessions.
type Manager struct{}

func New() *Manager { return &Manager{} }

// EnsureBuckets creates the five top-level trees. Called once at
// database install time.
func EnsureBuckets(e *kv.Engine) error {
	return e.EnsureBuckets(allBuckets...)
}

func bucketFor(tx *kv.Tx, top []byte) *kv.Bucket {
	b := tx.Bucket(top)
	if b == nil {
		return nil
	}
	return b
}

func graphBucket(tx *kv.Tx, top []byte, g GraphKey, create bool) (*kv.Bucket, error) {
	top_ := bucketFor(tx, top)
	if top_ == nil {
		return nil, gqlerr.Internalf("tree %s not initialized", top)
	}
	name := g.bucketName()
	if b := top_.Bucket(name); b != nil {
		return b, nil
	}
	if !create {
		return nil, nil
	}
	return top_.CreateBucketIfNotExists(name)
}

// PutNode upserts a node by id ("idempotent by id"), maintaining
// the property index for any changed indexable property.
func (m *Manager) PutNode(tx *kv.Tx, g GraphKey, n *value.Node) error {
	nodes, err := graphBucket(tx, bucketNodes, g, true)
	if err != nil {
		return err
	}
	var old *value.Node
	if existing := nodes.Get(n.ID[:]); existing != nil {
		old, err = decodeNodeRecord(n.ID, existing)
		if err != nil {
			return err
		}
	}
	rec, err := encodeNodeRecord(n)
	if err != nil {
		return err
	}
	if err := nodes.Put(n.ID[:], rec); err != nil {
		return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "put node %s", n.ID)
	}
	return m.reindexNode(tx, g, old, n)
}

// GetNode performs a strict get: a missing id is reported as NotFound.
func (m *Manager) GetNode(tx *kv.Tx, g GraphKey, id value.ID) (*value.Node, error) {
	nodes, err := graphBucket(tx, bucketNodes, g, false)
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		return nil, gqlerr.NotFoundf("node %s", id)
	}
	data := nodes.Get(id[:])
	if data == nil {
		return nil, gqlerr.NotFoundf("node %s", id)
	}
	return decodeNodeRecord(id, data)
}

// DeleteNode removes a node and its index entries. Callers
// (internal/exec) are responsible for the referential-integrity check
// against incident edges before calling this.
func (m *Manager) DeleteNode(tx *kv.Tx, g GraphKey, id value.ID) error {
	nodes, err := graphBucket(tx, bucketNodes, g, false)
	if err != nil || nodes == nil {
		return err
	}
	data := nodes.Get(id[:])
	if data == nil {
		return nil
	}
	old, err := decodeNodeRecord(id, data)
	if err != nil {
		return err
	}
	if err := nodes.Delete(id[:]); err != nil {
		return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "delete node %s", id)
	}
	return m.reindexNode(tx, g, old, nil)
}

// PutEdge upserts an edge and its adjacency entries by id.
func (m *Manager) PutEdge(tx *kv.Tx, g GraphKey, e *value.Edge) error {
	edges, err := graphBucket(tx, bucketEdges, g, true)
	if err != nil {
		return err
	}
	// An update that changes src/dst must retract the old adjacency
	// entries first.
	if existing := edges.Get(e.ID[:]); existing != nil {
		old, err := decodeEdgeRecord(e.ID, existing)
		if err != nil {
			return err
		}
		if old.Src != e.Src || old.Dst != e.Dst {
			if err := m.removeAdjacency(tx, g, old); err != nil {
				return err
			}
		}
	}
	rec, err := encodeEdgeRecord(e)
	if err != nil {
		return err
	}
	if err := edges.Put(e.ID[:], rec); err != nil {
		return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "put edge %s", e.ID)
	}
	return m.putAdjacency(tx, g, e)
}

func (m *Manager) putAdjacency(tx *kv.Tx, g GraphKey, e *value.Edge) error {
	adjOut, err := graphBucket(tx, bucketAdjOut, g, true)
	if err != nil {
		return err
	}
	adjIn, err := graphBucket(tx, bucketAdjIn, g, true)
	if err != nil {
		return err
	}
	srcID, dstID, edgeID := [16]byte(e.Src), [16]byte(e.Dst), [16]byte(e.ID)
	if err := adjOut.Put(adjKey(srcID, edgeID), e.Dst[:]); err != nil {
		return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "index adj_out for edge %s", e.ID)
	}
	if err := adjIn.Put(adjKey(dstID, edgeID), e.Src[:]); err != nil {
		return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "index adj_in for edge %s", e.ID)
	}
	return nil
}

func (m *Manager) removeAdjacency(tx *kv.Tx, g GraphKey, e *value.Edge) error {
	adjOut, err := graphBucket(tx, bucketAdjOut, g, false)
	if err != nil {
		return err
	}
	adjIn, err := graphBucket(tx, bucketAdjIn, g, false)
	if err != nil {
		return err
	}
	srcID, dstID, edgeID := [16]byte(e.Src), [16]byte(e.Dst), [16]byte(e.ID)
	if adjOut != nil {
		if err := adjOut.Delete(adjKey(srcID, edgeID)); err != nil {
			return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "remove adj_out for edge %s", e.ID)
		}
	}
	if adjIn != nil {
		if err := adjIn.Delete(adjKey(dstID, edgeID)); err != nil {
			return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "remove adj_in for edge %s", e.ID)
		}
	}
	return nil
}

// GetEdge performs a strict get.
func (m *Manager) GetEdge(tx *kv.Tx, g GraphKey, id value.ID) (*value.Edge, error) {
	edges, err := graphBucket(tx, bucketEdges, g, false)
	if err != nil {
		return nil, err
	}
	if edges == nil {
		return nil, gqlerr.NotFoundf("edge %s", id)
	}
	data := edges.Get(id[:])
	if data == nil {
		return nil, gqlerr.NotFoundf("edge %s", id)
	}
	return decodeEdgeRecord(id, data)
}

// DeleteEdge removes an edge and both its adjacency entries.
func (m *Manager) DeleteEdge(tx *kv.Tx, g GraphKey, id value.ID) error {
	edges, err := graphBucket(tx, bucketEdges, g, false)
	if err != nil || edges == nil {
		return err
	}
	data := edges.Get(id[:])
	if data == nil {
		return nil
	}
	old, err := decodeEdgeRecord(id, data)
	if err != nil {
		return err
	}
	if err := edges.Delete(id[:]); err != nil {
		return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "delete edge %s", id)
	}
	return m.removeAdjacency(tx, g, old)
}

// GetNeighbors returns every (edge, other-node) pair reachable from id
// in the given direction, optionally filtered to one edge type, via
// an ordered range scan over the adjacency tree (O(degree)).
func (m *Manager) GetNeighbors(tx *kv.Tx, g GraphKey, id value.ID, dir Direction, edgeType string) ([]Neighbor, error) {
	var out []Neighbor
	if dir == Outgoing || dir == Both {
		ns, err := m.scanAdjacency(tx, g, bucketAdjOut, id, edgeType)
		if err != nil {
			return nil, err
		}
		out = append(out, ns...)
	}
	if dir == Incoming || dir == Both {
		ns, err := m.scanAdjacency(tx, g, bucketAdjIn, id, edgeType)
		if err != nil {
			return nil, err
		}
		out = append(out, ns...)
	}
	return out, nil
}

func (m *Manager) scanAdjacency(tx *kv.Tx, g GraphKey, top []byte, id value.ID, edgeType string) ([]Neighbor, error) {
	b, err := graphBucket(tx, top, g, false)
	if err != nil || b == nil {
		return nil, err
	}
	edges, err := graphBucket(tx, bucketEdges, g, false)
	if err != nil {
		return nil, err
	}
	prefix := id[:]
	var out []Neighbor
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		var edgeID value.ID
		copy(edgeID[:], k[16:32])
		if edgeType != "" {
			if edges == nil {
				continue
			}
			data := edges.Get(edgeID[:])
			if data == nil {
				continue
			}
			e, err := decodeEdgeRecord(edgeID, data)
			if err != nil {
				return nil, err
			}
			if e.Type != edgeType {
				continue
			}
		}
		var other value.ID
		copy(other[:], v)
		out = append(out, Neighbor{EdgeID: edgeID, OtherID: other})
	}
	return out, nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// ScanByLabel returns every node carrying label, optionally narrowed
// by an equality filter. When filter names an indexed property the
// `idx` tree range-scan is used; otherwise it falls back to a full
// scan of the `nodes` tree filtered by label presence.
func (m *Manager) ScanByLabel(tx *kv.Tx, g GraphKey, label string, filter *PropertyFilter) ([]*value.Node, error) {
	if filter != nil && Indexable(filter.Value) {
		if nodes, ok, err := m.scanIndex(tx, g, label, filter); ok {
			return nodes, err
		}
	}
	return m.fullScanByLabel(tx, g, label, filter)
}

// scanIndex attempts the index-backed path; ok is false when no index
// stripe exists for (label, property), signalling the caller to fall
// back to a full scan.
func (m *Manager) scanIndex(tx *kv.Tx, g GraphKey, label string, filter *PropertyFilter) ([]*value.Node, bool, error) {
	idx, err := graphBucket(tx, bucketIdx, g, false)
	if err != nil || idx == nil {
		return nil, false, err
	}
	encoded := encodeIndexValue(filter.Value)
	prefix := idxKey(label, filter.Property, encoded, nil)
	c := idx.Cursor()
	k, _ := c.Seek(prefix)
	if k == nil || !hasPrefix(k, prefix) {
		// No stripe for this (label, property, value): this could
		// mean "zero matches" or "never indexed". Either way a full
		// scan is correct and safe; only treat it as "index present"
		// when a broader (label, property) prefix has any entries.
		broad := idxPrefix(label, filter.Property)
		bk, _ := c.Seek(broad)
		if bk == nil || !hasPrefix(bk, broad) {
			return nil, false, nil
		}
	}
	nodes, err := graphBucket(tx, bucketNodes, g, false)
	if err != nil {
		return nil, true, err
	}
	var out []*value.Node
	for ; k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
		nodeID := k[len(prefix):]
		if len(nodeID) != 16 {
			continue
		}
		var id value.ID
		copy(id[:], nodeID)
		if nodes == nil {
			continue
		}
		data := nodes.Get(id[:])
		if data == nil {
			continue
		}
		n, err := decodeNodeRecord(id, data)
		if err != nil {
			return nil, true, err
		}
		out = append(out, n)
	}
	return out, true, nil
}

func (m *Manager) fullScanByLabel(tx *kv.Tx, g GraphKey, label string, filter *PropertyFilter) ([]*value.Node, error) {
	nodes, err := graphBucket(tx, bucketNodes, g, false)
	if err != nil || nodes == nil {
		return nil, err
	}
	var out []*value.Node
	c := nodes.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var id value.ID
		copy(id[:], k)
		n, err := decodeNodeRecord(id, v)
		if err != nil {
			return nil, err
		}
		if label != "" && !n.HasLabel(label) {
			continue
		}
		if filter != nil {
			pv, ok := n.Properties[filter.Property]
			if !ok || !value.Equal(pv, filter.Value) {
				continue
			}
		}
		out = append(out, n)
	}
	return out, nil
}

// AllNodes is a full scan with no label/filter restriction.
func (m *Manager) AllNodes(tx *kv.Tx, g GraphKey) ([]*value.Node, error) {
	return m.fullScanByLabel(tx, g, "", nil)
}

// reindexNode updates the `idx` tree between an old and new revision
// of a node (either may be nil, for insert/delete).
func (m *Manager) reindexNode(tx *kv.Tx, g GraphKey, old, cur *value.Node) error {
	idx, err := graphBucket(tx, bucketIdx, g, true)
	if err != nil {
		return err
	}
	if old != nil {
		for _, label := range old.Labels {
			for prop, v := range old.Properties {
				if !Indexable(v) {
					continue
				}
				if cur != nil && cur.HasLabel(label) && value.Equal(cur.Properties[prop], v) {
					continue // unchanged stripe, keep it
				}
				key := idxKey(label, prop, encodeIndexValue(v), old.ID[:])
				if err := idx.Delete(key); err != nil {
					return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "remove index entry")
				}
			}
		}
	}
	if cur != nil {
		for _, label := range cur.Labels {
			for prop, v := range cur.Properties {
				if !Indexable(v) {
					continue
				}
				if old != nil && old.HasLabel(label) && value.Equal(old.Properties[prop], v) {
					continue
				}
				key := idxKey(label, prop, encodeIndexValue(v), cur.ID[:])
				if err := idx.Put(key, []byte{}); err != nil {
					return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "add index entry")
				}
			}
		}
	}
	return nil
}

// DropGraph deletes every entry belonging to g across all five trees,
// used when a DDL drops a graph, destroying contained data within the
// same batch.
func (m *Manager) DropGraph(tx *kv.Tx, g GraphKey) error {
	for _, top := range allBuckets {
		b := bucketFor(tx, top)
		if b == nil {
			continue
		}
		if err := b.DeleteBucket(g.bucketName()); err != nil && !errors.Is(err, kv.ErrBucketNotFound) {
			return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "drop graph data in %s", top)
		}
	}
	return nil
}
