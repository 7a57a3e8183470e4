package storage

import "bytes"

// Top-level bucket names, one per ordered key-value tree. Each nests
// one sub-bucket per (schema, graph) pair, created on first write by
// graphBucket.
var (
	bucketNodes  = []byte("nodes")
	bucketEdges  = []byte("edges")
	bucketAdjOut = []byte("adj_out")
	bucketAdjIn  = []byte("adj_in")
	bucketIdx    = []byte("idx")
)

var allBuckets = [][]byte{bucketNodes, bucketEdges, bucketAdjOut, bucketAdjIn, bucketIdx}

// GraphKey names a (schema, graph) pair for the storage manager.
// Catalog-level identity; storage never interprets the strings beyond
// using them as a bucket name.
type GraphKey struct {
	Schema string
	Graph  string
}

func (g GraphKey) bucketName() []byte {
	return []byte(g.Schema + "\x00" + g.Graph)
}

// adjKey builds the `node_id ‖ edge_id` composite key used by both
// adjacency trees.
func adjKey(nodeID, edgeID [16]byte) []byte {
	out := make([]byte, 32)
	copy(out[:16], nodeID[:])
	copy(out[16:], edgeID[:])
	return out
}

// idxKey builds the `label ‖ property ‖ value ‖ node_id` composite key
// for the `idx` tree. A nil encodedValue builds a prefix suitable for
// a range scan over every value of (label, property).
func idxKey(label, prop string, encodedValue, nodeID []byte) []byte {
	var buf bytes.Buffer
	writeBytes(&buf, []byte(label))
	writeBytes(&buf, []byte(prop))
	if encodedValue != nil {
		buf.Write(encodedValue)
	}
	if nodeID != nil {
		buf.Write(nodeID)
	}
	return buf.Bytes()
}

// idxPrefix builds the `label ‖ property` prefix shared by every
// stripe for one indexed property, used to range-scan all values.
func idxPrefix(label, prop string) []byte {
	return idxKey(label, prop, nil, nil)
}
