// Package exec implements the volcano-style physical executor:
// each physical operator from internal/planner is lowered into an
// Iterator exposing Open/Next/Close, row-bindings flow bottom-up, and
// mutating operators stage their effects into the active
// internal/session transaction rather than writing immediately.
package exec

import (
	"graphlite/internal/catalog"
	"graphlite/internal/kv"
	"graphlite/internal/session"
	"graphlite/internal/storage"
	"graphlite/internal/value"
)

// Context carries everything a physical-plan iterator tree needs to
// read and stage writes for one statement's execution against one
// (schema, graph) pair. It is assembled fresh per Execute call by the
// coordinator; nothing here is safe to share across goroutines.
type Context struct {
	Tx      *kv.Tx
	Graph   storage.GraphKey
	Storage *storage.Manager
	Catalog *catalog.Manager

	// SessionMgr and Sess back the system procedures that read through
	// the session's catalog cache.
	SessionMgr *session.Manager
	Sess       *session.Session

	// Txn is the active transaction mutating operators stage their
	// writes into. Read-only statements never touch it.
	Txn *session.Transaction

	Params map[string]value.Value

	// CacheStats backs `CALL gql.cache_stats()`. exec never
	// imports internal/cache directly; the coordinator wires this
	// closure in so the dependency runs the other way.
	CacheStats func() []CacheStat
}

// CacheStat is one row yielded by `CALL gql.cache_stats()`.
type CacheStat struct {
	Name         string
	Hits, Misses int64
	Size         int64
	Capacity     int64 // 0 means uncapped (e.g. the per-session catalog cache)
}

func (c *Context) graphRef() session.GraphRef {
	return session.GraphRef{Schema: c.Graph.Schema, Graph: c.Graph.Graph}
}

// stage queues a mutation closure on the active transaction, scoped to
// this context's graph.
func (c *Context) stage(m session.Mutation) {
	c.Txn.Stage(c.graphRef(), m)
}

// Row is one execution result: named variable bindings ("Rows
// carry named bindings"), plus a hidden set of edge identities already
// bound within the current pattern chain, used to enforce path
// uniqueness ("an edge variable must not bind the same edge
// twice within one row"). Row is copy-on-write: With/clone never
// mutate the receiver, so fan-out (one input row producing many output
// rows, as in Expand or Join) never aliases state between siblings.
type Row struct {
	Vals  map[string]value.Value
	edges map[value.ID]struct{}
}

// NewRow returns an empty row, the sole input row for a standalone
// INSERT or CALL with no preceding clause.
func NewRow() Row {
	return Row{Vals: map[string]value.Value{}}
}

func (r Row) Get(name string) (value.Value, bool) {
	v, ok := r.Vals[name]
	return v, ok
}

func (r Row) clone() Row {
	vals := make(map[string]value.Value, len(r.Vals)+2)
	for k, v := range r.Vals {
		vals[k] = v
	}
	var edges map[value.ID]struct{}
	if r.edges != nil {
		edges = make(map[value.ID]struct{}, len(r.edges))
		for id := range r.edges {
			edges[id] = struct{}{}
		}
	}
	return Row{Vals: vals, edges: edges}
}

// With returns a copy of r with name bound to v.
func (r Row) With(name string, v value.Value) Row {
	out := r.clone()
	out.Vals[name] = v
	return out
}

func (r Row) hasEdge(id value.ID) bool {
	_, ok := r.edges[id]
	return ok
}

func (r Row) withEdgeID(id value.ID) Row {
	out := r.clone()
	if out.edges == nil {
		out.edges = map[value.ID]struct{}{}
	}
	out.edges[id] = struct{}{}
	return out
}
