package cache

import (
	"graphlite/internal/ast"
	"graphlite/internal/planner"
)

// Hash returns the cache key for q scoped to schema/graph, for use
// with both PlanCache and as the basis of a ResultCache key. Exposed
// so a coordinator computes it once per statement and reuses it across
// both caches.
func Hash(q *ast.Query, schema, graph string) uint64 {
	return statementHash(q, schema, graph)
}

// planEntry pins the schema/graph DDL version a plan was built
// against, so a stale entry (schema or graph structurally changed
// since) is detected on lookup and invalidated rather than served
// silently.
type planEntry struct {
	phys          planner.PhysicalOp
	schemaVersion uint64
	graphVersion  uint64
}

// PlanCache maps a statement hash to its optimized physical plan,
// process-wide and sharded.
type PlanCache struct {
	lru *shardedLRU
}

func NewPlanCache(capacity int) *PlanCache {
	return &PlanCache{lru: newShardedLRU(capacity)}
}

// Get returns the cached plan for hash if present and still fresh
// against the supplied live DDL versions; a version mismatch evicts
// the entry and reports a miss, so one stale plan doesn't linger
// forever as a zombie hit.
func (c *PlanCache) Get(hash, schemaVersion, graphVersion uint64) (planner.PhysicalOp, bool) {
	v, ok := c.lru.get(hash)
	if !ok {
		return nil, false
	}
	e := v.(planEntry)
	if e.schemaVersion != schemaVersion || e.graphVersion != graphVersion {
		c.lru.remove(hash)
		return nil, false
	}
	return e.phys, true
}

func (c *PlanCache) Put(hash, schemaVersion, graphVersion uint64, phys planner.PhysicalOp) {
	c.lru.add(hash, planEntry{phys: phys, schemaVersion: schemaVersion, graphVersion: graphVersion})
}

func (c *PlanCache) Stats() statSnapshot { return c.lru.statSnapshot("plan") }
