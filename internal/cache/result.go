package cache

import (
	"graphlite/internal/exec"
	"graphlite/internal/value"
)

// resultEntry is a materialized result set plus the column order
// RETURN/WITH produced, so a cache hit can reconstruct a result stream
// exactly as first executed.
type resultEntry struct {
	columns []string
	rows    []exec.Row
}

// ResultCache maps (plan, parameters, graph data version) to a
// materialized row set, process-wide and sharded. Cached rows are
// shared, read-only snapshots — callers must not mutate a returned
// Row's bindings in place.
type ResultCache struct {
	lru *shardedLRU
}

func NewResultCache(capacity int) *ResultCache {
	return &ResultCache{lru: newShardedLRU(capacity)}
}

func (c *ResultCache) Get(planHash uint64, params map[string]value.Value, dataVersion uint64, columns []string) ([]exec.Row, bool) {
	key := resultHash(planHash, params, dataVersion)
	v, ok := c.lru.get(key)
	if !ok {
		return nil, false
	}
	e := v.(resultEntry)
	return e.rows, columnsMatch(e.columns, columns)
}

func (c *ResultCache) Put(planHash uint64, params map[string]value.Value, dataVersion uint64, columns []string, rows []exec.Row) {
	key := resultHash(planHash, params, dataVersion)
	c.lru.add(key, resultEntry{columns: columns, rows: rows})
}

func (c *ResultCache) Stats() statSnapshot { return c.lru.statSnapshot("result") }

// columnsMatch rejects a hash collision that would otherwise return a
// result set shaped for a different query.
func columnsMatch(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
