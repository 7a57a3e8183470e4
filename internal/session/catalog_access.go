package session

import (
	"sync/atomic"

	"graphlite/internal/catalog"
	"graphlite/internal/kv"
)

// ListSchemas returns s's view of the schema list, refreshing from the
// catalog only if the cached version is stale.
func (m *Manager) ListSchemas(tx *kv.Tx, s *Session) ([]*catalog.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, err := m.catalogMgr.ListSchemas(tx)
	if err != nil {
		return nil, err
	}
	if s.cache.schemasStale(live) {
		s.cache.storeSchemas(live)
		atomic.AddUint64(&m.catalogCacheMisses, 1)
	} else {
		atomic.AddUint64(&m.catalogCacheHits, 1)
	}
	return s.cache.schemas, nil
}

// ListGraphs returns s's view of schema's graph list, refreshing from
// the catalog only if stale.
func (m *Manager) ListGraphs(tx *kv.Tx, s *Session, schema string) ([]*catalog.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, err := m.catalogMgr.ListGraphs(tx, schema)
	if err != nil {
		return nil, err
	}
	if s.cache.graphsStale(schema, live) {
		s.cache.storeGraphs(schema, live)
		atomic.AddUint64(&m.catalogCacheMisses, 1)
	} else {
		atomic.AddUint64(&m.catalogCacheHits, 1)
	}
	return s.cache.graphs[schema], nil
}
