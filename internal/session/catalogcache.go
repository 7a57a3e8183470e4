package session

import "graphlite/internal/catalog"

// catalogCache is a session's private view of the catalog's schema and
// graph lists: "caches schema list and per-schema graph list
// with a captured version number. On each access the cache compares
// its captured version to the live catalog version; on mismatch it
// refreshes." There is no cross-session invalidation message; every
// session self-heals independently on its own next access.
type catalogCache struct {
	loaded        bool
	schemaVersion map[string]uint64 // schema path -> DDLVersion captured
	schemas       []*catalog.Schema
	graphs        map[string][]*catalog.Graph // schema path -> graphs, captured alongside schemaVersion
}

func (c *catalogCache) ensure() {
	if c.schemaVersion == nil {
		c.schemaVersion = make(map[string]uint64)
	}
	if c.graphs == nil {
		c.graphs = make(map[string][]*catalog.Graph)
	}
}

// schemasStale reports whether the cached schema list no longer
// matches live, by comparing the set of paths and each one's captured
// DDLVersion.
func (c *catalogCache) schemasStale(live []*catalog.Schema) bool {
	if !c.loaded || len(live) != len(c.schemas) {
		return true
	}
	for _, s := range live {
		if v, ok := c.schemaVersion[s.Path]; !ok || v != s.DDLVersion {
			return true
		}
	}
	return false
}

func (c *catalogCache) storeSchemas(live []*catalog.Schema) {
	c.ensure()
	c.loaded = true
	c.schemas = live
	c.schemaVersion = make(map[string]uint64, len(live))
	for _, s := range live {
		c.schemaVersion[s.Path] = s.DDLVersion
	}
}

func (c *catalogCache) graphsStale(schema string, live []*catalog.Graph) bool {
	c.ensure()
	cached, ok := c.graphs[schema]
	if !ok || len(cached) != len(live) {
		return true
	}
	liveByName := make(map[string]uint64, len(live))
	for _, g := range live {
		liveByName[g.Name] = g.DDLVersion
	}
	for _, g := range cached {
		if v, ok := liveByName[g.Name]; !ok || v != g.DDLVersion {
			return true
		}
	}
	return false
}

func (c *catalogCache) storeGraphs(schema string, live []*catalog.Graph) {
	c.ensure()
	c.graphs[schema] = live
}
