package cache

import (
	"graphlite/internal/exec"
	"graphlite/internal/session"
)

// Caches bundles the process-wide plan and result caches behind the
// single handle a coordinator wires into exec.Context.CacheStats, the
// backing data for the gql.cache_stats() procedure.
type Caches struct {
	Plan   *PlanCache
	Result *ResultCache
}

func NewCaches(planCapacity, resultCapacity int) *Caches {
	return &Caches{
		Plan:   NewPlanCache(planCapacity),
		Result: NewResultCache(resultCapacity),
	}
}

// Stats returns one row per cache — plan, result, and the session
// manager's per-session catalog cache — matching gql.cache_stats()'s
// documented shape (cache, hits, misses, size, capacity). The catalog
// cache has no fixed capacity (one entry per live session), so its
// row reports capacity 0.
func (c *Caches) Stats(sessMgr *session.Manager) []exec.CacheStat {
	out := make([]exec.CacheStat, 0, 3)
	if c.Plan != nil {
		s := c.Plan.Stats()
		out = append(out, exec.CacheStat{Name: s.Name, Hits: s.Hits, Misses: s.Misses, Size: s.Size, Capacity: s.Capacity})
	}
	if c.Result != nil {
		s := c.Result.Stats()
		out = append(out, exec.CacheStat{Name: s.Name, Hits: s.Hits, Misses: s.Misses, Size: s.Size, Capacity: s.Capacity})
	}
	if sessMgr != nil {
		hits, misses, size := sessMgr.CatalogCacheStats()
		out = append(out, exec.CacheStat{Name: "catalog", Hits: hits, Misses: misses, Size: size})
	}
	return out
}
