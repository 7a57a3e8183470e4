package metrics

import (
	"sync"

	"graphlite/internal/exec"
)

// internal/cache tracks cumulative hit/miss totals per cache, but a
// Prometheus Counter only exposes Add, not Set; lastSeen tracks what
// was last reported so each call adds just the delta.
var (
	lastSeenMu     sync.Mutex
	lastSeenHits   = map[string]int64{}
	lastSeenMisses = map[string]int64{}
)

// RecordCacheStats mirrors a cache_stats() snapshot into the
// Prometheus gauges/counters above, so /metrics and
// `CALL gql.cache_stats()` (internal/exec/procedures.go) always agree.
func RecordCacheStats(stats []exec.CacheStat) {
	lastSeenMu.Lock()
	defer lastSeenMu.Unlock()
	for _, s := range stats {
		CacheSize.WithLabelValues(s.Name).Set(float64(s.Size))
		if d := s.Hits - lastSeenHits[s.Name]; d > 0 {
			CacheHitsTotal.WithLabelValues(s.Name).Add(float64(d))
		}
		if d := s.Misses - lastSeenMisses[s.Name]; d > 0 {
			CacheMissesTotal.WithLabelValues(s.Name).Add(float64(d))
		}
		lastSeenHits[s.Name] = s.Hits
		lastSeenMisses[s.Name] = s.Misses
	}
}
