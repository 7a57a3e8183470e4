package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"graphlite/internal/exec"
)

func TestRecordCacheStatsAddsDeltasNotAbsolutes(t *testing.T) {
	name := "metrics_test_plan_cache"

	RecordCacheStats([]exec.CacheStat{{Name: name, Hits: 3, Misses: 1, Size: 2}})
	if got := testutil.ToFloat64(CacheHitsTotal.WithLabelValues(name)); got != 3 {
		t.Errorf("CacheHitsTotal = %v, want 3", got)
	}
	if got := testutil.ToFloat64(CacheSize.WithLabelValues(name)); got != 2 {
		t.Errorf("CacheSize = %v, want 2", got)
	}

	RecordCacheStats([]exec.CacheStat{{Name: name, Hits: 5, Misses: 1, Size: 4}})
	if got := testutil.ToFloat64(CacheHitsTotal.WithLabelValues(name)); got != 5 {
		t.Errorf("CacheHitsTotal after second call = %v, want 5 (cumulative, not doubled)", got)
	}
	if got := testutil.ToFloat64(CacheMissesTotal.WithLabelValues(name)); got != 1 {
		t.Errorf("CacheMissesTotal = %v, want 1 (no new misses since last call)", got)
	}
	if got := testutil.ToFloat64(CacheSize.WithLabelValues(name)); got != 4 {
		t.Errorf("CacheSize = %v, want 4", got)
	}
}
