package coordinator

import (
	"net/http"

	"graphlite/internal/metrics"
)

// MetricsHandler returns the Prometheus exposition handler for the
// process-wide collectors internal/metrics registers. GraphLite ships
// no daemon of its own, so an embedding application mounts this on
// whatever HTTP server it already runs.
func MetricsHandler() http.Handler {
	return metrics.Handler()
}
