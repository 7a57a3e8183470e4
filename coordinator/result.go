package coordinator

import (
	"time"

	"graphlite/internal/exec"
	"graphlite/internal/value"
)

// Result is a result stream: an ordered column list, the rows
// that satisfy them, and a summary. GraphLite never streams rows
// lazily past the executor (Execute already materializes the full
// row set), so Rows is a slice rather than a cursor; callers that want
// an iterator can range over it themselves.
type Result struct {
	Columns []string
	Rows    []Row
	Summary Summary
}

// Row is one result row: a mapping of column name to value.
type Row map[string]value.Value

// Summary reports what a statement did, independent of its row
// payload ("rows affected, execution time, cache hit indicator").
type Summary struct {
	RowsAffected int
	Duration     time.Duration
	CacheHit     bool
	Diagnostics  *Diagnostics // nil unless Config.Verbose
}

// Diagnostics carries the physical plan's signature and its operator
// count, attached to the summary only in verbose mode. It records no
// per-operator row counts.
type Diagnostics struct {
	Plan      string
	NodeCount int
}

func toRows(execRows []exec.Row) []Row {
	rows := make([]Row, len(execRows))
	for i, r := range execRows {
		row := make(Row, len(r.Vals))
		for k, v := range r.Vals {
			row[k] = v
		}
		rows[i] = row
	}
	return rows
}
