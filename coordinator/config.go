package coordinator

import (
	"time"

	"graphlite/internal/gqllog"
	"graphlite/internal/session"
)

// Config configures a Coordinator: a plain struct passed to Open, no
// config-file parsing framework for the handle itself. install()
// separately persists a yaml bootstrap file derived from this Config;
// see install.go.
type Config struct {
	// Mode selects whether the session pool is private to this handle
	// (Instance) or shared process-wide (Global).
	Mode session.Mode

	Log gqllog.Config

	// PlanCacheCapacity and ResultCacheCapacity bound the respective
	// LRU caches; 0 falls back to a built-in default.
	PlanCacheCapacity   int
	ResultCacheCapacity int

	// StatementDeadline bounds a single execute() call ("deadline
	// propagation"); 0 disables the deadline.
	StatementDeadline time.Duration

	// SessionIdleTimeout closes sessions the idle sweeper hasn't seen
	// touched in this long; 0 disables the sweeper.
	SessionIdleTimeout time.Duration

	// Verbose attaches Diagnostics (the physical plan's signature and
	// its operator count) to the Summary of each data statement the
	// executor runs; DDL, transaction control and result-cache hits
	// carry none, and no per-operator row counts are recorded.
	Verbose bool
}

const (
	defaultPlanCacheCapacity   = 512
	defaultResultCacheCapacity = 512
)

func (c Config) withDefaults() Config {
	if c.PlanCacheCapacity <= 0 {
		c.PlanCacheCapacity = defaultPlanCacheCapacity
	}
	if c.ResultCacheCapacity <= 0 {
		c.ResultCacheCapacity = defaultResultCacheCapacity
	}
	return c
}
