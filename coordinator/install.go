package coordinator

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"graphlite/internal/gqlerr"
)

// bootstrapConfig is the on-disk shape install() writes alongside the
// catalog: just enough to reopen the database the way it was
// installed, without parsing a general-purpose config framework.
type bootstrapConfig struct {
	Mode                int           `yaml:"mode"`
	PlanCacheCapacity   int           `yaml:"plan_cache_capacity"`
	ResultCacheCapacity int           `yaml:"result_cache_capacity"`
	StatementDeadline   time.Duration `yaml:"statement_deadline"`
	SessionIdleTimeout  time.Duration `yaml:"session_idle_timeout"`
	Verbose             bool          `yaml:"verbose"`
}

const bootstrapConfigFile = "graphlite.yaml"

func writeBootstrapConfig(path string, cfg Config) error {
	bc := bootstrapConfig{
		Mode:                int(cfg.Mode),
		PlanCacheCapacity:   cfg.PlanCacheCapacity,
		ResultCacheCapacity: cfg.ResultCacheCapacity,
		StatementDeadline:   cfg.StatementDeadline,
		SessionIdleTimeout:  cfg.SessionIdleTimeout,
		Verbose:             cfg.Verbose,
	}
	data, err := yaml.Marshal(&bc)
	if err != nil {
		return gqlerr.Wrap(gqlerr.Internal, err, "marshal bootstrap config")
	}
	full := filepath.Join(path, bootstrapConfigFile)
	if err := os.WriteFile(full, data, 0644); err != nil {
		return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "write bootstrap config %s", full)
	}
	return nil
}
