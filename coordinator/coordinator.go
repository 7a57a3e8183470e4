// Package coordinator is GraphLite's single public entry point:
// open/install a database directory, manage sessions, and execute GQL
// statements against them. Every other package under internal/ is
// wired together here behind one constructor, the same way a process
// manager assembles its storage, security and networking subsystems
// before handing back a single handle.
package coordinator

import (
	"os"

	"graphlite/internal/cache"
	"graphlite/internal/catalog"
	"graphlite/internal/gqlerr"
	"graphlite/internal/gqllog"
	"graphlite/internal/kv"
	"graphlite/internal/metrics"
	"graphlite/internal/session"
	"graphlite/internal/storage"

	"github.com/rs/zerolog"
)

// Coordinator owns one open database directory: the KV engine, the
// catalog and storage managers, the session pool, and the plan/result
// caches.
type Coordinator struct {
	cfg Config
	log zerolog.Logger

	engine     *kv.Engine
	storageMgr *storage.Manager
	catalogMgr *catalog.Manager
	sessionMgr *session.Manager
	caches     *cache.Caches
}

// Open opens (creating the directory and its files if absent) a
// GraphLite database and wires every subsystem together ("open").
// Call Install first against a brand-new directory to bootstrap the
// catalog; Open alone is enough for a directory that already has one.
func Open(path string, cfg Config) (*Coordinator, error) {
	cfg = cfg.withDefaults()
	gqllog.Init(cfg.Log)
	log := gqllog.WithComponent("coordinator")

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, gqlerr.Wrap(gqlerr.StorageUnavailable, err, "create database directory %s", path)
	}

	engine, err := kv.Open(path)
	if err != nil {
		return nil, err
	}

	if err := storage.EnsureBuckets(engine); err != nil {
		return nil, err
	}
	if err := catalog.EnsureBuckets(engine); err != nil {
		return nil, err
	}

	catalogMgr := catalog.New()
	sessionMgr := session.New(session.Config{Mode: cfg.Mode, IdleTimeout: cfg.SessionIdleTimeout}, engine, catalogMgr)
	caches := cache.NewCaches(cfg.PlanCacheCapacity, cfg.ResultCacheCapacity)

	c := &Coordinator{
		cfg:        cfg,
		log:        log,
		engine:     engine,
		storageMgr: storage.New(),
		catalogMgr: catalogMgr,
		sessionMgr: sessionMgr,
		caches:     caches,
	}
	log.Info().Str("path", path).Msg("database opened")
	return c, nil
}

// Install bootstraps a brand-new database directory: creates the
// catalog buckets, a default schema, an admin role with every
// permission, and the admin user, then writes the yaml config
// snapshot install.go describes ("install").
func Install(path string, adminUser string, credential []byte, cfg Config) error {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(path, 0755); err != nil {
		return gqlerr.Wrap(gqlerr.StorageUnavailable, err, "create database directory %s", path)
	}

	engine, err := kv.Open(path)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := storage.EnsureBuckets(engine); err != nil {
		return err
	}
	if err := catalog.EnsureBuckets(engine); err != nil {
		return err
	}

	catalogMgr := catalog.New()
	const adminRole = "admin"
	const defaultSchema = "/default"

	err = engine.Update(func(tx *kv.Tx) error {
		if err := catalogMgr.CreateRole(tx, adminRole, []catalog.Permission{
			{OpClass: catalog.OpAdmin, Resource: "*"},
		}); err != nil {
			return err
		}
		if err := catalogMgr.CreateUser(tx, adminUser, credential, []string{adminRole}); err != nil {
			return err
		}
		return catalogMgr.CreateSchema(tx, defaultSchema)
	})
	if err != nil {
		return err
	}

	return writeBootstrapConfig(path, cfg)
}

// Close releases the coordinator's KV engine file handle and stops the
// session pool's idle sweeper, if running.
func (c *Coordinator) Close() error {
	c.sessionMgr.Stop()
	return c.engine.Close()
}

// CacheStats returns a snapshot of the plan, result, and per-session
// catalog caches, the same rows `CALL gql.cache_stats()` yields.
func (c *Coordinator) CacheStats() []CacheStat {
	stats := c.caches.Stats(c.sessionMgr)
	metrics.RecordCacheStats(stats)
	out := make([]CacheStat, len(stats))
	for i, s := range stats {
		out[i] = CacheStat{Name: s.Name, Hits: s.Hits, Misses: s.Misses, Size: s.Size, Capacity: s.Capacity}
	}
	return out
}

// CacheStat is one row of CacheStats' snapshot.
type CacheStat struct {
	Name         string
	Hits, Misses int64
	Size         int64
	Capacity     int64
}
