package session

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"graphlite/internal/catalog"
	"graphlite/internal/gqlerr"
	"graphlite/internal/gqllog"
	"graphlite/internal/kv"
	"graphlite/internal/value"

	"github.com/rs/zerolog"
)

const numPartitions = 16

// partition is one independently-locked shard of the session pool
// ("N independent partitions, each guarded by its own read/write
// lock").
type partition struct {
	mu       sync.RWMutex
	sessions map[value.ID]*Session
}

func newPartitions() []*partition {
	ps := make([]*partition, numPartitions)
	for i := range ps {
		ps[i] = &partition{sessions: make(map[value.ID]*Session)}
	}
	return ps
}

// globalPartitions backs every Manager opened in Global mode within
// this process ("a process-wide pool shared by all handles opened
// in that process").
var (
	globalOnce       sync.Once
	globalPartitions []*partition
)

func sharedGlobalPartitions() []*partition {
	globalOnce.Do(func() { globalPartitions = newPartitions() })
	return globalPartitions
}

// Config configures a session Manager.
type Config struct {
	Mode        Mode
	IdleTimeout time.Duration // 0 disables the idle sweeper
}

// Manager owns the session pool and transaction lifecycle for one
// coordinator handle.
type Manager struct {
	cfg        Config
	partitions []*partition
	engine     *kv.Engine
	catalogMgr *catalog.Manager
	log        zerolog.Logger

	commitSeq uint64 // atomically incremented once per successful commit

	catalogCacheHits   uint64 // ListSchemas/ListGraphs calls served from a session's cache without refreshing
	catalogCacheMisses uint64 // calls that had to refresh from internal/catalog

	entMu    sync.Mutex
	entitySeq map[value.ID]uint64 // last commit sequence that wrote this entity

	commitMu sync.Mutex // serializes commit() so entitySeq assignment gets a linear commit order

	stopCh chan struct{}
}

// New constructs a Manager bound to engine/catalogMgr. In Global mode
// its session pool is the process-wide shared one; in Instance mode it
// gets a fresh, private pool.
func New(cfg Config, engine *kv.Engine, catalogMgr *catalog.Manager) *Manager {
	var parts []*partition
	if cfg.Mode == Global {
		parts = sharedGlobalPartitions()
	} else {
		parts = newPartitions()
	}
	m := &Manager{
		cfg:        cfg,
		partitions: parts,
		engine:     engine,
		catalogMgr: catalogMgr,
		log:        gqllog.WithComponent("session"),
		entitySeq:  make(map[value.ID]uint64),
		stopCh:     make(chan struct{}),
	}
	if cfg.IdleTimeout > 0 {
		go m.sweepLoop()
	}
	return m
}

// CatalogCacheStats reports aggregate hit/miss counts across every
// session's private catalog cache, plus the number of sessions
// currently holding a loaded cache, for gql.cache_stats().
func (m *Manager) CatalogCacheStats() (hits, misses, size int64) {
	hits = int64(atomic.LoadUint64(&m.catalogCacheHits))
	misses = int64(atomic.LoadUint64(&m.catalogCacheMisses))
	for _, p := range m.partitions {
		p.mu.RLock()
		for _, s := range p.sessions {
			s.mu.Lock()
			if s.cache.loaded {
				size++
			}
			s.mu.Unlock()
		}
		p.mu.RUnlock()
	}
	return hits, misses, size
}

// Stop terminates the idle sweeper, if running.
func (m *Manager) Stop() {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.cfg.IdleTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	for _, p := range m.partitions {
		p.mu.Lock()
		for id, s := range p.sessions {
			if s.idleSince() >= m.cfg.IdleTimeout {
				s.mu.Lock()
				m.rollbackLocked(s)
				s.mu.Unlock()
				delete(p.sessions, id)
				m.log.Debug().Str("session_id", id.String()).Msg("closed idle session")
			}
		}
		p.mu.Unlock()
	}
}

func partitionIndex(id value.ID) int {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return int(h.Sum32() % numPartitions)
}

func (m *Manager) partitionFor(id value.ID) *partition {
	return m.partitions[partitionIndex(id)]
}

// CreateSession authenticates user/credential and adds a new Active
// session to the pool ("New → Active on successful
// authentication").
func (m *Manager) CreateSession(user string, credential []byte) (*Session, error) {
	var princ *catalog.Principal
	err := m.engine.View(func(tx *kv.Tx) error {
		p, err := m.catalogMgr.Authenticate(tx, user, credential)
		if err != nil {
			return err
		}
		princ = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:      value.NewID(),
		User:    user,
		Princ:   princ,
		Created: time.Now(),
		lastUse: time.Now(),
	}
	p := m.partitionFor(s.ID)
	p.mu.Lock()
	p.sessions[s.ID] = s
	p.mu.Unlock()
	m.log.Info().Str("session_id", s.ID.String()).Str("user", user).Msg("session created")
	return s, nil
}

// GetSession looks up a session by id.
func (m *Manager) GetSession(id value.ID) (*Session, error) {
	p := m.partitionFor(id)
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[id]
	if !ok {
		return nil, gqlerr.NotFoundf("session %s does not exist", id)
	}
	return s, nil
}

// CloseSession rolls back any open transaction and removes the
// session from the pool ("Active → Closed").
func (m *Manager) CloseSession(id value.ID) error {
	p := m.partitionFor(id)
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	if !ok {
		return gqlerr.NotFoundf("session %s does not exist", id)
	}
	m.rollbackLocked(s)
	delete(p.sessions, id)
	return nil
}

// Begin starts a new transaction on the session. A session holds at
// most one active transaction at a time.
func (m *Manager) Begin(sessionID value.ID, isolation Isolation) (*Transaction, error) {
	s, err := m.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn != nil && s.txn.State() == Active {
		return nil, gqlerr.Conflictf("session %s already has an active transaction", sessionID)
	}
	beginSeq := atomic.LoadUint64(&m.commitSeq)
	t := newTransaction(sessionID, isolation, beginSeq)
	s.txn = t
	s.lastUse = time.Now()
	return t, nil
}

// Commit applies a session's staged mutations atomically, bumps the
// DataVersion of every graph written, validates the SERIALIZABLE
// write-set rule, invalidates caches implicitly (version bumps are
// what caches check against), and releases the session's transaction
// slot ("commit").
func (m *Manager) Commit(sessionID value.ID) error {
	s, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	t := s.txn
	s.mu.Unlock()
	if t == nil || t.State() != Active {
		return gqlerr.Conflictf("session %s has no active transaction", sessionID)
	}

	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	t.mu.Lock()
	t.state = Committing
	mutations := t.mutations
	graphs := t.graphs
	writeSet := t.writeSet
	isolation := t.Isolation
	beginSeq := t.beginSeq
	t.mu.Unlock()

	if isolation == Serializable {
		if conflict := m.checkWriteSetConflict(writeSet, beginSeq); conflict {
			t.mu.Lock()
			t.state = Aborted
			t.mu.Unlock()
			s.mu.Lock()
			s.txn = nil
			s.mu.Unlock()
			return gqlerr.Conflictf("transaction %s conflicts with a transaction committed after it began", t.ID)
		}
	}

	err = m.engine.Update(func(tx *kv.Tx) error {
		for _, mut := range mutations {
			if err := mut(tx); err != nil {
				return err
			}
		}
		for g := range graphs {
			if err := m.catalogMgr.BumpDataVersion(tx, g.Schema, g.Graph); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.mu.Lock()
		t.state = Aborted
		t.mu.Unlock()
		s.mu.Lock()
		s.txn = nil
		s.mu.Unlock()
		return err
	}

	seq := atomic.AddUint64(&m.commitSeq, 1)
	if len(writeSet) > 0 {
		m.entMu.Lock()
		for id := range writeSet {
			m.entitySeq[id] = seq
		}
		m.entMu.Unlock()
	}

	t.mu.Lock()
	t.state = Committed
	t.mu.Unlock()
	s.mu.Lock()
	s.txn = nil
	s.lastUse = time.Now()
	s.mu.Unlock()
	return nil
}

// checkWriteSetConflict implements the SERIALIZABLE validation rule:
// conflict if any entity in writeSet was written by a transaction
// that committed after beginSeq.
func (m *Manager) checkWriteSetConflict(writeSet map[value.ID]struct{}, beginSeq uint64) bool {
	if len(writeSet) == 0 {
		return false
	}
	m.entMu.Lock()
	defer m.entMu.Unlock()
	for id := range writeSet {
		if seq, ok := m.entitySeq[id]; ok && seq > beginSeq {
			return true
		}
	}
	return false
}

// Rollback discards a session's staged mutations; it always succeeds.
func (m *Manager) Rollback(sessionID value.ID) error {
	s, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.rollbackLocked(s)
	return nil
}

// rollbackLocked aborts s's active transaction, if any. Caller must
// hold s.mu.
func (m *Manager) rollbackLocked(s *Session) {
	if s.txn == nil {
		return
	}
	s.txn.mu.Lock()
	if s.txn.state == Active {
		s.txn.state = Aborted
	}
	s.txn.mu.Unlock()
	s.txn = nil
}

// CatalogManager exposes the bound catalog manager, for the
// coordinator and exec layer's DDL/DQL statements.
func (m *Manager) CatalogManager() *catalog.Manager { return m.catalogMgr }

// Engine exposes the bound KV engine.
func (m *Manager) Engine() *kv.Engine { return m.engine }
