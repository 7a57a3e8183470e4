// Package session implements the partitioned session pool and
// transaction manager: session lifecycle, isolation levels, mutation
// staging, commit/rollback, and the per-session catalog cache.
package session

import (
	"sync"
	"time"

	"graphlite/internal/catalog"
	"graphlite/internal/kv"
	"graphlite/internal/value"
)

// Mode selects how the session pool is scoped at database open.
type Mode int

const (
	Instance Mode = iota
	Global
)

// Isolation is one of the four transaction isolation levels.
type Isolation int

const (
	ReadUncommitted Isolation = iota
	ReadCommitted             // default
	RepeatableRead
	Serializable
)

func (i Isolation) String() string {
	switch i {
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "UNKNOWN"
	}
}

// State is a transaction's position in the commit state machine
// Active → Committing → Committed | Aborted.
type State int

const (
	Active State = iota
	Committing
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Active:
		return "Active"
	case Committing:
		return "Committing"
	case Committed:
		return "Committed"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// GraphRef names a graph within a schema, mirroring storage.GraphKey
// without importing the storage package from here (session only needs
// the identity, not the bucket layout).
type GraphRef struct {
	Schema string
	Graph  string
}

// Mutation is one staged change, applied inside the KV batch at commit
// time. internal/exec constructs these as closures over
// internal/storage and internal/catalog calls; session never looks
// inside them.
type Mutation func(tx *kv.Tx) error

// Session is a per-user execution context: identity, bound user,
// optional current schema/graph, at most one active transaction, and
// a catalog cache.
type Session struct {
	ID      value.ID
	User    string
	Princ   *catalog.Principal
	Created time.Time

	mu            sync.Mutex
	currentSchema string
	currentGraph  string
	lastUse       time.Time
	txn           *Transaction
	cache         catalogCache
}

func (s *Session) CurrentSchema() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSchema
}

func (s *Session) CurrentGraph() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentGraph
}

// SetCurrent updates the session's current schema/graph and touches
// its last-use timestamp, keeping it from looking idle.
func (s *Session) SetCurrent(schema, graph string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentSchema = schema
	s.currentGraph = graph
	s.lastUse = time.Now()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUse = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastUse)
}

// Txn returns the session's active transaction, or nil.
func (s *Session) Txn() *Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txn
}

// Transaction buffers mutations until commit applies them atomically.
// A single mutation-buffer mutex is a per-transaction latch, not a
// global one, so unrelated transactions never block each other while
// staging writes.
type Transaction struct {
	ID        value.ID
	SessionID value.ID
	Isolation Isolation
	beginSeq  uint64

	mu        sync.Mutex
	state     State
	mutations []Mutation
	graphs    map[GraphRef]struct{}  // graphs with staged data writes, for DataVersion bump
	writeSet  map[value.ID]struct{}  // entity ids written, for SERIALIZABLE validation
}

func newTransaction(sessionID value.ID, isolation Isolation, beginSeq uint64) *Transaction {
	return &Transaction{
		ID:        value.NewID(),
		SessionID: sessionID,
		Isolation: isolation,
		beginSeq:  beginSeq,
		state:     Active,
		graphs:    make(map[GraphRef]struct{}),
		writeSet:  make(map[value.ID]struct{}),
	}
}

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stage appends a mutation to the transaction's buffer and records the
// graph it writes to, so commit can bump that graph's DataVersion.
func (t *Transaction) Stage(g GraphRef, m Mutation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mutations = append(t.mutations, m)
	t.graphs[g] = struct{}{}
}

// TrackWrite records an entity id as written by this transaction, for
// the SERIALIZABLE write-set conflict check at commit.
func (t *Transaction) TrackWrite(id value.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeSet[id] = struct{}{}
}
