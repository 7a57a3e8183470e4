package coordinator

import (
	"graphlite/internal/gqlerr"
	"graphlite/internal/metrics"
	"graphlite/internal/session"
	"graphlite/internal/value"
)

// CreateSession authenticates user against credential and returns a
// new session id ("create_session"). The session starts with no
// current schema/graph; SetCurrent (via a `SESSION SET` statement
// through Execute) selects one.
func (c *Coordinator) CreateSession(user string, credential []byte) (value.ID, error) {
	s, err := c.sessionMgr.CreateSession(user, credential)
	if err != nil {
		return value.ID{}, err
	}
	metrics.SessionsActive.Inc()
	return s.ID, nil
}

// CloseSession rolls back any open transaction and removes the
// session from the pool ("close_session").
func (c *Coordinator) CloseSession(id value.ID) error {
	if err := c.sessionMgr.CloseSession(id); err != nil {
		return err
	}
	metrics.SessionsActive.Dec()
	return nil
}

// Begin starts a transaction at the given isolation level on id's
// session ("begin"). A session holds at most one active
// transaction at a time.
func (c *Coordinator) Begin(id value.ID, isolation session.Isolation) error {
	_, err := c.sessionMgr.Begin(id, isolation)
	return err
}

// Commit applies id's staged mutations atomically and bumps the
// DataVersion of every graph they touched ("commit").
func (c *Coordinator) Commit(id value.ID) error {
	timer := metrics.NewTimer()
	err := c.sessionMgr.Commit(id)
	outcome := "committed"
	if err != nil {
		outcome = "aborted"
		if gqlerr.KindOf(err) == gqlerr.Conflict {
			outcome = "conflict"
		}
	}
	metrics.TransactionsTotal.WithLabelValues(outcome).Inc()
	if err == nil {
		timer.ObserveDuration(metrics.TransactionCommitDuration)
	}
	return err
}

// Rollback discards id's staged mutations ("rollback").
func (c *Coordinator) Rollback(id value.ID) error {
	err := c.sessionMgr.Rollback(id)
	metrics.TransactionsTotal.WithLabelValues("aborted").Inc()
	return err
}
