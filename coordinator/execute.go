package coordinator

import (
	"context"

	"graphlite/internal/ast"
	"graphlite/internal/cache"
	"graphlite/internal/catalog"
	"graphlite/internal/exec"
	"graphlite/internal/gqlerr"
	"graphlite/internal/kv"
	"graphlite/internal/metrics"
	"graphlite/internal/parser"
	"graphlite/internal/planner"
	"graphlite/internal/session"
	"graphlite/internal/storage"
	"graphlite/internal/value"
)

// Execute parses, plans, and runs one GQL statement against id's
// session ("execute"). Data statements (MATCH/RETURN, INSERT, ...)
// return a Result with rows; schema DDL and transaction control
// statements return an empty Result with just a Summary.
func (c *Coordinator) Execute(id value.ID, query string, params map[string]value.Value) (Result, error) {
	timer := metrics.NewTimer()

	sess, err := c.sessionMgr.GetSession(id)
	if err != nil {
		return Result{}, err
	}

	stmt, err := parser.Parse(query)
	if err != nil {
		return Result{}, err
	}
	if err := parser.Validate(stmt); err != nil {
		return Result{}, err
	}

	switch s := stmt.(type) {
	case *ast.BeginStmt:
		if err := c.Begin(id, isolationOf(s.Isolation)); err != nil {
			return Result{}, err
		}
		return Result{Summary: Summary{Duration: timer.Duration()}}, nil

	case *ast.CommitStmt:
		if err := c.Commit(id); err != nil {
			return Result{}, err
		}
		return Result{Summary: Summary{Duration: timer.Duration()}}, nil

	case *ast.RollbackStmt:
		if err := c.Rollback(id); err != nil {
			return Result{}, err
		}
		return Result{Summary: Summary{Duration: timer.Duration()}}, nil

	case *ast.SessionSetStmt:
		schema, graph := sess.CurrentSchema(), sess.CurrentGraph()
		if s.Schema != "" {
			schema = s.Schema
		}
		if s.Graph != "" {
			graph = s.Graph
		}
		sess.SetCurrent(schema, graph)
		return Result{Summary: Summary{Duration: timer.Duration()}}, nil

	case *ast.CreateSchemaStmt, *ast.DropSchemaStmt, *ast.CreateGraphStmt, *ast.DropGraphStmt:
		return c.executeDDL(sess, s, timer)

	case *ast.Query:
		return c.executeQuery(sess, s, params, timer)
	}
	return Result{}, gqlerr.Internalf("unrecognized statement type")
}

func isolationOf(s string) session.Isolation {
	switch s {
	case "READ UNCOMMITTED":
		return session.ReadUncommitted
	case "REPEATABLE READ":
		return session.RepeatableRead
	case "SERIALIZABLE":
		return session.Serializable
	default:
		return session.ReadCommitted
	}
}

// ddlResource names the permission resource a DDL statement acts on:
// the schema path for schema-level statements, schema+"/"+graph for
// graph-level ones.
func ddlResource(stmt ast.Statement, currentSchema string) string {
	switch s := stmt.(type) {
	case *ast.CreateSchemaStmt:
		return s.Path
	case *ast.DropSchemaStmt:
		return s.Path
	case *ast.CreateGraphStmt:
		sc := s.Schema
		if sc == "" {
			sc = currentSchema
		}
		return sc + "/" + s.Name
	case *ast.DropGraphStmt:
		sc := s.Schema
		if sc == "" {
			sc = currentSchema
		}
		return sc + "/" + s.Name
	}
	return currentSchema
}

func (c *Coordinator) requirePermission(tx *kv.Tx, sess *session.Session, op catalog.OpClass, resource string) error {
	ok, err := c.catalogMgr.CheckPermission(tx, sess.Princ, op, resource)
	if err != nil {
		return err
	}
	if !ok {
		return gqlerr.PermissionDeniedf("principal %s lacks %s permission on %s", sess.User, op, resource)
	}
	return nil
}

func (c *Coordinator) executeDDL(sess *session.Session, stmt ast.Statement, timer *metrics.Timer) (Result, error) {
	schema := sess.CurrentSchema()
	resource := ddlResource(stmt, schema)
	err := c.engine.Update(func(tx *kv.Tx) error {
		if err := c.requirePermission(tx, sess, catalog.OpDDL, resource); err != nil {
			return err
		}
		switch s := stmt.(type) {
		case *ast.CreateSchemaStmt:
			return c.catalogMgr.CreateSchema(tx, s.Path)
		case *ast.DropSchemaStmt:
			return c.catalogMgr.DropSchema(tx, s.Path)
		case *ast.CreateGraphStmt:
			sc := s.Schema
			if sc == "" {
				sc = schema
			}
			return c.catalogMgr.CreateGraph(tx, sc, s.Name)
		case *ast.DropGraphStmt:
			sc := s.Schema
			if sc == "" {
				sc = schema
			}
			if err := c.catalogMgr.DropGraph(tx, sc, s.Name); err != nil {
				return err
			}
			return c.storageMgr.DropGraph(tx, storage.GraphKey{Schema: sc, Graph: s.Name})
		}
		return gqlerr.Internalf("unrecognized DDL statement")
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Summary: Summary{RowsAffected: 1, Duration: timer.Duration()}}, nil
}

// executeQuery runs a data statement: build/optimize/plan (consulting
// the plan cache), check the result cache for read-only plans with a
// statically known column list, then execute. A write needs an active
// transaction; with none open, it runs as an implicit single-statement
// transaction that auto-commits on success or auto-rolls-back on
// failure ("implicit transactions").
func (c *Coordinator) executeQuery(sess *session.Session, q *ast.Query, params map[string]value.Value, timer *metrics.Timer) (Result, error) {
	schema, graphName := sess.CurrentSchema(), sess.CurrentGraph()
	graphKey := storage.GraphKey{Schema: schema, Graph: graphName}
	mutating := isMutating(q)
	kind := statementKind(q)

	op := catalog.OpDQL
	if mutating {
		op = catalog.OpDML
	}
	resource := schema + "/" + graphName

	var schemaVersion, graphVersion, dataVersion uint64
	if err := c.engine.View(func(tx *kv.Tx) error {
		if err := c.requirePermission(tx, sess, op, resource); err != nil {
			return err
		}
		sc, err := c.catalogMgr.GetSchema(tx, schema)
		if err != nil {
			return err
		}
		g, err := c.catalogMgr.GetGraph(tx, schema, graphName)
		if err != nil {
			return err
		}
		schemaVersion, graphVersion, dataVersion = sc.DDLVersion, g.DDLVersion, g.DataVersion
		return nil
	}); err != nil {
		return Result{}, err
	}

	planTimer := metrics.NewTimer()
	planHash := cache.Hash(q, schema, graphName)
	phys, cached := c.caches.Plan.Get(planHash, schemaVersion, graphVersion)
	if !cached {
		logical, err := planner.Build(q)
		if err != nil {
			return Result{}, err
		}
		logical = planner.Optimize(logical)
		phys = planner.PlanPhysical(logical, planner.DefaultStats{})
		c.caches.Plan.Put(planHash, schemaVersion, graphVersion, phys)
	}
	metrics.QueryPlanningDuration.Observe(planTimer.Duration().Seconds())

	// Only a plan with a statically known projection shape (a RETURN/WITH
	// projection or aggregate, see exec.Columns) is cacheable: the result cache keys on
	// columns, and a bare CALL's column set is only known after running
	// it once.
	columns := exec.Columns(phys, nil)
	if !mutating && len(columns) > 0 {
		if rows, ok := c.caches.Result.Get(planHash, params, dataVersion, columns); ok {
			metrics.QueriesTotal.WithLabelValues(kind, "ok").Inc()
			metrics.QueryDuration.WithLabelValues(kind).Observe(timer.Duration().Seconds())
			return Result{
				Columns: columns,
				Rows:    toRows(rows),
				Summary: Summary{RowsAffected: len(rows), Duration: timer.Duration(), CacheHit: true},
			}, nil
		}
	}

	deadlineCtx, cancel := c.withDeadline()
	defer cancel()

	var txn *session.Transaction
	implicit := false
	if t := sess.Txn(); t != nil {
		txn = t
	} else if mutating {
		implicit = true
		t, err := c.sessionMgr.Begin(sess.ID, session.ReadCommitted)
		if err != nil {
			return Result{}, err
		}
		txn = t
	}

	var execRows []exec.Row
	err := c.engine.View(func(tx *kv.Tx) error {
		ectx := &exec.Context{
			Tx:         tx,
			Graph:      graphKey,
			Storage:    c.storageMgr,
			Catalog:    c.catalogMgr,
			SessionMgr: c.sessionMgr,
			Sess:       sess,
			Txn:        txn,
			Params:     params,
			CacheStats: func() []exec.CacheStat { return c.caches.Stats(c.sessionMgr) },
		}
		rows, err := exec.Execute(deadlineCtx, phys, ectx)
		if err != nil {
			return err
		}
		execRows = rows
		return nil
	})

	if err != nil {
		metrics.QueriesTotal.WithLabelValues(kind, "error").Inc()
		if implicit {
			_ = c.sessionMgr.Rollback(sess.ID)
		}
		return Result{}, err
	}

	if implicit {
		if err := c.sessionMgr.Commit(sess.ID); err != nil {
			metrics.QueriesTotal.WithLabelValues(kind, "error").Inc()
			return Result{}, err
		}
	}

	metrics.QueriesTotal.WithLabelValues(kind, "ok").Inc()
	metrics.QueryDuration.WithLabelValues(kind).Observe(timer.Duration().Seconds())
	metrics.RowsReturned.Observe(float64(len(execRows)))

	columns = exec.Columns(phys, execRows)
	if !mutating && len(columns) > 0 {
		c.caches.Result.Put(planHash, params, dataVersion, columns, execRows)
	}

	summary := Summary{RowsAffected: len(execRows), Duration: timer.Duration()}
	if c.cfg.Verbose {
		summary.Diagnostics = &Diagnostics{Plan: planner.Signature(phys), NodeCount: countPhysNodes(phys)}
	}

	return Result{Columns: columns, Rows: toRows(execRows), Summary: summary}, nil
}

func (c *Coordinator) withDeadline() (context.Context, context.CancelFunc) {
	if c.cfg.StatementDeadline <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.cfg.StatementDeadline)
}

func isMutating(q *ast.Query) bool {
	for _, cl := range q.Clauses {
		switch cl.(type) {
		case *ast.InsertClause, *ast.SetClause, *ast.RemoveClause, *ast.DeleteClause:
			return true
		}
	}
	if q.SetOp != nil {
		return isMutating(q.SetOp.Right)
	}
	return false
}

func statementKind(q *ast.Query) string {
	if isMutating(q) {
		return "mutation"
	}
	return "query"
}
