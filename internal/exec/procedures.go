package exec

import (
	"context"
	"fmt"
	"strings"

	"graphlite/internal/ast"
	"graphlite/internal/gqlerr"
	"graphlite/internal/planner"
	"graphlite/internal/value"
)

// callIter runs a system procedure once per input row (or once against
// an empty row for a standalone CALL), merging each produced row into
// the input row's bindings. gql.list_schemas/list_graphs read
// through the session's catalog cache (internal/session.Manager);
// gql.list_users/list_roles have no session-level cache and read
// internal/catalog.Manager directly; gql.cache_stats is supplied by the
// coordinator through Context.CacheStats so exec never imports
// internal/cache.
type callIter struct {
	ectx *Context
	op   *planner.PhysicalCall

	input Iterator
	rows  []Row
	idx   int
}

func (it *callIter) Open(ctx context.Context) error {
	var base []Row
	if it.input != nil {
		if err := it.input.Open(ctx); err != nil {
			return err
		}
		for {
			row, ok, err := it.input.Next(ctx)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			base = append(base, row)
		}
		if err := it.input.Close(); err != nil {
			return err
		}
	} else {
		base = []Row{NewRow()}
	}

	var out []Row
	for _, b := range base {
		produced, err := callProcedure(it.ectx, it.op.Procedure, it.op.Args, b)
		if err != nil {
			return err
		}
		for _, p := range produced {
			merged := b.clone()
			for k, v := range p.Vals {
				merged.Vals[k] = v
			}
			out = append(out, merged)
		}
	}
	it.rows = out
	return nil
}

func (it *callIter) Next(ctx context.Context) (Row, bool, error) {
	if err := checkDeadline(ctx); err != nil {
		return Row{}, false, err
	}
	if it.idx >= len(it.rows) {
		return Row{}, false, nil
	}
	r := it.rows[it.idx]
	it.idx++
	return r, true, nil
}

func (it *callIter) Close() error { return nil }

// callProcedure dispatches one system procedure invocation and returns
// the rows it yields, unmerged with base (the caller merges). Args are
// evaluated against base so a procedure argument may reference an
// earlier clause's bindings.
func callProcedure(ectx *Context, procedure string, args []ast.Expr, base Row) ([]Row, error) {
	name := strings.ToLower(procedure)
	switch name {
	case "gql.list_schemas":
		schemas, err := ectx.SessionMgr.ListSchemas(ectx.Tx, ectx.Sess)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(schemas))
		for _, s := range schemas {
			rows = append(rows, NewRow().
				With("path", value.Str(s.Path)).
				With("ddl_version", value.Int(int64(s.DDLVersion))))
		}
		return rows, nil

	case "gql.list_graphs":
		schema := ectx.Graph.Schema
		if len(args) > 0 {
			v, err := Eval(base, ectx.Params, args[0])
			if err != nil {
				return nil, err
			}
			schema = v.Str
		}
		graphs, err := ectx.SessionMgr.ListGraphs(ectx.Tx, ectx.Sess, schema)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(graphs))
		for _, g := range graphs {
			rows = append(rows, NewRow().
				With("name", value.Str(g.Name)).
				With("ddl_version", value.Int(int64(g.DDLVersion))).
				With("data_version", value.Int(int64(g.DataVersion))))
		}
		return rows, nil

	case "gql.list_users":
		users, err := ectx.Catalog.ListUsers(ectx.Tx)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(users))
		for _, u := range users {
			rows = append(rows, NewRow().
				With("name", value.Str(u.Name)).
				With("roles", value.List(strValues(u.Roles))))
		}
		return rows, nil

	case "gql.list_roles":
		roles, err := ectx.Catalog.ListRoles(ectx.Tx)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(roles))
		for _, r := range roles {
			rows = append(rows, NewRow().
				With("name", value.Str(r.Name)).
				With("permission_count", value.Int(int64(len(r.Permissions)))))
		}
		return rows, nil

	case "gql.cache_stats":
		if ectx.CacheStats == nil {
			return nil, nil
		}
		stats := ectx.CacheStats()
		rows := make([]Row, 0, len(stats))
		for _, s := range stats {
			rows = append(rows, NewRow().
				With("cache", value.Str(s.Name)).
				With("hits", value.Int(s.Hits)).
				With("misses", value.Int(s.Misses)).
				With("size", value.Int(s.Size)).
				With("capacity", value.Int(s.Capacity)))
		}
		return rows, nil

	default:
		return nil, gqlerr.New(gqlerr.UnknownProcedure, fmt.Sprintf("unknown procedure %q", procedure))
	}
}

func strValues(ss []string) []value.Value {
	out := make([]value.Value, len(ss))
	for i, s := range ss {
		out[i] = value.Str(s)
	}
	return out
}
