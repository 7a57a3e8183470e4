package cache

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"

	"graphlite/internal/ast"
	"graphlite/internal/value"
)

// statementHash returns a deterministic hash over a query's full
// structure, including literal values, scoped to the schema/graph it
// would run against. internal/ast carries no canonical serialization
// of its own, so this walks the tree directly rather than hashing a
// round-tripped source string ("plan cache keyed by canonical AST
// hash"). promotes github.com/cespare/xxhash/v2 from an indirect
// dependency (pulled in transitively by prometheus/common) to a direct
// one.
func statementHash(q *ast.Query, schema, graph string) uint64 {
	d := xxhash.New()
	writeStr(d, schema)
	writeStr(d, graph)
	hashQuery(d, q)
	return d.Sum64()
}

// resultHash folds a plan hash, the bound parameter values, and the
// graph's data version into the result cache's key. Folding
// dataVersion into the key itself, rather than tracking per-entry
// invalidation, means a stale entry is simply never looked up again
// after a write — it ages out of the LRU on its own, a version-counter
// approach that avoids cross-consumer invalidation messages entirely.
func resultHash(planHash uint64, params map[string]value.Value, dataVersion uint64) uint64 {
	d := xxhash.New()
	writeU64(d, planHash)
	writeU64(d, dataVersion)
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		writeStr(d, k)
		hashValue(d, params[k])
	}
	return d.Sum64()
}

func writeU64(d *xxhash.Digest, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, _ = d.Write(b[:])
}

func writeStr(d *xxhash.Digest, s string) {
	writeU64(d, uint64(len(s)))
	_, _ = d.Write([]byte(s))
}

func writeTag(d *xxhash.Digest, tag byte) {
	_, _ = d.Write([]byte{tag})
}

func writeBool(d *xxhash.Digest, b bool) {
	if b {
		writeTag(d, 1)
	} else {
		writeTag(d, 0)
	}
}

// Tags identify node kinds in the hash stream so structurally distinct
// trees never collide just because their serialized bytes line up.
const (
	tagQuery byte = iota
	tagSetOp
	tagMatch
	tagWith
	tagReturn
	tagUnwind
	tagInsert
	tagSet
	tagRemove
	tagDelete
	tagCall
	tagNil

	tagLiteral
	tagVar
	tagParam
	tagProp
	tagBinary
	tagUnary
	tagFuncCall
	tagCase
	tagList
	tagMap
)

func hashQuery(d *xxhash.Digest, q *ast.Query) {
	writeTag(d, tagQuery)
	writeU64(d, uint64(len(q.Clauses)))
	for _, c := range q.Clauses {
		hashClause(d, c)
	}
	if q.SetOp == nil {
		writeTag(d, tagNil)
		return
	}
	writeTag(d, tagSetOp)
	writeU64(d, uint64(q.SetOp.Kind))
	writeBool(d, q.SetOp.All)
	hashQuery(d, q.SetOp.Right)
}

func hashClause(d *xxhash.Digest, c ast.Clause) {
	switch n := c.(type) {
	case *ast.MatchClause:
		writeTag(d, tagMatch)
		writeBool(d, n.Optional)
		hashPattern(d, n.Pattern)
		hashExpr(d, n.Where)
	case *ast.WithClause:
		writeTag(d, tagWith)
		hashProjItems(d, n.Items)
		writeBool(d, n.Distinct)
		hashExpr(d, n.Where)
	case *ast.ReturnClause:
		writeTag(d, tagReturn)
		hashProjItems(d, n.Items)
		writeBool(d, n.Distinct)
		writeU64(d, uint64(len(n.OrderBy)))
		for _, k := range n.OrderBy {
			hashExpr(d, k.Expr)
			writeBool(d, k.Desc)
		}
		hashExpr(d, n.Skip)
		hashExpr(d, n.Limit)
	case *ast.UnwindClause:
		writeTag(d, tagUnwind)
		hashExpr(d, n.List)
		writeStr(d, n.As)
	case *ast.InsertClause:
		writeTag(d, tagInsert)
		hashPattern(d, n.Pattern)
	case *ast.SetClause:
		writeTag(d, tagSet)
		writeU64(d, uint64(len(n.Items)))
		for _, it := range n.Items {
			hashExpr(d, it.Target)
			hashExpr(d, it.Value)
		}
	case *ast.RemoveClause:
		writeTag(d, tagRemove)
		writeU64(d, uint64(len(n.Targets)))
		for _, t := range n.Targets {
			hashExpr(d, t)
		}
	case *ast.DeleteClause:
		writeTag(d, tagDelete)
		writeBool(d, n.Detach)
		writeU64(d, uint64(len(n.Targets)))
		for _, t := range n.Targets {
			hashExpr(d, t)
		}
	case *ast.CallClause:
		writeTag(d, tagCall)
		writeStr(d, n.Procedure)
		writeU64(d, uint64(len(n.Args)))
		for _, a := range n.Args {
			hashExpr(d, a)
		}
		writeU64(d, uint64(len(n.Yield)))
		for _, y := range n.Yield {
			writeStr(d, y)
		}
	default:
		writeTag(d, tagNil)
	}
}

func hashProjItems(d *xxhash.Digest, items []ast.ProjectionItem) {
	writeU64(d, uint64(len(items)))
	for _, it := range items {
		hashExpr(d, it.Expr)
		writeStr(d, it.Alias)
	}
}

func hashPattern(d *xxhash.Digest, p *ast.PathPattern) {
	if p == nil {
		writeTag(d, tagNil)
		return
	}
	writeStr(d, p.Variable)
	writeU64(d, uint64(len(p.Nodes)))
	for _, np := range p.Nodes {
		writeStr(d, np.Variable)
		hashStrSlice(d, np.Labels)
		hashExprMap(d, np.Properties)
	}
	writeU64(d, uint64(len(p.Edges)))
	for _, ep := range p.Edges {
		writeStr(d, ep.Variable)
		hashStrSlice(d, ep.Types)
		writeU64(d, uint64(ep.Direction))
		hashExprMap(d, ep.Properties)
	}
}

func hashStrSlice(d *xxhash.Digest, ss []string) {
	writeU64(d, uint64(len(ss)))
	for _, s := range ss {
		writeStr(d, s)
	}
}

func hashExprMap(d *xxhash.Digest, m map[string]ast.Expr) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeU64(d, uint64(len(keys)))
	for _, k := range keys {
		writeStr(d, k)
		hashExpr(d, m[k])
	}
}

func hashExpr(d *xxhash.Digest, e ast.Expr) {
	if e == nil {
		writeTag(d, tagNil)
		return
	}
	switch n := e.(type) {
	case *ast.Literal:
		writeTag(d, tagLiteral)
		hashValue(d, n.Value)
	case *ast.VarExpr:
		writeTag(d, tagVar)
		writeStr(d, n.Name)
	case *ast.ParamExpr:
		writeTag(d, tagParam)
		writeStr(d, n.Name)
	case *ast.PropertyAccessExpr:
		writeTag(d, tagProp)
		hashExpr(d, n.Target)
		writeStr(d, n.Property)
	case *ast.BinaryExpr:
		writeTag(d, tagBinary)
		writeU64(d, uint64(n.Op))
		hashExpr(d, n.Left)
		hashExpr(d, n.Right)
	case *ast.UnaryExpr:
		writeTag(d, tagUnary)
		writeU64(d, uint64(n.Op))
		hashExpr(d, n.Operand)
	case *ast.FuncCallExpr:
		writeTag(d, tagFuncCall)
		writeStr(d, n.Name)
		writeBool(d, n.Distinct)
		writeBool(d, n.Star)
		writeU64(d, uint64(len(n.Args)))
		for _, a := range n.Args {
			hashExpr(d, a)
		}
	case *ast.CaseExpr:
		writeTag(d, tagCase)
		hashExpr(d, n.Operand)
		writeU64(d, uint64(len(n.Whens)))
		for _, w := range n.Whens {
			hashExpr(d, w.Cond)
			hashExpr(d, w.Then)
		}
		hashExpr(d, n.Else)
	case *ast.ListExpr:
		writeTag(d, tagList)
		writeU64(d, uint64(len(n.Items)))
		for _, it := range n.Items {
			hashExpr(d, it)
		}
	case *ast.MapExpr:
		writeTag(d, tagMap)
		hashExprMap(d, n.Entries)
	default:
		writeTag(d, tagNil)
	}
}

func hashValue(d *xxhash.Digest, v value.Value) {
	writeU64(d, uint64(v.Kind))
	switch v.Kind {
	case value.KindBool:
		writeBool(d, v.Bool)
	case value.KindInt:
		writeU64(d, uint64(v.Int))
	case value.KindFloat:
		writeStr(d, v.String())
	case value.KindString:
		writeStr(d, v.Str)
	case value.KindDate, value.KindTime, value.KindDateTime:
		writeStr(d, v.Time.String())
	case value.KindList:
		writeU64(d, uint64(len(v.List)))
		for _, e := range v.List {
			hashValue(d, e)
		}
	case value.KindMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeU64(d, uint64(len(keys)))
		for _, k := range keys {
			writeStr(d, k)
			hashValue(d, v.Map[k])
		}
	default:
		// Node/Edge/Path/Null literals don't arise in parsed source text.
	}
}
