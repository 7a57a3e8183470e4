// Package catalog persists schema, graph, user, role and version
// metadata in a reserved key range of the same KV store used for graph
// data.
package catalog

// Schema is a named namespace holding a set of graphs. DDLVersion
// bumps on every structural change to the schema or its graph list;
// it is what the plan cache and per-session catalog cache key off of.
type Schema struct {
	Path       string
	Graphs     []string
	DDLVersion uint64
}

// Graph is a named container within a schema. DDLVersion bumps on
// structural change (create, drop); DataVersion bumps on every commit
// that writes node/edge data into the graph and is what the result
// cache keys off of, so a cached result is invalidated by any write to
// the graph(s) the plan reads, distinct from schema/graph DDL churn.
type Graph struct {
	Schema      string
	Name        string
	DDLVersion  uint64
	DataVersion uint64
}

// OpClass is a permission's operation class.
type OpClass string

const (
	OpDDL   OpClass = "DDL"
	OpDML   OpClass = "DML"
	OpDQL   OpClass = "DQL"
	OpAdmin OpClass = "ADMIN"
)

// Permission grants an operation class over a resource pattern, e.g.
// (DQL, "/social/*") or (ADMIN, "*").
type Permission struct {
	OpClass  OpClass
	Resource string
}

// Role is a named set of permissions.
type Role struct {
	Name        string
	Permissions []Permission
}

// User has a name, opaque credential material, and a set of role
// names. Credential hashing's cryptographic construction is
// explicitly external to this spec; Credential is stored and
// compared as opaque bytes (constant-time) by this package, and a
// real deployment is expected to pass already-hashed material in.
type User struct {
	Name       string
	Credential []byte
	Roles      []string
}

// Principal is the opaque result of a successful authentication,
// carrying just enough to evaluate permissions without re-touching the
// user record on every check.
type Principal struct {
	User  string
	Roles []string
}
