package catalog

import (
	"crypto/subtle"
	"encoding/json"
	"sort"
	"strings"

	"graphlite/internal/gqlerr"
	"graphlite/internal/kv"
)

// Manager reads and writes catalog metadata. It is stateless; all
// state lives in the reserved `catalog` bucket of the KV engine, so a
// Manager can be shared freely across sessions.
type Manager struct{}

func New() *Manager { return &Manager{} }

// EnsureBuckets creates the catalog's nested bucket layout if absent.
func EnsureBuckets(e *kv.Engine) error {
	return e.Update(func(tx *kv.Tx) error {
		top, err := tx.CreateBucketIfNotExists(bucketCatalog)
		if err != nil {
			return err
		}
		for _, name := range [][]byte{bucketSchemas, bucketGraphs, bucketUsers, bucketRoles} {
			if _, err := top.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func sub(tx *kv.Tx, name []byte) (*kv.Bucket, error) {
	top := tx.Bucket(bucketCatalog)
	if top == nil {
		return nil, gqlerr.Internalf("catalog bucket not initialized")
	}
	b := top.Bucket(name)
	if b == nil {
		return nil, gqlerr.Internalf("catalog sub-bucket %s not initialized", name)
	}
	return b, nil
}

func putJSON(b *kv.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return gqlerr.Wrap(gqlerr.Internal, err, "encode catalog record")
	}
	return b.Put([]byte(key), data)
}

func getJSON(b *kv.Bucket, key string, v interface{}) (bool, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, gqlerr.Wrap(gqlerr.Corruption, err, "decode catalog record")
	}
	return true, nil
}

// CreateSchema registers a new schema namespace.
func (m *Manager) CreateSchema(tx *kv.Tx, path string) error {
	b, err := sub(tx, bucketSchemas)
	if err != nil {
		return err
	}
	var existing Schema
	if ok, err := getJSON(b, path, &existing); err != nil {
		return err
	} else if ok {
		return gqlerr.AlreadyExistsf("schema %q already exists", path)
	}
	return putJSON(b, path, &Schema{Path: path, DDLVersion: 1})
}

// DropSchema removes a schema; it must have no remaining graphs.
func (m *Manager) DropSchema(tx *kv.Tx, path string) error {
	b, err := sub(tx, bucketSchemas)
	if err != nil {
		return err
	}
	var s Schema
	ok, err := getJSON(b, path, &s)
	if err != nil {
		return err
	}
	if !ok {
		return gqlerr.NotFoundf("schema %q does not exist", path)
	}
	if len(s.Graphs) > 0 {
		return gqlerr.Conflictf("schema %q still has %d graph(s)", path, len(s.Graphs))
	}
	return b.Delete([]byte(path))
}

// GetSchema looks up a schema by path.
func (m *Manager) GetSchema(tx *kv.Tx, path string) (*Schema, error) {
	b, err := sub(tx, bucketSchemas)
	if err != nil {
		return nil, err
	}
	var s Schema
	ok, err := getJSON(b, path, &s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, gqlerr.NotFoundf("schema %q does not exist", path)
	}
	return &s, nil
}

// ListSchemas returns all schemas sorted by path, for gql.list_schemas().
func (m *Manager) ListSchemas(tx *kv.Tx) ([]*Schema, error) {
	b, err := sub(tx, bucketSchemas)
	if err != nil {
		return nil, err
	}
	var out []*Schema
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var s Schema
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, gqlerr.Wrap(gqlerr.Corruption, err, "decode schema %s", k)
		}
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// CreateGraph adds a graph to a schema, bumping the schema's DDLVersion.
func (m *Manager) CreateGraph(tx *kv.Tx, schema, name string) error {
	sb, err := sub(tx, bucketSchemas)
	if err != nil {
		return err
	}
	var s Schema
	ok, err := getJSON(sb, schema, &s)
	if err != nil {
		return err
	}
	if !ok {
		return gqlerr.NotFoundf("schema %q does not exist", schema)
	}
	for _, g := range s.Graphs {
		if g == name {
			return gqlerr.AlreadyExistsf("graph %q already exists in schema %q", name, schema)
		}
	}
	gb, err := sub(tx, bucketGraphs)
	if err != nil {
		return err
	}
	s.Graphs = append(s.Graphs, name)
	s.DDLVersion++
	if err := putJSON(sb, schema, &s); err != nil {
		return err
	}
	return putJSON(gb, graphKey(schema, name), &Graph{Schema: schema, Name: name, DDLVersion: 1})
}

// DropGraph removes a graph's catalog entry and its membership in the
// schema's graph list. The caller is responsible for purging the
// graph's data buckets via internal/storage before or after this call
// within the same KV batch.
func (m *Manager) DropGraph(tx *kv.Tx, schema, name string) error {
	sb, err := sub(tx, bucketSchemas)
	if err != nil {
		return err
	}
	var s Schema
	ok, err := getJSON(sb, schema, &s)
	if err != nil {
		return err
	}
	if !ok {
		return gqlerr.NotFoundf("schema %q does not exist", schema)
	}
	idx := -1
	for i, g := range s.Graphs {
		if g == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return gqlerr.NotFoundf("graph %q does not exist in schema %q", name, schema)
	}
	s.Graphs = append(s.Graphs[:idx], s.Graphs[idx+1:]...)
	s.DDLVersion++
	if err := putJSON(sb, schema, &s); err != nil {
		return err
	}
	gb, err := sub(tx, bucketGraphs)
	if err != nil {
		return err
	}
	return gb.Delete([]byte(graphKey(schema, name)))
}

// GetGraph looks up a graph's catalog entry.
func (m *Manager) GetGraph(tx *kv.Tx, schema, name string) (*Graph, error) {
	gb, err := sub(tx, bucketGraphs)
	if err != nil {
		return nil, err
	}
	var g Graph
	ok, err := getJSON(gb, graphKey(schema, name), &g)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, gqlerr.NotFoundf("graph %q does not exist in schema %q", name, schema)
	}
	return &g, nil
}

// ListGraphs returns a schema's graphs sorted by name.
func (m *Manager) ListGraphs(tx *kv.Tx, schema string) ([]*Graph, error) {
	s, err := m.GetSchema(tx, schema)
	if err != nil {
		return nil, err
	}
	gb, err := sub(tx, bucketGraphs)
	if err != nil {
		return nil, err
	}
	out := make([]*Graph, 0, len(s.Graphs))
	for _, name := range s.Graphs {
		var g Graph
		ok, err := getJSON(gb, graphKey(schema, name), &g)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, &g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// BumpDataVersion increments a graph's DataVersion, invalidating any
// result-cache entries keyed on it. Called once per commit that
// wrote node/edge data into the graph.
func (m *Manager) BumpDataVersion(tx *kv.Tx, schema, name string) error {
	gb, err := sub(tx, bucketGraphs)
	if err != nil {
		return err
	}
	key := graphKey(schema, name)
	var g Graph
	ok, err := getJSON(gb, key, &g)
	if err != nil {
		return err
	}
	if !ok {
		return gqlerr.NotFoundf("graph %q does not exist in schema %q", name, schema)
	}
	g.DataVersion++
	return putJSON(gb, key, &g)
}

// CreateUser registers a user with opaque credential material.
func (m *Manager) CreateUser(tx *kv.Tx, name string, credential []byte, roles []string) error {
	b, err := sub(tx, bucketUsers)
	if err != nil {
		return err
	}
	var existing User
	if ok, err := getJSON(b, name, &existing); err != nil {
		return err
	} else if ok {
		return gqlerr.AlreadyExistsf("user %q already exists", name)
	}
	return putJSON(b, name, &User{Name: name, Credential: credential, Roles: roles})
}

// DropUser removes a user.
func (m *Manager) DropUser(tx *kv.Tx, name string) error {
	b, err := sub(tx, bucketUsers)
	if err != nil {
		return err
	}
	var u User
	ok, err := getJSON(b, name, &u)
	if err != nil {
		return err
	}
	if !ok {
		return gqlerr.NotFoundf("user %q does not exist", name)
	}
	return b.Delete([]byte(name))
}

// ListUsers returns all users sorted by name, for gql.list_users().
func (m *Manager) ListUsers(tx *kv.Tx) ([]*User, error) {
	b, err := sub(tx, bucketUsers)
	if err != nil {
		return nil, err
	}
	var out []*User
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var u User
		if err := json.Unmarshal(v, &u); err != nil {
			return nil, gqlerr.Wrap(gqlerr.Corruption, err, "decode user %s", k)
		}
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateRole registers a named permission set.
func (m *Manager) CreateRole(tx *kv.Tx, name string, perms []Permission) error {
	b, err := sub(tx, bucketRoles)
	if err != nil {
		return err
	}
	var existing Role
	if ok, err := getJSON(b, name, &existing); err != nil {
		return err
	} else if ok {
		return gqlerr.AlreadyExistsf("role %q already exists", name)
	}
	return putJSON(b, name, &Role{Name: name, Permissions: perms})
}

// DropRole removes a role definition.
func (m *Manager) DropRole(tx *kv.Tx, name string) error {
	b, err := sub(tx, bucketRoles)
	if err != nil {
		return err
	}
	var r Role
	ok, err := getJSON(b, name, &r)
	if err != nil {
		return err
	}
	if !ok {
		return gqlerr.NotFoundf("role %q does not exist", name)
	}
	return b.Delete([]byte(name))
}

// ListRoles returns all roles sorted by name, for gql.list_roles().
func (m *Manager) ListRoles(tx *kv.Tx) ([]*Role, error) {
	b, err := sub(tx, bucketRoles)
	if err != nil {
		return nil, err
	}
	var out []*Role
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var r Role
		if err := json.Unmarshal(v, &r); err != nil {
			return nil, gqlerr.Wrap(gqlerr.Corruption, err, "decode role %s", k)
		}
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Authenticate verifies name/credential and returns a Principal with
// the user's role set resolved. Comparison is constant-time; the
// credential's own hashing scheme is the caller's concern.
func (m *Manager) Authenticate(tx *kv.Tx, name string, credential []byte) (*Principal, error) {
	b, err := sub(tx, bucketUsers)
	if err != nil {
		return nil, err
	}
	var u User
	ok, err := getJSON(b, name, &u)
	if err != nil {
		return nil, err
	}
	if !ok || subtle.ConstantTimeCompare(u.Credential, credential) != 1 {
		return nil, gqlerr.PermissionDeniedf("authentication failed for user %q", name)
	}
	return &Principal{User: u.Name, Roles: u.Roles}, nil
}

// CheckPermission reports whether principal's roles grant op over
// resource. Access is deny-by-default: an empty or non-matching role
// set denies.
func (m *Manager) CheckPermission(tx *kv.Tx, p *Principal, op OpClass, resource string) (bool, error) {
	if p == nil {
		return false, nil
	}
	b, err := sub(tx, bucketRoles)
	if err != nil {
		return false, err
	}
	for _, roleName := range p.Roles {
		var r Role
		ok, err := getJSON(b, roleName, &r)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		for _, perm := range r.Permissions {
			if (perm.OpClass == op || perm.OpClass == OpAdmin) && matchResource(perm.Resource, resource) {
				return true, nil
			}
		}
	}
	return false, nil
}

// matchResource supports "*" (match everything), an exact path, or a
// "/prefix/*" glob suffix.
func matchResource(pattern, resource string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(resource, pattern[:len(pattern)-1])
	}
	return pattern == resource
}
