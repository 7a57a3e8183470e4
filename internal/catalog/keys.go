package catalog

var (
	bucketCatalog = []byte("catalog")
	bucketSchemas = []byte("schemas")
	bucketGraphs  = []byte("graphs")
	bucketUsers   = []byte("users")
	bucketRoles   = []byte("roles")
)

func graphKey(schema, graph string) string {
	return schema + "\x00" + graph
}
