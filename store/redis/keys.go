package redis

// Key prefixes for primary entity storage.
const (
	prefixTenant = "sp:tenant:"
	prefixDLQ    = "sp:dlq:"
)

// Sorted set indexes.
const (
	zTenantAll = "sp:z:tenant:all"        // score 0, lexicographic order
	zDLQAll    = "sp:z:dlq:all"           // scored by failed_at
	zDLQTenant = "sp:z:dlq:tenant:"       // + tenant ID, scored by failed_at
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}
