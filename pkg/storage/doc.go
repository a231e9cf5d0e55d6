// Package storage provides the backends behind the registry Store
// interface: an in-memory store for embedded and test use, and (in the
// postgres subpackage) a PostgreSQL store with an optional Redis
// read-through cache.
package storage
