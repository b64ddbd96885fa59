package storage

import "errors"

// ErrKeyNotFound is returned by Get for keys that have never been set
// or have been deleted.
var ErrKeyNotFound = errors.New("key not found")

// Store is a scoped string key/value store, the stand-in for the
// browser's tab-scoped storage that backs the session. Implementations
// must be safe for concurrent use, although the session store is the
// only writer by policy.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
}
