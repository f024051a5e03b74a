package vault

import "errors"

// ErrNotFound is returned by Storage.Get when the key has no value. Absence
// is an expected condition, not a failure.
var ErrNotFound = errors.New("key not found")

// Storage is the local secure key-value collaborator. Implementations are
// expected to persist across process restarts and to be at-rest protected by
// the platform keystore.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}
