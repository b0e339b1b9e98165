package credential

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultNamespace groups all keys written by the sync client.
	DefaultNamespace = "aurora"
	// DefaultKey names the device secret inside the namespace.
	DefaultKey = "device_secret"
)

// Backend names accepted by Open.
const (
	BackendFile    = "file"
	BackendKeyring = "keyring"
	BackendSQLite  = "sqlite"
)

// ErrEmptySecret is returned by Save when asked to persist "".
// Use Delete to remove a secret.
var ErrEmptySecret = errors.New("refusing to save an empty secret")

// Store is durable storage for one secret string.
type Store interface {
	// Load returns the stored secret, or "" with a nil error if none was ever written.
	Load() (string, error)
	// Save durably writes the secret, replacing any previous value.
	Save(secret string) error
	// Delete removes the secret. Deleting an absent secret is not an error.
	Delete() error
}

// Options selects and configures a Store backend.
type Options struct {
	Backend   string
	Path      string // file or database path; unused by the keyring backend
	Namespace string
	Key       string
}

// Backends lists the accepted Backend values.
func Backends() []string {
	return []string{BackendFile, BackendKeyring, BackendSQLite}
}

// ValidBackend reports whether name is a known backend.
func ValidBackend(name string) bool {
	for _, b := range Backends() {
		if b == name {
			return true
		}
	}
	return false
}

// Open constructs the Store described by opts. Empty Namespace and Key take
// their defaults. The sqlite backend must be closed by the caller through
// io.Closer when no longer needed.
func Open(opts Options) (Store, error) {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}

	switch strings.ToLower(opts.Backend) {
	case BackendFile, "":
		if opts.Path == "" {
			return nil, fmt.Errorf("file credential backend requires a path")
		}
		return NewFileStore(opts.Path, opts.Namespace, opts.Key), nil
	case BackendKeyring:
		return NewKeyringStore(opts.Namespace, opts.Key), nil
	case BackendSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite credential backend requires a path")
		}
		return OpenSQLiteStore(opts.Path, opts.Namespace, opts.Key)
	default:
		return nil, fmt.Errorf("unknown credential backend %q (valid: %s)",
			opts.Backend, strings.Join(Backends(), ", "))
	}
}
