package credential

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore keeps the secret in the OS keyring, using the namespace as the
// service name and the key as the user.
type KeyringStore struct {
	service string
	user    string
}

// NewKeyringStore returns a store backed by the OS keyring.
func NewKeyringStore(namespace, key string) *KeyringStore {
	return &KeyringStore{service: namespace, user: key}
}

// Load implements Store.
func (s *KeyringStore) Load() (string, error) {
	secret, err := keyring.Get(s.service, s.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret from keyring: %w", err)
	}
	return secret, nil
}

// Save implements Store.
func (s *KeyringStore) Save(secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}
	if err := keyring.Set(s.service, s.user, secret); err != nil {
		return fmt.Errorf("failed to write secret to keyring: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *KeyringStore) Delete() error {
	err := keyring.Delete(s.service, s.user)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete secret from keyring: %w", err)
	}
	return nil
}
