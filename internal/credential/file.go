package credential

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// document is the on-disk layout: namespace -> key -> value.
type document map[string]map[string]string

const fileHeader = `# aurora-sync credential store
# Holds the secret issued by the backend when this device was paired.
# Do not share or commit this file.

`

// FileStore keeps the secret in a YAML file. Other namespaces and keys in the
// same file are preserved on write.
type FileStore struct {
	path      string
	namespace string
	key       string

	mu sync.Mutex
}

// NewFileStore returns a store backed by the YAML file at path.
func NewFileStore(path, namespace, key string) *FileStore {
	return &FileStore{path: path, namespace: namespace, key: key}
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return "", err
	}
	return doc[s.namespace][s.key], nil
}

// Save implements Store.
func (s *FileStore) Save(secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if doc[s.namespace] == nil {
		doc[s.namespace] = make(map[string]string)
	}
	doc[s.namespace][s.key] = secret

	return s.write(doc)
}

// Delete implements Store.
func (s *FileStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := doc[s.namespace][s.key]; !ok {
		return nil
	}
	delete(doc[s.namespace], s.key)
	if len(doc[s.namespace]) == 0 {
		delete(doc, s.namespace)
	}

	return s.write(doc)
}

func (s *FileStore) read() (document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(document), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	doc := make(document)
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse credential file %s: %w", s.path, err)
	}
	return doc, nil
}

// write replaces the file atomically: temp file in the same directory, fsync,
// rename over the target, then fsync the directory so the rename is durable.
func (s *FileStore) write(doc document) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	data = append([]byte(fileHeader), data...)

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary credential file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := tmp.Chmod(0600); err != nil {
		cleanup()
		return fmt.Errorf("failed to restrict credential file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temporary credential file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temporary credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary credential file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace credential file: %w", err)
	}

	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open credential directory: %w", err)
	}
	defer d.Close()

	// Some platforms (Windows) cannot fsync a directory handle.
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) && !errors.Is(err, errors.ErrUnsupported) {
		return fmt.Errorf("failed to sync credential directory: %w", err)
	}
	return nil
}
