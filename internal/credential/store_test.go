package credential

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// storeContract runs the behaviour every backend must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() on empty store error = %v", err)
	}
	if got != "" {
		t.Fatalf("Load() on empty store = %q, want \"\"", got)
	}

	if err := s.Save(""); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("Save(\"\") error = %v, want ErrEmptySecret", err)
	}

	if err := s.Save("first"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save("abc123"); err != nil {
		t.Fatalf("Save() overwrite error = %v", err)
	}
	if got, _ := s.Load(); got != "abc123" {
		t.Errorf("Load() = %q, want abc123", got)
	}

	if err := s.Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got, _ := s.Load(); got != "" {
		t.Errorf("Load() after Delete = %q, want \"\"", got)
	}
	if err := s.Delete(); err != nil {
		t.Errorf("Delete() of absent secret error = %v", err)
	}
}

func TestFileStore_Contract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.yaml")
	storeContract(t, NewFileStore(path, DefaultNamespace, DefaultKey))
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")

	if err := NewFileStore(path, DefaultNamespace, DefaultKey).Save("abc123"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := NewFileStore(path, DefaultNamespace, DefaultKey).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != "abc123" {
		t.Errorf("Load() = %q, want abc123", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	leftovers, _ := filepath.Glob(path + ".*.tmp")
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

func TestFileStore_PreservesOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	seed := "aurora:\n  wifi_hint: kitchen\nother:\n  device_secret: keep-me\n"
	if err := os.WriteFile(path, []byte(seed), 0600); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(path, DefaultNamespace, DefaultKey)
	if err := s.Save("abc123"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]map[string]string
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("written file is not YAML: %v", err)
	}
	if doc["aurora"]["wifi_hint"] != "kitchen" {
		t.Error("unrelated key in same namespace was dropped")
	}
	if doc["other"]["device_secret"] != "keep-me" {
		t.Error("unrelated namespace was dropped")
	}
	if doc["aurora"]["device_secret"] != "abc123" {
		t.Errorf("device_secret = %q, want abc123", doc["aurora"]["device_secret"])
	}
	if !strings.HasPrefix(string(data), "# aurora-sync credential store") {
		t.Error("header comment missing")
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	if err := os.WriteFile(path, []byte("aurora: [unterminated"), 0600); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(path, DefaultNamespace, DefaultKey)
	if _, err := s.Load(); err == nil {
		t.Error("Load() should fail on a corrupt file")
	}
	if err := s.Save("abc123"); err == nil {
		t.Error("Save() should refuse to overwrite a file it cannot parse")
	}
}

func TestKeyringStore_Contract(t *testing.T) {
	keyring.MockInit()
	storeContract(t, NewKeyringStore(DefaultNamespace, DefaultKey))
}

func TestKeyringStore_BackendFailure(t *testing.T) {
	keyring.MockInitWithError(errors.New("dbus unavailable"))
	defer keyring.MockInit()

	s := NewKeyringStore(DefaultNamespace, DefaultKey)
	if _, err := s.Load(); err == nil {
		t.Error("Load() should surface keyring errors")
	}
	if err := s.Save("abc123"); err == nil {
		t.Error("Save() should surface keyring errors")
	}
}

func TestSQLiteStore_Contract(t *testing.T) {
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "credentials.db"), DefaultNamespace, DefaultKey)
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	defer s.Close()

	storeContract(t, s)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.db")

	s, err := OpenSQLiteStore(path, DefaultNamespace, DefaultKey)
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	if err := s.Save("abc123"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	s.Close()

	s, err = OpenSQLiteStore(path, DefaultNamespace, DefaultKey)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	if got, _ := s.Load(); got != "abc123" {
		t.Errorf("Load() after reopen = %q, want abc123", got)
	}
}

func TestSQLiteStore_SaveFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credentials")).
		WithArgs(DefaultNamespace, DefaultKey, "abc123", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))

	s := NewSQLiteStore(db, DefaultNamespace, DefaultKey)
	err = s.Save("abc123")
	if err == nil || !strings.Contains(err.Error(), "disk I/O error") {
		t.Errorf("Save() error = %v, want wrapped disk I/O error", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLiteStore_LoadAbsentAndError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM credentials")).
		WithArgs(DefaultNamespace, DefaultKey).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM credentials")).
		WithArgs(DefaultNamespace, DefaultKey).
		WillReturnError(sql.ErrConnDone)

	s := NewSQLiteStore(db, DefaultNamespace, DefaultKey)

	got, err := s.Load()
	if err != nil || got != "" {
		t.Errorf("Load() on no rows = (%q, %v), want (\"\", nil)", got, err)
	}

	if _, err := s.Load(); !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("Load() error = %v, want ErrConnDone", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"file", Options{Backend: BackendFile, Path: filepath.Join(dir, "c.yaml")}, false},
		{"default backend is file", Options{Path: filepath.Join(dir, "d.yaml")}, false},
		{"file without path", Options{Backend: BackendFile}, true},
		{"keyring", Options{Backend: BackendKeyring}, false},
		{"sqlite", Options{Backend: BackendSQLite, Path: filepath.Join(dir, "c.db")}, false},
		{"sqlite without path", Options{Backend: BackendSQLite}, true},
		{"unknown", Options{Backend: "nvs", Path: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if c, ok := s.(interface{ Close() error }); ok {
				c.Close()
			}
		})
	}

	if !ValidBackend("sqlite") || ValidBackend("nvs") {
		t.Error("ValidBackend() disagrees with Backends()")
	}
}

func TestWatcher_FiresOnReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	store := NewFileStore(path, DefaultNamespace, DefaultKey)

	var fired atomic.Int32
	w, err := NewWatcher(path, func() { fired.Add(1) })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.SetDebounce(20 * time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	// Unrelated files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("watcher fired %d times for an unrelated file", fired.Load())
	}

	if err := store.Save("abc123"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fired.Load() == 0 {
		t.Fatal("watcher did not fire after the credential file was replaced")
	}
}
