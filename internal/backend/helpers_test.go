package backend

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const testSerial = "SN-0001"

// memStore is an in-memory credential.Store with failure injection.
type memStore struct {
	mu      sync.Mutex
	secret  string
	loadErr error
	saveErr error
	delErr  error
	loads   int
	saves   int
}

func (s *memStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loadErr != nil {
		return "", s.loadErr
	}
	return s.secret, nil
}

func (s *memStore) Save(secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.secret = secret
	return nil
}

func (s *memStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delErr != nil {
		return s.delErr
	}
	s.secret = ""
	return nil
}

func (s *memStore) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secret
}

// fakeBackend serves the three device endpoints and counts requests.
type fakeBackend struct {
	prefix string

	pairCalls   atomic.Int32
	configCalls atomic.Int32
	eventCalls  atomic.Int32

	mu           sync.Mutex
	pairStatus   int
	pairBody     string
	configStatus int
	configBody   string
	eventStatus  int
	lastSecret   string
	lastEvent    string
	lastHeaders  http.Header
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()

	fb := &fakeBackend{
		prefix:       "/api",
		pairStatus:   http.StatusOK,
		pairBody:     `{"device_secret":"abc123"}`,
		configStatus: http.StatusOK,
		configBody:   `{"schedule_version":1,"containers":[]}`,
		eventStatus:  http.StatusNoContent,
	}

	server := httptest.NewServer(http.HandlerFunc(fb.serveHTTP))
	t.Cleanup(server.Close)
	return fb, server
}

func (fb *fakeBackend) set(fn func(fb *fakeBackend)) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fn(fb)
}

func (fb *fakeBackend) serveHTTP(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	base := fb.prefix + "/devices/" + testSerial + "/"
	body, _ := io.ReadAll(r.Body)
	fb.lastHeaders = r.Header.Clone()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == base+"pair/":
		fb.pairCalls.Add(1)
		w.WriteHeader(fb.pairStatus)
		_, _ = io.WriteString(w, fb.pairBody)

	case r.Method == http.MethodGet && r.URL.Path == base+"config/":
		fb.configCalls.Add(1)
		fb.lastSecret = r.Header.Get(HeaderDeviceSecret)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fb.configStatus)
		_, _ = io.WriteString(w, fb.configBody)

	case r.Method == http.MethodPost && r.URL.Path == base+"events/":
		fb.eventCalls.Add(1)
		fb.lastSecret = r.Header.Get(HeaderDeviceSecret)
		fb.lastEvent = string(body)
		w.WriteHeader(fb.eventStatus)

	default:
		http.NotFound(w, r)
	}
}

func (fb *fakeBackend) snapshot() (secret, event string, header http.Header) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.lastSecret, fb.lastEvent, fb.lastHeaders
}

// staticLink is a Link with a settable state.
type staticLink struct{ up atomic.Bool }

func newLink(up bool) *staticLink {
	l := &staticLink{}
	l.up.Store(up)
	return l
}

func (l *staticLink) Connected() bool { return l.up.Load() }

// newTestClient builds a client for the fake backend with the given base URL suffix.
func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	endpoints, err := NewEndpoints(serverURL, DefaultAPIPrefix, testSerial)
	if err != nil {
		t.Fatalf("NewEndpoints() error = %v", err)
	}
	return NewClient(endpoints, nil)
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
