package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aurora-dispenser/aurora-sync/internal/logging"
	"github.com/aurora-dispenser/aurora-sync/internal/version"
)

const (
	// DefaultTimeout bounds every backend request
	DefaultTimeout = 5 * time.Second

	// HeaderDeviceSecret carries the pairing secret on authenticated calls
	HeaderDeviceSecret = "X-Device-Secret"

	// maxResponseBody caps how much of a response is read into memory
	maxResponseBody = 1 << 20
)

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns a client with the given timeout. When rootCAFile is
// non-empty, HTTPS connections trust only the certificates in that PEM file.
func NewHTTPClient(timeout time.Duration, rootCAFile string) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if rootCAFile != "" {
		pool, err := LoadRootCAs(rootCAFile)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

// LoadRootCAs reads a PEM bundle into a certificate pool.
func LoadRootCAs(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read root CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no PEM certificates found in %s", path)
	}
	return pool, nil
}

// Client sends requests to the backend. It holds no device state.
type Client struct {
	endpoints Endpoints
	doer      Doer
	userAgent string
}

// NewClient creates a backend client. A nil doer uses an *http.Client with DefaultTimeout.
func NewClient(endpoints Endpoints, doer Doer) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		endpoints: endpoints,
		doer:      doer,
		userAgent: version.UserAgent(),
	}
}

// Endpoints returns the URLs this client talks to.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// response is the part of an HTTP exchange the callers inspect.
type response struct {
	StatusCode int
	Body       []byte
}

// do performs one request with no retry. Transport failures come back as
// classified SyncErrors; any HTTP status is returned to the caller to judge.
func (c *Client) do(ctx context.Context, method, url string, body []byte, header http.Header) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, NewTransportError(fmt.Sprintf("failed to create %s request", method), err, url)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, NewTransportError(fmt.Sprintf("%s request failed", method), err, url)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, NewTransportError("failed to read response body", err, url)
	}

	logging.LogHTTPResult(method, url, resp.StatusCode, data)

	return &response{StatusCode: resp.StatusCode, Body: data}, nil
}
