package backend

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultAPIPrefix is the path segment in front of /devices. Older backends
// used "dispensers".
const DefaultAPIPrefix = "api"

// Endpoints builds the three per-device backend URLs.
type Endpoints struct {
	base   string
	prefix string
	serial string
}

// NewEndpoints validates baseURL and returns the endpoint set for one device.
// baseURL may end with "/" or not; prefix may be empty.
func NewEndpoints(baseURL, prefix, serial string) (Endpoints, error) {
	if serial == "" {
		return Endpoints{}, fmt.Errorf("device serial is empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return Endpoints{}, fmt.Errorf("invalid backend URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoints{}, fmt.Errorf("backend URL %q must use http or https", baseURL)
	}
	if u.Host == "" {
		return Endpoints{}, fmt.Errorf("backend URL %q has no host", baseURL)
	}

	return Endpoints{
		base:   strings.TrimRight(baseURL, "/"),
		prefix: strings.Trim(prefix, "/"),
		serial: serial,
	}, nil
}

// Serial returns the device serial the endpoints are built for.
func (e Endpoints) Serial() string { return e.serial }

// Base returns the backend base URL without a trailing slash.
func (e Endpoints) Base() string { return e.base }

// Pair is the pairing endpoint.
func (e Endpoints) Pair() string { return e.device("pair") }

// Config is the schedule configuration endpoint.
func (e Endpoints) Config() string { return e.device("config") }

// Events is the dispensing event endpoint.
func (e Endpoints) Events() string { return e.device("events") }

func (e Endpoints) device(action string) string {
	var b strings.Builder
	b.WriteString(e.base)
	if e.prefix != "" {
		b.WriteString("/")
		b.WriteString(e.prefix)
	}
	b.WriteString("/devices/")
	b.WriteString(url.PathEscape(e.serial))
	b.WriteString("/")
	b.WriteString(action)
	b.WriteString("/")
	return b.String()
}
