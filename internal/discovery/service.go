package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Service is a backend instance found on the network.
type Service struct {
	// Instance is the advertised instance name (e.g., "Aurora Clinic")
	Instance string

	// Hostname is the mDNS hostname (e.g., "aurora-backend.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the HTTP(S) port
	Port int

	// Scheme is "http" or "https", from the scheme TXT record
	Scheme string

	// APIPrefix is the path segment in front of /devices, from the prefix TXT record
	APIPrefix string

	// Metadata contains every TXT record
	Metadata map[string]string

	// DiscoveredAt is when the service was seen
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the service
func (s *Service) String() string {
	return fmt.Sprintf("Aurora backend %q (%s) at %s", s.Instance, s.Hostname, s.BaseURL())
}

// BaseURL returns the URL to configure as backend.base_url.
// HTTPS services are addressed by hostname so the certificate can be verified.
func (s *Service) BaseURL() string {
	host := s.IP
	if s.Scheme == "https" && s.Hostname != "" {
		host = strings.TrimSuffix(s.Hostname, ".")
	}
	return s.Scheme + "://" + net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (s *Service) GetMetadata(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}
