package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func newEntry(host string, port int, v4, v6 []net.IP, txt ...string) *zeroconf.ServiceEntry {
	entry := zeroconf.NewServiceEntry("Aurora Clinic", ServiceType, ServiceDomain)
	entry.HostName = host
	entry.Port = port
	entry.AddrIPv4 = v4
	entry.AddrIPv6 = v6
	entry.Text = txt
	return entry
}

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name       string
		entry      *zeroconf.ServiceEntry
		wantNil    bool
		wantIP     string
		wantScheme string
		wantPrefix string
		wantURL    string
	}{
		{
			name:       "plain http with defaults",
			entry:      newEntry("aurora-backend.local.", 8000, []net.IP{net.ParseIP("192.168.1.20")}, nil),
			wantIP:     "192.168.1.20",
			wantScheme: "http",
			wantPrefix: "api",
			wantURL:    "http://192.168.1.20:8000",
		},
		{
			name:       "https uses the hostname",
			entry:      newEntry("aurora-backend.local.", 8443, []net.IP{net.ParseIP("192.168.1.20")}, nil, "scheme=https", "prefix=/dispensers/"),
			wantIP:     "192.168.1.20",
			wantScheme: "https",
			wantPrefix: "dispensers",
			wantURL:    "https://aurora-backend.local:8443",
		},
		{
			name:       "unknown scheme falls back to http",
			entry:      newEntry("b.local.", 80, []net.IP{net.ParseIP("10.0.0.5")}, nil, "scheme=gopher"),
			wantIP:     "10.0.0.5",
			wantScheme: "http",
			wantPrefix: "api",
			wantURL:    "http://10.0.0.5:80",
		},
		{
			name:       "empty prefix record means no prefix",
			entry:      newEntry("b.local.", 80, []net.IP{net.ParseIP("10.0.0.5")}, nil, "prefix="),
			wantIP:     "10.0.0.5",
			wantScheme: "http",
			wantPrefix: "",
			wantURL:    "http://10.0.0.5:80",
		},
		{
			name:       "IPv6 only",
			entry:      newEntry("b.local.", 8000, nil, []net.IP{net.ParseIP("fe80::1")}),
			wantIP:     "fe80::1",
			wantScheme: "http",
			wantPrefix: "api",
			wantURL:    "http://[fe80::1]:8000",
		},
		{
			name:       "prefers IPv4",
			entry:      newEntry("b.local.", 8000, []net.IP{net.ParseIP("192.168.1.50")}, []net.IP{net.ParseIP("fe80::2")}),
			wantIP:     "192.168.1.50",
			wantScheme: "http",
			wantPrefix: "api",
			wantURL:    "http://192.168.1.50:8000",
		},
		{
			name:    "no address",
			entry:   newEntry("b.local.", 8000, nil, nil),
			wantNil: true,
		},
		{
			name:    "no port",
			entry:   newEntry("b.local.", 0, []net.IP{net.ParseIP("192.168.1.1")}, nil),
			wantNil: true,
		},
		{
			name:    "nil entry",
			entry:   nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := parseServiceEntry(tt.entry)

			if tt.wantNil {
				if svc != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", svc)
				}
				return
			}
			if svc == nil {
				t.Fatal("parseServiceEntry() = nil, want service")
			}

			if svc.IP != tt.wantIP {
				t.Errorf("IP = %v, want %v", svc.IP, tt.wantIP)
			}
			if svc.Scheme != tt.wantScheme {
				t.Errorf("Scheme = %v, want %v", svc.Scheme, tt.wantScheme)
			}
			if svc.APIPrefix != tt.wantPrefix {
				t.Errorf("APIPrefix = %q, want %q", svc.APIPrefix, tt.wantPrefix)
			}
			if got := svc.BaseURL(); got != tt.wantURL {
				t.Errorf("BaseURL() = %v, want %v", got, tt.wantURL)
			}
			if svc.Instance != "Aurora Clinic" {
				t.Errorf("Instance = %q", svc.Instance)
			}
			if time.Since(svc.DiscoveredAt) > time.Second {
				t.Errorf("DiscoveredAt is not recent: %v", svc.DiscoveredAt)
			}
		})
	}
}

func TestParseServiceEntry_Metadata(t *testing.T) {
	entry := newEntry("b.local.", 8000, []net.IP{net.ParseIP("192.168.4.16")}, nil, "version=1.4.0", "flag", "scheme=http")

	svc := parseServiceEntry(entry)
	if svc == nil {
		t.Fatal("parseServiceEntry() = nil, want service")
	}

	expected := map[string]string{
		"version": "1.4.0",
		"flag":    "",
		"scheme":  "http",
	}
	if len(svc.Metadata) != len(expected) {
		t.Errorf("Metadata has %d entries, want %d", len(svc.Metadata), len(expected))
	}
	for key, want := range expected {
		if got, ok := svc.Metadata[key]; !ok || got != want {
			t.Errorf("Metadata[%q] = %q (present %v), want %q", key, got, ok, want)
		}
	}
	if svc.GetMetadata("version") != "1.4.0" || svc.GetMetadata("missing") != "" {
		t.Error("GetMetadata() returned wrong values")
	}
}

func TestService_String(t *testing.T) {
	svc := &Service{Instance: "Lab", Hostname: "lab.local.", IP: "10.1.1.1", Port: 8000, Scheme: "http"}

	want := `Aurora backend "Lab" (lab.local.) at http://10.1.1.1:8000`
	if svc.String() != want {
		t.Errorf("String() = %v, want %v", svc.String(), want)
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()

	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}

// Live mDNS browsing needs a multicast-capable network and is exercised
// manually with: aurora-sync discover
