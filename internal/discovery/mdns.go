package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/aurora-dispenser/aurora-sync/internal/logging"
)

const (
	// ServiceType is the mDNS service type advertised by the backend
	ServiceType = "_aurora-backend._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultScheme is used when the scheme TXT record is absent or unknown
	DefaultScheme = "http"

	// DefaultAPIPrefix is used when the prefix TXT record is absent
	DefaultAPIPrefix = "api"
)

// Scanner handles mDNS backend discovery
type Scanner struct {
	// Timeout is the maximum time to wait for discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan collects every backend that answers within the timeout.
func (s *Scanner) Scan(ctx context.Context) ([]*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	collected := make(chan []*Service, 1)

	go func() {
		services := make([]*Service, 0)
		for entry := range entries {
			if svc := parseServiceEntry(entry); svc != nil {
				logging.Debug("Discovered backend", zap.String("instance", svc.Instance), zap.String("url", svc.BaseURL()))
				services = append(services, svc)
			}
		}
		collected <- services
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	// The resolver closes entries once the browse context ends.
	select {
	case services := <-collected:
		return services, nil
	case <-time.After(time.Second):
		return nil, fmt.Errorf("mDNS resolver did not finish after timeout")
	}
}

// First returns the first backend that answers.
func (s *Scanner) First(ctx context.Context) (*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Service, 1)

	go func() {
		for entry := range entries {
			if svc := parseServiceEntry(entry); svc != nil {
				select {
				case found <- svc:
				default:
				}
				cancel()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case svc := <-found:
		logging.Info("Discovered backend", zap.String("instance", svc.Instance), zap.String("url", svc.BaseURL()))
		return svc, nil
	case <-ctx.Done():
		select {
		case svc := <-found:
			return svc, nil
		default:
		}
		return nil, fmt.Errorf("no %s service found within %s", ServiceType, s.Timeout)
	}
}

// parseServiceEntry converts a zeroconf entry to a Service.
// Returns nil if the entry has no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Service {
	if entry == nil || entry.Port == 0 {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		// TXT records are in "key=value" format
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	scheme := strings.ToLower(metadata["scheme"])
	if scheme != "http" && scheme != "https" {
		scheme = DefaultScheme
	}
	prefix, ok := metadata["prefix"]
	if !ok {
		prefix = DefaultAPIPrefix
	}

	return &Service{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Scheme:       scheme,
		APIPrefix:    strings.Trim(prefix, "/"),
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
