// Package discovery locates the dispenser backend on the local network via mDNS.
//
// On-premises backends advertise the "_aurora-backend._tcp" service. TXT
// records describe how to reach the API:
//
//	scheme=https   http or https (default http)
//	prefix=api     path segment in front of /devices (default api)
//	version=1.4.0  backend version, informational
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	scanner.Timeout = 3 * time.Second
//	found, err := scanner.First(ctx)
//	if err != nil {
//	    return err
//	}
//	endpoints, err := backend.NewEndpoints(found.BaseURL(), found.APIPrefix, serial)
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - The backend must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
