package backend

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of a sync failure.
type ErrorType int

const (
	// ErrTypeLinkDown indicates the network link was down so no request was made
	ErrTypeLinkDown ErrorType = iota
	// ErrTypeTransport indicates the request could not be completed (refused, DNS, TLS, reset)
	ErrTypeTransport
	// ErrTypeTimeout indicates the request exceeded the configured timeout
	ErrTypeTimeout
	// ErrTypeAuth indicates no usable device secret was available
	ErrTypeAuth
	// ErrTypeConflict indicates the backend already holds a pairing this device cannot prove
	ErrTypeConflict
	// ErrTypeProtocol indicates an unexpected HTTP status code
	ErrTypeProtocol
	// ErrTypeParse indicates a malformed or incomplete response body
	ErrTypeParse
	// ErrTypePersistence indicates the credential store failed to read or write
	ErrTypePersistence
)

// NetworkErrorSubtype narrows down ErrTypeTransport failures.
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
	NetworkErrorTLS
	NetworkErrorCanceled
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeLinkDown:
		return "Link Down"
	case ErrTypeTransport:
		return "Transport Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeConflict:
		return "Pairing Conflict"
	case ErrTypeProtocol:
		return "Protocol Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypePersistence:
		return "Persistence Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// SyncError is returned by every backend operation.
type SyncError struct {
	Type           ErrorType           // Category of error
	Message        string              // Human-readable error message
	StatusCode     int                 // HTTP status code (if applicable)
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific transport error type
	Endpoint       string              // Request URL (for context)
	Retryable      bool                // Whether the next poll may succeed without operator action
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *SyncError) Unwrap() error {
	return e.Err
}

// ClassifyTransportError maps an error returned by the HTTP transport to a SyncError.
func ClassifyTransportError(err error, endpoint string) *SyncError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return &SyncError{
			Type:           ErrTypeTransport,
			Message:        "Request canceled",
			Err:            err,
			NetworkSubtype: NetworkErrorCanceled,
			Endpoint:       endpoint,
			Retryable:      false,
		}
	}

	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return &SyncError{
			Type:      ErrTypeTimeout,
			Message:   "Request timed out",
			Err:       err,
			Endpoint:  endpoint,
			Retryable: true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &SyncError{
			Type:           ErrTypeTransport,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			Endpoint:       endpoint,
			Retryable:      true,
		}
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) {
		return &SyncError{
			Type:           ErrTypeTransport,
			Message:        "TLS certificate verification failed",
			Err:            err,
			NetworkSubtype: NetworkErrorTLS,
			Endpoint:       endpoint,
			Retryable:      false,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &SyncError{
				Type:           ErrTypeTransport,
				Message:        "Backend refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				Endpoint:       endpoint,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &SyncError{
				Type:           ErrTypeTransport,
				Message:        "Host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				Endpoint:       endpoint,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &SyncError{
				Type:           ErrTypeTransport,
				Message:        "Network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				Endpoint:       endpoint,
				Retryable:      true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil && urlErr.Err != err {
		return ClassifyTransportError(urlErr.Err, endpoint)
	}

	return &SyncError{
		Type:           ErrTypeTransport,
		Message:        "Network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		Endpoint:       endpoint,
		Retryable:      true,
	}
}

// NewTransportError classifies err and replaces its message.
func NewTransportError(message string, err error, endpoint string) *SyncError {
	classified := ClassifyTransportError(err, endpoint)
	if classified == nil {
		return &SyncError{
			Type:      ErrTypeTransport,
			Message:   message,
			Endpoint:  endpoint,
			Retryable: true,
		}
	}
	classified.Message = message
	return classified
}

// NewLinkDownError reports that the link was down and nothing was sent.
func NewLinkDownError() *SyncError {
	return &SyncError{
		Type:      ErrTypeLinkDown,
		Message:   "network link is down, request not sent",
		Retryable: true,
	}
}

// NewAuthError reports a missing device secret.
func NewAuthError(message string) *SyncError {
	return &SyncError{
		Type:      ErrTypeAuth,
		Message:   message,
		Retryable: false,
	}
}

// NewConflictError reports that the backend refused to pair a device it already knows.
func NewConflictError(serial, endpoint string) *SyncError {
	return &SyncError{
		Type:       ErrTypeConflict,
		Message:    fmt.Sprintf("backend reports device %s is already paired but no local secret is stored", serial),
		StatusCode: 409,
		Endpoint:   endpoint,
		Retryable:  false,
	}
}

// NewProtocolError reports an unexpected HTTP status code.
func NewProtocolError(statusCode int, message, endpoint string) *SyncError {
	return &SyncError{
		Type:       ErrTypeProtocol,
		Message:    message,
		StatusCode: statusCode,
		Endpoint:   endpoint,
		Retryable:  true,
	}
}

// NewParseError reports a response body that could not be used.
func NewParseError(message string, err error) *SyncError {
	return &SyncError{
		Type:      ErrTypeParse,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewPersistenceError reports a credential store failure.
func NewPersistenceError(message string, err error) *SyncError {
	return &SyncError{
		Type:      ErrTypePersistence,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// AsSyncError returns the first SyncError in err's chain.
func AsSyncError(err error) (*SyncError, bool) {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr, true
	}
	return nil, false
}

func isType(err error, types ...ErrorType) bool {
	syncErr, ok := AsSyncError(err)
	if !ok {
		return false
	}
	for _, t := range types {
		if syncErr.Type == t {
			return true
		}
	}
	return false
}

// IsLinkDown checks if an error is a skipped request due to a down link
func IsLinkDown(err error) bool { return isType(err, ErrTypeLinkDown) }

// IsTransportError checks if an error is a transport failure (including timeout)
func IsTransportError(err error) bool { return isType(err, ErrTypeTransport, ErrTypeTimeout) }

// IsTimeout checks if an error is a timeout
func IsTimeout(err error) bool { return isType(err, ErrTypeTimeout) }

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool { return isType(err, ErrTypeAuth) }

// IsConflict checks if an error is a pairing conflict
func IsConflict(err error) bool { return isType(err, ErrTypeConflict) }

// IsProtocolError checks if an error is an unexpected status code
func IsProtocolError(err error) bool { return isType(err, ErrTypeProtocol) }

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool { return isType(err, ErrTypeParse) }

// IsPersistenceError checks if an error is a credential store failure
func IsPersistenceError(err error) bool { return isType(err, ErrTypePersistence) }

// IsRetryable checks if the next poll may succeed without operator action
func IsRetryable(err error) bool {
	if syncErr, ok := AsSyncError(err); ok {
		return syncErr.Retryable
	}
	return false
}

// TroubleshootingHint returns operator-facing advice for an error
func TroubleshootingHint(err error) string {
	syncErr, ok := AsSyncError(err)
	if !ok {
		return "An unexpected error occurred. Check the log for details."
	}

	switch syncErr.Type {
	case ErrTypeConflict:
		return strings.Join([]string{
			"The backend already has a pairing record for this device, but no secret is stored locally.",
			"The device will not retry pairing until one of these is done:",
			"  • Reset the device's pairing on the backend, then run: aurora-sync pair",
			"  • Restore the original secret: aurora-sync secret restore",
		}, "\n")

	case ErrTypeLinkDown:
		return strings.Join([]string{
			"The network link is down, so nothing was sent.",
			"Troubleshooting:",
			"  • Check that the configured link interface is up",
			"  • The next poll retries automatically once the link returns",
		}, "\n")

	case ErrTypeTimeout:
		return strings.Join([]string{
			"The backend did not respond in time.",
			"Troubleshooting:",
			"  • Check connectivity to the backend host",
			"  • Try increasing backend.timeout",
		}, "\n")

	case ErrTypeTransport:
		switch syncErr.NetworkSubtype {
		case NetworkErrorDNS:
			return strings.Join([]string{
				"Could not resolve the backend hostname.",
				"Troubleshooting:",
				"  • Check backend.base_url for typos",
				"  • Check the DNS settings of this host",
				"  • Use backend.discover to find the backend on the local network",
			}, "\n")
		case NetworkErrorTLS:
			return strings.Join([]string{
				"The backend's TLS certificate could not be verified.",
				"Troubleshooting:",
				"  • Point backend.root_ca_file at the PEM file of the CA that signed it",
				"  • Check that the host name in backend.base_url matches the certificate",
			}, "\n")
		case NetworkErrorConnectionRefused:
			return strings.Join([]string{
				"The backend refused the connection.",
				"Troubleshooting:",
				"  • Check that the backend service is running",
				"  • Verify the port in backend.base_url",
			}, "\n")
		default:
			return strings.Join([]string{
				"Network communication with the backend failed.",
				"Troubleshooting:",
				"  • Check this host's network connection",
				"  • Verify backend.base_url",
			}, "\n")
		}

	case ErrTypeAuth:
		return "No device secret is available. Run: aurora-sync pair"

	case ErrTypeProtocol:
		if syncErr.StatusCode == 401 || syncErr.StatusCode == 403 {
			return strings.Join([]string{
				fmt.Sprintf("The backend rejected the device secret (HTTP %d).", syncErr.StatusCode),
				"Troubleshooting:",
				"  • The backend pairing may have been reset; run: aurora-sync secret forget, then aurora-sync pair",
			}, "\n")
		}
		if syncErr.StatusCode >= 500 {
			return fmt.Sprintf("The backend returned a server error (HTTP %d). The next poll will retry.", syncErr.StatusCode)
		}
		return fmt.Sprintf("The backend returned HTTP %d. Check backend.base_url and backend.api_prefix.", syncErr.StatusCode)

	case ErrTypeParse:
		return "The backend response could not be parsed. The backend may be running an incompatible version."

	case ErrTypePersistence:
		return strings.Join([]string{
			"The device secret could not be read or written.",
			"Troubleshooting:",
			"  • Check permissions on credential.path",
			"  • Check free disk space",
		}, "\n")

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// ShortMessage returns a concise, operator-facing error message
func ShortMessage(err error) string {
	syncErr, ok := AsSyncError(err)
	if !ok {
		return err.Error()
	}

	switch syncErr.Type {
	case ErrTypeLinkDown:
		return "Link down - skipped"
	case ErrTypeTimeout:
		return "Backend not responding (timeout)"
	case ErrTypeTransport:
		switch syncErr.NetworkSubtype {
		case NetworkErrorDNS:
			return "Cannot resolve backend hostname"
		case NetworkErrorTLS:
			return "TLS verification failed"
		case NetworkErrorConnectionRefused:
			return "Backend refused connection"
		default:
			return "Network error - check connection"
		}
	case ErrTypeAuth:
		return "No device secret"
	case ErrTypeConflict:
		return "Pairing conflict - operator action required"
	case ErrTypeProtocol:
		return fmt.Sprintf("Backend error (HTTP %d)", syncErr.StatusCode)
	case ErrTypeParse:
		return "Failed to parse backend response"
	case ErrTypePersistence:
		return "Credential store failure"
	default:
		return syncErr.Message
	}
}
