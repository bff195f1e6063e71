package resilience

import (
	"crypto/tls"
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransportKind classifies a transport-level failure.
type TransportKind string

const (
	TransportNone    TransportKind = ""
	TransportTimeout TransportKind = "timeout"
	TransportRefused TransportKind = "connection_refused"
	TransportReset   TransportKind = "connection_reset"
	TransportDNS     TransportKind = "dns"
	TransportTLS     TransportKind = "tls"
	TransportOther   TransportKind = "other"
)

// ClassifyTransport inspects an error returned by an HTTP client and maps it
// to a transport failure kind. Returns TransportNone for nil.
func ClassifyTransport(err error) TransportKind {
	if err == nil {
		return TransportNone
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return TransportTLS
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return TransportTLS
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return TransportDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransportTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return TransportRefused
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) {
		return TransportReset
	}

	// Wrapped errors from HTTP clients often lose their type.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "tls handshake timeout"), strings.Contains(msg, "certificate"):
		return TransportTLS
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "name resolution"):
		return TransportDNS
	case strings.Contains(msg, "i/o timeout"), strings.Contains(msg, "deadline exceeded"):
		return TransportTimeout
	case strings.Contains(msg, "connection refused"):
		return TransportRefused
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"):
		return TransportReset
	}

	return TransportOther
}

// RetryableTransport reports whether a transport kind is in the fixed
// retryable set: timeouts, refused/reset connections and DNS errors.
// TLS failures are configuration problems, and an unclassified failure gives
// no evidence another attempt could end differently; neither is retried.
func RetryableTransport(kind TransportKind) bool {
	switch kind {
	case TransportTimeout, TransportRefused, TransportReset, TransportDNS:
		return true
	default:
		return false
	}
}

// RetryableStatus reports whether an HTTP status code indicates a transient
// server-side issue that is safe to retry.
func RetryableStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429:
		return true
	default:
		return statusCode >= 500
	}
}
