package archive

import (
	"fmt"
	"strings"
)

// ErrorKind is the taxonomy of submission failures. Every failure the client
// reports carries exactly one kind; the orchestrator records it verbatim.
type ErrorKind string

// Failure kinds.
const (
	ErrNone               ErrorKind = ""
	ErrInvalidInput       ErrorKind = "invalid_input"
	ErrMissingCredentials ErrorKind = "missing_credentials"
	ErrInvalidCredentials ErrorKind = "invalid_credentials"
	ErrAuthFailed         ErrorKind = "authentication_failed"
	ErrTimeout            ErrorKind = "timeout"
	ErrDNSFailure         ErrorKind = "dns_failure"
	ErrConnectionRefused  ErrorKind = "connection_refused"
	ErrSSL                ErrorKind = "ssl_error"
	ErrConnection         ErrorKind = "connection_error"
	ErrUnexpectedResponse ErrorKind = "unexpected_response"
)

// transportRule pairs a predicate over the raw error text with the kind and
// user-facing message it produces.
type transportRule struct {
	match   func(string) bool
	kind    ErrorKind
	message string
}

func containsAny(substrs ...string) func(string) bool {
	return func(s string) bool {
		for _, sub := range substrs {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
}

// transportRules are evaluated top to bottom; the first match wins. The
// ordering is load-bearing: it yields the most specific diagnosis (a DNS
// failure mentions "connect" too and must never be reported as a generic
// connection error).
var transportRules = []transportRule{
	{
		match:   containsAny("timeout", "Timeout", "deadline exceeded"),
		kind:    ErrTimeout,
		message: "Archive.org connection timed out. The site may be temporarily unavailable. Please try again later.",
	},
	{
		match:   containsAny("resolve host", "name resolution", "no such host"),
		kind:    ErrDNSFailure,
		message: "Archive.org cannot be reached. Please check your internet connection and try again.",
	},
	{
		match:   containsAny("connect"),
		kind:    ErrConnectionRefused,
		message: "Cannot connect to Archive.org. The site may be temporarily unavailable. Please try again later.",
	},
	{
		match:   containsAny("SSL", "ssl", "certificate", "tls"),
		kind:    ErrSSL,
		message: "SSL/Certificate error connecting to Archive.org. Please check your server configuration.",
	},
}

// ClassifyTransportError maps a low-level transport error into the taxonomy.
func ClassifyTransportError(err error) (ErrorKind, string) {
	text := err.Error()
	for _, rule := range transportRules {
		if rule.match(text) {
			return rule.kind, rule.message
		}
	}
	return ErrConnection, fmt.Sprintf("Archive submission failed: %s", text)
}

// ClassifyStatusCode maps an HTTP failure code (outside [200,400)) into the
// taxonomy.
func ClassifyStatusCode(code int) (ErrorKind, string) {
	switch code {
	case 401:
		return ErrInvalidCredentials, "Invalid API credentials."
	case 403:
		return ErrAuthFailed, "Authentication failed. Please check your API credentials."
	default:
		return ErrUnexpectedResponse, fmt.Sprintf("Unexpected response code: %d", code)
	}
}
