package nest

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the user-facing category of a failure. Every error that leaves the
// service layer carries exactly one of these.
type Kind string

const (
	KindAuthRequired     Kind = "auth_required"
	KindAuthExpired      Kind = "auth_expired"
	KindConsentRequired  Kind = "consent_required"
	KindPermissionDenied Kind = "permission_denied"
	KindNotFound         Kind = "not_found"
	KindRateLimited      Kind = "rate_limited"
	KindValidation       Kind = "validation"
	KindInvalidMode      Kind = "invalid_mode"
	KindTransient        Kind = "transient"
	KindUpstream         Kind = "upstream"
)

// Error is a classified failure. Status holds the upstream HTTP status when
// the error originated from an upstream response, 0 otherwise.
type Error struct {
	Kind    Kind
	Message string
	Status  int
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (upstream status %d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// E builds a classified error with a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or KindUpstream if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// Reauth reports whether the error means the client must discard its session
// and run the full login flow again.
func Reauth(err error) bool {
	switch KindOf(err) {
	case KindAuthExpired, KindConsentRequired:
		return true
	}
	return false
}

// ClassifyUpstream maps a non-2xx upstream response onto the taxonomy.
// The retrying client has already exhausted retries for 429 and 5xx by the
// time this is reached.
func ClassifyUpstream(status int, body []byte) *Error {
	msg := excerpt(body)
	switch {
	case status == 401:
		return &Error{Kind: KindAuthExpired, Message: "upstream rejected the access token", Status: status}
	case status == 403 && consentWording(body):
		return &Error{Kind: KindConsentRequired, Message: "consent must be re-granted", Status: status}
	case status == 403:
		return &Error{Kind: KindPermissionDenied, Message: msg, Status: status}
	case status == 404:
		return &Error{Kind: KindNotFound, Message: "project or device not found", Status: status}
	case status == 429:
		return &Error{Kind: KindRateLimited, Message: "upstream rate limit exceeded", Status: status}
	case status >= 500:
		return &Error{Kind: KindTransient, Message: msg, Status: status}
	default:
		return &Error{Kind: KindUpstream, Message: msg, Status: status}
	}
}

// consentWording detects 403 bodies that indicate a revoked or partial OAuth
// grant rather than a provisioning problem.
func consentWording(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "consent") || strings.Contains(s, "grant")
}

const maxExcerpt = 256

// excerpt keeps a bounded slice of the upstream body for diagnostics.
func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "upstream request failed"
	}
	if len(s) > maxExcerpt {
		s = s[:maxExcerpt]
	}
	return s
}
