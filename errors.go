package valclient

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// =============================================================================
// Auth Errors
// =============================================================================

var (
	// ErrAuthenticationFailed means the identity provider rejected the credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrMultifactorRequired means the account needs a second factor, which is not supported.
	ErrMultifactorRequired = errors.New("multifactor authentication required")
	// ErrLoginRateLimited means the identity provider throttled the login attempt.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrUnknownAuthError is an "auth" response carrying an unrecognized error code.
	ErrUnknownAuthError = errors.New("unknown authentication error")
	// ErrUnknownResponseType is a handshake response with an unrecognized discriminator.
	ErrUnknownResponseType = errors.New("unknown authorization response type")
	// ErrInvalidCredentials means a handshake finished without a fully populated bundle.
	ErrInvalidCredentials = errors.New("incomplete credential bundle")
)

// AuthError carries the discriminator or sub-error code the identity provider
// returned alongside the error kind.
type AuthError struct {
	Kind error
	Code string
}

func (e *AuthError) Error() string {
	if e.Code == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Code)
}

func (e *AuthError) Unwrap() error {
	return e.Kind
}

// =============================================================================
// Transport Errors
// =============================================================================

var (
	// ErrHTTP is the generic transport failure. Every *HTTPError matches it.
	ErrHTTP           = errors.New("http exception")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrInternalServer = errors.New("internal server error")

	// ErrClosed is returned by a gateway after Close.
	ErrClosed = errors.New("gateway closed")
	// ErrNotAuthenticated is returned when an authenticated route is called
	// without a valid credential bundle.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// HTTPError is a classified non-success response.
type HTTPError struct {
	Kind    error
	Method  string
	URL     string
	Status  int
	Message string
	Body    []byte
	// Cause is the transport error when no response was received.
	Cause error
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = bodyPreview(e.Body)
	}
	if msg == "" {
		return fmt.Sprintf("%s %s: %s (status %d)", e.Method, e.URL, e.Kind, e.Status)
	}
	return fmt.Sprintf("%s %s: %s (status %d): %s", e.Method, e.URL, e.Kind, e.Status, msg)
}

func (e *HTTPError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// Is makes every HTTPError match ErrHTTP in addition to its own kind.
func (e *HTTPError) Is(target error) bool {
	return target == ErrHTTP
}

func bodyPreview(body []byte) string {
	preview := strings.TrimSpace(string(body))
	if len(preview) > 500 {
		preview = preview[:500]
	}
	return preview
}

// =============================================================================
// Fatal Errors
// =============================================================================

// ErrTLSUnsupported means the TLS implementation cannot present the native
// client's cipher or signature algorithm lists.
var ErrTLSUnsupported = errors.New("tls fingerprint overrides unsupported")

// FatalError represents an error that should stop the client immediately.
// These are platform preconditions where retrying won't help.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatalError wraps an error as fatal.
func NewFatalError(err error) error {
	return &FatalError{Err: err}
}

// IsFatalError checks if the error is a fatal error.
func IsFatalError(err error) bool {
	if err == nil {
		return false
	}
	var fe *FatalError
	return errors.As(err, &fe)
}

// =============================================================================
// Retryable Errors
// =============================================================================

// connectionResetPatterns covers transports that flatten the errno into text.
var connectionResetPatterns = []string{
	"connection reset by peer",
	"connection reset",
	"forcibly closed by the remote host",
}

// IsConnectionReset reports whether err is the platform's "connection reset
// by peer" failure. It is the only transport error the gateway retries.
func IsConnectionReset(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, pattern := range connectionResetPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
