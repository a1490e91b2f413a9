package tuya

import (
	"errors"
	"fmt"
	"time"
)

// Failure classes for vendor API calls.
// Use errors.Is() to check for these errors in calling code; the concrete
// error carries the vendor code and message as an *APIError.
var (
	// ErrAuth indicates the credential, signature, or token was rejected.
	// The executor forces one token refresh and retries once before
	// surfacing this.
	ErrAuth = errors.New("tuya: authentication rejected")

	// ErrRateLimited indicates the vendor throttled the request.
	// Never retried by the executor; the APIError carries a retry-after
	// hint when the vendor provided one.
	ErrRateLimited = errors.New("tuya: rate limited")

	// ErrValidation indicates a caller mistake (bad parameter, missing
	// permission). Not retried.
	ErrValidation = errors.New("tuya: request rejected")

	// ErrTransient indicates a network failure or server-side error.
	// Retried with exponential backoff up to the attempt cap.
	ErrTransient = errors.New("tuya: transient failure")

	// ErrProtocol indicates a response that could not be parsed as the
	// vendor's success/failure envelope. Not retried.
	ErrProtocol = errors.New("tuya: malformed response")
)

// APIError is a classified failure from the vendor API.
//
// It wraps one of the sentinel errors above, so callers can branch with
// errors.Is while still seeing the vendor's business code and message.
type APIError struct {
	// Code is the vendor business code, or the HTTP status for
	// transport-level failures.
	Code int64

	// Msg is the vendor's error message.
	Msg string

	// RetryAfter is the vendor's throttle hint. Zero when unknown.
	// Only meaningful when the error is ErrRateLimited.
	RetryAfter time.Duration

	kind error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("tuya api error %d: %s", e.Code, e.Msg)
}

// Unwrap exposes the failure class for errors.Is.
func (e *APIError) Unwrap() error {
	return e.kind
}

// Vendor business codes that need special classification.
// See the vendor's OpenAPI error code reference.
const (
	codeSecretInvalid    = 1001
	codeSignInvalid      = 1004
	codeTokenExpired     = 1010
	codeTokenInvalid     = 1011
	codeTokenStateError  = 1012
	codeRequestTimeSkew  = 1013
	codeRateLimitReached = 40000309
)

// NewAPIError builds a classified error from a vendor business code.
func NewAPIError(code int64, msg string) *APIError {
	return classify(code, msg)
}

// classify maps a vendor business code onto a failure class.
//
// Unknown codes default to ErrValidation: the vendor reports caller
// mistakes through a long tail of endpoint-specific codes, and none of
// them become correct by retrying.
func classify(code int64, msg string) *APIError {
	var kind error
	switch code {
	case codeSecretInvalid, codeSignInvalid, codeTokenExpired,
		codeTokenInvalid, codeTokenStateError, codeRequestTimeSkew:
		kind = ErrAuth
	case codeRateLimitReached:
		kind = ErrRateLimited
	default:
		kind = ErrValidation
	}
	return &APIError{Code: code, Msg: msg, kind: kind}
}
