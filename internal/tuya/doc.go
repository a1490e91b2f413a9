// Package tuya implements a signed HTTP client for the Tuya OpenAPI.
//
// Every request carries an HMAC-SHA256 signature over a canonical string
// built from the method, the SHA-256 of the body, and the path including
// sorted query parameters. The Signer produces those headers; the
// TokenSource keeps a valid access token behind a single-flight refresh
// so concurrent callers never trigger duplicate token requests.
//
// Client.Execute is the one entry point for API calls. It acquires a
// token, signs, sends, and maps every failure into the package's error
// taxonomy (ErrAuth, ErrRateLimited, ErrValidation, ErrTransient,
// ErrProtocol). Transient failures are retried with exponential backoff;
// an authentication rejection invalidates the cached token and retries
// exactly once with a fresh one. Endpoint wrappers (devices, logs,
// scenes) sit on top of Execute and only decode result payloads.
package tuya
