package tuya

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/calden87/tuyatrace/internal/infrastructure/config"
	"github.com/calden87/tuyatrace/internal/infrastructure/logging"
)

// Retry behaviour for the executor.
const (
	// maxRetries bounds retries after the initial attempt. Only transient
	// failures (and the single forced-refresh auth retry) consume it.
	maxRetries = 3

	// retryInitialDelay is the first backoff interval between attempts.
	retryInitialDelay = 500 * time.Millisecond

	// retryMaxDelay caps the backoff interval between attempts.
	retryMaxDelay = 10 * time.Second
)

// Client executes signed requests against the vendor OpenAPI.
//
// It owns the token lifecycle (via an internal TokenSource), signs every
// request, parses the vendor's success/failure envelope, and classifies
// failures into the package's error taxonomy. Transient failures are
// retried with exponential backoff; a rejected token triggers exactly one
// forced refresh and retry.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	http    *http.Client
	baseURL string
	signer  *Signer
	tokens  *TokenSource
	log     *logging.Logger
}

// New creates a Client for the configured region and credential.
func New(cfg config.TuyaConfig, log *logging.Logger) (*Client, error) {
	baseURL, err := cfg.BaseURL()
	if err != nil {
		return nil, err
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		signer:  NewSigner(cfg.AccessID, cfg.AccessSecret),
		log:     log.With("component", "tuya"),
	}
	c.tokens = NewTokenSource(c.fetchToken)
	return c, nil
}

// Execute signs and sends one API request and returns the envelope's
// result payload.
//
// query parameters are sorted and encoded into the signed path. body, when
// non-nil, is JSON-encoded. Failures come back classified: check with
// errors.Is against ErrAuth, ErrRateLimited, ErrValidation, ErrTransient,
// ErrProtocol.
func (c *Client) Execute(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	signPath := path
	if len(query) > 0 {
		signPath = path + "?" + query.Encode() // Encode sorts keys
	}

	var bodyStr string
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyStr = string(data)
	}

	var authRetried bool
	op := func() (json.RawMessage, error) {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			if errors.Is(err, ErrTransient) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}

		result, err := c.call(ctx, method, signPath, bodyStr, token)
		switch {
		case err == nil:
			return result, nil
		case errors.Is(err, ErrAuth) && !authRetried:
			// One forced refresh, one retry, never more.
			authRetried = true
			c.tokens.Invalidate(token)
			c.log.Debug("token rejected, forcing refresh", "path", path)
			return nil, err
		case errors.Is(err, ErrTransient):
			return nil, err
		default:
			return nil, backoff.Permanent(err)
		}
	}

	return backoff.RetryWithData(op, backoff.WithContext(
		backoff.WithMaxRetries(newRetryBackOff(), maxRetries), ctx))
}

// newRetryBackOff builds the per-request retry schedule.
func newRetryBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialDelay
	bo.MaxInterval = retryMaxDelay
	return bo
}

// call performs one signed HTTP round trip and unwraps the envelope.
// No retries happen at this level.
func (c *Client) call(ctx context.Context, method, signPath, body, token string) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != "" {
		reqBody = bytes.NewReader([]byte(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+signPath, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header = c.signer.Sign(method, signPath, body, token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{Msg: err.Error(), kind: ErrTransient}
	}
	defer resp.Body.Close() //nolint:errcheck // Read side close

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Code: int64(resp.StatusCode), Msg: err.Error(), kind: ErrTransient}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &APIError{
			Code:       int64(resp.StatusCode),
			Msg:        "http 429",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			kind:       ErrRateLimited,
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &APIError{
			Code: int64(resp.StatusCode),
			Msg:  fmt.Sprintf("http %d", resp.StatusCode),
			kind: ErrTransient,
		}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &APIError{Msg: "undecodable envelope: " + err.Error(), kind: ErrProtocol}
	}

	if !env.Success {
		apiErr := classify(env.Code, env.Msg)
		if errors.Is(apiErr, ErrRateLimited) && apiErr.RetryAfter == 0 {
			apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return nil, apiErr
	}

	return env.Result, nil
}

// envelope is the vendor's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Code    int64           `json:"code"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
	T       int64           `json:"t"`
}

// tokenGrant is the token endpoint's result payload.
type tokenGrant struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpireTime   int64  `json:"expire_time"` // seconds
	UID          string `json:"uid"`
}

// fetchToken obtains a token from the vendor, either a fresh grant or via
// the refresh-token path. Token endpoints are signed without an access
// token; this call deliberately bypasses Execute to avoid recursion
// through the token source.
func (c *Client) fetchToken(ctx context.Context, refreshToken string) (*Token, error) {
	path := "/v1.0/token?grant_type=1"
	if refreshToken != "" {
		path = "/v1.0/token/" + refreshToken
	}

	result, err := c.call(ctx, http.MethodGet, path, "", "")
	if err != nil {
		return nil, fmt.Errorf("token grant: %w", err)
	}

	var grant tokenGrant
	if err := json.Unmarshal(result, &grant); err != nil {
		return nil, &APIError{Msg: "undecodable token grant: " + err.Error(), kind: ErrProtocol}
	}
	if grant.AccessToken == "" {
		return nil, &APIError{Msg: "token grant missing access_token", kind: ErrProtocol}
	}

	return &Token{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		TTL:          time.Duration(grant.ExpireTime) * time.Second,
		AcquiredAt:   time.Now(),
	}, nil
}

// parseRetryAfter interprets a Retry-After header as delay seconds.
// Returns zero for absent or unparseable values.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
