package tuya

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// tokenSafetyMargin is how long before actual expiry a token is treated
// as expired. Tokens returned by TokenSource.Token are therefore valid
// for at least this margin past the call.
const tokenSafetyMargin = 5 * time.Minute

// Token is one issued bearer credential. Tokens are immutable: a refresh
// creates a new Token and the previous one is discarded, never mutated.
type Token struct {
	AccessToken  string
	RefreshToken string
	TTL          time.Duration
	AcquiredAt   time.Time
}

// validAt reports whether the token is usable at instant now, applying
// the safety margin.
func (t *Token) validAt(now time.Time) bool {
	if t == nil {
		return false
	}
	return now.Before(t.AcquiredAt.Add(t.TTL - tokenSafetyMargin))
}

// fetchFunc obtains a new token from the credential backend.
// refreshToken is empty for a fresh grant.
type fetchFunc func(ctx context.Context, refreshToken string) (*Token, error)

// TokenSource owns the token lifecycle for one credential.
//
// Refresh is single-flight: when several callers observe an expiring or
// absent token concurrently, exactly one backend call is made and every
// caller receives its result. A failed refresh leaves the previous token
// (if any) in place and surfaces the same error to all waiters.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type TokenSource struct {
	fetch fetchFunc

	mu      sync.RWMutex
	current *Token

	group singleflight.Group

	// Injectable for deterministic tests.
	now func() time.Time
}

// NewTokenSource creates a TokenSource backed by fetch.
func NewTokenSource(fetch fetchFunc) *TokenSource {
	return &TokenSource{
		fetch: fetch,
		now:   time.Now,
	}
}

// Token returns an access token guaranteed valid for at least the safety
// margin past the call, refreshing through the backend when needed.
//
// Blocks while a refresh is in flight; honours ctx cancellation without
// abandoning the shared refresh (other waiters still receive its result).
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.RLock()
	cur := ts.current
	ts.mu.RUnlock()
	if cur.validAt(ts.now()) {
		return cur.AccessToken, nil
	}

	// The fetch runs on a detached context: the flight is shared, so one
	// waiter's cancellation must not fail it for everyone else.
	ch := ts.group.DoChan("refresh", func() (interface{}, error) {
		return ts.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// refresh obtains a new token, preferring the refresh-token path and
// falling back to a fresh grant. Only the single-flight winner runs this.
func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	// Another caller may have completed the refresh between our validity
	// check and winning the flight.
	ts.mu.RLock()
	cur := ts.current
	ts.mu.RUnlock()
	if cur.validAt(ts.now()) {
		return cur.AccessToken, nil
	}

	var tok *Token
	var err error
	if cur != nil && cur.RefreshToken != "" {
		tok, err = ts.fetch(ctx, cur.RefreshToken)
	}
	if tok == nil {
		tok, err = ts.fetch(ctx, "")
	}
	if err != nil {
		// The previous token, valid or not, stays in place: no partial state.
		return "", err
	}

	ts.mu.Lock()
	ts.current = tok
	ts.mu.Unlock()
	return tok.AccessToken, nil
}

// Invalidate discards the current token if it matches accessToken.
//
// Called by the executor when the vendor rejects a token server-side;
// the next Token call then performs a fresh single-flight refresh.
func (ts *TokenSource) Invalidate(accessToken string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.current != nil && ts.current.AccessToken == accessToken {
		ts.current = nil
	}
}
