// Package client is the HTTP client for the remote identity server. All
// outbound calls of the gate go through it: session verification with
// adaptive candidate ordering, invitation registration, email-code
// confirmation and OAuth2 code exchange.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	gatekeep "go.halcyon.sh/gatekeep"
	"go.halcyon.sh/gatekeep/cache"
)

// maxBodySize bounds how much of an identity-server response is read.
const maxBodySize = 1 << 20

// Config holds configuration for the identity client.
type Config struct {
	// Candidates are the base URIs tried in order for every call; the pool
	// keeps the most recently successful one first.
	Candidates []string
	// Timeout bounds every outbound call. Defaults to 5s.
	Timeout time.Duration
	// CacheTTL is how long valid-session results are cached. Zero disables
	// caching.
	CacheTTL time.Duration
}

// IdentityClient talks to the identity server. Safe for concurrent use; the
// candidate pool is the only shared mutable state and is reordered
// atomically.
type IdentityClient struct {
	pool     *Pool
	http     *http.Client
	cache    cache.ResultCache
	cacheTTL time.Duration
	group    singleflight.Group
}

// New creates an identity client. Pass nil to run without a result cache.
func New(cfg Config, rc cache.ResultCache) *IdentityClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if rc == nil {
		rc = cache.Nop{}
	}
	return &IdentityClient{
		pool:     NewPool(cfg.Candidates),
		http:     &http.Client{Timeout: cfg.Timeout},
		cache:    rc,
		cacheTTL: cfg.CacheTTL,
	}
}

// Pool exposes the candidate pool for probing tools.
func (c *IdentityClient) Pool() *Pool { return c.pool }

// meaningful reports whether a status is an application response rather than
// a connectivity failure. 204 is the valid-session answer; the 4xx members
// carry gate semantics of their own.
func meaningful(status int) bool {
	switch status {
	case http.StatusOK, http.StatusNoContent, http.StatusUnauthorized,
		http.StatusPaymentRequired, http.StatusForbidden:
		return true
	}
	return false
}

// VerifySession validates the bearer token against the candidate servers in
// pool order. It never returns an error: when all candidates fail the empty
// sentinel comes back with the failure kind of the last attempt. Concurrent
// verifications of the same token are coalesced into one upstream call.
func (c *IdentityClient) VerifySession(ctx context.Context, token string) gatekeep.VerificationResult {
	hash := gatekeep.HashToken(token)
	if entry, ok := c.cache.Get(ctx, hash); ok {
		return gatekeep.VerificationResult{Status: entry.Status, Body: entry.Body}
	}

	v, _, _ := c.group.Do(hash, func() (any, error) {
		return c.verifyOnce(ctx, token, hash), nil
	})
	return v.(gatekeep.VerificationResult)
}

func (c *IdentityClient) verifyOnce(ctx context.Context, token, hash string) gatekeep.VerificationResult {
	var fallback gatekeep.VerificationResult
	failure := gatekeep.FailureNetwork

	for _, base := range c.pool.Snapshot() {
		res, err := c.verifyAgainst(ctx, base, token)
		if err != nil {
			failure = classifyError(err)
			log.Debug().Err(err).Str("candidate", base).Msg("verification attempt failed")
			continue
		}
		if meaningful(res.Status) {
			c.pool.Promote(base)
			if res.Status == http.StatusNoContent && c.cacheTTL > 0 {
				c.cache.Set(ctx, hash, cache.Entry{Status: res.Status, Body: res.Body}, c.cacheTTL)
			}
			return res
		}
		if res.Status >= 500 && res.Status < 600 {
			// remember the upstream failure but keep trying other candidates
			fallback = res
		}
	}

	if !fallback.Empty() {
		return fallback
	}
	log.Warn().Err(gatekeep.ErrAllCandidatesFailed).Str("failure", failure.String()).Msg("session verification exhausted")
	return gatekeep.VerificationResult{Failure: failure}
}

func (c *IdentityClient) verifyAgainst(ctx context.Context, base, token string) (gatekeep.VerificationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1", nil)
	if err != nil {
		return gatekeep.VerificationResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return gatekeep.VerificationResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return gatekeep.VerificationResult{}, &bodyReadError{err: err}
	}
	return gatekeep.VerificationResult{Status: resp.StatusCode, Body: body}, nil
}

// bodyReadError marks a connection that answered but whose body could not be
// consumed; it maps to the protocol failure kind.
type bodyReadError struct{ err error }

func (e *bodyReadError) Error() string { return "reading response body: " + e.err.Error() }
func (e *bodyReadError) Unwrap() error { return e.err }

func classifyError(err error) gatekeep.FailureKind {
	var bre *bodyReadError
	if errors.As(err, &bre) {
		return gatekeep.FailureProtocol
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return gatekeep.FailureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return gatekeep.FailureTimeout
	}
	return gatekeep.FailureNetwork
}

// base returns the current front candidate for the one-shot calls.
func (c *IdentityClient) base() (string, error) {
	snapshot := c.pool.Snapshot()
	if len(snapshot) == 0 {
		return "", errors.New("no identity server candidates configured")
	}
	return snapshot[0], nil
}

// CreateUser registers an email with the identity server and returns the
// response status code. The email arrives percent-encoded from the raw query
// split and is decoded here, at the single call site that needs it.
func (c *IdentityClient) CreateUser(ctx context.Context, email string) (int, error) {
	if decoded, err := url.QueryUnescape(email); err == nil {
		email = decoded
	}

	payload := map[string]any{"user": map[string]string{"email": email}}
	resp, err := c.postJSON(ctx, "/v1/user", payload, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize)) //nolint:errcheck

	return resp.StatusCode, nil
}

// ConfirmEmail posts an email verification code. Fire and forget: the status
// code is not interpreted, only transport failures are reported.
func (c *IdentityClient) ConfirmEmail(ctx context.Context, email, code string) error {
	payload := map[string]string{"email": email, "code": code}
	resp, err := c.postJSON(ctx, "/v1/user/verify/email", payload, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize)) //nolint:errcheck
	return nil
}

// ExchangeCode completes an OAuth2 authorization-code exchange and returns
// the redirect URI from the response detail.
func (c *IdentityClient) ExchangeCode(ctx context.Context, req gatekeep.ExchangeRequest) (string, error) {
	payload := map[string]string{
		"code":       req.Code,
		"referrer":   req.Referrer,
		"state":      req.State,
		"invitation": req.Invitation,
	}
	resp, err := c.postJSON(ctx, "/v1/oauth2/"+req.Provider, payload, req.State)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("reading exchange response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", gatekeep.ErrExchangeRejected, resp.StatusCode)
	}

	var out struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parsing exchange response: %w", err)
	}
	return out.Detail, nil
}

func (c *IdentityClient) postJSON(ctx context.Context, path string, payload any, authorization string) (*http.Response, error) {
	base, err := c.base()
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return c.http.Do(req)
}
