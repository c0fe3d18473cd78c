// Package httpx provides the shared outbound HTTP client: a persistent
// connection pool, a hard per-request timeout and bounded exponential-backoff
// retries for transient failures. Both the device API client and the OAuth
// token refresher go through it.
package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	nest "github.com/gleadbet/nest"
	"github.com/gleadbet/nest/internal/logger"
)

// RetryPolicy bounds the retry loop. A policy is a value, so call sites can
// share one instance or override per client.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy matches the upstream quota guidance: 3 attempts,
// 1s starting delay doubling up to 5s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:  3,
	InitialDelay: 1 * time.Second,
	MaxDelay:     5 * time.Second,
}

const defaultRequestTimeout = 30 * time.Second

// Client wraps *http.Client with the retry policy.
type Client struct {
	http   *http.Client
	policy RetryPolicy
	log    *logger.Logger
}

// New builds a Client. A zero policy falls back to DefaultRetryPolicy.
func New(policy RetryPolicy, timeout time.Duration, log *logger.Logger) *Client {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		// DefaultTransport keeps connections alive between requests.
		http:   &http.Client{Timeout: timeout, Transport: http.DefaultTransport},
		policy: policy,
		log:    log,
	}
}

// Response is the terminal result of a request after retries: any HTTP
// response, including non-2xx. Network-level failure after retries comes back
// as a classified transient error instead.
type Response struct {
	Status int
	Body   []byte
}

// Do sends the request, retrying network errors, 5xx and 429 responses per
// the policy. Other statuses return immediately. The body is fully read so
// the connection can be reused.
func (c *Client) Do(ctx context.Context, method, url string, header http.Header, body []byte) (Response, error) {
	var out Response

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if c.log != nil {
				c.log.Infow("upstream_request_failed", "method", method, "url", url, "attempt", attempt, "err", err)
			}
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		out = Response{Status: resp.StatusCode, Body: b}

		if retryableStatus(resp.StatusCode) {
			if c.log != nil {
				c.log.Infow("upstream_retryable_status", "method", method, "url", url, "attempt", attempt, "status", resp.StatusCode)
			}
			return fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx))
	if err != nil {
		if out.Status != 0 {
			// Retries exhausted on a 5xx/429; hand the last response to the
			// caller for classification.
			return out, nil
		}
		return Response{}, nest.E(nest.KindTransient, "request failed after %d attempts: %v", attempt, err)
	}
	return out, nil
}

// retryableStatus reports whether the status is considered transient.
// Deterministic 4xx responses (401/403/404, everything except 429) must not
// burn retry quota.
func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// newBackOff translates the policy into a cenkalti backoff. Randomization is
// disabled so delays are exactly min(initial*2^n, max).
func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.InitialDelay
	b.MaxInterval = c.policy.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(c.policy.MaxAttempts-1))
}
