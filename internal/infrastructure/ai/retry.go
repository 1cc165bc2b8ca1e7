// Package ai provides the shared plumbing under both provider adapters:
// the retrying HTTP client, model-name normalization, and the per-provider
// circuit breaker.
package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/formulab/v2/pkg/errors"
	"github.com/hashicorp/go-retryablehttp"
)

// Retry policy: 429 and 5xx responses are retried up to 3 attempts total with
// exponential backoff (base 200ms, doubling). Other 4xx responses are caller
// errors and fail immediately. Network-level failures are retried once.
const (
	retryMax       = 2 // retries after the first attempt
	retryWaitBase  = 200 * time.Millisecond
	retryWaitCeil  = 2 * time.Second
	defaultTimeout = 60 * time.Second
)

type attemptStateKey struct{}

type attemptState struct {
	netFailures int
}

// NewHTTPClient builds the retrying HTTP client shared by the provider
// adapters. Responses that exhaust the retry budget are returned as-is so the
// adapter can classify the original status.
func NewHTTPClient(timeout time.Duration) *retryablehttp.Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}

	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = retryWaitBase
	c.RetryWaitMax = retryWaitCeil
	c.Logger = nil
	c.HTTPClient.Timeout = timeout
	c.Backoff = backoff
	c.CheckRetry = checkRetry
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c
}

// Do executes a request through the retrying client, attaching the per-request
// attempt state that checkRetry uses to bound network-error retries.
func Do(client *retryablehttp.Client, req *http.Request) (*http.Response, error) {
	ctx := context.WithValue(req.Context(), attemptStateKey{}, &attemptState{})
	rreq, err := retryablehttp.FromRequest(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return client.Do(rreq)
}

func backoff(min, max time.Duration, attemptNum int, _ *http.Response) time.Duration {
	wait := min << attemptNum
	if wait > max {
		wait = max
	}
	return wait
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		st, ok := ctx.Value(attemptStateKey{}).(*attemptState)
		if !ok {
			return false, err
		}
		st.netFailures++
		return st.netFailures <= 1, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// Retriable reports whether a status code is part of the retry policy.
// Adapters use it to classify exhausted responses as transient.
func Retriable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// StatusError classifies a non-2xx provider response. Retriable statuses only
// reach this point after the retry budget is exhausted, so they map to a
// transient error carrying the original status; everything else is fatal.
func StatusError(provider string, status int, body []byte) error {
	cause := fmt.Errorf("provider returned %d: %s", status, strings.TrimSpace(string(body)))
	if Retriable(status) {
		return errors.NewProviderTransientError(provider, cause).WithMetadata("status", status)
	}
	return errors.NewProviderFatalError(provider, status, cause)
}
