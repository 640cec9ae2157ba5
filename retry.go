package cloudobjects

import (
	"context"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy is an immutable backoff description: initial delay, attempt
// count, multiplicative rate. Each logical call receives its own copy
// merged from defaults and call overrides; attempt-local state lives in the
// backoff iterator, never in the policy value.
type RetryPolicy struct {
	Delay time.Duration
	Count int
	Rate  float64
}

// DefaultRetryPolicy is applied when a call carries no overrides.
var DefaultRetryPolicy = RetryPolicy{
	Delay: 50 * time.Millisecond,
	Count: 3,
	Rate:  1.5,
}

// merged returns the per-call policy: overrides win field-by-field when set.
func (p RetryPolicy) merged(overrides *RetryPolicy) RetryPolicy {
	if overrides == nil {
		return p
	}
	out := p
	if overrides.Delay > 0 {
		out.Delay = overrides.Delay
	}
	if overrides.Count > 0 {
		out.Count = overrides.Count
	}
	if overrides.Rate > 0 {
		out.Rate = overrides.Rate
	}
	return out
}

// backoff yields the delay sequence d, d*r, d*r^2, ... for Count retries,
// then stops.
func (p RetryPolicy) backoff() retry.Backoff {
	delay := p.Delay
	remaining := p.Count
	return retry.BackoffFunc(func() (time.Duration, bool) {
		if remaining <= 0 {
			return 0, true
		}
		remaining--
		next := delay
		delay = time.Duration(float64(delay) * p.Rate)
		return next, false
	})
}

// credentialSource supplies a usable credential before each attempt.
// tokenLifecycle is the production implementation.
type credentialSource interface {
	GetValidCredential(ctx context.Context) (*Credential, error)
}

// RequestSpec is the transport-level description of one logical call.
type RequestSpec struct {
	Method  string
	Headers map[string]string
	Body    []byte
}

// retryableCaller executes one authenticated remote call. The bearer token
// is obtained fresh before every attempt because a retry may span a
// refresh. Only the overloaded status is retried; the request body is
// repeated blindly, idempotence is the caller's contract.
type retryableCaller struct {
	transport Transport
	tokens    credentialSource
	logger    Logger
}

func newRetryableCaller(transport Transport, tokens credentialSource, logger Logger) *retryableCaller {
	return &retryableCaller{transport: transport, tokens: tokens, logger: logger}
}

// Execute runs the call under the given policy. Non-retryable failures and
// the last response after exhaustion propagate verbatim.
func (c *retryableCaller) Execute(ctx context.Context, targetURL string, spec RequestSpec, policy RetryPolicy) (*Response, error) {
	method := spec.Method
	if method == "" {
		method = http.MethodPost
	}

	var resp *Response
	err := retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		cred, err := c.tokens.GetValidCredential(ctx)
		if err != nil {
			return err
		}

		headers := map[string]string{}
		for key, value := range spec.Headers {
			headers[key] = value
		}
		if cred != nil && cred.AccessToken != "" {
			headers["Authorization"] = "Bearer " + cred.AccessToken
		}

		attempt, err := c.transport.Send(ctx, Request{
			URL:     targetURL,
			Method:  method,
			Headers: headers,
			Body:    spec.Body,
		})
		if err != nil {
			// no response received; transport failures are not retried here
			return err
		}

		if attempt.Status >= 200 && attempt.Status < 300 {
			resp = attempt
			return nil
		}

		remote := &RemoteError{Status: attempt.Status, Body: attempt.Body}
		if attempt.Status == StatusOverloaded {
			c.logger.Debug("remote overloaded (%d), retrying %s", attempt.Status, targetURL)
			return retry.RetryableError(remote)
		}
		return remote
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
