package cloudobjects

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCredentials struct {
	mu    sync.Mutex
	cred  *Credential
	err   error
	calls int
}

func (s *staticCredentials) GetValidCredential(context.Context) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.cred, s.err
}

func (s *staticCredentials) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastPolicy(count int) RetryPolicy {
	return RetryPolicy{Delay: time.Millisecond, Count: count, Rate: 2}
}

func TestRetryPolicyBackoffSequence(t *testing.T) {
	policy := RetryPolicy{Delay: 10 * time.Millisecond, Count: 3, Rate: 2}
	backoff := policy.backoff()

	first, stop := backoff.Next()
	assert.False(t, stop)
	assert.Equal(t, 10*time.Millisecond, first)

	second, stop := backoff.Next()
	assert.False(t, stop)
	assert.Equal(t, 20*time.Millisecond, second)

	third, stop := backoff.Next()
	assert.False(t, stop)
	assert.Equal(t, 40*time.Millisecond, third)

	_, stop = backoff.Next()
	assert.True(t, stop)
}

func TestRetryPolicyMerged(t *testing.T) {
	merged := DefaultRetryPolicy.merged(&RetryPolicy{Count: 7})
	assert.Equal(t, 7, merged.Count)
	assert.Equal(t, DefaultRetryPolicy.Delay, merged.Delay)
	assert.Equal(t, DefaultRetryPolicy.Rate, merged.Rate)

	assert.Equal(t, DefaultRetryPolicy, DefaultRetryPolicy.merged(nil))
}

func TestExecuteAttachesBearerToken(t *testing.T) {
	transport := newScriptedTransport().reply(200, `{"ok":true}`)
	creds := &staticCredentials{cred: &Credential{AccessToken: "access-1"}}
	caller := newRetryableCaller(transport, creds, testLogger{})

	resp, err := caller.Execute(context.Background(), "https://proj1.api.cloudobjects.io/LIST/Chat",
		RequestSpec{Method: "GET"}, fastPolicy(3))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)

	sent := transport.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Bearer access-1", sent[0].Headers["Authorization"])
}

func TestExecuteAnonymousWithoutCredential(t *testing.T) {
	transport := newScriptedTransport().reply(200, `{}`)
	caller := newRetryableCaller(transport, &staticCredentials{}, testLogger{})

	_, err := caller.Execute(context.Background(), "https://x", RequestSpec{}, fastPolicy(1))
	require.NoError(t, err)

	sent := transport.sent()
	require.Len(t, sent, 1)
	_, hasAuth := sent[0].Headers["Authorization"]
	assert.False(t, hasAuth)
}

func TestExecuteRetriesOnOverloadedUntilSuccess(t *testing.T) {
	transport := newScriptedTransport().
		reply(StatusOverloaded, "busy").
		reply(StatusOverloaded, "busy").
		reply(200, `{"done":true}`)
	creds := &staticCredentials{cred: &Credential{AccessToken: "access-1"}}
	caller := newRetryableCaller(transport, creds, testLogger{})

	resp, err := caller.Execute(context.Background(), "https://x", RequestSpec{}, fastPolicy(3))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Len(t, transport.sent(), 3)

	// a retry may span a refresh, so the token is re-fetched per attempt
	assert.Equal(t, 3, creds.callCount())
}

func TestExecuteExhaustionPropagatesLastRemoteError(t *testing.T) {
	transport := newScriptedTransport().reply(StatusOverloaded, "still busy")
	caller := newRetryableCaller(transport, &staticCredentials{}, testLogger{})

	_, err := caller.Execute(context.Background(), "https://x", RequestSpec{}, fastPolicy(2))
	require.Error(t, err)

	remote, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, StatusOverloaded, remote.Status)
	assert.Equal(t, "still busy", string(remote.Body))

	// one initial attempt plus two retries
	assert.Len(t, transport.sent(), 3)
}

func TestExecuteDoesNotRetryOtherStatuses(t *testing.T) {
	transport := newScriptedTransport().reply(503, "down")
	caller := newRetryableCaller(transport, &staticCredentials{}, testLogger{})

	_, err := caller.Execute(context.Background(), "https://x", RequestSpec{}, fastPolicy(5))
	require.Error(t, err)

	remote, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, 503, remote.Status)
	assert.Len(t, transport.sent(), 1)
}

func TestExecuteDoesNotRetryTransportFailures(t *testing.T) {
	transport := newScriptedTransport().fail(&TransportError{Cause: errors.New("connection refused")})
	caller := newRetryableCaller(transport, &staticCredentials{}, testLogger{})

	_, err := caller.Execute(context.Background(), "https://x", RequestSpec{}, fastPolicy(5))
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
	assert.Len(t, transport.sent(), 1)
}

func TestExecuteCredentialFailureAborts(t *testing.T) {
	transport := newScriptedTransport()
	creds := &staticCredentials{err: ErrAuthFailed}
	caller := newRetryableCaller(transport, creds, testLogger{})

	_, err := caller.Execute(context.Background(), "https://x", RequestSpec{}, fastPolicy(5))
	require.Error(t, err)
	assert.True(t, IsAuthFailed(err))
	assert.Empty(t, transport.sent())
}
