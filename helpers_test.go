package cloudobjects

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// signTestToken mints an HS256 token with the given claims. The decoder
// never verifies signatures, so the key is irrelevant.
func signTestToken(subject, identity string, issuedAt, expiresAt int64) string {
	claims := jwt.MapClaims{
		"sub":      subject,
		"identity": identity,
		"iat":      issuedAt,
		"exp":      expiresAt,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key"))
	if err != nil {
		panic(err)
	}
	return signed
}

// scriptedTransport replays a queue of canned results and records every
// request it sees. When the queue empties it keeps replaying the last
// entry. Optional gate blocks each Send until released.
type scriptedTransport struct {
	mu       sync.Mutex
	script   []scriptedResult
	requests []Request
	gate     chan struct{}
}

type scriptedResult struct {
	resp *Response
	err  error
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{}
}

func (t *scriptedTransport) reply(status int, body string) *scriptedTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = append(t.script, scriptedResult{resp: &Response{Status: status, Body: []byte(body)}})
	return t
}

func (t *scriptedTransport) fail(err error) *scriptedTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = append(t.script, scriptedResult{err: err})
	return t
}

func (t *scriptedTransport) Send(_ context.Context, req Request) (*Response, error) {
	if t.gate != nil {
		<-t.gate
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, req)

	if len(t.script) == 0 {
		return &Response{Status: 200, Body: []byte("{}")}, nil
	}
	next := t.script[0]
	if len(t.script) > 1 {
		t.script = t.script[1:]
	}
	return next.resp, next.err
}

func (t *scriptedTransport) sent() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Request, len(t.requests))
	copy(out, t.requests)
	return out
}

// fakePushProvider counts Watch calls and hands out fake subscriptions the
// test can feed.
type fakePushProvider struct {
	mu            sync.Mutex
	watches       int
	subscriptions []*fakePushSubscription
	paths         []string
}

type fakePushSubscription struct {
	updates chan map[string]any
	once    sync.Once
}

func newFakePushProvider() *fakePushProvider {
	return &fakePushProvider{}
}

func (p *fakePushProvider) Watch(_ context.Context, path string) (PushSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watches++
	p.paths = append(p.paths, path)
	sub := &fakePushSubscription{updates: make(chan map[string]any, 16)}
	p.subscriptions = append(p.subscriptions, sub)
	return sub, nil
}

func (p *fakePushProvider) watchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watches
}

func (p *fakePushProvider) lastSubscription() *fakePushSubscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.subscriptions) == 0 {
		return nil
	}
	return p.subscriptions[len(p.subscriptions)-1]
}

func (s *fakePushSubscription) Updates() <-chan map[string]any {
	return s.updates
}

func (s *fakePushSubscription) Close() error {
	s.once.Do(func() { close(s.updates) })
	return nil
}

func (s *fakePushSubscription) emit(update map[string]any) {
	s.updates <- update
}

// fixedClock returns a clock pinned to the given unix second.
func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}
