package cloudobjects

import (
	"context"
	"fmt"
)

// Logger is the minimal logging seam the SDK writes through. Inject your
// own with WithLogger; the default prints to stdout.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Request is one outbound transport request. Query is merged into the URL
// by the transport; the resolver normally bakes query parameters into URL
// already, so Query only carries transport-level additions.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Query   map[string]string
	Body    []byte
}

// Response is a received transport response. Any received response, whatever
// its status, is a Response; only the absence of a response is an error.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Transport executes one request/response exchange. Implementations must
// surface network-unreachable and timeout failures as *TransportError so
// they stay distinguishable from any HTTP status, and must honor ctx.
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// Storage is the persistent key-value slot used for the credential envelope
// and the installation id. Keys are opaque strings; absent keys are not
// errors.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// PushSubscription is one open realtime listener. Updates delivers change
// notifications in emission order and is closed when the listener ends.
type PushSubscription interface {
	Updates() <-chan map[string]any
	Close() error
}

// PushProvider is the realtime push subsystem: watch a document path,
// receive change notifications until the subscription is closed. The wire
// format behind the path is the provider's concern.
type PushProvider interface {
	Watch(ctx context.Context, path string) (PushSubscription, error)
}

// TokenDecoder parses a signed token into claims without verifying the
// signature; verification is server-side. Unparsable input fails with the
// malformed-token error.
type TokenDecoder interface {
	Decode(token string) (*TokenClaims, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] COBJ "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] COBJ "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] COBJ "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
