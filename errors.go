package cloudobjects

import (
	"fmt"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeNotInitialized = "client_not_initialized"
	TextCodeAuthFailed     = "auth_refresh_rejected"
	TextCodeTokenMalformed = "token_malformed"
	TextCodeNoRefreshToken = "no_refresh_token"
	TextCodeNotSignedIn    = "not_signed_in"
	TextCodeChannelClosed  = "channel_closed"
)

// StatusOverloaded is the only response status eligible for automatic retry.
// It signals transient server overload; every other status propagates as-is.
const StatusOverloaded = 570

// ErrNotInitialized is returned when an operation is attempted before
// Client.Initialize has completed.
var ErrNotInitialized = errors.New("client is not initialized", errors.CategoryOperation).
	WithTextCode(TextCodeNotInitialized)

// ErrAuthFailed is returned when the server rejects a token refresh. The
// stored credential has been cleared and the session signed out by the time
// callers observe it.
var ErrAuthFailed = errors.New("authentication rejected", errors.CategoryAuth).
	WithTextCode(TextCodeAuthFailed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when a token cannot be decoded into claims.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryBadInput).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeBadRequest)

// ErrNoRefreshToken is returned when a refresh is requested but the stored
// credential carries no refresh token.
var ErrNoRefreshToken = errors.New("credential has no refresh token", errors.CategoryOperation).
	WithTextCode(TextCodeNoRefreshToken)

// ErrNotSignedIn is returned when an operation requires a live session and
// no credential is stored.
var ErrNotSignedIn = errors.New("no active session", errors.CategoryAuth).
	WithTextCode(TextCodeNotSignedIn).
	WithCode(errors.CodeUnauthorized)

// ErrChannelClosed is returned when subscribing to a state channel that has
// already been torn down.
var ErrChannelClosed = errors.New("state channel is closed", errors.CategoryOperation).
	WithTextCode(TextCodeChannelClosed)

// RemoteError is a response received with a non-2xx status. It carries the
// upstream status and body verbatim so callers can decide how to surface it.
type RemoteError struct {
	Status int
	Body   []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote call failed with status %d", e.Status)
}

// AsRemoteError unwraps a RemoteError from err if one is present.
func AsRemoteError(err error) (*RemoteError, bool) {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote, true
	}
	return nil, false
}

// TransportError means no response was received: the network was
// unreachable or the request timed out. It is distinguishable from every
// HTTP status and is never retried by the caller pipeline.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return "transport failure: " + e.Cause.Error()
	}
	return "transport failure"
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var transport *TransportError
	return errors.As(err, &transport)
}

// IsAuthFailed reports whether err carries the auth-rejected text code.
func IsAuthFailed(err error) bool {
	return hasTextCode(err, TextCodeAuthFailed)
}

// IsTokenMalformed reports whether err carries the malformed-token text code.
func IsTokenMalformed(err error) bool {
	return hasTextCode(err, TextCodeTokenMalformed)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}
