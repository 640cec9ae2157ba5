package cloudobjects

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"
)

// skewGuardSeconds widens every expiry comparison so a token is refreshed
// before it actually lapses mid-flight. Combined with the credential's
// clock skew it makes validity checks correct when server and client
// clocks diverge.
const skewGuardSeconds = 30

// tokenPair is the wire shape of the sign-in and refresh responses.
type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// tokenLifecycle owns credential validity: loading, expiry detection under
// the skew-adjusted clock, deduplicated refresh, sign-in, and sign-out.
// Session transitions are announced through onState (wired to the client's
// broadcaster).
type tokenLifecycle struct {
	store     *tokenStore
	decoder   TokenDecoder
	transport Transport
	resolver  *endpointResolver
	logger    Logger
	now       func() time.Time
	onState   func(SessionState)

	refreshGroup singleflight.Group
}

func newTokenLifecycle(store *tokenStore, decoder TokenDecoder, transport Transport, resolver *endpointResolver, logger Logger, now func() time.Time) *tokenLifecycle {
	return &tokenLifecycle{
		store:     store,
		decoder:   decoder,
		transport: transport,
		resolver:  resolver,
		logger:    logger,
		now:       now,
		onState:   func(SessionState) {},
	}
}

// GetValidCredential loads the stored credential and returns it with a
// usable access token, refreshing first when the access token has lapsed
// but the refresh token has not. No stored credential returns (nil, nil);
// anonymous use is not an error.
func (t *tokenLifecycle) GetValidCredential(ctx context.Context) (*Credential, error) {
	cred, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, nil
	}

	access, err := cred.AccessClaims(t.decoder)
	if err != nil {
		return nil, err
	}

	if !cred.Refreshable() {
		return cred, nil
	}

	refresh, err := cred.RefreshClaims(t.decoder)
	if err != nil {
		return nil, err
	}

	safeNow := t.now().Unix() + skewGuardSeconds + cred.ClockSkew
	if refresh.ExpiresAt > safeNow && access.ExpiresAt <= safeNow {
		return t.Refresh(ctx)
	}
	return cred, nil
}

// Refresh exchanges the current refresh token for a new credential.
// Concurrent callers share a single in-flight exchange: a second caller
// awaits the first outcome instead of issuing its own request, so one
// refresh token is never spent twice.
func (t *tokenLifecycle) Refresh(ctx context.Context) (*Credential, error) {
	result, err, _ := t.refreshGroup.Do("refresh", func() (any, error) {
		return t.doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Credential), nil
}

func (t *tokenLifecycle) doRefresh(ctx context.Context) (*Credential, error) {
	cred, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !cred.Refreshable() {
		return nil, ErrNoRefreshToken
	}
	// decode so the connection-failed announcement can carry the subject
	if _, err := cred.AccessClaims(t.decoder); err != nil {
		t.logger.Debug("stored access token undecodable during refresh: %v", err)
	}

	target, err := t.resolver.Resolve(OpRefresh, EndpointParams{
		Query: map[string]string{"refreshToken": cred.RefreshToken},
	})
	if err != nil {
		return nil, err
	}

	resp, err := t.transport.Send(ctx, Request{URL: target.String(), Method: http.MethodGet})
	if err != nil {
		// Transport failure: the session may still be valid once
		// connectivity returns, so the credential stays.
		t.onState(SessionState{
			Status:   StatusConnectionFailed,
			Subject:  cred.Subject(),
			Identity: cred.Identity(),
			Message:  err.Error(),
		})
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		// Anything the server said no to signs the session out.
		if clearErr := t.store.Clear(ctx); clearErr != nil {
			t.logger.Error("failed to clear credential after rejected refresh: %v", clearErr)
		}
		t.onState(SessionState{Status: StatusAuthFailed, Message: "token refresh rejected"})
		return nil, errors.Wrap(&RemoteError{Status: resp.Status, Body: resp.Body},
			ErrAuthFailed.Category, ErrAuthFailed.Message).
			WithTextCode(ErrAuthFailed.TextCode).
			WithCode(errors.CodeUnauthorized)
	}

	refreshed, err := t.adoptTokenPair(ctx, resp.Body)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("token refresh completed for subject %s", refreshed.Subject())
	return refreshed, nil
}

// SignInWithCustomToken exchanges an opaque custom token for a credential.
func (t *tokenLifecycle) SignInWithCustomToken(ctx context.Context, customToken string) (*Credential, error) {
	target, err := t.resolver.Resolve(OpSignIn, EndpointParams{
		Query: map[string]string{"customToken": customToken},
	})
	if err != nil {
		return nil, err
	}

	resp, err := t.transport.Send(ctx, Request{URL: target.String(), Method: http.MethodGet})
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, &RemoteError{Status: resp.Status, Body: resp.Body}
	}

	cred, err := t.adoptTokenPair(ctx, resp.Body)
	if err != nil {
		return nil, err
	}
	t.logger.Info("signed in as subject %s", cred.Subject())
	return cred, nil
}

// adoptTokenPair decodes, recomputes clock skew against the fresh issued-at,
// persists, and announces the signed-in state.
func (t *tokenLifecycle) adoptTokenPair(ctx context.Context, body []byte) (*Credential, error) {
	pair := tokenPair{}
	if err := json.Unmarshal(body, &pair); err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "token endpoint returned an unreadable body")
	}

	cred := &Credential{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
	access, err := cred.AccessClaims(t.decoder)
	if err != nil {
		return nil, err
	}
	if _, err := cred.RefreshClaims(t.decoder); cred.Refreshable() && err != nil {
		return nil, err
	}

	cred.ClockSkew = access.IssuedAt - t.now().Unix()

	if err := t.store.Save(ctx, cred); err != nil {
		return nil, err
	}

	t.onState(SessionState{
		Status:   StatusSignedIn,
		Subject:  access.Subject,
		Identity: access.Identity,
	})
	return cred, nil
}

// SignOut notifies the server best-effort with the current access token,
// then clears the stored credential unconditionally. Remote failures are
// swallowed: local teardown must always complete.
func (t *tokenLifecycle) SignOut(ctx context.Context) error {
	cred, err := t.store.Load(ctx)
	if err != nil {
		return err
	}

	if cred != nil && cred.AccessToken != "" {
		target, err := t.resolver.Resolve(OpSignOut, EndpointParams{})
		if err == nil {
			_, err = t.transport.Send(ctx, Request{
				URL:     target.String(),
				Method:  http.MethodGet,
				Headers: map[string]string{"Authorization": "Bearer " + cred.AccessToken},
			})
		}
		if err != nil {
			t.logger.Debug("best-effort sign-out notification failed: %v", err)
		}
	}

	if err := t.store.Clear(ctx); err != nil {
		return err
	}
	t.onState(SessionState{Status: StatusSignedOut})
	return nil
}
