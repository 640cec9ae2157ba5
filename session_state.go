package cloudobjects

import "time"

// SessionStatus is one of the four session states. Exactly one status is
// current per client; it is derived from the stored credential, never kept
// as a second source of truth.
type SessionStatus string

const (
	// StatusSignedOut means no credential is stored.
	StatusSignedOut SessionStatus = "signed_out"
	// StatusSignedIn means a credential is stored and the access token is
	// unexpired under the skew-adjusted clock.
	StatusSignedIn SessionStatus = "signed_in"
	// StatusAuthFailed means the server rejected a refresh; the credential
	// has been cleared.
	StatusAuthFailed SessionStatus = "auth_failed"
	// StatusConnectionFailed means a refresh failed at the transport level;
	// the credential is retained until connectivity returns.
	StatusConnectionFailed SessionStatus = "connection_failed"
)

func (s SessionStatus) String() string {
	return string(s)
}

// SessionState is one announced session transition: the status plus
// whatever subject/identity/message context it carries.
type SessionState struct {
	Status   SessionStatus
	Subject  string
	Identity string
	Message  string
}

// sessionTransitions is the legal transition graph. Announcements that
// would violate it indicate a coordination bug and are logged, not applied.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	StatusSignedOut:        {StatusSignedIn, StatusAuthFailed},
	StatusSignedIn:         {StatusSignedIn, StatusSignedOut, StatusAuthFailed, StatusConnectionFailed},
	StatusConnectionFailed: {StatusSignedIn, StatusSignedOut, StatusAuthFailed, StatusConnectionFailed},
	StatusAuthFailed:       {StatusSignedIn, StatusSignedOut},
}

func canTransition(from, to SessionStatus) bool {
	if from == "" {
		return true
	}
	for _, allowed := range sessionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// deriveSessionState recomputes the current state from the stored
// credential: present and unexpired means signed in, absent means signed
// out. Expiry uses the skew-adjusted guarded clock like every other check.
func deriveSessionState(cred *Credential, decoder TokenDecoder, now time.Time) SessionState {
	if cred == nil {
		return SessionState{Status: StatusSignedOut}
	}

	claims, err := cred.AccessClaims(decoder)
	if err != nil {
		return SessionState{Status: StatusSignedOut, Message: "stored access token is malformed"}
	}

	safeNow := now.Unix() + skewGuardSeconds + cred.ClockSkew
	if claims.ExpiresAt <= safeNow && !cred.Refreshable() {
		return SessionState{
			Status:  StatusSignedOut,
			Message: "access token expired with no refresh token",
		}
	}

	return SessionState{
		Status:   StatusSignedIn,
		Subject:  claims.Subject,
		Identity: claims.Identity,
	}
}
