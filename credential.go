package cloudobjects

// TokenClaims is the decoded view of a signed token. Timestamps are unix
// seconds as issued by the server.
type TokenClaims struct {
	Subject   string
	Identity  string
	IssuedAt  int64
	ExpiresAt int64
	Claims    map[string]any
}

// Credential is the access/refresh token pair for one project session.
// ClockSkew is server issued-at minus local now, captured when the tokens
// were issued, and is applied to every later expiry comparison. Decoded
// claim views are computed once and cached alongside the raw tokens.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ClockSkew    int64  `json:"clock_skew"`

	accessClaims  *TokenClaims
	refreshClaims *TokenClaims
}

// AccessClaims returns the decoded access token claims, decoding on first
// use and caching the result.
func (c *Credential) AccessClaims(decoder TokenDecoder) (*TokenClaims, error) {
	if c.accessClaims != nil {
		return c.accessClaims, nil
	}
	claims, err := decoder.Decode(c.AccessToken)
	if err != nil {
		return nil, err
	}
	c.accessClaims = claims
	return claims, nil
}

// RefreshClaims returns the decoded refresh token claims, decoding on first
// use and caching the result. Callers must check Refreshable first.
func (c *Credential) RefreshClaims(decoder TokenDecoder) (*TokenClaims, error) {
	if c.refreshClaims != nil {
		return c.refreshClaims, nil
	}
	claims, err := decoder.Decode(c.RefreshToken)
	if err != nil {
		return nil, err
	}
	c.refreshClaims = claims
	return claims, nil
}

// Refreshable reports whether the credential carries a refresh token. A
// credential without one is never refreshed, only replaced by a new sign-in.
func (c *Credential) Refreshable() bool {
	return c != nil && c.RefreshToken != ""
}

// Subject returns the subject claim of the access token if it has been
// decoded, otherwise the empty string.
func (c *Credential) Subject() string {
	if c == nil || c.accessClaims == nil {
		return ""
	}
	return c.accessClaims.Subject
}

// Identity returns the identity claim of the access token if it has been
// decoded, otherwise the empty string.
func (c *Credential) Identity() string {
	if c == nil || c.accessClaims == nil {
		return ""
	}
	return c.accessClaims.Identity
}
