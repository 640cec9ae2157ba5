package cloudobjects

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// jwtDecoder decodes signed tokens without verifying the signature.
// Verification happens server-side; the client only needs the claims.
type jwtDecoder struct{}

// NewTokenDecoder returns the default JWT-backed TokenDecoder.
func NewTokenDecoder() TokenDecoder {
	return jwtDecoder{}
}

func (jwtDecoder) Decode(token string) (*TokenClaims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	raw, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}

	claims := &TokenClaims{Claims: map[string]any(raw)}

	if sub, err := raw.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if identity, ok := raw["identity"].(string); ok {
		claims.Identity = identity
	}
	if iat, err := raw.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Unix()
	}
	if exp, err := raw.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Unix()
	}

	return claims, nil
}
