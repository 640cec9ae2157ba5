package cloudobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessClaimsDecodesOnce(t *testing.T) {
	cred := &Credential{AccessToken: signTestToken("user-1", "member", 1000, 2000)}

	claims, err := cred.AccessClaims(NewTokenDecoder())
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "member", claims.Identity)
	assert.EqualValues(t, 1000, claims.IssuedAt)
	assert.EqualValues(t, 2000, claims.ExpiresAt)

	// cached view survives even if the decoder would now fail
	cred.AccessToken = "garbage"
	again, err := cred.AccessClaims(NewTokenDecoder())
	require.NoError(t, err)
	assert.Same(t, claims, again)
}

func TestAccessClaimsMalformedToken(t *testing.T) {
	cred := &Credential{AccessToken: "not-a-token"}

	_, err := cred.AccessClaims(NewTokenDecoder())
	assert.True(t, IsTokenMalformed(err))
}

func TestRefreshClaims(t *testing.T) {
	cred := &Credential{
		AccessToken:  signTestToken("user-1", "member", 1000, 2000),
		RefreshToken: signTestToken("user-1", "member", 1000, 9000),
	}

	claims, err := cred.RefreshClaims(NewTokenDecoder())
	require.NoError(t, err)
	assert.EqualValues(t, 9000, claims.ExpiresAt)
}

func TestRefreshable(t *testing.T) {
	var absent *Credential
	assert.False(t, absent.Refreshable())
	assert.False(t, (&Credential{AccessToken: "a"}).Refreshable())
	assert.True(t, (&Credential{AccessToken: "a", RefreshToken: "r"}).Refreshable())
}

func TestSubjectIdentityBeforeDecode(t *testing.T) {
	var absent *Credential
	assert.Empty(t, absent.Subject())
	assert.Empty(t, absent.Identity())

	cred := &Credential{AccessToken: signTestToken("user-1", "member", 1000, 2000)}
	assert.Empty(t, cred.Subject(), "subject is empty until claims are decoded")

	_, err := cred.AccessClaims(NewTokenDecoder())
	require.NoError(t, err)
	assert.Equal(t, "user-1", cred.Subject())
	assert.Equal(t, "member", cred.Identity())
}
