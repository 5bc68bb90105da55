package wallet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	signed, err := GenerateToken("secret", alice, time.Hour)
	require.NoError(t, err)

	claims, err := VerifyToken("secret", signed)
	require.NoError(t, err)
	require.Equal(t, alice, claims.Account())
}

func TestVerifyTokenRejects(t *testing.T) {
	signed, err := GenerateToken("secret", alice, time.Hour)
	require.NoError(t, err)

	_, err = VerifyToken("other", signed)
	require.Error(t, err)

	expired, err := GenerateToken("secret", alice, -time.Minute)
	require.NoError(t, err)
	_, err = VerifyToken("secret", expired)
	require.Error(t, err)

	_, err = GenerateToken("", alice, time.Hour)
	require.Error(t, err)
}
