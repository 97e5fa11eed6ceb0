package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_IssueThenVerify(t *testing.T) {
	ti := NewTokenIssuer([]byte("test-secret"), "sigilgraphd")

	token, err := ti.Issue("sub-1", time.Minute)
	require.NoError(t, err)

	claims, err := ti.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "sub-1", claims.Subscriber)
}

func TestTokenIssuer_RejectsExpiredToken(t *testing.T) {
	ti := NewTokenIssuer([]byte("test-secret"), "sigilgraphd")

	token, err := ti.Issue("sub-1", -time.Minute)
	require.NoError(t, err)

	_, err = ti.Verify(token)
	require.Error(t, err)
}

func TestTokenIssuer_RejectsWrongSecret(t *testing.T) {
	ti1 := NewTokenIssuer([]byte("secret-a"), "sigilgraphd")
	ti2 := NewTokenIssuer([]byte("secret-b"), "sigilgraphd")

	token, err := ti1.Issue("sub-1", time.Minute)
	require.NoError(t, err)

	_, err = ti2.Verify(token)
	require.Error(t, err)
}
