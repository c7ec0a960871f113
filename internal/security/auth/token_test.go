package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	tm := NewTokenManager("test-secret", "", "", 0, 0)

	token, err := tm.Issue(Claims{
		UserID:           "u-1",
		Email:            "alice@example.com",
		Role:             "USER",
		Active:           true,
		ActiveBusinessID: "b-1",
	})
	require.NoError(t, err)

	claims, err := tm.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.UserID)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, "b-1", claims.ActiveBusinessID)
	require.True(t, claims.Active)
	require.False(t, claims.BootstrapAdmin)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager("secret-a", "", "", 0, 0)
	other := NewTokenManager("secret-b", "", "", 0, 0)

	token, err := tm.Issue(Claims{UserID: "u-1", Email: "a@b.c", Role: "USER"})
	require.NoError(t, err)

	_, err = other.Verify(token)
	require.ErrorIs(t, err, ErrTokenSignature)
}

func TestVerifyRejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", "", "", time.Millisecond, 0)

	token, err := tm.Issue(Claims{UserID: "u-1", Email: "a@b.c", Role: "USER"})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = tm.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("secret", "", "", 0, 0)
	_, err := tm.Verify("not.a.token")
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	issuerA := NewTokenManager("secret", "issuer-a", "aud", 0, 0)
	issuerB := NewTokenManager("secret", "issuer-b", "aud", 0, 0)

	token, err := issuerA.Issue(Claims{UserID: "u-1", Email: "a@b.c", Role: "USER"})
	require.NoError(t, err)

	_, err = issuerB.Verify(token)
	require.Error(t, err)
}

func TestRefreshTokenNotAcceptedAsAccess(t *testing.T) {
	tm := NewTokenManager("secret", "", "", 0, 0)

	refresh, err := tm.IssueRefresh(Claims{UserID: "u-1", Email: "a@b.c", Role: "USER"})
	require.NoError(t, err)

	_, err = tm.Verify(refresh)
	require.ErrorIs(t, err, ErrTokenMalformed)

	claims, err := tm.VerifyRefresh(refresh)
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.UserID)
}

func TestBootstrapAdminClaims(t *testing.T) {
	tm := NewTokenManager("secret", "", "", 0, 0)

	token, err := tm.Issue(Claims{
		Email:          "admin@env.local",
		Role:           "SUPER_ADMIN",
		Active:         true,
		BootstrapAdmin: true,
	})
	require.NoError(t, err)

	claims, err := tm.Verify(token)
	require.NoError(t, err)
	require.True(t, claims.BootstrapAdmin)
	require.Empty(t, claims.UserID)
}

func TestExtractToken(t *testing.T) {
	tok, err := ExtractToken("Bearer abc123")
	require.NoError(t, err)
	require.Equal(t, "abc123", tok)

	for _, header := range []string{"", "abc123", "Basic abc123", "Bearer a b"} {
		if _, err := ExtractToken(header); err == nil {
			t.Fatalf("expected error for header %q", header)
		}
	}
}
