package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestVerify_RoundTrip(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	tok, err := Issue(testSecret, "user-1", time.Hour)
	require.NoError(t, err)

	sub, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestVerify_Rejects(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	wrongSecret, _ := Issue("other-secret", "user-1", time.Hour)
	expired, _ := Issue(testSecret, "user-1", -time.Hour)
	noSubject, _ := Issue(testSecret, "", time.Hour)

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: issuer, Subject: "user-1",
	}).SignedString([]byte(testSecret))

	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: "elsewhere", Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))

	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer: issuer, Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not.a.jwt", ErrInvalidToken},
		{"wrong secret", wrongSecret, ErrInvalidToken},
		{"expired", expired, ErrInvalidToken},
		{"no subject", noSubject, ErrInvalidToken},
		{"no expiry", noExpiry, ErrInvalidToken},
		{"wrong issuer", wrongIssuer, ErrInvalidToken},
		{"alg none", noneAlg, ErrInvalidToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(tc.token)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	_, err := NewVerifier("")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc":  "abc",
		"Basic abc":   "",
		"Bearer":      "",
		"":            "",
		"Bearer  abc": "abc",
	}
	for header, want := range tests {
		r := httptest.NewRequest("POST", "/api/checkout", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, BearerToken(r), "header %q", header)
	}
}

func TestUserIDContext(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-9")
	assert.Equal(t, "user-9", UserID(ctx))
	assert.Empty(t, UserID(context.Background()))
}
