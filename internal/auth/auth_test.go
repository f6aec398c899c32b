package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, now time.Time) *Issuer {
	t.Helper()
	iss, err := NewIssuer(TokenOptions{Secret: []byte("s3cret"), TTL: 30 * time.Minute})
	require.NoError(t, err)
	iss.now = func() time.Time { return now }
	return iss
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(t, now)

	tok, exp, err := iss.Issue("u-admin", "admin")
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(30*time.Minute), exp, time.Second)

	claims, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-admin", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestVerify_Expired(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(t, now)
	tok, _, err := iss.Issue("u-admin", "admin")
	require.NoError(t, err)

	iss.now = func() time.Time { return now.Add(31 * time.Minute) }
	_, err = iss.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	iss := newTestIssuer(t, time.Now())
	tok, _, err := iss.Issue("u-admin", "admin")
	require.NoError(t, err)

	other, err := NewIssuer(TokenOptions{Secret: []byte("other")})
	require.NoError(t, err)
	_, err = other.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	iss := newTestIssuer(t, time.Now())

	claims := jwt.RegisteredClaims{Subject: "admin", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = iss.Verify(hs512)
	assert.ErrorIs(t, err, ErrInvalidToken, "only the configured HMAC variant is accepted")
}

func TestNewIssuer_Validation(t *testing.T) {
	_, err := NewIssuer(TokenOptions{})
	assert.Error(t, err)

	_, err = NewIssuer(TokenOptions{Secret: []byte("x"), Alg: "RS256"})
	assert.Error(t, err)

	iss, err := NewIssuer(TokenOptions{Secret: []byte("x"), Alg: "hs384"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, iss.TTL())
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer   abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		assert.Equal(t, tt.want, got, tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("admin123")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "admin123"))
	assert.False(t, CheckPassword(hash, "admin124"))

	_, err = HashPassword("")
	assert.Error(t, err)
}
