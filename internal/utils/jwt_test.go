package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capecontrol/capecontrol-auth/internal/model"
)

const testSecret = "test-secret-key-min-32-bytes-long!"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestIssuer(clock *fakeClock) *Issuer {
	return NewIssuer(testSecret, "capecontrol", 30*time.Minute, 7*24*time.Hour).WithClock(clock.Now)
}

func TestIssuer_AccessTokenRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	iss := newTestIssuer(clock)

	tok, err := iss.IssueAccessToken(42, model.RoleDeveloper)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(30*time.Minute), tok.Exp)
	assert.NotEmpty(t, tok.ID)

	claims, err := iss.Verify(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, model.RoleDeveloper, claims.Role)
	assert.Equal(t, model.TokenAccess, claims.Type)
	assert.Equal(t, tok.ID, claims.ID)
	assert.Equal(t, tok.Exp, claims.ExpiresAt)
}

func TestIssuer_AccessTokenExpires(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	iss := newTestIssuer(clock)

	tok, err := iss.IssueAccessToken(7, model.RoleCustomer)
	require.NoError(t, err)

	clock.Advance(30*time.Minute - time.Second)
	_, err = iss.Verify(tok.Token)
	require.NoError(t, err, "token must verify until its expiry")

	clock.Advance(2 * time.Second)
	_, err = iss.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestIssuer_RejectsForeignKey(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	iss := newTestIssuer(clock)
	other := NewIssuer("another-secret-key-also-32-bytes!!", "capecontrol", time.Minute, time.Hour).WithClock(clock.Now)

	tok, err := other.IssueAccessToken(1, model.RoleAdmin)
	require.NoError(t, err)

	_, err = iss.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestIssuer_ExpiredTokenWithBadSignatureIsInvalid(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	iss := newTestIssuer(clock)
	other := NewIssuer("another-secret-key-also-32-bytes!!", "capecontrol", time.Minute, time.Hour).WithClock(clock.Now)

	tok, err := other.IssueAccessToken(1, model.RoleAdmin)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	_, err = iss.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.NotErrorIs(t, err, ErrExpired)
}

func TestIssuer_TokenTypesAreNotInterchangeable(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	iss := newTestIssuer(clock)

	access, err := iss.IssueAccessToken(5, model.RoleCustomer)
	require.NoError(t, err)
	refresh, err := iss.IssueRefreshToken(5)
	require.NoError(t, err)

	_, err = iss.Verify(refresh.Raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = iss.VerifyRefresh(access.Token)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	claims, err := iss.VerifyRefresh(refresh.Raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), claims.UserID)
	assert.Equal(t, model.TokenRefresh, claims.Type)
}

func TestIssuer_RefreshTokensAreUnique(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	iss := newTestIssuer(clock)

	a, err := iss.IssueRefreshToken(9)
	require.NoError(t, err)
	b, err := iss.IssueRefreshToken(9)
	require.NoError(t, err)
	assert.NotEqual(t, a.Raw, b.Raw)
	assert.NotEqual(t, HashToken(a.Raw), HashToken(b.Raw))
}

func TestIssuer_RejectsUnsignedAndMalformed(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	iss := newTestIssuer(clock)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":  "1",
		"role": "ADMIN",
		"typ":  "access",
		"iss":  "capecontrol",
		"exp":  clock.t.Add(time.Hour).Unix(),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for _, raw := range []string{"", "not-a-jwt", "a.b.c", unsigned, strings.Repeat("x", 4096)} {
		_, err := iss.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidSignature, "input %q", raw)
	}
}

func TestIssuer_RejectsUnknownRole(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	iss := newTestIssuer(clock)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "1",
		"role": "OWNER",
		"typ":  "access",
		"iss":  "capecontrol",
		"exp":  clock.t.Add(time.Hour).Unix(),
	})
	raw, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = iss.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestNewResetToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tok, err := NewResetToken(now, time.Hour)
	require.NoError(t, err)
	assert.Len(t, tok.Raw, 64)
	assert.Equal(t, now.Add(time.Hour), tok.Exp)
	assert.Len(t, HashToken(tok.Raw), 64)
	assert.NotEqual(t, tok.Raw, HashToken(tok.Raw))
}
