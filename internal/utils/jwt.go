package utils // package utils provides token issuing, hashing and password helpers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/capecontrol/capecontrol-auth/internal/model"
)

// Verification failures. ErrInvalidSignature also covers malformed tokens,
// foreign algorithms and tokens of the wrong type.
var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
)

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string. ID is the jti claim, which the
// access denylist keys on. Access tokens are short-lived and travel in the
// Authorization header when calling protected endpoints.
type AccessToken struct {
	Token string
	Exp   time.Time
	ID    string
}

// RefreshToken represents a long-lived token used to obtain new access tokens.
// The Raw field contains the raw token string returned to the client. The Exp
// field records when it expires. In the ledger only a SHA-256 hash of the raw
// string is stored (see HashToken). Reset tokens use the same shape.
type RefreshToken struct {
	Raw string
	Exp time.Time
}

// Claims is the verified content of an access or refresh token.
type Claims struct {
	UserID    uint64
	Role      model.Role // empty for refresh tokens
	Type      model.TokenType
	ID        string
	ExpiresAt time.Time
}

type tokenClaims struct {
	Role string `json:"role,omitempty"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens with a server-held key.
// Verification is a pure function of the key and the clock; revocation
// state lives in the token ledger.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer builds an Issuer. accessTTL should be much shorter than
// refreshTTL (30 minutes and 7 days by default).
func NewIssuer(secret, issuer string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock returns a copy of the issuer that reads time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccessToken signs a token carrying the user id (sub), role, a
// random jti and the expiry.
func (i *Issuer) IssueAccessToken(userID uint64, role model.Role) (AccessToken, error) {
	raw, id, exp, err := i.sign(userID, role, model.TokenAccess, i.accessTTL)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: raw, Exp: exp, ID: id}, nil
}

// IssueRefreshToken signs a long-lived refresh token. Callers must record
// its hash in the ledger so it can be revoked individually.
func (i *Issuer) IssueRefreshToken(userID uint64) (RefreshToken, error) {
	raw, _, exp, err := i.sign(userID, "", model.TokenRefresh, i.refreshTTL)
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: raw, Exp: exp}, nil
}

// Verify checks an access token's signature and expiry.
func (i *Issuer) Verify(raw string) (Claims, error) {
	return i.parse(raw, model.TokenAccess)
}

// VerifyRefresh checks a refresh token's signature and expiry.
func (i *Issuer) VerifyRefresh(raw string) (Claims, error) {
	return i.parse(raw, model.TokenRefresh)
}

func (i *Issuer) sign(userID uint64, role model.Role, typ model.TokenType, ttl time.Duration) (string, string, time.Time, error) {
	// NumericDate has second precision; truncate so Exp matches the claim.
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)
	id := uuid.NewString()
	// sub carries the user id and typ keeps a refresh token from being
	// accepted where an access token is expected. The jti makes two tokens
	// issued in the same second distinct.
	claims := tokenClaims{
		Role: string(role),
		Type: string(typ),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        id,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, id, exp, nil
}

func (i *Issuer) parse(raw string, want model.TokenType) (Claims, error) {
	var tc tokenClaims
	// Pinning HS256 rejects "none" and any asymmetric algorithm a forged
	// header might name.
	_, err := jwt.ParseWithClaims(raw, &tc,
		func(*jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if model.TokenType(tc.Type) != want {
		return Claims{}, fmt.Errorf("%w: unexpected token type %q", ErrInvalidSignature, tc.Type)
	}
	uid, err := strconv.ParseUint(tc.Subject, 10, 64)
	if err != nil || uid == 0 {
		return Claims{}, fmt.Errorf("%w: bad subject", ErrInvalidSignature)
	}
	c := Claims{UserID: uid, Type: want, ID: tc.ID, ExpiresAt: tc.ExpiresAt.Time.UTC()}
	if want == model.TokenAccess {
		role, ok := model.ParseRole(tc.Role)
		if !ok {
			return Claims{}, fmt.Errorf("%w: unknown role", ErrInvalidSignature)
		}
		c.Role = role
	}
	return c, nil
}

// NewResetToken returns an opaque single-use token for password resets.
func NewResetToken(now time.Time, ttl time.Duration) (RefreshToken, error) {
	raw, err := randomHex(32)
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: raw, Exp: now.UTC().Add(ttl)}, nil
}

// HashToken returns the SHA-256 hex digest stored in the ledger instead of
// the raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data. If the random number generator
// fails, an error is returned.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	// rand.Read fills buf completely or returns an error.
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
