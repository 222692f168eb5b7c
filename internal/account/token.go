package account

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "cuentas"

// DefaultTokenTTL bounds session lifetime; tokens are stateless so expiry
// is the only revocation mechanism.
const DefaultTokenTTL = time.Hour

// Token rejection reasons. Handlers collapse all three into an unauthorized
// response, tests and diagnostics keep them apart.
var (
	ErrTokenMalformed = errors.New("account: malformed token")
	ErrTokenExpired   = errors.New("account: token expired")
	ErrTokenSignature = errors.New("account: invalid token signature")
)

// Claims is the payload embedded in session tokens. Roles and permissions
// are snapshots from issuance time; they are not re-read on verification.
type Claims struct {
	Roles    []RoleClaim `json:"roles"`
	Permisos Permissions `json:"permisos"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HS256 session tokens.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// NewTokenCodec builds a codec around a symmetric secret.
func NewTokenCodec(secret string) (*TokenCodec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	return &TokenCodec{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for the account carrying the given roles and
// permissions, valid for ttl from now.
func (c *TokenCodec) Issue(accountID string, roles []string, perms Permissions, ttl time.Duration) (string, time.Time, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", time.Time{}, errors.New("accountID is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}

	now := c.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Roles:    RoleClaims(roles),
		Permisos: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and returns the embedded claims. The
// returned error is one of ErrTokenMalformed, ErrTokenExpired or
// ErrTokenSignature.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }),
		jwt.WithIssuer(issuer),
	)
	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		default:
			return nil, ErrTokenMalformed
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
