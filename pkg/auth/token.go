package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/lastmile-backend/pkg/config"
	"github.com/angelmondragon/lastmile-backend/pkg/enums"
)

// clockSkew is tolerated on exp, nbf and iat when verifying.
const clockSkew = 30 * time.Second

var (
	ErrInvalidToken     = errors.New("invalid access token")
	errMisconfiguredJWT = errors.New("jwt secret and issuer are required")
)

// AccessTokenPayload is what the caller supplies when issuing a token.
// JTI is generated when empty.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims is the decoded body of a verified access token. The
// subject mirrors user_id for consumers that only read registered claims.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func (c AccessTokenClaims) check() error {
	switch {
	case c.UserID == uuid.Nil:
		return errors.New("missing user_id")
	case !c.Role.IsValid():
		return fmt.Errorf("unknown role %q", c.Role)
	case c.Subject != "" && c.Subject != c.UserID.String():
		return errors.New("subject does not match user_id")
	}
	return nil
}

func signingKey(cfg config.JWTConfig) ([]byte, error) {
	if strings.TrimSpace(cfg.Secret) == "" || strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errMisconfiguredJWT
	}
	return []byte(cfg.Secret), nil
}

// MintAccessToken signs an HS256 token valid for cfg.ExpirationMinutes from now.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	key, err := signingKey(cfg)
	if err != nil {
		return "", err
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", errors.New("jwt expiration minutes must be positive")
	}
	claims := AccessTokenClaims{UserID: payload.UserID, Role: payload.Role}
	if err := claims.check(); err != nil {
		return "", fmt.Errorf("mint access token: %w", err)
	}

	id := strings.TrimSpace(payload.JTI)
	if id == "" {
		id = uuid.NewString()
	}
	now = now.UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   payload.UserID.String(),
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry. Every failure
// wraps ErrInvalidToken.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	key, err := signingKey(cfg)
	if err != nil {
		return nil, err
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
	)

	claims := &AccessTokenClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return key, nil }); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if err := claims.check(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}
