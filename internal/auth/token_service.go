package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taskora/taskora/backend/internal/clock"
)

// Token validation errors
var (
	ErrTokenMalformed = errors.New("token is structurally invalid")
	ErrTokenInvalid   = errors.New("token signature, issuer, or audience mismatch")
	ErrTokenExpired   = errors.New("token has expired")
)

// Claims represents the verified payload of a bearer token. The subject is
// the username; authorities carry the role strings.
type Claims struct {
	Authorities []string `json:"authorities"`
	jwt.RegisteredClaims
}

// Username returns the token subject.
func (c *Claims) Username() string {
	return c.Subject
}

// Role returns the primary authority, or empty when none was granted.
func (c *Claims) Role() string {
	if len(c.Authorities) == 0 {
		return ""
	}
	return c.Authorities[0]
}

// TokenService signs and verifies bearer tokens. It is stateless: a token
// verifies under the same secret, issuer, and audience it was issued with,
// and only before its expiry.
type TokenService struct {
	secret   string
	issuer   string
	audience string
	ttl      time.Duration
	clock    clock.Clock
}

// TokenServiceConfig holds configuration for TokenService
type TokenServiceConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
	Clock    clock.Clock
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &TokenService{
		secret:   cfg.Secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		clock:    clk,
	}
}

// Issue signs a new bearer token for the subject with the given authorities.
func (s *TokenService) Issue(subject string, authorities []string) (string, error) {
	now := s.clock.Now()

	claims := Claims{
		Authorities: authorities,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}

// Validate verifies signature, issuer, audience, and expiry, and returns the
// decoded claims on success.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrTokenInvalid
			}
			return []byte(s.secret), nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenInvalid
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}
