package fakeapi

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session kinds carried in the "kind" claim.
const (
	kindUser      = "user"
	kindPointSale = "point_sale"
)

type sessionClaims struct {
	Kind string `json:"kind"`
	jwtlib.RegisteredClaims
}

// tokenCreator issues and verifies HS256 session cookies.
type tokenCreator struct {
	secret  []byte
	ttl     time.Duration
	nowTime func() time.Time
}

func (c *tokenCreator) create(kind string, subject int) (string, *sessionClaims, error) {
	now := c.nowTime()
	claims := &sessionClaims{
		Kind: kind,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.Itoa(subject),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.New().String(), // jti, used for revocation
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, claims, nil
}

func (c *tokenCreator) parse(raw, kind string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, func(*jwtlib.Token) (any, error) {
		return c.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithTimeFunc(c.nowTime))
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("token kind %q, want %q", claims.Kind, kind)
	}
	return claims, nil
}

// revokedTokens holds the jti of every logged-out session until it expires.
type revokedTokens struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
}

func newRevokedTokens() *revokedTokens {
	return &revokedTokens{revoked: make(map[string]time.Time)}
}

func (c *revokedTokens) add(jti string, exp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[jti] = exp
}

func (c *revokedTokens) isRevoked(jti string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.revoked[jti]
	return exists
}

// cleanup removes entries whose token would be rejected as expired anyway.
func (c *revokedTokens) cleanup(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for jti, exp := range c.revoked {
		if now.After(exp) {
			delete(c.revoked, jti)
		}
	}
}
