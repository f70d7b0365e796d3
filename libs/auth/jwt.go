package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the identity handed over by the church identity provider:
// subject (user id), role, display name and church. Email is optional.
type Claims struct {
	ChurchID string `json:"church_id"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func NewClaims(userID, churchID, role, name string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		ChurchID: churchID,
		Role:     role,
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseAndVerifyHS256(token, secret string) (*Claims, error) {
	return parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
}

func VerifyRS256(token string, pubKey *rsa.PublicKey) (*Claims, error) {
	return parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		return pubKey, nil
	})
}

func parse(token string, keyFunc jwt.Keyfunc) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, keyFunc, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verifier checks bearer tokens with either a shared HS256 secret or RS256
// keys published on a JWKS endpoint. JWKS wins when both are configured.
type Verifier struct {
	Secret string
	JWKS   *JWKSClient
}

func (v Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	if v.JWKS != nil {
		return parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, ErrInvalidToken
			}
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, ErrKeyNotFound
			}
			return v.JWKS.Get(ctx, kid)
		})
	}
	if v.Secret == "" {
		return nil, errors.New("no token verification configured")
	}
	return ParseAndVerifyHS256(token, v.Secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
