package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := NewClaims("user-1", "church-1", "Conselheiro", "Ana", time.Hour)
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Subject != "user-1" || parsed.ChurchID != "church-1" || parsed.Role != "Conselheiro" || parsed.Name != "Ana" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken with wrong secret, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	claims := NewClaims("user-1", "church-1", "Pastor", "Paulo", -time.Minute)
	token, err := SignHS256(claims, "s")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestRS256TokenRejectedByHS256Verifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	claims := NewClaims("user-2", "church-2", "Administrador", "Maria", time.Hour)
	token, err := signRS256(claims, key, "kid-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	parsed, err := VerifyRS256(token, &key.PublicKey)
	if err != nil {
		t.Fatalf("VerifyRS256 failed: %v", err)
	}
	if parsed.Subject != "user-2" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "secret"); err == nil {
		t.Fatal("alg confusion: RS256 token accepted by HS256 verifier")
	}
}

func TestVerifierUsesJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kty: "RSA",
			Kid: "kid-1",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	v := Verifier{JWKS: NewJWKSClient(srv.URL, time.Minute)}
	token, err := signRS256(NewClaims("user-3", "church-3", "Pastor", "João", time.Hour), key, "kid-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.ChurchID != "church-3" {
		t.Fatalf("unexpected church: %s", claims.ChurchID)
	}

	unknown, err := signRS256(NewClaims("user-3", "church-3", "Pastor", "João", time.Hour), key, "kid-2")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Verify(context.Background(), unknown); err == nil {
		t.Fatal("expected unknown kid to fail")
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Fatalf("unexpected: %q %v", tok, ok)
	}
	if _, ok := BearerToken("Basic abc"); ok {
		t.Fatal("basic auth accepted as bearer")
	}
	if _, ok := BearerToken("Bearer "); ok {
		t.Fatal("empty bearer accepted")
	}
}

func signRS256(claims Claims, key *rsa.PrivateKey, kid string) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	return tok.SignedString(key)
}
