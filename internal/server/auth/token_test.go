package auth

import (
	"crypto/rsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/identkit/identkit/internal/common"
	"github.com/identkit/identkit/internal/server/models"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}
	return key
}

func testUser() *models.User {
	return &models.User{
		ID:           "user-123",
		Username:     "username",
		Email:        "test@test.com",
		PasswordHash: "$2a$10$secret-must-not-appear",
		Verified:     true,
		Name:         "Tester",
	}
}

func TestSignAndVerify_Success(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	tok, expires, err := Sign(NewClaims(testUser()), key, time.Hour)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	if !expires.After(time.Now()) {
		t.Fatalf("expiry not in the future: %v", expires)
	}

	claims, err := Verify(tok, &key.PublicKey)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.UserID != "user-123" || claims.Username != "username" || !claims.Verified {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestSign_NeverEmbedsPasswordHash(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	tok, _, err := Sign(NewClaims(testUser()), key, time.Hour)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	if strings.Contains(tok, "secret-must-not-appear") {
		t.Fatalf("token leaks the password hash")
	}
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	tok, _, err := Sign(NewClaims(testUser()), key, -time.Second)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}

	_, err = Verify(tok, &key.PublicKey)
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestVerify_WrongKey(t *testing.T) {
	t.Parallel()

	tok, _, err := Sign(NewClaims(testUser()), testKey(t), time.Hour)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}

	other := testKey(t)
	_, err = Verify(tok, &other.PublicKey)
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	_, err := Verify("not.a.jwt", &key.PublicKey)
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestVerify_RejectsNonRSAAlgorithm(t *testing.T) {
	t.Parallel()

	// A token signed with HS256 must never pass RSA verification, even when
	// the attacker uses the public key bytes as the HMAC secret.
	key := testKey(t)
	pubPEM, err := PublicKeyPEM(&key.PublicKey)
	if err != nil {
		t.Fatalf("PublicKeyPEM error: %v", err)
	}

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(pubPEM)
	if err != nil {
		t.Fatalf("forging token: %v", err)
	}

	_, err = Verify(forged, &key.PublicKey)
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestPublicKeyPEM_RoundTrip(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	pemBytes, err := PublicKeyPEM(&key.PublicKey)
	if err != nil {
		t.Fatalf("PublicKeyPEM error: %v", err)
	}
	if !strings.Contains(string(pemBytes), "BEGIN PUBLIC KEY") {
		t.Fatalf("unexpected PEM output: %s", pemBytes)
	}
}
