// Package auth implements the token issuer: RS256-signed bearer tokens
// carrying a whitelisted claim set. Signing requires the private key; any node
// holding only the public key can verify.
package auth

import (
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/identkit/identkit/internal/common"
	"github.com/identkit/identkit/internal/server/models"
)

// Claims is the verified identity attached to a request after token
// verification. It embeds the registered claim set plus the public-safe user
// projection. The password hash and the workflow tokens are never part of it.
type Claims struct {
	jwt.RegisteredClaims
	UserID     string `json:"uid"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Verified   bool   `json:"verified"`
	Name       string `json:"name,omitempty"`
	Age        int    `json:"age,omitempty"`
	Gender     string `json:"gender,omitempty"`
	Newsletter bool   `json:"newsletter,omitempty"`
}

// NewClaims builds the whitelisted claim set for a user.
func NewClaims(u *models.User) *Claims {
	return &Claims{
		UserID:     u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Verified:   u.Verified,
		Name:       u.Name,
		Age:        u.Age,
		Gender:     u.Gender,
		Newsletter: u.Newsletter,
	}
}

// Sign issues an RS256 bearer token for the given claims, valid for the given
// duration. It returns the token string together with its expiry time.
func Sign(claims *Claims, key *rsa.PrivateKey, validity time.Duration) (string, time.Time, error) {
	expires := time.Now().Add(validity)
	claims.ExpiresAt = jwt.NewNumericDate(expires)
	claims.IssuedAt = jwt.NewNumericDate(time.Now())

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, err
	}

	return token, expires, nil
}

// Verify checks signature and expiry of a presented token and returns its
// claims. Malformed tokens, signature mismatches and expired tokens all yield
// the same common.ErrInvalidToken, so the failure mode leaks nothing about
// which check tripped.
func Verify(tokenString string, key *rsa.PublicKey) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, common.ErrInvalidToken
		}
		return key, nil
	})
	if err != nil || !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
