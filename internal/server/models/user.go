// Package models contains the server-side data model shared by repositories
// and services.
package models

import "time"

// User is the identity record. PasswordHash is a salted bcrypt hash and must
// never leave the server; Public strips it together with the workflow tokens.
//
// VerificationToken and RecoveryToken are empty when no workflow is pending.
// RecoveryRequestedAt is the zero time when no recovery is pending.
type User struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string
	Verified            bool
	VerificationToken   string
	RecoveryToken       string
	RecoveryRequestedAt time.Time

	// Profile fields, not security relevant.
	Name       string
	Age        int
	Gender     string
	Newsletter bool

	CreatedAt time.Time
}

// PublicUser is the projection of a User that is safe to return to clients.
type PublicUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Verified   bool   `json:"verified"`
	Name       string `json:"name,omitempty"`
	Age        int    `json:"age,omitempty"`
	Gender     string `json:"gender,omitempty"`
	Newsletter bool   `json:"newsletter"`
}

// Public returns the client-safe projection of the user.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Verified:   u.Verified,
		Name:       u.Name,
		Age:        u.Age,
		Gender:     u.Gender,
		Newsletter: u.Newsletter,
	}
}
