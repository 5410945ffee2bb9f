package models

import "time"

// Session is a refresh-session record. Token is an opaque random secret; the
// session is valid only while the wall clock is before ExpiresAt.
type Session struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
