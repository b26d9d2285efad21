package models

import (
	"slices"
	"time"
)

// Session is the token pair the CLI currently holds for a signed-in user.
type Session struct {
	Email            string
	Roles            []string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Expired reports whether the refresh token can no longer be rotated.
// An expired session needs a fresh login.
func (s *Session) Expired(now time.Time) bool {
	return !s.RefreshExpiresAt.IsZero() && !now.Before(s.RefreshExpiresAt)
}

func (s *Session) HasRole(role string) bool {
	return slices.Contains(s.Roles, role)
}
