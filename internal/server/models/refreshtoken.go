package models

import "time"

// RefreshToken is one row of the refresh token ledger. TokenID is the jti of
// the signed refresh token. Rows are never deleted; RevokedAt only ever goes
// from nil to set.
type RefreshToken struct {
	ID                string
	TokenID           string
	UserID            string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	RevokedAt         *time.Time
	ReplacedByTokenID *string
}

// IsRevoked reports whether the record has been revoked.
func (t RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsActive reports whether the record can still be rotated at now.
func (t RefreshToken) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}
