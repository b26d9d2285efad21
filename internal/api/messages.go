package api

import "time"

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RevokeRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RevokeResponse struct{}

// TokenPairResponse is returned by Register, Login and Refresh.
type TokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	Email            string    `json:"email"`
	Roles            []string  `json:"roles"`
}

// CheckAccessRequest asks whether the caller may act on a project or task
// under the named policy.
type CheckAccessRequest struct {
	Policy     string `json:"policy"`
	ResourceID string `json:"resource_id"`
}

type CheckAccessResponse struct {
	Allowed bool   `json:"allowed"`
	UserID  string `json:"user_id"`
}

type ListSessionsRequest struct{}

// Session is one refresh token record of the caller.
type Session struct {
	TokenID           string     `json:"token_id"`
	IssuedAt          time.Time  `json:"issued_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty"`
	ReplacedByTokenID *string    `json:"replaced_by_token_id,omitempty"`
}

type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
}
