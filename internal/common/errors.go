// Package common defines shared constants and sentinel errors used across
// the taskauth server layers. Callers should use errors.Is to match these
// values; services wrap them with extra context for logging.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")

	// Login with an unknown email or a wrong password. Both cases look the same
	// to the caller.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// Token validation errors. They are wrapped into ErrorUnauthorized before
	// leaving the service layer.
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenNotActive = errors.New("token not active")
	ErrUserNotFound   = errors.New("user not found")

	// The caller is authenticated but a policy denied the request.
	ErrForbidden = errors.New("forbidden")

	// Missing or inconsistent startup configuration.
	ErrConfiguration = errors.New("configuration error")
)
