package models

import "time"

// User is the credential store's view of an account. Profile data lives
// elsewhere; the server only needs the identity and the password hash.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}
