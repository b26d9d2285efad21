// Package users is the server's credential store: accounts, password hashes
// and the role names issued into access tokens.
package users

import (
	"context"

	"github.com/dmitrijs2005/taskauth/internal/server/models"
)

type Repository interface {
	// Create inserts the user and its roles. A taken email yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User, roles []string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	// GetRoles returns the user's role names sorted; an account without roles
	// yields an empty slice, not an error.
	GetRoles(ctx context.Context, userID string) ([]string, error)
}
