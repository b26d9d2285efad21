// Package refreshtokens declares the refresh token ledger: the only mutable
// state of the token lifecycle.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/server/models"
)

// Repository defines the ledger operations. Records are created once, revoked
// at most once and never deleted.
type Repository interface {
	// Create stores a new record. TokenID must be unique for the life of the system.
	Create(ctx context.Context, token *models.RefreshToken) error

	// FindByTokenID returns the record for a jti, or common.ErrorNotFound.
	FindByTokenID(ctx context.Context, tokenID string) (*models.RefreshToken, error)

	// RevokeIfActive revokes the record only if it is still active at `at`.
	// It is the check-and-revoke primitive of rotation: of two concurrent callers
	// for the same tokenID exactly one gets true.
	RevokeIfActive(ctx context.Context, tokenID string, at time.Time) (bool, error)

	// Revoke revokes the record if it is not revoked yet, expired or not.
	Revoke(ctx context.Context, tokenID string, at time.Time) (bool, error)

	// SetReplacedBy links a rotated record to its successor.
	SetReplacedBy(ctx context.Context, tokenID, replacedByTokenID string) error

	// ListByUser returns every record of userID, newest first.
	ListByUser(ctx context.Context, userID string) ([]models.RefreshToken, error)
}
