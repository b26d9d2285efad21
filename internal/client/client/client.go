package client

import (
	"context"

	"github.com/dmitrijs2005/taskauth/internal/api"
	"github.com/dmitrijs2005/taskauth/internal/client/models"
)

// Client is the CLI's view of the auth server. Implementations keep the
// current token pair and attach the access token to protected calls.
type Client interface {
	Close() error
	Register(ctx context.Context, email, password string) (*models.Session, error)
	Login(ctx context.Context, email, password string) (*models.Session, error)
	Refresh(ctx context.Context) (*models.Session, error)
	Revoke(ctx context.Context) error
	CheckAccess(ctx context.Context, policy, resourceID string) (bool, error)
	ListSessions(ctx context.Context) ([]api.Session, error)

	// SetSession replaces the held tokens, e.g. with a session restored from disk.
	SetSession(s *models.Session)

	// OnRotate registers a callback invoked with every new pair the client
	// obtains by itself during a transparent refresh.
	OnRotate(fn func(*models.Session))
}
