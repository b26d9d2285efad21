// Package services contains application services for the taskauth client.
// The authentication service keeps the signed-in session in the local
// metadata store so it survives restarts of the CLI.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/api"
	"github.com/dmitrijs2005/taskauth/internal/client/client"
	"github.com/dmitrijs2005/taskauth/internal/client/models"
	"github.com/dmitrijs2005/taskauth/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/taskauth/internal/dbx"
	"github.com/dmitrijs2005/taskauth/internal/logging"
)

// ErrSessionExpired is returned by Restore when the stored refresh token
// is past its expiry. The stored session is removed.
var ErrSessionExpired = errors.New("session expired")

// Metadata keys of the stored session.
const (
	keyEmail            = "email"
	keyRoles            = "roles"
	keyAccessToken      = "access_token"
	keyAccessExpiresAt  = "access_expires_at"
	keyRefreshToken     = "refresh_token"
	keyRefreshExpiresAt = "refresh_expires_at"
)

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Register / Login: obtain a token pair and persist it.
//   - Restore: load the persisted session into the client.
//   - Refresh: rotate the pair explicitly and persist the new one.
//   - Logout: revoke the refresh token on the server and wipe local data.
//   - CheckAccess / Sessions: protected calls made with the held session.
//
// All methods must honor context cancellation/timeouts.
type AuthService interface {
	Register(ctx context.Context, email string, password []byte) (*models.Session, error)
	Login(ctx context.Context, email string, password []byte) (*models.Session, error)
	Restore(ctx context.Context) (*models.Session, error)
	Refresh(ctx context.Context) (*models.Session, error)
	CheckAccess(ctx context.Context, policy, resourceID string) (bool, error)
	Sessions(ctx context.Context) ([]api.Session, error)
	Logout(ctx context.Context) error
	Close(ctx context.Context) error
}

type authService struct {
	client client.Client
	db     *sql.DB
	log    logging.Logger
	now    func() time.Time
}

// NewAuthService constructs an AuthService bound to the given API client and
// session database. Pairs the client rotates on its own are persisted too.
func NewAuthService(c client.Client, db *sql.DB, log logging.Logger) AuthService {
	a := &authService{client: c, db: db, log: log.With("module", "auth"), now: time.Now}
	c.OnRotate(func(s *models.Session) {
		if err := a.saveSession(context.Background(), s); err != nil {
			a.log.Warn(context.Background(), "failed to persist rotated session", "error", err)
		}
	})
	return a
}

func (a *authService) Register(ctx context.Context, email string, password []byte) (*models.Session, error) {
	s, err := a.client.Register(ctx, email, string(password))
	if err != nil {
		return nil, err
	}
	if err := a.saveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("session saving error: %w", err)
	}
	return s, nil
}

func (a *authService) Login(ctx context.Context, email string, password []byte) (*models.Session, error) {
	s, err := a.client.Login(ctx, email, string(password))
	if err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}
	if err := a.saveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("session saving error: %w", err)
	}
	return s, nil
}

// Restore loads the stored session and hands it to the client. Without a
// stored session it returns client.ErrLocalDataNotAvailable.
func (a *authService) Restore(ctx context.Context) (*models.Session, error) {
	s, err := a.loadSession(ctx)
	if err != nil {
		return nil, err
	}
	if s.Expired(a.now()) {
		if err := a.clearSession(ctx); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}
	a.client.SetSession(s)
	return s, nil
}

// Refresh rotates the pair. A rejected refresh token is dead for good, so
// the stored session is dropped with it.
func (a *authService) Refresh(ctx context.Context) (*models.Session, error) {
	s, err := a.client.Refresh(ctx)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			if cerr := a.clearSession(ctx); cerr != nil {
				a.log.Warn(ctx, "failed to clear rejected session", "error", cerr)
			}
		}
		return nil, err
	}
	if err := a.saveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("session saving error: %w", err)
	}
	return s, nil
}

func (a *authService) CheckAccess(ctx context.Context, policy, resourceID string) (bool, error) {
	return a.client.CheckAccess(ctx, policy, resourceID)
}

func (a *authService) Sessions(ctx context.Context) ([]api.Session, error) {
	return a.client.ListSessions(ctx)
}

// Logout wipes the local session even when the server could not be told.
// The revoke error, if any, is still returned.
func (a *authService) Logout(ctx context.Context) error {
	revokeErr := a.client.Revoke(ctx)
	a.client.SetSession(nil)

	if err := a.clearSession(ctx); err != nil {
		return err
	}
	if revokeErr != nil {
		return fmt.Errorf("revoke: %w", revokeErr)
	}
	return nil
}

// Close releases resources held by the underlying client.
func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}

func (a *authService) saveSession(ctx context.Context, s *models.Session) error {
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Clear(ctx); err != nil {
			return err
		}

		values := map[string]string{
			keyEmail:            s.Email,
			keyRoles:            strings.Join(s.Roles, ","),
			keyAccessToken:      s.AccessToken,
			keyAccessExpiresAt:  formatTime(s.AccessExpiresAt),
			keyRefreshToken:     s.RefreshToken,
			keyRefreshExpiresAt: formatTime(s.RefreshExpiresAt),
		}
		for k, v := range values {
			if v == "" {
				continue
			}
			if err := repo.Set(ctx, k, []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *authService) loadSession(ctx context.Context) (*models.Session, error) {
	values, err := metadata.NewSQLiteRepository(a.db).List(ctx)
	if err != nil {
		return nil, err
	}
	if len(values[keyRefreshToken]) == 0 {
		return nil, client.ErrLocalDataNotAvailable
	}

	accessExp, err := parseTime(values[keyAccessExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", client.ErrLocalDataNotAvailable, err)
	}
	refreshExp, err := parseTime(values[keyRefreshExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", client.ErrLocalDataNotAvailable, err)
	}

	var roles []string
	if r := string(values[keyRoles]); r != "" {
		roles = strings.Split(r, ",")
	}

	return &models.Session{
		Email:            string(values[keyEmail]),
		Roles:            roles,
		AccessToken:      string(values[keyAccessToken]),
		AccessExpiresAt:  accessExp,
		RefreshToken:     string(values[keyRefreshToken]),
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (a *authService) clearSession(ctx context.Context) error {
	return metadata.NewSQLiteRepository(a.db).Clear(ctx)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(b []byte) (time.Time, error) {
	if len(b) == 0 {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, string(b))
}
