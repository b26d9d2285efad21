// Package services contains server-side business logic: issuing, rotating and
// revoking token pairs (TokenService) and password login/registration
// (UserService).
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/dbx"
	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/auth"
	"github.com/dmitrijs2005/taskauth/internal/server/config"
	"github.com/dmitrijs2005/taskauth/internal/server/models"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/repomanager"
)

// TokenPair is what a successful login, registration or refresh hands back
// to the client.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Email            string
	Roles            []string
}

// TokenService mints token pairs, rotates refresh tokens and revokes them.
// The refresh token ledger is its only state.
type TokenService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	access                       *auth.Signer
	refresh                      *auth.Signer
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	log                          logging.Logger
	now                          func() time.Time
}

func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *TokenService {
	return &TokenService{
		db:                           db,
		repomanager:                  m,
		access:                       auth.NewSigner([]byte(cfg.AccessTokenSecret), cfg.Issuer, cfg.Audience),
		refresh:                      auth.NewSigner([]byte(cfg.RefreshTokenSecret), cfg.Issuer, cfg.Audience),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		log:                          log.With("module", "token_service"),
		now:                          time.Now,
	}
}

// AccessSigner exposes the access-token signer so the transport can validate
// bearer tokens with the same secret, issuer and audience.
func (s *TokenService) AccessSigner() *auth.Signer {
	return s.access
}

// Issue mints a new pair for an already authenticated user and records the
// refresh token in the ledger. No pair is returned without a ledger row.
func (s *TokenService) Issue(ctx context.Context, userID, email string, roles []string) (*TokenPair, error) {
	pair, _, err := s.issue(ctx, s.db, userID, email, roles)
	return pair, err
}

// issue writes the ledger row through db, so callers running a transaction
// get the row inside it. It also returns the new refresh token's jti.
func (s *TokenService) issue(ctx context.Context, db dbx.DBTX, userID, email string, roles []string) (*TokenPair, string, error) {
	access, accessClaims, err := s.access.Encode(userID, email, roles, auth.PurposeAccess, s.accessTokenValidityDuration)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	refresh, refreshClaims, err := s.refresh.Encode(userID, "", nil, auth.PurposeRefresh, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	record := &models.RefreshToken{
		TokenID:   refreshClaims.ID,
		UserID:    userID,
		IssuedAt:  refreshClaims.IssuedAt.Time,
		ExpiresAt: refreshClaims.ExpiresAt.Time,
	}
	if err := s.repomanager.RefreshTokens(db).Create(ctx, record); err != nil {
		return nil, "", fmt.Errorf("%w: store refresh token: %w", common.ErrorInternal, err)
	}

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
		Email:            email,
		Roles:            accessClaims.Roles,
	}, refreshClaims.ID, nil
}

// Refresh rotates refreshToken: the presented token is revoked, a new pair is
// issued and the old ledger row is linked to the new one, all in one
// transaction. Every rejection is common.ErrorUnauthorized wrapping the
// internal reason; ledger failures are common.ErrorInternal.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.refresh.Decode(refreshToken, auth.PurposeRefresh, true)
	if err != nil {
		return nil, s.reject(ctx, err)
	}

	record, err := s.repomanager.RefreshTokens(s.db).FindByTokenID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, s.reject(ctx, common.ErrTokenNotActive, "token_id", claims.ID)
		}
		return nil, s.internal(ctx, "find refresh token", err)
	}

	now := s.now()
	if !record.IsActive(now) {
		if record.IsRevoked() {
			s.log.Warn(ctx, "refresh token replay", "token_id", record.TokenID, "user_id", record.UserID)
		}
		return nil, s.reject(ctx, common.ErrTokenNotActive, "token_id", record.TokenID)
	}
	if record.UserID != claims.Subject {
		return nil, s.reject(ctx, common.ErrInvalidToken, "token_id", record.TokenID)
	}

	users := s.repomanager.Users(s.db)
	user, err := users.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, s.reject(ctx, common.ErrUserNotFound, "user_id", record.UserID)
		}
		return nil, s.internal(ctx, "find user", err)
	}
	roles, err := users.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, s.internal(ctx, "load roles", err)
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ledger := s.repomanager.RefreshTokens(tx)

		ok, err := ledger.RevokeIfActive(ctx, record.TokenID, now)
		if err != nil {
			return fmt.Errorf("%w: revoke refresh token: %w", common.ErrorInternal, err)
		}
		if !ok {
			// Lost the race against a concurrent rotation or revoke.
			s.log.Warn(ctx, "refresh token rotated concurrently", "token_id", record.TokenID, "user_id", user.ID)
			return fmt.Errorf("%w: %w", common.ErrorUnauthorized, common.ErrTokenNotActive)
		}

		p, newTokenID, err := s.issue(ctx, tx, user.ID, user.Email, roles)
		if err != nil {
			return err
		}
		if err := ledger.SetReplacedBy(ctx, record.TokenID, newTokenID); err != nil {
			return fmt.Errorf("%w: link rotated token: %w", common.ErrorInternal, err)
		}
		pair = p
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return nil, err
		}
		if !errors.Is(err, common.ErrorInternal) {
			err = fmt.Errorf("%w: %w", common.ErrorInternal, err)
		}
		s.log.Error(ctx, "refresh token rotation failed", "token_id", record.TokenID, "error", err)
		return nil, err
	}

	s.log.Info(ctx, "refresh token rotated", "user_id", user.ID, "token_id", record.TokenID)
	return pair, nil
}

// Revoke closes refreshToken in the ledger. Invalid, unknown and already
// revoked tokens are silently ignored so the caller learns nothing about
// which tokens exist. Ledger failures are logged and not returned.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) {
	claims, err := s.refresh.Decode(refreshToken, auth.PurposeRefresh, false)
	if err != nil {
		s.log.Debug(ctx, "revoke ignored invalid token", "reason", err)
		return
	}

	ledger := s.repomanager.RefreshTokens(s.db)
	record, err := ledger.FindByTokenID(ctx, claims.ID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.log.Error(ctx, "revoke: find refresh token failed", "token_id", claims.ID, "error", err)
		}
		return
	}
	if record.IsRevoked() {
		return
	}

	revoked, err := ledger.Revoke(ctx, record.TokenID, s.now())
	if err != nil {
		s.log.Error(ctx, "revoke: revoke refresh token failed", "token_id", record.TokenID, "error", err)
		return
	}
	if revoked {
		s.log.Info(ctx, "refresh token revoked", "user_id", record.UserID, "token_id", record.TokenID)
	}
}

func (s *TokenService) reject(ctx context.Context, reason error, args ...any) error {
	s.log.Info(ctx, "refresh rejected", append([]any{"reason", reason}, args...)...)
	return fmt.Errorf("%w: %w", common.ErrorUnauthorized, reason)
}

func (s *TokenService) internal(ctx context.Context, op string, err error) error {
	s.log.Error(ctx, op+" failed", "error", err)
	return fmt.Errorf("%w: %s: %w", common.ErrorInternal, op, err)
}

// History returns the caller's refresh token records, newest first, as the
// audit view of their rotation chains.
func (s *TokenService) History(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	records, err := s.repomanager.RefreshTokens(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, s.internal(ctx, "list refresh tokens", err)
	}
	return records, nil
}
