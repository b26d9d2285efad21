package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/cryptox"
	"github.com/dmitrijs2005/taskauth/internal/dbx"
	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/models"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/repomanager"
)

// DefaultRoles are granted to every self-registered account.
var DefaultRoles = []string{common.RoleUser}

// UserService authenticates users against the credential store and hands
// them their first token pair.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *TokenService
	log         logging.Logger
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, tokens *TokenService, log logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		log:         log.With("module", "user_service"),
	}
}

// Login verifies email and password and issues a pair carrying the user's
// current roles. An unknown email and a wrong password both yield
// common.ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = normalizeEmail(email)
	users := s.repomanager.Users(s.db)

	user, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			cryptox.VerifyPassword(nil, password)
			return nil, common.ErrInvalidCredentials
		}
		s.log.Error(ctx, "find user failed", "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	if !cryptox.VerifyPassword(user.PasswordHash, password) {
		s.log.Info(ctx, "login failed", "user_id", user.ID)
		return nil, common.ErrInvalidCredentials
	}

	roles, err := users.GetRoles(ctx, user.ID)
	if err != nil {
		s.log.Error(ctx, "load roles failed", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	return s.tokens.Issue(ctx, user.ID, user.Email, roles)
}

// Register creates an account with DefaultRoles and issues its first pair in
// the same transaction. A taken email yields common.ErrorAlreadyExists.
func (s *UserService) Register(ctx context.Context, email, password string) (*TokenPair, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", common.ErrValidation)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", common.ErrValidation)
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		if cryptox.IsPasswordTooLong(err) {
			return nil, fmt.Errorf("%w: password is too long", common.ErrValidation)
		}
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).Create(ctx, &models.User{Email: email, PasswordHash: hash}, DefaultRoles)
		if err != nil {
			return err
		}
		p, _, err := s.tokens.issue(ctx, tx, user.ID, user.Email, DefaultRoles)
		if err != nil {
			return err
		}
		pair = p
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		s.log.Error(ctx, "register failed", "error", err)
		if !errors.Is(err, common.ErrorInternal) {
			err = fmt.Errorf("%w: %w", common.ErrorInternal, err)
		}
		return nil, err
	}

	s.log.Info(ctx, "user registered", "email", email)
	return pair, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
