package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/dbx"
	"github.com/dmitrijs2005/taskauth/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (token_id, user_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		token.TokenID, token.UserID, token.IssuedAt, token.ExpiresAt).Scan(&token.ID)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByTokenID(ctx context.Context, tokenID string) (*models.RefreshToken, error) {
	query := `
		SELECT id, token_id, user_id, issued_at, expires_at, revoked_at, replaced_by_token_id
		FROM refresh_tokens
		WHERE token_id = $1
	`
	t, err := scanToken(r.db.QueryRowContext(ctx, query, tokenID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// RevokeIfActive is a single guarded UPDATE. Under READ COMMITTED a second
// writer blocks on the row lock, re-evaluates the WHERE clause after the first
// commits and updates nothing.
func (r *PostgresRepository) RevokeIfActive(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE token_id = $1 AND revoked_at IS NULL AND expires_at > $2
	`
	n, err := dbx.ExecAffected(ctx, r.db, query, tokenID, at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE token_id = $1 AND revoked_at IS NULL
	`
	n, err := dbx.ExecAffected(ctx, r.db, query, tokenID, at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) SetReplacedBy(ctx context.Context, tokenID, replacedByTokenID string) error {
	query := `
		UPDATE refresh_tokens
		SET replaced_by_token_id = $2
		WHERE token_id = $1 AND replaced_by_token_id IS NULL
	`
	n, err := dbx.ExecAffected(ctx, r.db, query, tokenID, replacedByTokenID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	query := `
		SELECT id, token_id, user_id, issued_at, expires_at, revoked_at, replaced_by_token_id
		FROM refresh_tokens
		WHERE user_id = $1
		ORDER BY issued_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var tokens []models.RefreshToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return tokens, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(s scanner) (*models.RefreshToken, error) {
	var (
		t          models.RefreshToken
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)
	if err := s.Scan(&t.ID, &t.TokenID, &t.UserID, &t.IssuedAt, &t.ExpiresAt, &revokedAt, &replacedBy); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	if replacedBy.Valid {
		t.ReplacedByTokenID = &replacedBy.String
	}
	return &t, nil
}
