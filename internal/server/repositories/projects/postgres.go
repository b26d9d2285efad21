package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/dbx"
	"github.com/dmitrijs2005/taskauth/internal/server/models"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// LoadProject returns the project with its member set. An id that is not a
// UUID names no project and yields common.ErrorNotFound.
func (r *PostgresRepository) LoadProject(ctx context.Context, id string) (*models.Project, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}

	query :=
		`SELECT id, name, owner_id FROM projects
		 WHERE id = $1
		 `

	p := &models.Project{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	members, err := r.loadMembers(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Members = members

	return p, nil
}

func (r *PostgresRepository) loadMembers(ctx context.Context, projectID string) (map[string]struct{}, error) {
	query :=
		`SELECT user_id FROM project_members
		 WHERE project_id = $1
		 `

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	members := make(map[string]struct{})
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		members[userID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return members, nil
}

func (r *PostgresRepository) LoadTask(ctx context.Context, id string) (*models.TaskItem, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}

	query :=
		`SELECT id, project_id, title, status FROM tasks
		 WHERE id = $1
		 `

	t := &models.TaskItem{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.ProjectID, &t.Title, &t.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}
