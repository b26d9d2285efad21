// Package projects gives the policy engine read-only access to projects and
// tasks. Writes belong to the project service, not to this server.
package projects

import (
	"context"

	"github.com/dmitrijs2005/taskauth/internal/server/models"
)

type Repository interface {
	// LoadProject returns the project with its member set, or common.ErrorNotFound.
	LoadProject(ctx context.Context, id string) (*models.Project, error)
	// LoadTask returns the task, or common.ErrorNotFound.
	LoadTask(ctx context.Context, id string) (*models.TaskItem, error)
}
