// Package policy decides whether a principal may act on a project or task.
//
// Policies are resource-shaped: each one asks whether the principal is a
// platform admin, the managing owner, or a member of the project the resource
// belongs to. Rules are evaluated in order, the first match allows, and
// anything unmatched is denied.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/auth"
	"github.com/dmitrijs2005/taskauth/internal/server/models"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/projects"
)

// Policy names.
const (
	OwnerOrAdmin     = "Owner-or-Admin"
	MemberOrHigher   = "Member-or-Higher"
	TaskStatusChange = "Task-Status-Change"
)

var (
	ErrUnknownPolicy = errors.New("unknown policy")
	ErrResourceType  = errors.New("resource type does not match policy")
)

type kind int

const (
	kindProject kind = iota
	kindTask
)

// rule binds a policy name to the resource kind it applies to and the check
// run against the (parent) project.
type rule struct {
	kind    kind
	project func(p auth.Principal, project *models.Project) bool
}

var rules = map[string]rule{
	OwnerOrAdmin:     {kind: kindProject, project: ownerOrAdmin},
	MemberOrHigher:   {kind: kindProject, project: memberOrHigher},
	TaskStatusChange: {kind: kindTask, project: memberOrHigher},
}

// Names returns the registered policy names.
func Names() []string {
	return []string{OwnerOrAdmin, MemberOrHigher, TaskStatusChange}
}

func ownerOrAdmin(p auth.Principal, project *models.Project) bool {
	if p.HasRole(common.RoleAdmin) {
		return true
	}
	return p.HasRole(common.RoleManager) && p.UserID == project.OwnerID
}

func memberOrHigher(p auth.Principal, project *models.Project) bool {
	if ownerOrAdmin(p, project) {
		return true
	}
	return project.HasMember(p.UserID)
}

// Engine evaluates policies. It only ever reads resources.
type Engine struct {
	projects projects.Repository
	log      logging.Logger
}

func NewEngine(repo projects.Repository, log logging.Logger) *Engine {
	return &Engine{projects: repo, log: log.With("module", "policy")}
}

// Authorize evaluates policy name for p against an already loaded resource,
// a *models.Project or a *models.TaskItem depending on the policy.
//
// A task whose project no longer exists is denied without error. An error is
// only returned for an unknown policy, a resource of the wrong type, or a
// failure while loading the task's project; the decision is deny in all of
// those cases.
func (e *Engine) Authorize(ctx context.Context, name string, p auth.Principal, resource any) (bool, error) {
	r, ok := rules[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}

	var (
		allowed bool
		err     error
	)
	switch r.kind {
	case kindProject:
		project, ok := resource.(*models.Project)
		if !ok || project == nil {
			return false, fmt.Errorf("%w: %s expects a project, got %T", ErrResourceType, name, resource)
		}
		allowed = r.project(p, project)
	case kindTask:
		task, ok := resource.(*models.TaskItem)
		if !ok || task == nil {
			return false, fmt.Errorf("%w: %s expects a task, got %T", ErrResourceType, name, resource)
		}
		allowed, err = e.authorizeTask(ctx, r, p, task)
	}

	e.log.Debug(ctx, "policy evaluated", "policy", name, "user_id", p.UserID, "allowed", allowed)
	return allowed, err
}

func (e *Engine) authorizeTask(ctx context.Context, r rule, p auth.Principal, task *models.TaskItem) (bool, error) {
	if p.HasRole(common.RoleAdmin) {
		return true, nil
	}
	project, err := e.projects.LoadProject(ctx, task.ProjectID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			e.log.Warn(ctx, "task references missing project", "task_id", task.ID, "project_id", task.ProjectID)
			return false, nil
		}
		return false, fmt.Errorf("load project %s: %w", task.ProjectID, err)
	}
	return r.project(p, project), nil
}

// AuthorizeByID loads the resource the policy applies to and evaluates it.
// A missing resource is denied without error.
func (e *Engine) AuthorizeByID(ctx context.Context, name string, p auth.Principal, resourceID string) (bool, error) {
	r, ok := rules[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}

	var (
		resource any
		err      error
	)
	switch r.kind {
	case kindProject:
		resource, err = e.projects.LoadProject(ctx, resourceID)
	case kindTask:
		resource, err = e.projects.LoadTask(ctx, resourceID)
	}
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load resource %s: %w", resourceID, err)
	}
	return e.Authorize(ctx, name, p, resource)
}

// Require is Authorize with deny turned into common.ErrForbidden.
func (e *Engine) Require(ctx context.Context, name string, p auth.Principal, resource any) error {
	return forbidUnless(e.Authorize(ctx, name, p, resource))
}

// RequireByID is AuthorizeByID with deny turned into common.ErrForbidden.
func (e *Engine) RequireByID(ctx context.Context, name string, p auth.Principal, resourceID string) error {
	return forbidUnless(e.AuthorizeByID(ctx, name, p, resourceID))
}

func forbidUnless(allowed bool, err error) error {
	if err != nil {
		return err
	}
	if !allowed {
		return common.ErrForbidden
	}
	return nil
}
