package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/taskauth/internal/dbx"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/projects"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Projects(db dbx.DBTX) projects.Repository
}
