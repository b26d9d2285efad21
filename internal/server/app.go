// Package server wires the taskauth server together: database, migrations,
// services, policy engine and the gRPC endpoint, with graceful shutdown on
// SIGINT/SIGTERM/SIGQUIT.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/config"
	"github.com/dmitrijs2005/taskauth/internal/server/policy"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/taskauth/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/taskauth/internal/server/grpc"
)

type App struct {
	config       *config.Config
	logger       logging.Logger
	db           *sql.DB
	tokenService *services.TokenService
	userService  *services.UserService
	policies     *policy.Engine
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// NewApp connects to the database, applies migrations and builds the
// services. The config must already be validated.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)
	return newApp(ctx, c, logger, repomanager.NewPostgresRepositoryManager())
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger, rm repomanager.RepositoryManager) (*App, error) {
	db, err := sqlOpen("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	ts := services.NewTokenService(db, rm, c, logger)
	us := services.NewUserService(db, rm, ts, logger)
	pe := policy.NewEngine(rm.Projects(db), logger)

	return &App{
		config:       c,
		logger:       logger,
		db:           db,
		tokenService: ts,
		userService:  us,
		policies:     pe,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled or a shutdown signal arrives, then closes
// the database.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger,
		app.userService, app.tokenService, app.policies, app.tokenService.AccessSigner())

	err := s.Run(ctx)
	if err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err)
	}

	if cerr := app.db.Close(); cerr != nil {
		app.logger.Error(ctx, "db close failed", "error", cerr)
	}
	app.logger.Info(ctx, "App stopped")
	return err
}
