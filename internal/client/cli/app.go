package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dmitrijs2005/taskauth/internal/client/client"
	"github.com/dmitrijs2005/taskauth/internal/client/config"
	"github.com/dmitrijs2005/taskauth/internal/client/models"
	"github.com/dmitrijs2005/taskauth/internal/client/services"
	"github.com/dmitrijs2005/taskauth/internal/logging"

	_ "modernc.org/sqlite"
)

type App struct {
	config      *config.Config
	authService services.AuthService
	session     *models.Session
	reader      *bufio.Reader
	out         io.Writer
	log         logging.Logger
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stderr, slog.LevelWarn)

	db, err := client.InitDatabase(ctx, c.SessionDB)
	if err != nil {
		return nil, fmt.Errorf("error initializing session store: %w", err)
	}

	apiClient, err := client.NewAuthClient(c.ServerEndpointAddr, c.RequestTimeout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	as := services.NewAuthService(apiClient, db, logger)

	return &App{
		config:      c,
		authService: as,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		log:         logger,
	}, nil
}

// Run resumes a stored session if possible and blocks in the REPL until
// the user exits.
func (a *App) Run(ctx context.Context) {
	defer func() {
		if err := a.authService.Close(ctx); err != nil {
			a.log.Warn(ctx, "close failed", "error", err)
		}
	}()

	fmt.Fprintln(a.out, "Welcome to taskauth CLI (type 'help' for commands)")
	a.resume(ctx)
	runREPL(ctx, a, a.getStatus, a.reader, a.out)
}

func (a *App) resume(ctx context.Context) {
	s, err := a.authService.Restore(ctx)
	switch {
	case err == nil:
		a.session = s
		fmt.Fprintf(a.out, "Resumed session of %s\n", s.Email)
	case errors.Is(err, services.ErrSessionExpired):
		fmt.Fprintln(a.out, "Stored session has expired, please log in")
	case errors.Is(err, client.ErrLocalDataNotAvailable):
	default:
		a.log.Warn(ctx, "failed to restore session", "error", err)
	}
}

func (a *App) isLoggedIn() bool {
	return a.session != nil
}

func (a *App) getStatus() string {
	if a.session == nil {
		return ""
	}
	if len(a.session.Roles) == 0 {
		return fmt.Sprintf("(%s) ", a.session.Email)
	}
	return fmt.Sprintf("(%s %s) ", a.session.Email, strings.Join(a.session.Roles, ","))
}

// dropSessionOn forgets the session when the server no longer accepts it.
func (a *App) dropSessionOn(err error) error {
	if errors.Is(err, client.ErrUnauthorized) {
		a.session = nil
		return fmt.Errorf("session is no longer valid, please log in: %w", err)
	}
	return err
}
