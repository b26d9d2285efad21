package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/taskauth/internal/client/client"
	"github.com/dmitrijs2005/taskauth/internal/shared"
)

// getSimpleText and getPassword point to the interactive input helpers and
// can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for an email and password, creates the account and
// signs the user in with the returned pair.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(password)

	s, err := a.authService.Register(ctx, email, password)
	if err != nil {
		if errors.Is(err, client.ErrAlreadyExists) {
			return fmt.Errorf("%s is already registered", email)
		}
		return err
	}

	a.session = s
	fmt.Fprintf(a.out, "Registered as %s\n", s.Email)
	return nil
}

// Login prompts for credentials and signs the user in.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(password)

	s, err := a.authService.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			return errors.New("invalid email or password")
		}
		return err
	}

	a.session = s
	fmt.Fprintf(a.out, "Logged in as %s, roles: %s\n", s.Email, strings.Join(s.Roles, ", "))
	return nil
}

// Refresh rotates the pair. The roles shown afterwards are the user's
// current roles on the server.
func (a *App) Refresh(ctx context.Context) error {
	if !a.isLoggedIn() {
		return errors.New("not logged in")
	}

	s, err := a.authService.Refresh(ctx)
	if err != nil {
		return a.dropSessionOn(err)
	}

	a.session = s
	fmt.Fprintf(a.out, "Tokens rotated, session valid until %s\n", s.RefreshExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

// Logout revokes the refresh token and forgets the session locally even
// when the server cannot be reached.
func (a *App) Logout(ctx context.Context) error {
	if !a.isLoggedIn() {
		return errors.New("not logged in")
	}

	err := a.authService.Logout(ctx)
	a.session = nil
	if err != nil {
		return fmt.Errorf("logged out locally, %w", err)
	}

	fmt.Fprintln(a.out, "Logged out")
	return nil
}
