package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/api"
)

const checkUsage = "Usage: check <Owner-or-Admin|Member-or-Higher|Task-Status-Change> <resource-id>"

// Check asks the server whether the signed-in user passes a policy on a
// project or task.
func (a *App) Check(ctx context.Context, args []string) error {
	if !a.isLoggedIn() {
		return errors.New("not logged in")
	}
	if len(args) != 2 {
		fmt.Fprintln(a.out, checkUsage)
		return nil
	}

	ok, err := a.authService.CheckAccess(ctx, args[0], args[1])
	if err != nil {
		return a.dropSessionOn(err)
	}

	if ok {
		fmt.Fprintf(a.out, "%s on %s: allowed\n", args[0], args[1])
	} else {
		fmt.Fprintf(a.out, "%s on %s: denied\n", args[0], args[1])
	}
	return nil
}

// Sessions prints the refresh tokens issued to the signed-in user, newest first.
func (a *App) Sessions(ctx context.Context) error {
	if !a.isLoggedIn() {
		return errors.New("not logged in")
	}

	sessions, err := a.authService.Sessions(ctx)
	if err != nil {
		return a.dropSessionOn(err)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(a.out, "No sessions")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOKEN ID\tISSUED\tEXPIRES\tSTATE")
	now := time.Now()
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			s.TokenID,
			s.IssuedAt.Local().Format(time.DateTime),
			s.ExpiresAt.Local().Format(time.DateTime),
			sessionState(s, now),
		)
	}
	return tw.Flush()
}

func sessionState(s api.Session, now time.Time) string {
	switch {
	case s.ReplacedByTokenID != nil:
		return "rotated"
	case s.RevokedAt != nil:
		return "revoked"
	case !now.Before(s.ExpiresAt):
		return "expired"
	default:
		return "active"
	}
}
