// Package cli provides the interactive taskauth command-line client.
//
// It wires configuration, the local session store, the auth service and an
// interactive REPL. On start it resumes a stored session if one is still
// valid; otherwise the user registers or logs in.
//
// Commands:
//   - register / login / logout
//   - refresh: rotate the token pair explicitly
//   - check <policy> <resource-id>: ask the server whether an action is allowed
//   - sessions: list the refresh tokens issued to the signed-in user
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
