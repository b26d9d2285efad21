// Package client contains the client-side building blocks of the taskauth CLI.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface):
//     Register, Login, Refresh, Revoke, CheckAccess and ListSessions.
//  2. A gRPC implementation (see GRPCClient) that injects the access token
//     through an interceptor, rotates the token pair once when a protected
//     call is rejected as unauthenticated, and maps gRPC status codes to
//     sentinel errors.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) for the
//     SQLite file the CLI keeps its session in.
//
// # Error Handling
//
// Callers match errors with errors.Is against ErrUnavailable,
// ErrUnauthorized, ErrForbidden, ErrAlreadyExists, ErrInvalidInput and
// ErrLocalDataNotAvailable.
//
// GRPCClient is safe for concurrent use; token state is guarded by a mutex.
package client
