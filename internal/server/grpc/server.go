// Package grpc exposes the token lifecycle and the policy engine as the
// taskauth.AuthService gRPC service.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/taskauth/internal/api"
	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/auth"
	"github.com/dmitrijs2005/taskauth/internal/server/models"
	"github.com/dmitrijs2005/taskauth/internal/server/services"
	"google.golang.org/grpc"
)

// UserService is the login/registration API the transport needs.
type UserService interface {
	Register(ctx context.Context, email, password string) (*services.TokenPair, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
}

// TokenService is the rotation/revocation API the transport needs.
type TokenService interface {
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Revoke(ctx context.Context, refreshToken string)
	History(ctx context.Context, userID string) ([]models.RefreshToken, error)
}

// Authorizer decides access to a stored project or task.
type Authorizer interface {
	RequireByID(ctx context.Context, policy string, p auth.Principal, resourceID string) error
}

// AccessTokenValidator validates bearer tokens on protected methods.
type AccessTokenValidator interface {
	Decode(token string, purpose auth.Purpose, checkExpiry bool) (*auth.Claims, error)
}

var _ api.AuthServiceServer = (*GRPCServer)(nil)

type GRPCServer struct {
	address   string
	users     UserService
	tokens    TokenService
	policies  Authorizer
	validator AccessTokenValidator
	logger    logging.Logger
}

func NewGRPCServer(address string, l logging.Logger, us UserService, ts TokenService, pe Authorizer, v AccessTokenValidator) *GRPCServer {
	return &GRPCServer{
		address:   address,
		users:     us,
		tokens:    ts,
		policies:  pe,
		validator: v,
		logger:    l.With("module", "grpc_server"),
	}
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	api.RegisterAuthServiceServer(srv, s)

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping gRPC server...")
			srv.GracefulStop()
		case <-stopped:
		}
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())
	return srv.Serve(lis)
}
