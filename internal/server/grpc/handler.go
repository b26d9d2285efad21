package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/taskauth/internal/api"
	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/server/auth"
	"github.com/dmitrijs2005/taskauth/internal/server/policy"
	"github.com/dmitrijs2005/taskauth/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	msgUnauthorized = "unauthorized"
	msgForbidden    = "forbidden"
	msgInternal     = "internal error"
)

func (s *GRPCServer) Register(ctx context.Context, req *api.RegisterRequest) (*api.TokenPairResponse, error) {
	pair, err := s.users.Register(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, "register", err)
	}
	return toResponse(pair), nil
}

func (s *GRPCServer) Login(ctx context.Context, req *api.LoginRequest) (*api.TokenPairResponse, error) {
	pair, err := s.users.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, "login", err)
	}
	return toResponse(pair), nil
}

func (s *GRPCServer) Refresh(ctx context.Context, req *api.RefreshRequest) (*api.TokenPairResponse, error) {
	pair, err := s.tokens.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus(ctx, "refresh", err)
	}
	return toResponse(pair), nil
}

// Revoke answers the same way for every token the caller presents.
func (s *GRPCServer) Revoke(ctx context.Context, req *api.RevokeRequest) (*api.RevokeResponse, error) {
	s.tokens.Revoke(ctx, req.RefreshToken)
	return &api.RevokeResponse{}, nil
}

func (s *GRPCServer) CheckAccess(ctx context.Context, req *api.CheckAccessRequest) (*api.CheckAccessResponse, error) {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, msgUnauthorized)
	}
	if req.Policy == "" || req.ResourceID == "" {
		return nil, status.Error(codes.InvalidArgument, "policy and resource_id are required")
	}

	if err := s.policies.RequireByID(ctx, req.Policy, principal, req.ResourceID); err != nil {
		return nil, s.toStatus(ctx, "check access", err)
	}
	return &api.CheckAccessResponse{Allowed: true, UserID: principal.UserID}, nil
}

// ListSessions returns the caller's own refresh token records.
func (s *GRPCServer) ListSessions(ctx context.Context, _ *api.ListSessionsRequest) (*api.ListSessionsResponse, error) {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, msgUnauthorized)
	}

	records, err := s.tokens.History(ctx, principal.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, "list sessions", err)
	}

	resp := &api.ListSessionsResponse{Sessions: make([]api.Session, 0, len(records))}
	for _, r := range records {
		resp.Sessions = append(resp.Sessions, api.Session{
			TokenID:           r.TokenID,
			IssuedAt:          r.IssuedAt,
			ExpiresAt:         r.ExpiresAt,
			RevokedAt:         r.RevokedAt,
			ReplacedByTokenID: r.ReplacedByTokenID,
		})
	}
	return resp, nil
}

// toStatus maps service errors to gRPC statuses. Authentication failures all
// carry the same message whatever the internal reason was.
func (s *GRPCServer) toStatus(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, common.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, common.ErrInvalidCredentials.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		s.logger.Info(ctx, op+" unauthorized", "reason", err)
		return status.Error(codes.Unauthenticated, msgUnauthorized)
	case errors.Is(err, common.ErrForbidden):
		return status.Error(codes.PermissionDenied, msgForbidden)
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, policy.ErrUnknownPolicy),
		errors.Is(err, policy.ErrResourceType):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		s.logger.Error(ctx, op+" failed", "error", err)
		return status.Error(codes.Internal, msgInternal)
	}
}

func toResponse(p *services.TokenPair) *api.TokenPairResponse {
	return &api.TokenPairResponse{
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
		Email:            p.Email,
		Roles:            p.Roles,
	}
}
