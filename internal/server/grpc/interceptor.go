package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/api"
	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// protectedMethods require a valid access token.
var protectedMethods = map[string]struct{}{
	api.MethodCheckAccess:  {},
	api.MethodListSessions: {},
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if _, ok := protectedMethods[info.FullMethod]; !ok {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			accessToken = values[0]
		}
	}
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := s.validator.Decode(accessToken, auth.PurposeAccess, true)
	if err != nil {
		s.logger.Debug(ctx, "access token rejected", "method", info.FullMethod, "reason", err)
		return nil, status.Error(codes.Unauthenticated, msgUnauthorized)
	}

	return handler(auth.WithPrincipal(ctx, claims.Principal()), req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Info(ctx, "request",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start))
	return resp, err
}
