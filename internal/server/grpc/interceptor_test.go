package grpc

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/api"
	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func newTestServer(signer *auth.Signer) *GRPCServer {
	return NewGRPCServer("", logging.Discard(), nil, nil, nil, signer)
}

func incoming(token string) context.Context {
	md := metadata.New(map[string]string{common.AccessTokenHeaderName: token})
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestInterceptor_PublicMethodAllowsWithoutToken(t *testing.T) {
	s := newTestServer(auth.NewSigner([]byte("secret"), testIssuer, testAudience))

	called := false
	h := func(ctx context.Context, req any) (any, error) {
		called = true
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: api.MethodLogin}, h)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "ok", resp)
}

func TestInterceptor_ProtectedMissingToken(t *testing.T) {
	s := newTestServer(auth.NewSigner([]byte("secret"), testIssuer, testAudience))

	h := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	}

	for _, m := range []string{api.MethodCheckAccess, api.MethodListSessions} {
		_, err := s.accessTokenInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: m}, h)
		assert.Equal(t, codes.Unauthenticated, status.Code(err), m)
		assert.Equal(t, "missing token", status.Convert(err).Message(), m)
	}
}

func TestInterceptor_ProtectedRejectsBadTokens(t *testing.T) {
	access := auth.NewSigner([]byte("access-secret"), testIssuer, testAudience)
	refresh := auth.NewSigner([]byte("refresh-secret"), testIssuer, testAudience)
	s := newTestServer(access)

	refreshToken, _, err := refresh.Encode("u1", "", nil, auth.PurposeRefresh, time.Hour)
	require.NoError(t, err)
	wrongPurpose, _, err := access.Encode("u1", "", nil, auth.PurposeRefresh, time.Hour)
	require.NoError(t, err)
	expired, _, err := access.Encode("u1", "u1@example.com", nil, auth.PurposeAccess, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-valid-jwt"},
		{name: "refresh token", token: refreshToken},
		{name: "refresh purpose signed with access secret", token: wrongPurpose},
		{name: "expired", token: expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := func(ctx context.Context, req any) (any, error) {
				t.Fatal("handler should not be called for invalid token")
				return nil, nil
			}
			_, err := s.accessTokenInterceptor(incoming(tt.token), nil, &grpc.UnaryServerInfo{FullMethod: api.MethodCheckAccess}, h)
			assert.Equal(t, codes.Unauthenticated, status.Code(err))
			assert.Equal(t, msgUnauthorized, status.Convert(err).Message())
		})
	}
}

func TestInterceptor_ValidTokenSetsPrincipal(t *testing.T) {
	access := auth.NewSigner([]byte("access-secret"), testIssuer, testAudience)
	s := newTestServer(access)

	token, _, err := access.Encode("user-123", "u@example.com", []string{common.RoleManager}, auth.PurposeAccess, time.Hour)
	require.NoError(t, err)

	var got auth.Principal
	var ok bool
	h := func(ctx context.Context, req any) (any, error) {
		got, ok = auth.PrincipalFromContext(ctx)
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(incoming(token), nil, &grpc.UnaryServerInfo{FullMethod: api.MethodCheckAccess}, h)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	require.True(t, ok)
	assert.Equal(t, "user-123", got.UserID)
	assert.True(t, got.HasRole(common.RoleManager))
}

func TestLoggingInterceptor_RecordsMethodAndCode(t *testing.T) {
	var buf bytes.Buffer
	s := NewGRPCServer("", logging.NewJSONLogger(&buf, slog.LevelInfo), nil, nil, nil, nil)

	h := func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.PermissionDenied, msgForbidden)
	}
	_, err := s.loggingInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: api.MethodCheckAccess}, h)
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, api.MethodCheckAccess)
	assert.Contains(t, out, "PermissionDenied")
	assert.Contains(t, out, `"module":"grpc_server"`)
}
