package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/api"
	"github.com/dmitrijs2005/taskauth/internal/client/models"
	"github.com/dmitrijs2005/taskauth/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// authAPI is the subset of *api.AuthServiceClient the client calls.
type authAPI interface {
	Register(ctx context.Context, in *api.RegisterRequest, opts ...grpc.CallOption) (*api.TokenPairResponse, error)
	Login(ctx context.Context, in *api.LoginRequest, opts ...grpc.CallOption) (*api.TokenPairResponse, error)
	Refresh(ctx context.Context, in *api.RefreshRequest, opts ...grpc.CallOption) (*api.TokenPairResponse, error)
	Revoke(ctx context.Context, in *api.RevokeRequest, opts ...grpc.CallOption) (*api.RevokeResponse, error)
	CheckAccess(ctx context.Context, in *api.CheckAccessRequest, opts ...grpc.CallOption) (*api.CheckAccessResponse, error)
	ListSessions(ctx context.Context, in *api.ListSessionsRequest, opts ...grpc.CallOption) (*api.ListSessionsResponse, error)
}

// protectedMethods carry the access token and are retried once after a
// transparent refresh.
var protectedMethods = map[string]struct{}{
	api.MethodCheckAccess:  {},
	api.MethodListSessions: {},
}

var _ Client = (*GRPCClient)(nil)

type GRPCClient struct {
	endpointURL string
	timeout     time.Duration
	conn        *grpc.ClientConn
	client      authAPI

	mu       sync.Mutex
	session  *models.Session
	onRotate func(*models.Session)

	// rotateMu serializes transparent refreshes so concurrent calls do not
	// present the same refresh token twice.
	rotateMu sync.Mutex
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) tokens() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return "", ""
	}
	return s.session.AccessToken, s.session.RefreshToken
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if _, ok := protectedMethods[method]; !ok {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	access, refresh := s.tokens()
	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if status.Code(err) != codes.Unauthenticated || refresh == "" {
		return err
	}

	if rerr := s.rotate(ctx, refresh); rerr != nil {
		return err
	}

	access, _ = s.tokens()
	return invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
}

// rotate exchanges used for a new pair unless a concurrent call already did.
func (s *GRPCClient) rotate(ctx context.Context, used string) error {
	s.rotateMu.Lock()
	defer s.rotateMu.Unlock()

	if _, current := s.tokens(); current != used {
		return nil
	}

	resp, err := s.client.Refresh(ctx, &api.RefreshRequest{RefreshToken: used})
	if err != nil {
		return err
	}

	sess := sessionFromResponse(resp)
	s.SetSession(sess)

	s.mu.Lock()
	hook := s.onRotate
	s.mu.Unlock()
	if hook != nil {
		hook(sess)
	}
	return nil
}

func sessionFromResponse(resp *api.TokenPairResponse) *models.Session {
	return &models.Session{
		Email:            resp.Email,
		Roles:            resp.Roles,
		AccessToken:      resp.AccessToken,
		AccessExpiresAt:  resp.AccessExpiresAt,
		RefreshToken:     resp.RefreshToken,
		RefreshExpiresAt: resp.RefreshExpiresAt,
	}
}

// NewAuthClient connects to the server at endpointURL. Every call gets the
// given timeout unless the caller's context is shorter.
func NewAuthClient(endpointURL string, timeout time.Duration) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, timeout: timeout}
	err := c.InitGRPCClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(opts ...grpc.DialOption) error {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = api.NewAuthServiceClient(conn)
	return nil
}

func (s *GRPCClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *GRPCClient) SetSession(sess *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sess
}

func (s *GRPCClient) OnRotate(fn func(*models.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRotate = fn
}

func (s *GRPCClient) Register(ctx context.Context, email, password string) (*models.Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Register(ctx, &api.RegisterRequest{Email: email, Password: password})
	if err != nil {
		return nil, s.mapError(err)
	}

	sess := sessionFromResponse(resp)
	s.SetSession(sess)
	return sess, nil
}

func (s *GRPCClient) Login(ctx context.Context, email, password string) (*models.Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Login(ctx, &api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, s.mapError(err)
	}

	sess := sessionFromResponse(resp)
	s.SetSession(sess)
	return sess, nil
}

// Refresh rotates the held pair explicitly.
func (s *GRPCClient) Refresh(ctx context.Context) (*models.Session, error) {
	_, refresh := s.tokens()
	if refresh == "" {
		return nil, ErrUnauthorized
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Refresh(ctx, &api.RefreshRequest{RefreshToken: refresh})
	if err != nil {
		return nil, s.mapError(err)
	}

	sess := sessionFromResponse(resp)
	s.SetSession(sess)
	return sess, nil
}

// Revoke ends the held session on the server and forgets the tokens.
// Without a session it does nothing.
func (s *GRPCClient) Revoke(ctx context.Context) error {
	_, refresh := s.tokens()
	if refresh == "" {
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.Revoke(ctx, &api.RevokeRequest{RefreshToken: refresh}); err != nil {
		return s.mapError(err)
	}

	s.SetSession(nil)
	return nil
}

// CheckAccess reports whether the server allows the signed-in user to act
// on resourceID under policy. A denial is (false, nil).
func (s *GRPCClient) CheckAccess(ctx context.Context, policy, resourceID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.CheckAccess(ctx, &api.CheckAccessRequest{Policy: policy, ResourceID: resourceID})
	if err != nil {
		if status.Code(err) == codes.PermissionDenied {
			return false, nil
		}
		return false, s.mapError(err)
	}
	return resp.Allowed, nil
}

func (s *GRPCClient) ListSessions(ctx context.Context) ([]api.Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.ListSessions(ctx, &api.ListSessionsRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Sessions, nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		return ErrUnauthorized
	case codes.PermissionDenied:
		return ErrForbidden
	case codes.AlreadyExists:
		return ErrAlreadyExists
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidInput, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
