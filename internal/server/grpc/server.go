// Package grpc serves the auth service over gRPC, next to the HTTP API.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/cofounder/internal/logging"
	"github.com/dmitrijs2005/cofounder/internal/server/auth"
	"github.com/dmitrijs2005/cofounder/internal/server/middleware"
	"github.com/dmitrijs2005/cofounder/internal/server/models"
	"github.com/dmitrijs2005/cofounder/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// AuthAPI is the part of services.AuthService exposed over gRPC.
type AuthAPI interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	GetCurrentUser(ctx context.Context, userID string) (*models.PublicUser, error)
}

type GRPCServer struct {
	address string
	auth    AuthAPI
	authn   *middleware.Authenticator
	logger  logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, svc AuthAPI, authn *middleware.Authenticator) *GRPCServer {
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		auth:    svc,
		authn:   authn,
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve runs the server on listen until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))

	RegisterAuthServiceServer(srv, s)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
