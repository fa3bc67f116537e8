package grpc

import (
	"context"

	"github.com/dmitrijs2005/cofounder/internal/common"
	"github.com/dmitrijs2005/cofounder/internal/server/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// protectedMethods require an "authorization: Bearer <token>" metadata
// entry.
var protectedMethods = map[string]bool{
	methodMe: true,
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !protectedMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
			token = middleware.BearerToken(values[0])
		}
	}

	id, err := s.authn.Resolve(ctx, token)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return handler(middleware.WithIdentity(ctx, id), req)
}
