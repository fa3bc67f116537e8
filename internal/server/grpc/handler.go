package grpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/cofounder/internal/common"
	"github.com/dmitrijs2005/cofounder/internal/server/middleware"
	"github.com/dmitrijs2005/cofounder/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := services.RegisterInput{
		Email:     stringField(req, "email"),
		Password:  stringField(req, "password"),
		FirstName: stringField(req, "first_name"),
		LastName:  stringField(req, "last_name"),
	}

	res, err := s.auth.Register(ctx, in)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.toStruct(ctx, res)
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.auth.Login(ctx, stringField(req, "email"), stringField(req, "password"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.toStruct(ctx, res)
}

func (s *GRPCServer) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	pair, err := s.auth.Refresh(ctx, stringField(req, "refresh_token"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.toStruct(ctx, map[string]any{"tokens": pair})
}

// Me returns the caller's profile. The identity is attached by
// accessTokenInterceptor.
func (s *GRPCServer) Me(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	id, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, services.MsgNotAuthenticated)
	}

	user, err := s.auth.GetCurrentUser(ctx, id.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.toStruct(ctx, map[string]any{"user": user})
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

// toStruct converts v to a Struct through its JSON form, so gRPC clients
// see the same field names as HTTP clients.
func (s *GRPCServer) toStruct(ctx context.Context, v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return out, nil
}

// toStatus maps domain errors onto gRPC codes. Anything unexpected is
// logged and reported as Internal without details.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, common.ErrorBadRequest):
		code = codes.InvalidArgument
	case errors.Is(err, common.ErrorUnauthorized):
		code = codes.Unauthenticated
	case errors.Is(err, common.ErrorForbidden):
		code = codes.PermissionDenied
	case errors.Is(err, common.ErrorNotFound):
		code = codes.NotFound
	case errors.Is(err, common.ErrorConflict):
		code = codes.AlreadyExists
	case errors.Is(err, common.ErrRateLimited):
		code = codes.ResourceExhausted
	default:
		s.logger.Error(ctx, "grpc request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, common.Message(err, code.String()))
}
