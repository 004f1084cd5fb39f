// Package grpc exposes the remote-call engine as the omvstack.Engine gRPC
// service and provides a matching client.
package grpc

import (
	"context"
	"crypto/subtle"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"omvstack.control/internal/core/domain"
	"omvstack.control/internal/core/logger"
	"omvstack.control/internal/panel"
)

type Server struct {
	engine panel.Caller
	secret string
}

func NewServer(engine panel.Caller, secret string) *Server {
	return &Server{engine: engine, secret: secret}
}

// NewGRPCServer builds a grpc.Server with the token interceptor and the
// engine service registered.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.UnaryInterceptor(srv.AuthInterceptor))
	s := grpc.NewServer(opts...)
	RegisterEngineServer(s, srv)
	return s
}

// Call decodes {service, method, params} and runs the remote method.
func (s *Server) Call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()
	service, _ := fields["service"].(string)
	method, _ := fields["method"].(string)
	if service == "" || method == "" {
		return nil, s.fail(ctx, domain.NewRemoteError(domain.CodeInvalidParams, "service and method are required"))
	}

	var params map[string]any
	switch p := fields["params"].(type) {
	case map[string]any:
		params = p
	case nil:
	default:
		return nil, s.fail(ctx, domain.NewRemoteError(domain.CodeInvalidParams, "params must be an object"))
	}

	res, err := s.engine.Call(ctx, service, method, params)
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	out, err := structpb.NewStruct(res)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to encode call result", "service", service, "method", method, "error", err)
		return nil, s.fail(ctx, domain.NewRemoteError(domain.CodeInternal, "failed to encode result: "+err.Error()))
	}
	return out, nil
}

// fail sets the remote code trailer and returns the matching status.
func (s *Server) fail(ctx context.Context, err error) error {
	remote, st := toStatus(err)
	if terr := grpc.SetTrailer(ctx, metadata.Pairs(codeKey, strconv.Itoa(remote.Code))); terr != nil {
		logger.DebugContext(ctx, "Failed to set error trailer", "error", terr)
	}
	return st
}

// AuthInterceptor checks the shared secret in the "token" metadata entry.
// Without a configured secret every call is accepted.
func (s *Server) AuthInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if s.secret == "" {
		return handler(ctx, req)
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, s.unauthenticated(ctx)
	}
	tokens := md.Get(tokenKey)
	if len(tokens) == 0 || subtle.ConstantTimeCompare([]byte(tokens[0]), []byte(s.secret)) != 1 {
		return nil, s.unauthenticated(ctx)
	}
	return handler(ctx, req)
}

func (s *Server) unauthenticated(ctx context.Context) error {
	grpc.SetTrailer(ctx, metadata.Pairs(codeKey, strconv.Itoa(domain.CodeUnauthenticated)))
	return status.Error(codes.Unauthenticated, "invalid or missing token")
}
