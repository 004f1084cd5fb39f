package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"omvstack.control/internal/core/domain"
)

// Client calls a remote engine over gRPC. It satisfies panel.Caller.
type Client struct {
	conn  *grpc.ClientConn
	token string
	owned bool
}

// Dial connects to target without transport security.
func Dial(target, token string) (*Client, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return &Client{conn: conn, token: token, owned: true}, nil
}

// NewClient wraps an existing connection. Close leaves conn open.
func NewClient(conn *grpc.ClientConn, token string) *Client {
	return &Client{conn: conn, token: token}
}

func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.conn.Close()
}

// Call returns *domain.RemoteError for every failure, with the server's
// message unchanged.
func (c *Client) Call(ctx context.Context, service, method string, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	req, err := structpb.NewStruct(map[string]any{
		"service": service,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, domain.NewRemoteError(domain.CodeInvalidParams, "invalid params: "+err.Error())
	}

	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, tokenKey, c.token)
	}

	var trailer metadata.MD
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, CallMethod, req, out, grpc.Trailer(&trailer)); err != nil {
		return nil, fromStatus(err, trailer)
	}
	return out.AsMap(), nil
}
