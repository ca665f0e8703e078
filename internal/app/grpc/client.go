package grpc

import (
	"context"
	"errors"
	"io"

	"github.com/spounge-ai/persistor/internal/app/grpc/interceptors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a persistor gateway.
type Client struct {
	conn *grpc.ClientConn
}

func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Send delivers one request and returns the reply. An empty address uses
// the gateway's default.
func (c *Client) Send(ctx context.Context, address string, req map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(withAddress(ctx, address), SendMethod, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Stream delivers one request and calls fn with every reply page in order.
func (c *Client) Stream(ctx context.Context, address string, req map[string]any, fn func(map[string]any) error) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return err
	}
	stream, err := c.conn.NewStream(withAddress(ctx, address), &GatewayServiceDesc.Streams[0], StreamMethod)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		page := new(structpb.Struct)
		if err := stream.RecvMsg(page); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(page.AsMap()); err != nil {
			return err
		}
	}
}

func withAddress(ctx context.Context, address string) context.Context {
	if address == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, interceptors.AddressHeader, address)
}
