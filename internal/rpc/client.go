package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/TheGojiOG/mc-server-wrapper/internal/models"
	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

var eventsStreamDesc = &grpc.StreamDesc{StreamName: "Events", ServerStreams: true}

// Client talks to a wrapper.Control service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr. Without options the connection is plaintext,
// which suits the default loopback listener.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Call invokes op with extra request fields and returns the raw response.
func (c *Client) Call(ctx context.Context, op string, fields map[string]any) (map[string]any, error) {
	resp, err := c.call(ctx, op, fields)
	if err != nil {
		return nil, err
	}
	return resp.AsMap(), nil
}

func (c *Client) call(ctx context.Context, op string, fields map[string]any) (*structpb.Struct, error) {
	m := map[string]any{"op": op}
	for k, v := range fields {
		m[k] = v
	}
	req, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, callMethod, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) callInto(ctx context.Context, op string, fields map[string]any, v any) error {
	resp, err := c.call(ctx, op, fields)
	if err != nil {
		return err
	}
	return fromStruct(resp, v)
}

func (c *Client) Status(ctx context.Context) (server.Status, error) {
	var st server.Status
	err := c.callInto(ctx, OpStatus, nil, &st)
	return st, err
}

func (c *Client) Players(ctx context.Context) (models.PlayersResponse, error) {
	var resp models.PlayersResponse
	err := c.callInto(ctx, OpPlayers, nil, &resp)
	return resp, err
}

func (c *Client) Stop(ctx context.Context) (models.StopResponse, error) {
	var resp models.StopResponse
	err := c.callInto(ctx, OpStop, nil, &resp)
	return resp, err
}

func (c *Client) Backup(ctx context.Context) (models.BackupResponse, error) {
	var resp models.BackupResponse
	err := c.callInto(ctx, OpBackup, nil, &resp)
	return resp, err
}

func (c *Client) Send(ctx context.Context, line string, waitAck bool) (models.CommandResponse, error) {
	var resp models.CommandResponse
	err := c.callInto(ctx, OpSend, map[string]any{"line": line, "wait_ack": waitAck}, &resp)
	return resp, err
}

// Events streams notifications to fn until ctx ends, the server closes the
// stream or fn returns an error.
func (c *Client) Events(ctx context.Context, raw bool, fn func(models.EventMessage) error) error {
	stream, err := c.conn.NewStream(ctx, eventsStreamDesc, eventsMethod)
	if err != nil {
		return fmt.Errorf("grpc stream: %w", err)
	}

	req, err := structpb.NewStruct(map[string]any{"raw": raw})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var ev models.EventMessage
		if err := fromStruct(msg, &ev); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
