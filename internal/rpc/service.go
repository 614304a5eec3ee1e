// Package rpc exposes the supervisor over gRPC. Messages are
// google.protobuf.Struct values so no generated code is needed.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/TheGojiOG/mc-server-wrapper/internal/console"
	"github.com/TheGojiOG/mc-server-wrapper/internal/logging"
	"github.com/TheGojiOG/mc-server-wrapper/internal/models"
	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

const (
	ServiceName  = "wrapper.Control"
	callMethod   = "/" + ServiceName + "/Call"
	eventsMethod = "/" + ServiceName + "/Events"

	// ProducerGRPC tags console input submitted over gRPC.
	ProducerGRPC = "grpc"
)

// Operations accepted by Call.
const (
	OpStatus  = "status"
	OpPlayers = "players"
	OpStop    = "stop"
	OpBackup  = "backup"
	OpSend    = "send"
)

// Supervisor is the part of server.Supervisor the control service drives.
type Supervisor interface {
	Status() server.Status
	ListPlayers() ([]server.Player, error)
	Stop() error
	Backup() (*server.BackupResult, error)
	Submit(ctx context.Context, producer, line string) error
	SendAndAwaitEcho(ctx context.Context, producer, line string) (server.Event, error)
}

// controlServer is the handler type checked by grpc.RegisterService.
type controlServer interface {
	call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	events(req *structpb.Struct, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*controlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Events", Handler: eventsHandler, ServerStreams: true},
	},
	Metadata: "wrapper/control.proto",
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(structpb.Struct)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(controlServer).call(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(controlServer).call(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, req, info, handler)
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(controlServer).events(req, stream)
}

// Service implements wrapper.Control.
type Service struct {
	sup           Supervisor
	feed          *server.Feed
	eventBuffer   int
	submitTimeout time.Duration
}

func NewService(sup Supervisor, feed *server.Feed, submitTimeout time.Duration) *Service {
	if submitTimeout <= 0 {
		submitTimeout = 5 * time.Second
	}
	return &Service{sup: sup, feed: feed, eventBuffer: 256, submitTimeout: submitTimeout}
}

// Register attaches the service to g.
func (s *Service) Register(g *grpc.Server) {
	g.RegisterService(&serviceDesc, s)
}

// NewServer builds a gRPC server with request logging and the control
// service registered.
func NewServer(svc *Service, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.UnaryInterceptor(logUnary)}, opts...)
	g := grpc.NewServer(opts...)
	svc.Register(g)
	return g
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	attrs := []any{"method", info.FullMethod, "latency", time.Since(start).String()}
	if r, ok := req.(*structpb.Struct); ok {
		attrs = append(attrs, "op", r.GetFields()["op"].GetStringValue())
	}
	if err != nil {
		attrs = append(attrs, "code", status.Code(err).String(), "error", err.Error())
		logging.L().Warn("grpc_request", attrs...)
		return resp, err
	}
	logging.L().Info("grpc_request", attrs...)
	return resp, nil
}

func (s *Service) call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	switch op := fields["op"].GetStringValue(); op {
	case OpStatus:
		return toStruct(s.sup.Status())

	case OpPlayers:
		players, err := s.sup.ListPlayers()
		if err != nil {
			return nil, statusError(err)
		}
		return toStruct(models.NewPlayersResponse(players))

	case OpStop:
		if err := s.sup.Stop(); err != nil {
			return nil, statusError(err)
		}
		st := s.sup.Status()
		return toStruct(models.StopResponse{Status: st.State, LastExit: st.LastExit})

	case OpBackup:
		result, err := s.sup.Backup()
		if result == nil || !result.Restarted {
			return nil, statusError(err)
		}
		return toStruct(models.NewBackupResponse(result, err))

	case OpSend:
		return s.send(ctx, fields["line"].GetStringValue(), fields["wait_ack"].GetBoolValue())

	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown op %q", op)
	}
}

func (s *Service) send(ctx context.Context, line string, waitAck bool) (*structpb.Struct, error) {
	command, err := console.ValidateCommand(line)
	if err != nil {
		return nil, statusError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	resp := models.CommandResponse{Command: command, Success: true}
	if waitAck {
		ev, err := s.sup.SendAndAwaitEcho(ctx, ProducerGRPC, command)
		if err != nil {
			return nil, statusError(err)
		}
		resp.Ack = ev.Text
	} else if err := s.sup.Submit(ctx, ProducerGRPC, command); err != nil {
		return nil, statusError(err)
	}
	return toStruct(resp)
}

// events streams notifications until the client goes away or the feed is
// closed. Unrecognized lines are included only when the request sets
// "raw": true.
func (s *Service) events(req *structpb.Struct, stream grpc.ServerStream) error {
	if s.feed == nil {
		return status.Error(codes.Unimplemented, "event feed not configured")
	}
	raw := req.GetFields()["raw"].GetBoolValue()

	ch, cancel := s.feed.Subscribe(s.eventBuffer)
	defer cancel()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			if n.Kind == server.NotifyEvent && n.Event.Kind == server.KindUnrecognized && !raw {
				continue
			}
			msg, err := toStruct(models.NewEventMessage(n))
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// statusError maps supervisor errors to gRPC codes.
func statusError(err error) error {
	if err == nil {
		return status.Error(codes.Internal, "operation failed")
	}
	var code codes.Code
	switch {
	case errors.Is(err, server.ErrInvalidLine):
		code = codes.InvalidArgument
	case errors.Is(err, server.ErrNotRunning), errors.Is(err, server.ErrAlreadyStopping):
		code = codes.FailedPrecondition
	case errors.Is(err, server.ErrRejectedBusy):
		code = codes.Aborted
	case errors.Is(err, server.ErrSpawn):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// toStruct converts any JSON-encodable value to a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
