package grpcapi

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// StatusSource is satisfied by *service.AccessController.
type StatusSource interface {
	Snapshot() service.Snapshot
}

// Service implements StatusServer over the controller snapshot and the
// journal.
type Service struct {
	UnimplementedStatusServer

	status  StatusSource
	journal store.AccessEventStore
	now     func() time.Time
	logger  *slog.Logger
}

func NewService(src StatusSource, journal store.AccessEventStore, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{status: src, journal: journal, now: now, logger: logger.With("component", "grpcapi")}
}

func (s *Service) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(s.status.Snapshot().Map(s.now()))
	if err != nil {
		s.logger.Error("encode status", "error", err)
		return nil, status.Error(codes.Internal, "encode status")
	}
	return st, nil
}

// ListEvents returns the newest journal entries. A nil or zero limit
// means the default page size.
func (s *Service) ListEvents(ctx context.Context, in *wrapperspb.UInt32Value) (*structpb.ListValue, error) {
	if s.journal == nil {
		return nil, status.Error(codes.Unavailable, "journal disabled")
	}
	limit := defaultEventLimit
	if n := int(in.GetValue()); n > 0 {
		limit = min(n, maxEventLimit)
	}

	recs, err := s.journal.ListRecent(ctx, limit)
	if err != nil {
		s.logger.Error("list events", "error", err)
		return nil, status.Error(codes.Internal, "list events")
	}
	items := make([]any, 0, len(recs))
	for _, r := range recs {
		items = append(items, service.EventMap(r))
	}
	lv, err := structpb.NewList(items)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode events")
	}
	return lv, nil
}

// Server wraps a grpc.Server with the status and health services
// registered.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewServer(svc *Service, logger *slog.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer(opts...)
	hs := health.NewServer()

	RegisterStatusServer(gs, svc)
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(statusServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{grpc: gs, health: hs, logger: logger.With("component", "grpcapi")}
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop marks the services not serving and drains in-flight calls until
// ctx expires.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}
