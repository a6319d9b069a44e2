package ops

import (
	"context"
	"errors"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/gnb-scheduler/internal/logging"
	"github.com/signalsfoundry/gnb-scheduler/internal/observability"
)

// Server is the ops gRPC server with the health service registered.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    logging.Logger

	collector *observability.OpsCollector
	extra     []grpc.ServerOption
}

// ServerOption customises NewServer.
type ServerOption func(*Server)

// WithServerLogger sets the base logger of the request interceptor.
func WithServerLogger(l logging.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithOpsCollector records per-RPC metrics.
func WithOpsCollector(c *observability.OpsCollector) ServerOption {
	return func(s *Server) { s.collector = c }
}

// WithGRPCOptions appends raw grpc.ServerOptions.
func WithGRPCOptions(opts ...grpc.ServerOption) ServerOption {
	return func(s *Server) { s.extra = append(s.extra, opts...) }
}

// NewServer builds a server exposing backend.
func NewServer(backend Backend, opts ...ServerOption) *Server {
	s := &Server{log: logging.Noop()}
	for _, opt := range opts {
		opt(s)
	}

	grpcOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(s.log),
			TracingUnaryServerInterceptor(),
			s.collector.UnaryServerInterceptor(),
		),
	}
	grpcOpts = append(grpcOpts, s.extra...)

	s.grpc = grpc.NewServer(grpcOpts...)
	RegisterSchedulerOpsServer(s.grpc, NewService(backend, s.log))

	s.health = health.NewServer()
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// Serve accepts connections on lis until Stop. A graceful stop is not
// reported as an error.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info(context.Background(), "ops server listening", logging.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks the services not serving and drains in-flight RPCs. It falls
// back to a hard stop when ctx ends first.
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
		s.log.Warn(ctx, "ops server drain timed out")
		s.grpc.Stop()
		<-done
	}
}
