package grpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/spounge-ai/persistor/internal/app/grpc/interceptors"
	"github.com/spounge-ai/persistor/internal/bus"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
	"github.com/spounge-ai/persistor/internal/infra/config"
	"github.com/spounge-ai/persistor/internal/infra/ratelimit"
	"github.com/spounge-ai/persistor/pkg/patterns/lifecycle"
	custom_validator "github.com/spounge-ai/persistor/pkg/validator"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type Server struct {
	grpcServer *grpc.Server
	healthSrv  *health.Server
	limiter    *ratelimit.InMemoryRateLimiter
	lis        net.Listener
	serving    atomic.Bool
	logger     *slog.Logger
}

var _ lifecycle.ManagedResource = (*Server)(nil)

// New listens on the configured port and registers the gateway. A port of
// zero picks a free port, which is returned. A nil tlsConfig serves plaintext.
func New(cfg *config.Config, b *bus.Bus, tlsConfig *tls.Config, logger *slog.Logger, errorClassifier *app_errors.ErrorClassifier) (*Server, int, error) {
	validate := validator.New()
	if err := custom_validator.RegisterCustomValidators(validate); err != nil {
		return nil, 0, err
	}

	var opts []grpc.ServerOption
	if tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	unary := []grpc.UnaryServerInterceptor{interceptors.UnaryLoggingInterceptor(logger)}
	stream := []grpc.StreamServerInterceptor{interceptors.StreamLoggingInterceptor(logger)}

	var limiter *ratelimit.InMemoryRateLimiter
	if rl := cfg.Server.RateLimiter; rl.Enabled {
		limiter = ratelimit.NewInMemoryRateLimiter(rate.Limit(rl.Rate), rl.Burst)
		unary = append(unary, interceptors.UnaryRateLimitInterceptor(limiter))
		stream = append(stream, interceptors.StreamRateLimitInterceptor(limiter))
	}
	unary = append(unary, interceptors.UnaryAddressInterceptor(validate))
	stream = append(stream, interceptors.StreamAddressInterceptor(validate))
	opts = append(opts, grpc.ChainUnaryInterceptor(unary...), grpc.ChainStreamInterceptor(stream...))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		if limiter != nil {
			limiter.Stop()
		}
		return nil, 0, fmt.Errorf("failed to listen: %w", err)
	}
	port := lis.Addr().(*net.TCPAddr).Port

	grpcServer := grpc.NewServer(opts...)
	RegisterGatewayServer(grpcServer, NewGateway(b, cfg.Address, errorClassifier, logger))

	healthSrv := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	return &Server{
		grpcServer: grpcServer,
		healthSrv:  healthSrv,
		limiter:    limiter,
		lis:        lis,
		logger:     logger,
	}, port, nil
}

// SetServing reports the gateway as serving or not to health checks.
func (s *Server) SetServing(serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.serving.Store(serving)
	s.healthSrv.SetServingStatus(ServiceName, st)
	s.healthSrv.SetServingStatus("", st)
}

// Start serves in the background until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("gRPC gateway listening", "address", s.lis.Addr().String())
	go func() {
		if err := s.grpcServer.Serve(s.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("gRPC gateway stopped serving", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight calls, forcing the shutdown when ctx ends first.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping gRPC gateway")
	s.serving.Store(false)
	s.healthSrv.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
	}

	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.logger.Info("gRPC gateway stopped")
	return nil
}

func (s *Server) Health(context.Context) lifecycle.HealthStatus {
	if s.serving.Load() {
		return lifecycle.HealthStatus{Ready: true}
	}
	return lifecycle.HealthStatus{Ready: false, Message: "gateway is not serving"}
}
