// Package server exposes the solve orchestrator over HTTP (echo) and gRPC.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/hrygo/eyemath/solver/orchestrator"
)

// Config holds the transport settings.
type Config struct {
	Addr     string
	Port     int
	GRPCPort int // zero disables the gRPC listener
	Mode     string

	RateLimit float64 // requests per second per client, zero disables
	RateBurst int
	BodyLimit string

	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration
	EnableReflection  bool
}

// DefaultConfig returns a default transport configuration.
func DefaultConfig() Config {
	return Config{
		Port:              8081,
		GRPCPort:          9081,
		Mode:              "dev",
		BodyLimit:         "64K",
		KeepaliveInterval: 30 * time.Second,
		KeepaliveTimeout:  10 * time.Second,
		EnableReflection:  true,
	}
}

// Server serves the HTTP API and the gRPC SolverService.
type Server struct {
	cfg     Config
	orch    *orchestrator.Orchestrator
	metrics http.Handler
	logger  *slog.Logger

	echo   *echo.Echo
	grpc   *grpc.Server
	health *health.Server

	httpListener net.Listener
	grpcListener net.Listener
}

// NewServer wires both transports around orch. metrics may be nil, in which
// case /metrics is not registered.
func NewServer(cfg Config, orch *orchestrator.Orchestrator, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = DefaultConfig().BodyLimit
	}
	s := &Server{
		cfg:     cfg,
		orch:    orch,
		metrics: metrics,
		logger:  logger,
		health:  health.NewServer(),
	}
	s.echo = s.newEcho()
	s.grpc = s.newGRPC()
	return s
}

// Echo returns the HTTP handler.
func (s *Server) Echo() *echo.Echo { return s.echo }

// GRPCServer returns the underlying gRPC server.
func (s *Server) GRPCServer() *grpc.Server { return s.grpc }

// Start opens the listeners and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	httpAddr := fmt.Sprintf("%s:%d", s.cfg.Addr, s.cfg.Port)
	lis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", httpAddr)
	}
	s.httpListener = lis
	s.echo.Listener = lis

	if s.cfg.GRPCPort > 0 {
		grpcAddr := fmt.Sprintf("%s:%d", s.cfg.Addr, s.cfg.GRPCPort)
		glis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			_ = lis.Close()
			return errors.Wrapf(err, "failed to listen on %s", grpcAddr)
		}
		s.grpcListener = glis
		go func() {
			if err := s.grpc.Serve(glis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				s.logger.Error("gRPC server error", "error", err)
			}
		}()
	}

	s.refreshHealth(ctx)

	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.logger.Info("server started", "http", s.HTTPAddr(), "grpc", s.GRPCAddr())
	return nil
}

// Shutdown stops both transports, forcing the gRPC server down if ctx expires
// before in-flight calls finish.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown HTTP server", "error", err)
	}

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
	s.logger.Info("server stopped")
}

// HTTPAddr returns the bound HTTP address.
func (s *Server) HTTPAddr() string {
	if s.httpListener != nil {
		return s.httpListener.Addr().String()
	}
	return fmt.Sprintf("%s:%d", s.cfg.Addr, s.cfg.Port)
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is disabled.
func (s *Server) GRPCAddr() string {
	if s.grpcListener != nil {
		return s.grpcListener.Addr().String()
	}
	return ""
}

// refreshHealth probes the backend and publishes the result to the gRPC
// health service.
func (s *Server) refreshHealth(ctx context.Context) error {
	status := healthpb.HealthCheckResponse_SERVING
	err := s.orch.Ping(ctx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("backend health check failed", "error", err)
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(SolverServiceName, status)
	return err
}
