package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Domenick1991/ticketbari/config"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name the booking store reports under in gRPC health
// checks.
const ServiceName = "ticketbari.BookingStore"

type Servers struct {
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
	logger     *logrus.Entry
}

func NewServers(cfg *config.Config, handler http.Handler, logger *logrus.Entry) *Servers {
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	return &Servers{
		grpcServer: grpcSrv,
		health:     healthSrv,
		httpServer: &http.Server{
			Addr:    cfg.HTTP.Address,
			Handler: handler,
		},
		logger: logger,
	}
}

// SetServing flips the health status reported over gRPC.
func (s *Servers) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Run starts the gRPC health server and the HTTP API and blocks until ctx is
// canceled or a server fails.
func Run(ctx context.Context, cfg *config.Config, handler http.Handler, logger *logrus.Entry) error {
	s := NewServers(cfg, handler, logger)

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}
	return s.Serve(ctx, lis, cfg.HTTP.ShutdownTimeout())
}

func (s *Servers) Serve(ctx context.Context, grpcListener net.Listener, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 2)

	go func() { errCh <- s.grpcServer.Serve(grpcListener) }()
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.SetServing(true)
	s.logger.WithFields(logrus.Fields{"http": s.httpServer.Addr, "grpc": grpcListener.Addr().String()}).Info("booking store listening")

	select {
	case err := <-errCh:
		s.SetServing(false)
		s.grpcServer.Stop()
		_ = s.httpServer.Close()
		return err
	case <-ctx.Done():
	}

	s.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.grpcServer.GracefulStop()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("booking store stopped")
	return nil
}
