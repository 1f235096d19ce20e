package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Domenick1991/tripbooking/api"
	"github.com/Domenick1991/tripbooking/config"
	"github.com/Domenick1991/tripbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const probeInterval = 15 * time.Second

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

type Servers struct {
	grpcServer *grpc.Server
	httpServer *http.Server
	health     *health.Server
	healthConn *grpc.ClientConn
	probes     map[string]Probe
	logger     *slog.Logger
}

// Run starts the gRPC health server and the HTTP server (booking API,
// gateway healthz, metrics, swagger) and blocks until ctx is canceled or
// a server fails.
func Run(ctx context.Context, cfg *config.Config, bookingSvc booking.BookingUseCase, catalog api.ProviderCatalog, logger *slog.Logger, probes map[string]Probe) error {
	s, err := newServers(cfg, bookingSvc, catalog, logger, probes)
	if err != nil {
		return err
	}
	defer s.healthConn.Close()

	errCh := make(chan error, 2)

	// gRPC health + reflection
	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}
	go func() { errCh <- s.grpcServer.Serve(lis) }()

	// HTTP API + gateway healthz + swagger
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go s.watch(ctx)

	logger.Info("servers started", "http", cfg.HTTP.Address, "grpc", cfg.GRPC.Address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		logger.Info("servers stopped")
		return nil
	}
}

func newServers(cfg *config.Config, bookingSvc booking.BookingUseCase, catalog api.ProviderCatalog, logger *slog.Logger, probes map[string]Probe) (*Servers, error) {
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	conn, err := grpc.NewClient(cfg.GRPC.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial gRPC health endpoint: %w", err)
	}
	gateway := runtime.NewServeMux(runtime.WithHealthzEndpoint(grpc_health_v1.NewHealthClient(conn)))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	api.NewBookingHandler(bookingSvc).Register(router.Group("/api/bookings"))
	api.NewProviderHandler(catalog).Register(router.Group("/api/providers"))
	router.GET("/healthz", gin.WrapH(gateway))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.HTTP.SwaggerDir != "" {
		router.Static("/swagger", cfg.HTTP.SwaggerDir)
		router.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/swagger/bookings.swagger.json"))))
	}

	return &Servers{
		grpcServer: grpcSrv,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		health:     healthSrv,
		healthConn: conn,
		probes:     probes,
		logger:     logger,
	}, nil
}

// watch keeps the overall health status in line with the dependency probes.
func (s *Servers) watch(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		s.health.SetServingStatus("", s.check(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Servers) check(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	for name, probe := range s.probes {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := probe(probeCtx)
		cancel()
		if err != nil {
			s.logger.Warn("dependency probe failed", "dependency", name, "error", err)
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}
	return status
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(started),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request failed", attrs...)
		default:
			logger.Debug("request served", attrs...)
		}
	}
}
