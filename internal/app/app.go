package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/wholesale/internal/health"
	"github.com/vladislavdragonenkov/wholesale/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/wholesale/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/wholesale/internal/service/grpc"
	"github.com/vladislavdragonenkov/wholesale/internal/service/idempotency"
	"github.com/vladislavdragonenkov/wholesale/internal/service/outbox"
	"github.com/vladislavdragonenkov/wholesale/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/wholesale/internal/version"
)

// Run поднимает REST API, gRPC, метрики и фоновые воркеры и работает до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.WithFields(version.Fields()).Info("starting wholesale service")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	svc := newServices(deps, cfg, logger, metrics.NewOrderMetrics())

	// Без Kafka события копятся в outbox и уйдут, когда брокер будет настроен.
	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		producer = nil
	}
	defer closeKafkaProducer(producer, logger)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	workersDone := startWorkers(workerCtx, cfg, deps, producer, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.Register("storage", deps.storageChecker)
	if deps.redisChecker != nil {
		healthHandler.Register("redis", deps.redisChecker)
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	grpcServer, grpcHealth := newGRPCServer(svc, logger)
	httpServer := &http.Server{
		Handler: httpapi.NewServer(httpapi.Services{
			Catalog: svc.catalog,
			Ledger:  svc.ledger,
			Orders:  svc.orders,
			Guard:   svc.guard,
		}, httpapi.Config{
			RateLimitRPS: cfg.RateLimitRPS,
			Logger:       logger.WithField("layer", "http"),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := func() {
		grpcHealth.Shutdown()
		stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
		shutdownHTTP(httpServer, logger)
		shutdownWorkers(stopWorkers, workersDone, logger)
		shutdownHTTP(metricsSrv, logger)
	}

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdown()
		return err
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		shutdown()
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", httpLis.Addr())
		errCh <- httpServer.Serve(httpLis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		shutdown()
		return ctx.Err()
	case err := <-errCh:
		shutdown()
		if errors.Is(err, grpc.ErrServerStopped) || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startWorkers запускает публикацию outbox (при наличии Kafka) и очистку ключей идемпотентности.
func startWorkers(ctx context.Context, cfg Config, deps *runtimeDependencies, producer *kafka.Producer, logger *log.Entry) <-chan struct{} {
	var wg sync.WaitGroup

	if producer != nil && deps.outboxRepo != nil {
		publisher := kafka.NewOutboxPublisher(producer, cfg.OrderEventsTopic)
		worker := outbox.NewWorker(deps.outboxRepo, publisher,
			outbox.WithDeadLetters(publisher),
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	if deps.cleanupRepo != nil {
		cleanup := idempotency.NewCleanupWorker(deps.cleanupRepo,
			idempotency.WithLogger(logger.WithField("layer", "idempotency-cleanup")),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			cleanup.Run(ctx)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// newGRPCServer собирает gRPC-сервер с метриками, reflection и health-сервисом.
func newGRPCServer(svc *services, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	grpcsvc.RegisterOrderServiceServer(server, grpcsvc.NewOrderService(svc.orders, svc.guard, logger.WithField("layer", "grpc")))
	grpcMetrics.InitializeMetrics(server)
	reflection.Register(server)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	return server, healthServer
}

// startMetricsServer запускает HTTP-обработчики /metrics, /healthz, /livez и /readyz.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.Ready)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// stopGRPC ждёт завершения активных вызовов не дольше timeout.
func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownWorkers отменяет воркеры и ждёт их завершения.
func shutdownWorkers(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("background workers did not stop in time")
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
