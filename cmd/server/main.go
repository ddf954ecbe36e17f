// Match server - loads the catalogue and serves describe/match over HTTP and WebSocket
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/skinmatch/platform/internal/catalogue"
	"github.com/skinmatch/platform/internal/config"
	"github.com/skinmatch/platform/internal/descriptor"
	"github.com/skinmatch/platform/internal/matcher"
	"github.com/skinmatch/platform/internal/resilience"
	"github.com/skinmatch/platform/internal/retrieval"
	"github.com/skinmatch/platform/internal/scoring"
	"github.com/skinmatch/platform/internal/server"
	"github.com/skinmatch/platform/internal/trace"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store := catalogue.NewStore()
	extractor := descriptor.NewExtractor(cfg.ExtractorOptions())
	source := catalogue.DirSource{Root: filepath.Dir(cfg.CataloguePath)}
	indexer := catalogue.NewIndexer(store, source, extractor, cfg.IndexBatchSize, cfg.IndexFlushDelay)

	driver := retrieval.NewDriver(scoring.NewScorer(scoring.DefaultPolicy()), retrieval.Options{
		TopK:    cfg.TopK,
		Workers: cfg.ScoringWorkers,
	})
	m := matcher.New(store, extractor, driver, matcher.Config{
		Slots:        cfg.Slots(),
		TopK:         cfg.TopK,
		QueryTimeout: cfg.QueryTimeout,
	})
	srv := server.New(m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// gRPC health reports NOT_SERVING until the catalogue is loaded
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(trace.UnaryServerInterceptor()))
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		slog.Error("failed to listen", "addr", cfg.GRPCAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("grpc server error", "error", err)
		}
	}()

	// Load catalogue in background
	go func() {
		loadCtx, _ := trace.EnsureContext(ctx)
		if _, err := catalogue.Load(loadCtx, store, indexer, cfg.CataloguePath, resilience.CatalogueRetryConfig()); err != nil {
			slog.Error("catalogue load failed", "path", cfg.CataloguePath, "error", err)
			return
		}
		srv.SetReady(true)
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}()

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.QueryTimeout + 10*time.Second,
	}

	go func() {
		slog.Info("match server starting", "http", cfg.HTTPAddr, "grpc", cfg.GRPCAddr, "catalogue", cfg.CataloguePath)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	healthSrv.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	srv.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	grpcServer.GracefulStop()

	indexer.Stop()
	indexed, failed := indexer.Stats()
	slog.Info("shutdown complete", "indexed", indexed, "failed", failed)
}
