// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command projector runs the causality graph projector.
//
// It subscribes to a relay event stream over WebSocket, projects each
// event into Dgraph in arrival order, and serves the projected graph
// over an HTTP read API.
//
// # Environment Variables
//
//   - PROJECTOR_PORT: HTTP port of the read API (default: 12340)
//   - RELAY_URL: relay WebSocket endpoint (required)
//   - RELAY_KINDS: comma-separated kind filter (default: all kinds)
//   - RELAY_LIMIT: stored-event backlog requested on subscribe (default: 0)
//   - DGRAPH_TARGET: Dgraph Alpha gRPC address (default: localhost:9080)
//   - DGRAPH_ALLOW_DEGRADED: start while Dgraph is down (default: false)
//   - SEEN_CACHE_PATH: BadgerDB directory for the seen-event cache,
//     empty disables the cache (default: empty)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: localhost:4317)
//   - LOG_LEVEL: debug|info|warn|error (default: info)
//
// # Usage
//
//	# Build
//	go build -o projector ./cmd/projector
//
//	# Run
//	RELAY_URL=ws://localhost:8008 ./projector
//
//	# Or via container
//	podman-compose up projector
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/CausalityGraph/pkg/logging"
	"github.com/AleutianAI/CausalityGraph/services/projector/config"
	"github.com/AleutianAI/CausalityGraph/services/projector/dgraph"
	"github.com/AleutianAI/CausalityGraph/services/projector/graph"
	"github.com/AleutianAI/CausalityGraph/services/projector/observability"
	"github.com/AleutianAI/CausalityGraph/services/projector/relay"
	"github.com/AleutianAI/CausalityGraph/services/projector/routes"
	"github.com/AleutianAI/CausalityGraph/services/projector/seen"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Projector exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	logger := logging.Setup(logging.Config{
		Level:   cfg.LogLevel,
		Service: "projector",
	})

	slog.Info("Starting projector",
		"port", cfg.Port,
		"relay_url", cfg.RelayURL,
		"dgraph_target", cfg.DgraphTarget,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanupTracer, err := initTracer(cfg.OTelEndpoint)
	if err != nil {
		// Traces are best effort. The projector keeps working without
		// a collector.
		slog.Warn("Tracing disabled", "error", err)
	} else {
		defer cleanupTracer(context.Background())
	}

	metrics := observability.InitMetrics()

	storeCfg := dgraph.DefaultClientConfig()
	storeCfg.Target = cfg.DgraphTarget
	storeCfg.AllowStartDegraded = cfg.AllowStartDegraded
	storeCfg.Metrics = metrics
	storeCfg.Logger = logger

	store, err := dgraph.NewResilientClient(storeCfg)
	if err != nil {
		return fmt.Errorf("connect dgraph: %w", err)
	}
	defer store.Close()

	if store.IsAvailable() {
		if err := store.ApplySchema(ctx); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	} else {
		// Degraded start. The health checker reconnects in the
		// background; the schema must already be in place.
		slog.Warn("Dgraph unavailable at startup, skipping schema apply")
	}

	projectorOpts := []graph.Option{
		graph.WithLogger(logger),
		graph.WithMetrics(metrics),
	}

	if cfg.SeenCachePath != "" {
		cacheCfg := seen.DefaultConfig()
		cacheCfg.Path = cfg.SeenCachePath
		cacheCfg.Logger = logger
		cache, err := seen.Open(cacheCfg)
		if err != nil {
			return fmt.Errorf("open seen cache: %w", err)
		}
		defer cache.Close()
		projectorOpts = append(projectorOpts, graph.WithSeenCache(cache))
	}

	projector := graph.New(store, projectorOpts...)

	feed, err := relay.NewFeed(relay.Config{
		URL:     cfg.RelayURL,
		Kinds:   cfg.RelayKinds,
		Limit:   cfg.RelayLimit,
		Logger:  logger,
		Metrics: metrics,
	}, projector)
	if err != nil {
		return fmt.Errorf("create feed: %w", err)
	}

	feedDone := make(chan error, 1)
	go func() {
		feedDone <- feed.Run(ctx)
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("projector-service"))
	routes.SetupRoutes(router, store, store, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		slog.Info("Read API listening", "addr", server.Addr)
		serverDone <- server.ListenAndServe()
	}()

	feedStopped := false

	select {
	case <-ctx.Done():
		slog.Info("Shutting down projector")
	case err := <-serverDone:
		stop()
		return fmt.Errorf("read api: %w", err)
	case err := <-feedDone:
		stop()
		feedStopped = true
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("relay feed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Read API shutdown failed", "error", err)
	}

	if !feedStopped {
		// The feed finishes its in-flight event before exiting.
		select {
		case <-feedDone:
		case <-shutdownCtx.Done():
			slog.Warn("Feed did not stop before shutdown deadline")
		}
	}

	return nil
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up an OTLP trace exporter sending spans to the configured
// collector.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
//
// # Assumptions
//
//   - OTel collector is reachable at the configured endpoint
func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("projector-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}
