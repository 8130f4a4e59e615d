// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Command greenagent serves the evaluation HTTP API that scores a
// Purple Agent's generated tests against a track of fixture tasks.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/config"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/evaluator"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/httpserver"
	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/tracing"
)

const version = "0.1.0"

// gracefulShutdownTimeout bounds how long in-flight requests are given
// to finish once a shutdown signal arrives.
const gracefulShutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "scenario.toml", "Path to the TOML configuration file")
	addr := flag.String("addr", ":8080", "Listen address")
	selfURL := flag.String("self-url", "http://localhost:8080", "URL this server is externally reachable at, used in the agent card")
	otlpEndpoint := flag.String("otlp-endpoint", "", "OTLP HTTP trace exporter endpoint; tracing is disabled if empty")
	flag.Parse()

	fmt.Printf("Green Agent v%s\n", version)

	settings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	shutdownTracing, err := tracing.NewTracerProvider(context.Background(), *otlpEndpoint)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("failed to shut down tracer provider", "error", err)
		}
	}()

	srv := httpserver.New(settings, *selfURL, evaluator.New)

	httpSrv := &http.Server{
		Addr:    *addr,
		Handler: srv,
	}

	go func() {
		slog.Info("green agent listening", "addr", *addr, "track", settings.Track)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	waitForShutdown(httpSrv)
}

// waitForShutdown blocks until SIGINT or SIGTERM, then drains in-flight
// requests within gracefulShutdownTimeout.
func waitForShutdown(httpSrv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		slog.Warn("graceful shutdown did not complete cleanly", "error", err)
	}
}
