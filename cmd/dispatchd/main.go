// Command dispatchd runs the print dispatch service: it wires the Device
// Registry, Job Store, Presence Tracker, History Log, Sweeper, Render
// Broker, Config Loader, and Dispatch Protocol Endpoint together and serves
// them over HTTP/HTTPS (spec.md §6).
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonaohana/vessale/internal/audit"
	"github.com/jonaohana/vessale/internal/config"
	"github.com/jonaohana/vessale/internal/dispatch"
	"github.com/jonaohana/vessale/internal/history"
	"github.com/jonaohana/vessale/internal/jobstore"
	"github.com/jonaohana/vessale/internal/presence"
	"github.com/jonaohana/vessale/internal/registry"
	"github.com/jonaohana/vessale/internal/render"
	"github.com/jonaohana/vessale/internal/sweep"
	"github.com/jonaohana/vessale/internal/workers/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry.New()
	auditSink := newAuditSink(ctx, logger)
	store := jobstore.New(reg, auditSink, logger, metrics.NewPrometheusProvider("vessale", prometheus.DefaultRegisterer))
	presenceTracker := presence.New()
	historyLog := history.New()

	broker, err := render.NewBroker(ctx, store, render.NewStubRenderer(), logger)
	if err != nil {
		return fmt.Errorf("build render broker: %w", err)
	}
	defer broker.Stop(context.Background())

	sweeper := sweep.New(store, logger)
	go sweeper.Run(ctx)

	var loader *config.Loader
	if url := os.Getenv("CONFIG_SOURCE_URL"); url != "" {
		loader = config.New(url, reg, logger, nil)
		go loader.Run(ctx)
	}

	srv := dispatch.NewServer(dispatch.Deps{
		Store:    store,
		Registry: reg,
		Presence: presenceTracker,
		History:  historyLog,
		Audit:    auditSink,
		Broker:   broker,
		Loader:   loader,
		Logger:   logger,
	})

	return serve(ctx, logger, srv.NewRouter())
}

// newAuditSink configures a redis-backed audit.ChannelSink when
// AUDIT_REDIS_ADDR is set, falling back to audit.NoopSink otherwise
// (spec.md §9: "an optional sink").
func newAuditSink(ctx context.Context, logger *zap.Logger) audit.Sink {
	addr := os.Getenv("AUDIT_REDIS_ADDR")
	if addr == "" {
		return audit.NoopSink{}
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	sink := audit.NewChannelSink(client, "vessale:audit:events", 1024, logger)
	go sink.Run(ctx)
	return sink
}

// serve runs the HTTP (and, when TLS material is present, HTTPS) listeners
// until ctx is cancelled, then drains in-flight responses before returning
// (spec.md §6's graceful-shutdown contract).
func serve(ctx context.Context, logger *zap.Logger, handler http.Handler) error {
	port := envOrDefault("PORT", "8080")
	httpsPort := envOrDefault("HTTPS_PORT", "8443")
	forceHTTPS := os.Getenv("FORCE_HTTP_TO_HTTPS") == "true"

	certFile := os.Getenv("TLS_CERT_FILE")
	keyFile := os.Getenv("TLS_KEY_FILE")

	httpHandler := handler
	if forceHTTPS {
		httpHandler = redirectToHTTPSHandler(httpsPort)
	}

	httpServer := &http.Server{Addr: ":" + port, Handler: httpHandler}

	var httpsServer *http.Server
	var watcherDone chan struct{}
	if certFile != "" && keyFile != "" {
		watcher, err := config.NewCertWatcher(certFile, keyFile, logger)
		if err != nil {
			return fmt.Errorf("load tls material: %w", err)
		}
		watcherDone = make(chan struct{})
		go watcher.Run(watcherDone)

		httpsServer = &http.Server{
			Addr:    ":" + httpsPort,
			Handler: handler,
			TLSConfig: &tls.Config{
				GetCertificate: watcher.GetCertificate,
			},
		}
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listener starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	if httpsServer != nil {
		go func() {
			logger.Info("https listener starting", zap.String("addr", httpsServer.Addr))
			if err := httpsServer.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("https server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if watcherDone != nil {
		close(watcherDone)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}
	if httpsServer != nil {
		if err := httpsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("https server shutdown error", zap.Error(err))
		}
	}
	return nil
}

func redirectToHTTPSHandler(httpsPort string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		target := "https://" + host + ":" + httpsPort + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
