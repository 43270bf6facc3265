// Package main is the entry point for edgeproxy.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relaymesh/edgeproxy/internal/balancer"
	"github.com/relaymesh/edgeproxy/internal/config"
	"github.com/relaymesh/edgeproxy/internal/dispatcher"
	"github.com/relaymesh/edgeproxy/internal/forwarder"
	"github.com/relaymesh/edgeproxy/internal/listener"
	"github.com/relaymesh/edgeproxy/internal/observability"
	"github.com/relaymesh/edgeproxy/internal/router"
	"github.com/relaymesh/edgeproxy/internal/transport"
)

func main() {
	settings, err := config.LoadSettings(config.OSEnviron)
	if err != nil {
		fmt.Fprintf(os.Stderr, "edgeproxy: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.New(observability.Config{
		Level:  settings.LogLevel,
		Format: settings.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "edgeproxy: initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	observability.SetGlobal(logger)

	proxyCfg, err := config.BuildProxyConfig(settings)
	if err != nil {
		logger.Fatal("edgeproxy: invalid configuration", observability.Error(err))
	}

	logger.Info("edgeproxy starting",
		observability.String("addr", fmt.Sprintf(":%d", settings.Port)),
		observability.Any("tls", settings.EnableTLS),
		observability.Any("routes", len(proxyCfg.Routes)))

	provider := config.NewStaticProvider(proxyCfg)
	matcher := router.New(proxyCfg.Routes)
	lb := balancer.New()
	client := transport.New()
	fwd := forwarder.New(client, logger)
	disp := dispatcher.New(provider, matcher, lb, fwd, logger)

	l := listener.New(
		fmt.Sprintf(":%d", settings.Port),
		disp,
		listener.TLSConfig{
			Enabled:  settings.EnableTLS,
			CertFile: settings.TLSCertFile,
			KeyFile:  settings.TLSKeyFile,
		},
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, l, logger); err != nil {
		logger.Fatal("edgeproxy: exited with error", observability.Error(err))
	}
}

// run blocks until ctx is canceled (shutdown signal) or the listener exits
// on its own. ListenAndServe watches ctx itself and drains in-flight
// requests before returning, so there is nothing left to do here but wait.
func run(ctx context.Context, l *listener.Listener, logger observability.Logger) error {
	done := make(chan error, 1)
	go func() { done <- l.ListenAndServe(ctx) }()

	err := <-done
	if ctx.Err() != nil {
		logger.Info("edgeproxy: shut down cleanly")
	}
	return err
}
