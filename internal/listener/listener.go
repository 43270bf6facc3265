// Package listener binds the single endpoint described in spec.md §4.5: one
// TCP port serving both HTTP/1.1 and HTTP/2, plaintext or TLS-terminated.
package listener

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/relaymesh/edgeproxy/internal/observability"
)

// TLSConfig carries the single server certificate used when TLS is enabled.
// A zero value means plaintext.
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// Listener binds one address and serves handler over HTTP/1.1 and HTTP/2.
type Listener struct {
	addr    string
	handler http.Handler
	tlsCfg  TLSConfig
	logger  observability.Logger
	server  *http.Server
	running atomic.Bool
}

// New builds a Listener bound to addr (host:port). In plaintext mode, both
// HTTP/1.1 and HTTP/2 are served on the same port via h2c, using prior
// knowledge for HTTP/2 and the usual request line for HTTP/1.1 (spec.md
// §9's open question: Go's h2c handler supports both on one plaintext
// listener, so no protocol split is needed here).
func New(addr string, handler http.Handler, tlsCfg TLSConfig, logger observability.Logger) *Listener {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Listener{addr: addr, handler: handler, tlsCfg: tlsCfg, logger: logger}
}

// ListenAndServe binds the address and serves until ctx is done or an
// unrecoverable server error occurs. It blocks until serving stops.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              l.addr,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	if l.tlsCfg.Enabled {
		cert, err := tls.LoadX509KeyPair(l.tlsCfg.CertFile, l.tlsCfg.KeyFile)
		if err != nil {
			return fmt.Errorf("listener: loading TLS certificate: %w", err)
		}
		httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
		}
		httpServer.Handler = l.handler
	} else {
		httpServer.Handler = h2c.NewHandler(l.handler, &http2.Server{})
	}

	l.server = httpServer

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listener: binding %s: %w", l.addr, err)
	}

	l.running.Store(true)
	l.logger.Info("listener started",
		observability.String("address", l.addr),
		observability.Any("tls", l.tlsCfg.Enabled))

	errCh := make(chan error, 1)
	go func() {
		if l.tlsCfg.Enabled {
			errCh <- httpServer.ServeTLS(ln, "", "")
		} else {
			errCh <- httpServer.Serve(ln)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return l.Shutdown(shutdownCtx)
	case err := <-errCh:
		l.running.Store(false)
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// Shutdown drains in-flight requests and stops serving, per spec.md §6's
// graceful exit requirement.
func (l *Listener) Shutdown(ctx context.Context) error {
	if l.server == nil || !l.running.Load() {
		return nil
	}
	l.logger.Info("listener shutting down", observability.String("address", l.addr))
	if err := l.server.Shutdown(ctx); err != nil {
		if closeErr := l.server.Close(); closeErr != nil {
			return fmt.Errorf("listener: forced close after failed shutdown: %w", closeErr)
		}
		return fmt.Errorf("listener: graceful shutdown: %w", err)
	}
	l.running.Store(false)
	return nil
}
