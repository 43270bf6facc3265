// Package dispatcher implements the per-request entry point described in
// spec.md §4.4: it serves health endpoints directly, applies the gRPC
// prefix fallback, and otherwise drives matcher → balancer → forwarder.
package dispatcher

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/relaymesh/edgeproxy/internal/balancer"
	"github.com/relaymesh/edgeproxy/internal/config"
	"github.com/relaymesh/edgeproxy/internal/forwarder"
	"github.com/relaymesh/edgeproxy/internal/health"
	"github.com/relaymesh/edgeproxy/internal/observability"
	"github.com/relaymesh/edgeproxy/internal/router"
)

// requestIDHeader is the header carrying the per-request correlation ID,
// both on the way in from the client and on the way out to the backend and
// the caller.
const requestIDHeader = "X-Request-Id"

// Dispatcher is the top-level http.Handler for the proxy.
type Dispatcher struct {
	engine   *gin.Engine
	provider config.Provider
	matcher  *router.Matcher
	balancer *balancer.RoundRobin
	forward  *forwarder.Forwarder
	logger   observability.Logger
}

// New builds a Dispatcher. matcher must be built over the same route table
// as provider's current snapshot.
func New(provider config.Provider, matcher *router.Matcher, lb *balancer.RoundRobin, fwd *forwarder.Forwarder, logger observability.Logger) *Dispatcher {
	if logger == nil {
		logger = observability.Nop()
	}

	d := &Dispatcher{
		provider: provider,
		matcher:  matcher,
		balancer: lb,
		forward:  fwd,
		logger:   logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(requestIDMiddleware)
	engine.GET("/health/live", health.LivenessHandler())
	engine.GET("/health/ready", health.ReadinessHandler())
	engine.NoRoute(d.proxy)
	d.engine = engine

	return d
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.engine.ServeHTTP(w, r)
}

// proxy implements rules 3-7 of spec.md §4.4: gRPC prefix fallback, route
// matching, cluster resolution, destination pick, and forwarding.
func (d *Dispatcher) proxy(c *gin.Context) {
	r := c.Request
	w := c.Writer

	log := d.logger.With(observability.String("request_id", r.Header.Get(requestIDHeader)))

	cfg := d.provider.Snapshot()

	match, ok := d.match(cfg, r)
	if !ok {
		log.Warn("dispatcher: no matching route", observability.String("path", r.URL.Path))
		http.Error(w, "No matching route", http.StatusNotFound)
		return
	}

	cluster, ok := cfg.Cluster(match.Route.ClusterID)
	if !ok || len(cluster.Destinations) == 0 {
		log.Warn("dispatcher: cluster unavailable",
			observability.String("cluster", match.Route.ClusterID))
		http.Error(w, "Cluster unavailable", http.StatusBadGateway)
		return
	}

	dest := d.balancer.Pick(cluster)
	log.Debug("dispatcher: forwarding request",
		observability.String("cluster", cluster.ID),
		observability.String("destination", dest.ID))
	d.forward.Forward(w, r, match, dest)
}

// requestIDMiddleware ensures every request, health check or proxied alike,
// carries a correlation ID: it generates one when the inbound request
// didn't supply it, and echoes it back on the response so a caller can
// match its request to the dispatcher's log lines.
func requestIDMiddleware(c *gin.Context) {
	id := c.Request.Header.Get(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
		c.Request.Header.Set(requestIDHeader, id)
	}
	c.Writer.Header().Set(requestIDHeader, id)
	c.Next()
}

// match runs the route matcher, first applying the gRPC prefix fallback
// when the request looks like a gRPC call that omitted the gRPC route's
// prefix (spec.md §4.4 rule 3).
func (d *Dispatcher) match(cfg *config.ProxyConfig, r *http.Request) (router.MatchResult, bool) {
	if grpcRoute, ok := cfg.GRPCRoute(); ok && looksLikeUnprefixedGRPC(r, grpcRoute) {
		return router.MatchGRPCFallback(grpcRoute, r.URL.Path), true
	}
	return d.matcher.Match(r.URL.Path)
}

// looksLikeUnprefixedGRPC reports whether r is an HTTP/2 gRPC call whose
// path does not already begin with grpcRoute's prefix at a segment
// boundary. A bare strings.HasPrefix would false-positive on any gRPC
// service path whose first segment merely starts with the same letters as
// the prefix (e.g. "/grpctest.Greeter/SayHello" against a "/grpc" prefix).
func looksLikeUnprefixedGRPC(r *http.Request, grpcRoute config.Route) bool {
	if r.ProtoMajor != 2 {
		return false
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc") {
		return false
	}
	return !router.HasPrefixSegment(grpcRoute.Prefix, r.URL.Path)
}
