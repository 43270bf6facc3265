// Package transport builds the shared upstream *http.Client used by the
// forwarder to reach destinations. HTTP routes negotiate protocol version
// with the destination normally (HTTP/1.1 or HTTP/2 over TLS); GRPC routes
// are forced onto cleartext HTTP/2 (h2c), since gRPC requires HTTP/2 framing
// and destinations are not expected to terminate TLS. See spec.md §4.3.
package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/relaymesh/edgeproxy/internal/config"
)

type policyKey struct{}

// WithPolicy returns a copy of ctx annotated with the transport policy to
// use for the outbound round trip. The forwarder sets this before invoking
// the shared client, based on the matched route's kind.
func WithPolicy(ctx context.Context, kind config.RouteKind) context.Context {
	return context.WithValue(ctx, policyKey{}, kind)
}

func policyFromContext(ctx context.Context) config.RouteKind {
	kind, _ := ctx.Value(policyKey{}).(config.RouteKind)
	return kind
}

// New builds an *http.Client whose RoundTripper dispatches each request to
// one of two leaf transports based on the route kind recorded in the
// request's context (see WithPolicy): a general-purpose transport that may
// negotiate HTTP/1.1 or HTTP/2 depending on what the destination offers,
// and a forced-h2c transport used exclusively for GRPC routes.
func New() *http.Client {
	return &http.Client{
		Transport: &router{
			general: generalTransport(),
			h2c:     h2cTransport(),
		},
	}
}

// router selects between the general-purpose and forced-h2c leaf transports
// per request, based on the policy recorded in the request's context.
type router struct {
	general http.RoundTripper
	h2c     http.RoundTripper
}

func (r *router) RoundTrip(req *http.Request) (*http.Response, error) {
	if policyFromContext(req.Context()) == config.GRPC {
		return r.h2c.RoundTrip(req)
	}
	return r.general.RoundTrip(req)
}

// generalTransport handles HTTP routes: it may fall back to HTTP/1.1 or
// upgrade to HTTP/2 over TLS, whichever the destination supports.
// DisableCompression keeps it from adding its own Accept-Encoding and
// transparently decompressing the response, which would strip
// Content-Encoding/Content-Length before the forwarder ever sees them.
func generalTransport() http.RoundTripper {
	return &http.Transport{
		Proxy:                 nil,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}
}

// h2cTransport forces HTTP/2 over a plaintext connection, bypassing the
// usual ALPN negotiation that only fires over TLS. Destinations behind GRPC
// routes are assumed to speak h2c directly.
func h2cTransport() http.RoundTripper {
	return &http2.Transport{
		AllowHTTP:          true,
		DisableCompression: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return net.Dial(network, addr)
		},
	}
}
