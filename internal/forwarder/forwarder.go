// Package forwarder implements the per-request forwarding algorithm
// described in spec.md §4.3: it turns an inbound request plus a matched
// route and destination into an outbound request, relays the response back
// unbuffered, and classifies transport failures into the right status code.
package forwarder

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/relaymesh/edgeproxy/internal/config"
	"github.com/relaymesh/edgeproxy/internal/observability"
	"github.com/relaymesh/edgeproxy/internal/router"
	"github.com/relaymesh/edgeproxy/internal/transport"
)

// Forwarder executes the outbound exchange for a single matched request.
type Forwarder struct {
	client *http.Client
	logger observability.Logger
}

// New builds a Forwarder that dispatches through client. client is expected
// to be the shared upstream client from package transport.
func New(client *http.Client, logger observability.Logger) *Forwarder {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Forwarder{client: client, logger: logger}
}

// Forward streams the request in w/r to dest, per the route kind in
// match.Route, and relays the response (headers, body, trailers) back to w.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, match router.MatchResult, dest config.Destination) {
	target := targetURL(dest, match, r.URL.RawQuery)
	kind := match.Route.Kind
	hadBody := hasBody(r)

	proxy := &httputil.ReverseProxy{
		Director: func(outreq *http.Request) {
			outreq.URL = target
			outreq.Host = target.Host
			stripHopByHop(outreq.Header)

			if !hadBody {
				outreq.Body = http.NoBody
				outreq.ContentLength = 0
			}

			ctx := transport.WithPolicy(outreq.Context(), kind)
			*outreq = *outreq.WithContext(ctx)
		},
		Transport:    f.client.Transport,
		ErrorLog:     log.New(&logWriter{logger: f.logger}, "", 0),
		ErrorHandler: f.errorHandler,
	}

	proxy.ServeHTTP(w, r)
}

// errorHandler classifies RoundTrip failures that occur before any response
// has been received. Client cancellation is silent (spec.md §4.3/§7);
// everything else is a 502.
func (f *Forwarder) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		f.logger.Warn("forwarder: client canceled request",
			observability.String("path", r.URL.Path))
		return
	}

	f.logger.Error("forwarder: upstream transport failure",
		observability.String("path", r.URL.Path),
		observability.Error(err))
	http.Error(w, "Bad Gateway", http.StatusBadGateway)
}

// targetURL composes the upstream URL per spec.md §4.3 step 1: the base
// path is made to end with "/", the downstream path's leading "/" is
// stripped, and the two are concatenated; queries join with "&" when the
// base carries one.
func targetURL(dest config.Destination, match router.MatchResult, inboundQuery string) *url.URL {
	target := *dest.BaseURL

	basePath := target.Path
	if !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}
	target.Path = basePath + strings.TrimPrefix(match.DownstreamPath, "/")

	switch {
	case target.RawQuery != "" && inboundQuery != "":
		target.RawQuery = target.RawQuery + "&" + inboundQuery
	case inboundQuery != "":
		target.RawQuery = inboundQuery
	}

	return &target
}

// hasBody reports whether r's method/headers indicate a request body per
// spec.md §4.3 step 3. Methods outside POST/PUT/PATCH without a declared
// body are forwarded with no body even if r.Body happens to be non-nil.
func hasBody(r *http.Request) bool {
	if r.ContentLength > 0 {
		return true
	}
	if r.Header.Get("Transfer-Encoding") != "" {
		return true
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// logWriter adapts observability.Logger to io.Writer so the stdlib
// *log.Logger used by httputil.ReverseProxy.ErrorLog (invoked for failures
// that occur mid-response-copy, after headers have already been flushed)
// routes through structured logging instead of stderr.
type logWriter struct {
	logger observability.Logger
}

func (lw *logWriter) Write(p []byte) (int, error) {
	lw.logger.Error("forwarder: response copy failed", observability.String("detail", strings.TrimSpace(string(p))))
	return len(p), nil
}
