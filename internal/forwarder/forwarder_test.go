package forwarder

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/relaymesh/edgeproxy/internal/config"
	"github.com/relaymesh/edgeproxy/internal/router"
	"github.com/relaymesh/edgeproxy/internal/transport"
)

func destinationFor(t *testing.T, rawURL string) config.Destination {
	t.Helper()
	dest, err := config.NewDestination("backend", rawURL)
	require.NoError(t, err)
	return dest
}

func httpMatch(downstream string) router.MatchResult {
	return router.MatchResult{
		Route:          config.NewRoute("/api/", "api", config.HTTP, false),
		DownstreamPath: downstream,
	}
}

func TestTargetURLJoinsPathAndQuery(t *testing.T) {
	base, err := url.Parse("http://backend:9000/svc")
	require.NoError(t, err)
	dest := config.Destination{ID: "d", BaseURL: base}

	target := targetURL(dest, router.MatchResult{DownstreamPath: "/hello"}, "a=1")
	assert.Equal(t, "/svc/hello", target.Path)
	assert.Equal(t, "a=1", target.RawQuery)
}

func TestTargetURLJoinsExistingBaseQuery(t *testing.T) {
	base, err := url.Parse("http://backend:9000/svc?token=x")
	require.NoError(t, err)
	dest := config.Destination{ID: "d", BaseURL: base}

	target := targetURL(dest, router.MatchResult{DownstreamPath: "/hello"}, "a=1")
	assert.Equal(t, "token=x&a=1", target.RawQuery)
}

func TestTargetURLHandlesRootDownstreamPath(t *testing.T) {
	base, err := url.Parse("http://backend:9000")
	require.NoError(t, err)
	dest := config.Destination{ID: "d", BaseURL: base}

	target := targetURL(dest, router.MatchResult{DownstreamPath: "/"}, "")
	assert.Equal(t, "/", target.Path)
}

func TestForwardStripsHopByHopHeaders(t *testing.T) {
	var gotConnection, gotTransferEncoding, gotXFoo, gotXBar string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotConnection = r.Header.Get("Connection")
		gotTransferEncoding = r.Header.Get("Transfer-Encoding")
		gotXFoo = r.Header.Get("X-Foo")
		gotXBar = r.Header.Get("X-Bar")
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	fwd := New(transport.New(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	req.Header.Set("Connection", "x-foo")
	req.Header.Set("X-Foo", "v")
	req.Header.Set("X-Bar", "w")

	rr := httptest.NewRecorder()
	fwd.Forward(rr, req, httpMatch("/hello"), destinationFor(t, backend.URL))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, gotConnection)
	assert.Empty(t, gotTransferEncoding)
	assert.Empty(t, gotXFoo, "headers named by Connection are stripped along with it")
	assert.Equal(t, "w", gotXBar, "unrelated custom headers pass through")
}

func TestForwardStreamsResponseBodyIntact(t *testing.T) {
	payload := make([]byte, 64*1024)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer backend.Close()

	fwd := New(transport.New(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	rr := httptest.NewRecorder()
	fwd.Forward(rr, req, httpMatch("/hello"), destinationFor(t, backend.URL))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, payload, rr.Body.Bytes())
}

func TestForwardPropagatesTrailers(t *testing.T) {
	// GRPC routes always use the h2c leaf transport, so the backend must
	// accept cleartext HTTP/2.
	backend := httptest.NewServer(h2c.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Trailer", "Grpc-Status, Grpc-Message")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "body")
		w.Header().Set("Grpc-Status", "0")
		w.Header().Set("Grpc-Message", "")
	}), &http2.Server{}))
	defer backend.Close()

	fwd := New(transport.New(), nil)
	req := httptest.NewRequest(http.MethodGet, "/grpc/pkg.Service/Method", nil)
	rr := httptest.NewRecorder()

	grpcMatch := router.MatchResult{
		Route:          config.NewRoute("/grpc/", "grpc", config.GRPC, true),
		DownstreamPath: "/pkg.Service/Method",
	}
	fwd.Forward(rr, req, grpcMatch, destinationFor(t, backend.URL))

	result := rr.Result()
	assert.Equal(t, "0", result.Trailer.Get("Grpc-Status"))
}

func TestForwardAbortsUpstreamOnClientCancellation(t *testing.T) {
	started := make(chan struct{})
	canceled := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
			close(canceled)
		case <-time.After(5 * time.Second):
		}
	}))
	defer backend.Close()

	fwd := New(transport.New(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/hello", nil).WithContext(ctx)
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		fwd.Forward(rr, req, httpMatch("/hello"), destinationFor(t, backend.URL))
		close(done)
	}()

	<-started
	cancel()

	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("backend did not observe cancellation")
	}
	<-done
}

func TestForwardReturnsBadGatewayOnConnectionFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := ln.Addr().String()
	require.NoError(t, ln.Close())

	fwd := New(transport.New(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	rr := httptest.NewRecorder()
	fwd.Forward(rr, req, httpMatch("/hello"), destinationFor(t, "http://"+deadAddr))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestHasBodyDetectsCommonCases(t *testing.T) {
	get := httptest.NewRequest(http.MethodGet, "/x", nil)
	assert.False(t, hasBody(get))

	post := httptest.NewRequest(http.MethodPost, "/x", nil)
	assert.True(t, hasBody(post))

	chunked := httptest.NewRequest(http.MethodDelete, "/x", nil)
	chunked.Header.Set("Transfer-Encoding", "chunked")
	assert.True(t, hasBody(chunked))
}
