// Package config holds the immutable configuration model: destinations,
// clusters, routes, and the snapshot that ties them together.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// RouteKind distinguishes an ordinary HTTP route from a gRPC-over-HTTP/2
// route; the forwarder uses it to pick a transport and version policy.
type RouteKind int

const (
	// HTTP routes use the general-purpose transport, which negotiates the
	// version with the destination (HTTP/2 only over TLS, else HTTP/1.1);
	// the inbound request's protocol version is not consulted.
	HTTP RouteKind = iota
	// GRPC routes force HTTP/2 regardless of the inbound protocol.
	GRPC
)

func (k RouteKind) String() string {
	if k == GRPC {
		return "GRPC"
	}
	return "HTTP"
}

// Destination is one concrete backend within a Cluster. Immutable after
// construction; its lifetime is that of the ProxyConfig snapshot owning it.
type Destination struct {
	ID      string
	BaseURL *url.URL
}

// NewDestination parses rawURL and returns a Destination, or an error if
// rawURL is not an absolute URL.
func NewDestination(id, rawURL string) (Destination, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Destination{}, fmt.Errorf("destination %s: invalid URL %q: %w", id, rawURL, err)
	}
	if !u.IsAbs() {
		return Destination{}, fmt.Errorf("destination %s: URL %q is not absolute", id, rawURL)
	}
	return Destination{ID: id, BaseURL: u}, nil
}

// Cluster is a named, ordered, non-empty-by-convention group of equivalent
// destinations. Order defines round-robin rotation order.
type Cluster struct {
	ID           string
	Destinations []Destination
}

// Route maps a path prefix to a cluster and a forwarding kind.
type Route struct {
	Prefix      string
	ClusterID   string
	Kind        RouteKind
	StripPrefix bool
}

// NormalizePrefix normalizes a route prefix to start with "/" and, for
// prefixes longer than one character, to not end with "/".
func NormalizePrefix(prefix string) string {
	if prefix == "" {
		return "/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if len(prefix) > 1 && strings.HasSuffix(prefix, "/") {
		prefix = strings.TrimRight(prefix, "/")
		if prefix == "" {
			prefix = "/"
		}
	}
	return prefix
}

// NewRoute builds a Route with a normalized prefix.
func NewRoute(prefix, clusterID string, kind RouteKind, stripPrefix bool) Route {
	return Route{
		Prefix:      NormalizePrefix(prefix),
		ClusterID:   clusterID,
		Kind:        kind,
		StripPrefix: stripPrefix,
	}
}

// ProxyConfig is the immutable configuration snapshot shared read-only by
// every request handler: an ordered route list plus a case-insensitive
// cluster map.
type ProxyConfig struct {
	Routes   []Route
	clusters map[string]Cluster
}

// NewProxyConfig validates and builds a ProxyConfig. It enforces that every
// route's cluster identifier resolves and that cluster identifiers are
// unique under case-insensitive comparison; it deliberately does NOT
// require clusters to have at least one destination, since an empty
// cluster is tolerated at request time (surfaced as a 502 by the dispatcher)
// to accommodate externally mutated configs.
func NewProxyConfig(routes []Route, clusters []Cluster) (*ProxyConfig, error) {
	clusterMap := make(map[string]Cluster, len(clusters))
	for _, c := range clusters {
		key := strings.ToLower(c.ID)
		if _, exists := clusterMap[key]; exists {
			return nil, fmt.Errorf("duplicate cluster identifier %q", c.ID)
		}
		clusterMap[key] = c
	}

	normalized := make([]Route, len(routes))
	for i, r := range routes {
		normalized[i] = NewRoute(r.Prefix, r.ClusterID, r.Kind, r.StripPrefix)
		if _, ok := clusterMap[strings.ToLower(r.ClusterID)]; !ok {
			return nil, fmt.Errorf("route %q references unknown cluster %q", normalized[i].Prefix, r.ClusterID)
		}
	}

	return &ProxyConfig{Routes: normalized, clusters: clusterMap}, nil
}

// Cluster looks up a cluster by identifier, case-insensitively.
func (p *ProxyConfig) Cluster(id string) (Cluster, bool) {
	c, ok := p.clusters[strings.ToLower(id)]
	return c, ok
}

// GRPCRoute returns the single configured GRPC-kind route, if any. Used by
// the dispatcher's gRPC prefix fallback (spec §4.4 rule 3).
func (p *ProxyConfig) GRPCRoute() (Route, bool) {
	for _, r := range p.Routes {
		if r.Kind == GRPC {
			return r, true
		}
	}
	return Route{}, false
}
