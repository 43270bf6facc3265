// Package router implements the first-match, segment-bounded prefix matcher
// described in spec.md §4.1.
package router

import (
	"strings"

	"github.com/relaymesh/edgeproxy/internal/config"
)

// MatchResult is the outcome of a successful match: the winning route, the
// portion of the path after the prefix, and the path the forwarder should
// use downstream.
type MatchResult struct {
	Route          config.Route
	Remainder      string
	DownstreamPath string
}

// Matcher performs first-match, case-insensitive, segment-bounded prefix
// matching over an ordered route list.
type Matcher struct {
	routes []config.Route
}

// New builds a Matcher over routes, preserving their order (first match
// wins per spec.md §4.1).
func New(routes []config.Route) *Matcher {
	return &Matcher{routes: routes}
}

// Match returns the first route whose prefix segment-matches path, along
// with the computed remainder/downstream path, or false if none match.
func (m *Matcher) Match(path string) (MatchResult, bool) {
	for _, route := range m.routes {
		if remainder, ok := segmentMatch(route.Prefix, path); ok {
			return buildResult(route, path, remainder), true
		}
	}
	return MatchResult{}, false
}

// HasPrefixSegment reports whether path begins with prefix at a path
// segment boundary, case-insensitively — the same rule Match uses to decide
// whether a route applies. Exported for the dispatcher's gRPC prefix
// fallback, which needs to ask the same question outside of a full Match.
func HasPrefixSegment(prefix, path string) bool {
	_, ok := segmentMatch(prefix, path)
	return ok
}

// MatchGRPCFallback returns a synthetic match against the single configured
// GRPC route, treating path as the downstream path outright. Used by the
// dispatcher's gRPC prefix fallback (spec.md §4.1 "Auxiliary operation").
func MatchGRPCFallback(grpcRoute config.Route, path string) MatchResult {
	return MatchResult{
		Route:          grpcRoute,
		Remainder:      path,
		DownstreamPath: path,
	}
}

// segmentMatch reports whether path is bounded-matched by prefix: path
// equals prefix exactly, or path starts with prefix followed by "/".
// Comparison is case-insensitive. On a match it returns the remainder
// (the portion of path strictly after prefix, normalized to "/" when
// empty).
func segmentMatch(prefix, path string) (remainder string, matched bool) {
	lowerPrefix := strings.ToLower(prefix)
	lowerPath := strings.ToLower(path)

	switch {
	case lowerPath == lowerPrefix:
		return "/", true
	case strings.HasPrefix(lowerPath, lowerPrefix) && isBoundary(prefix, path):
		rem := path[len(prefix):]
		if rem == "" {
			rem = "/"
		}
		return rem, true
	default:
		return "", false
	}
}

// isBoundary reports whether the character in path immediately after the
// matched prefix is a "/", i.e. the prefix ends on a path segment boundary.
// Both prefix and path are assumed to already compare equal up to
// len(prefix) (case-insensitively); this only inspects the boundary byte.
func isBoundary(prefix, path string) bool {
	if strings.HasSuffix(prefix, "/") {
		return true
	}
	if len(path) == len(prefix) {
		return true
	}
	return path[len(prefix)] == '/'
}

func buildResult(route config.Route, fullPath, remainder string) MatchResult {
	downstream := fullPath
	if route.StripPrefix {
		downstream = remainder
	}
	return MatchResult{
		Route:          route,
		Remainder:      remainder,
		DownstreamPath: downstream,
	}
}
