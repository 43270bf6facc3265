// Package balancer implements the round-robin destination picker described
// in spec.md §4.2.
package balancer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/relaymesh/edgeproxy/internal/config"
)

// RoundRobin picks destinations from a cluster in cyclic order, one atomic
// counter per cluster identifier, lazily created on first use. Safe for
// concurrent use across any number of goroutines and clusters.
type RoundRobin struct {
	mu       sync.Mutex
	counters map[string]*atomic.Int64
}

// New returns a RoundRobin balancer with no per-cluster state yet; state is
// created lazily the first time a cluster is picked from.
func New() *RoundRobin {
	return &RoundRobin{counters: make(map[string]*atomic.Int64)}
}

// Pick returns the next destination for cluster, cycling through
// cluster.Destinations in order. It panics if cluster has zero
// destinations — per spec.md §4.2 this is a programmer error; the
// dispatcher is responsible for surfacing an empty cluster as a 502 before
// ever calling Pick.
func (r *RoundRobin) Pick(cluster config.Cluster) config.Destination {
	n := len(cluster.Destinations)
	if n == 0 {
		panic(fmt.Sprintf("balancer: cluster %q has no destinations", cluster.ID))
	}

	counter := r.counterFor(cluster.ID)
	next := counter.Add(1)
	idx := int(next % int64(n))
	if idx < 0 {
		idx += n
	}
	return cluster.Destinations[idx]
}

func (r *RoundRobin) counterFor(clusterID string) *atomic.Int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[clusterID]
	if !ok {
		c = &atomic.Int64{}
		r.counters[clusterID] = c
	}
	return c
}
