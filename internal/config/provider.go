package config

// Provider yields the currently active configuration snapshot. Handlers
// only ever read through Provider; they never see how the snapshot was
// constructed, which keeps loader/reload concerns out of the forwarding
// core.
type Provider interface {
	Snapshot() *ProxyConfig
}

// StaticProvider wraps a single, never-changing ProxyConfig.
type StaticProvider struct {
	cfg *ProxyConfig
}

// NewStaticProvider returns a Provider that always yields cfg.
func NewStaticProvider(cfg *ProxyConfig) *StaticProvider {
	return &StaticProvider{cfg: cfg}
}

// Snapshot implements Provider.
func (s *StaticProvider) Snapshot() *ProxyConfig {
	return s.cfg
}
