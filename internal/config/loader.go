package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings is the flat set of operator-facing inputs described in spec.md
// §6, plus the ambient additions in SPEC_FULL.md §6/§10.2.
type Settings struct {
	Port         int      `yaml:"port"`
	HTTPBackend  string   `yaml:"http_backend"`
	GRPCBackends []string `yaml:"grpc_backends"`
	EnableTLS    bool     `yaml:"enable_tls"`
	TLSCertFile  string   `yaml:"tls_cert_file"`
	TLSKeyFile   string   `yaml:"tls_key_file"`
	LogLevel     string   `yaml:"log_level"`
	LogFormat    string   `yaml:"log_format"`
}

// DefaultSettings returns the defaults named in spec.md §6.
func DefaultSettings() Settings {
	return Settings{
		Port:         5000,
		HTTPBackend:  "http://localhost:7001",
		GRPCBackends: []string{"http://localhost:7002", "http://localhost:7003"},
		EnableTLS:    true,
		LogLevel:     "info",
		LogFormat:    "json",
	}
}

// fileOverlay mirrors Settings with pointer fields (and a slice for the gRPC
// backends), so that only the keys present in the YAML file override the
// defaults. Environment variables are applied directly onto Settings.
type fileOverlay struct {
	Port         *int     `yaml:"port"`
	HTTPBackend  *string  `yaml:"http_backend"`
	GRPCBackends []string `yaml:"grpc_backends"`
	EnableTLS    *bool    `yaml:"enable_tls"`
	TLSCertFile  *string  `yaml:"tls_cert_file"`
	TLSKeyFile   *string  `yaml:"tls_key_file"`
	LogLevel     *string  `yaml:"log_level"`
	LogFormat    *string  `yaml:"log_format"`
}

// LoadSettings builds Settings by starting from defaults, overlaying an
// optional YAML file named by PROXY_CONFIG_PATH, then overlaying any
// explicitly-set PROXY_* environment variable (SPEC_FULL.md §10.2 layering:
// defaults < file < environment).
func LoadSettings(environ func(string) (string, bool)) (Settings, error) {
	settings := DefaultSettings()

	if path, ok := environ("PROXY_CONFIG_PATH"); ok && path != "" {
		overlay, err := loadFileOverlay(path)
		if err != nil {
			return Settings{}, fmt.Errorf("loading PROXY_CONFIG_PATH %q: %w", path, err)
		}
		applyFileOverlay(&settings, overlay)
	}

	if err := applyEnvOverlay(&settings, environ); err != nil {
		return Settings{}, err
	}

	return settings, nil
}

func loadFileOverlay(path string) (fileOverlay, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path, not request-controlled
	if err != nil {
		return fileOverlay{}, err
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fileOverlay{}, fmt.Errorf("parsing YAML: %w", err)
	}
	return overlay, nil
}

func applyFileOverlay(s *Settings, o fileOverlay) {
	if o.Port != nil {
		s.Port = *o.Port
	}
	if o.HTTPBackend != nil {
		s.HTTPBackend = *o.HTTPBackend
	}
	if len(o.GRPCBackends) > 0 {
		s.GRPCBackends = o.GRPCBackends
	}
	if o.EnableTLS != nil {
		s.EnableTLS = *o.EnableTLS
	}
	if o.TLSCertFile != nil {
		s.TLSCertFile = *o.TLSCertFile
	}
	if o.TLSKeyFile != nil {
		s.TLSKeyFile = *o.TLSKeyFile
	}
	if o.LogLevel != nil {
		s.LogLevel = *o.LogLevel
	}
	if o.LogFormat != nil {
		s.LogFormat = *o.LogFormat
	}
}

func applyEnvOverlay(s *Settings, environ func(string) (string, bool)) error {
	if v, ok := environ("PROXY_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PROXY_PORT=%q is not an integer: %w", v, err)
		}
		s.Port = port
	}
	if v, ok := environ("PROXY_HTTP_BACKEND"); ok && v != "" {
		s.HTTPBackend = v
	}
	if v, ok := environ("PROXY_GRPC_BACKENDS"); ok && v != "" {
		s.GRPCBackends = splitNonEmpty(v, ";")
	}
	if v, ok := environ("PROXY_ENABLE_TLS"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PROXY_ENABLE_TLS=%q is not a boolean: %w", v, err)
		}
		s.EnableTLS = enabled
	}
	if v, ok := environ("PROXY_TLS_CERT_FILE"); ok && v != "" {
		s.TLSCertFile = v
	}
	if v, ok := environ("PROXY_TLS_KEY_FILE"); ok && v != "" {
		s.TLSKeyFile = v
	}
	if v, ok := environ("PROXY_LOG_LEVEL"); ok && v != "" {
		s.LogLevel = v
	}
	if v, ok := environ("PROXY_LOG_FORMAT"); ok && v != "" {
		s.LogFormat = v
	}
	return nil
}

func splitNonEmpty(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// OSEnviron adapts os.LookupEnv to the environ func LoadSettings expects.
func OSEnviron(key string) (string, bool) {
	return os.LookupEnv(key)
}

// BuiltinRoutes is the fixed route table from spec.md §6: /api/ to the
// "api" cluster without prefix stripping, /grpc/ to the "grpc" cluster with
// prefix stripping. Health endpoints are handled by the dispatcher directly
// and are not part of this table.
func BuiltinRoutes() []Route {
	return []Route{
		NewRoute("/api/", "api", HTTP, false),
		NewRoute("/grpc/", "grpc", GRPC, true),
	}
}

// BuildProxyConfig turns Settings into a validated ProxyConfig using the
// built-in route table and the "api"/"grpc" clusters named in spec.md §6.
func BuildProxyConfig(s Settings) (*ProxyConfig, error) {
	httpDest, err := NewDestination("api-0", s.HTTPBackend)
	if err != nil {
		return nil, err
	}

	grpcDests := make([]Destination, 0, len(s.GRPCBackends))
	for i, raw := range s.GRPCBackends {
		d, err := NewDestination(fmt.Sprintf("grpc-%d", i), raw)
		if err != nil {
			return nil, err
		}
		grpcDests = append(grpcDests, d)
	}

	clusters := []Cluster{
		{ID: "api", Destinations: []Destination{httpDest}},
		{ID: "grpc", Destinations: grpcDests},
	}

	return NewProxyConfig(BuiltinRoutes(), clusters)
}
