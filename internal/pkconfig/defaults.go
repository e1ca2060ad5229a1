package pkconfig

import (
	"strings"
	"time"

	"github.com/darqos/pk/pkg/pk"
)

// ApplyDefaults fills zero-valued fields with the pK's production
// defaults, so a partially specified Config is still complete.
func ApplyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = pk.DefaultAddr
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	applyLoggingDefaults(&cfg.Logging)
	applyAdminDefaults(&cfg.Admin)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "auto"
	}
}

func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.Addr == "" {
		cfg.Addr = ":11099"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}
	}
}
