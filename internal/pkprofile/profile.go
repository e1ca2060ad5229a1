// Package pkprofile wraps Grafana Pyroscope continuous profiling for
// pkd. It is opt-in and off by default.
package pkprofile

import (
	"fmt"
	"runtime"

	"github.com/grafana/pyroscope-go"
)

// Config controls the Pyroscope profiler.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	ProfileTypes   []string
}

var (
	profiler *pyroscope.Profiler
	enabled  bool
)

// Init starts continuous profiling when cfg.Enabled is true. The returned
// shutdown func is always safe to call.
func Init(cfg Config) (shutdown func() error, err error) {
	if !cfg.Enabled {
		enabled = false
		return func() error { return nil }, nil
	}
	enabled = true

	types := make([]pyroscope.ProfileType, 0, len(cfg.ProfileTypes))
	for _, pt := range cfg.ProfileTypes {
		parsed, err := parseProfileType(pt)
		if err != nil {
			return nil, fmt.Errorf("pkprofile: invalid profile type %q: %w", pt, err)
		}
		types = append(types, parsed)
	}

	for _, pt := range cfg.ProfileTypes {
		switch pt {
		case "mutex_count", "mutex_duration":
			runtime.SetMutexProfileFraction(5)
		case "block_count", "block_duration":
			runtime.SetBlockProfileRate(5)
		}
	}

	profiler, err = pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.Endpoint,
		Tags:            map[string]string{"version": cfg.ServiceVersion},
		ProfileTypes:    types,
	})
	if err != nil {
		return nil, fmt.Errorf("pkprofile: start profiler: %w", err)
	}

	return func() error {
		if profiler != nil {
			return profiler.Stop()
		}
		return nil
	}, nil
}

// IsEnabled reports whether profiling is currently active.
func IsEnabled() bool { return enabled }

func parseProfileType(pt string) (pyroscope.ProfileType, error) {
	switch pt {
	case "cpu":
		return pyroscope.ProfileCPU, nil
	case "alloc_objects":
		return pyroscope.ProfileAllocObjects, nil
	case "alloc_space":
		return pyroscope.ProfileAllocSpace, nil
	case "inuse_objects":
		return pyroscope.ProfileInuseObjects, nil
	case "inuse_space":
		return pyroscope.ProfileInuseSpace, nil
	case "goroutines":
		return pyroscope.ProfileGoroutines, nil
	case "mutex_count":
		return pyroscope.ProfileMutexCount, nil
	case "mutex_duration":
		return pyroscope.ProfileMutexDuration, nil
	case "block_count":
		return pyroscope.ProfileBlockCount, nil
	case "block_duration":
		return pyroscope.ProfileBlockDuration, nil
	default:
		return "", fmt.Errorf("unknown profile type %q", pt)
	}
}
