// Package pkservice is the daemon boilerplate shared by pkd: pidfile
// management and SIGTERM/SIGINT/SIGHUP handling, kept in one place
// rather than inlined per binary.
package pkservice

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/darqos/pk/internal/pklog"
)

// PidFile writes the current process id to path. The returned cleanup
// func removes it; call it (typically via defer) on shutdown.
func PidFile(path string) (cleanup func(), err error) {
	if path == "" {
		return func() {}, nil
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, fmt.Errorf("pkservice: write pidfile %s: %w", path, err)
	}
	return func() { _ = os.Remove(path) }, nil
}

// Signals is the set of callbacks WaitForSignal drives.
type Signals struct {
	// OnShutdown is invoked once for SIGTERM or SIGINT.
	OnShutdown func()
	// OnReload is invoked for every SIGHUP; reloading must not itself
	// call Stop.
	OnReload func()
}

// WaitForSignal blocks, dispatching SIGHUP to OnReload any number of
// times, until SIGTERM or SIGINT arrives, at which point it invokes
// OnShutdown once and returns.
func WaitForSignal(sig Signals) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(ch)

	for s := range ch {
		switch s {
		case syscall.SIGHUP:
			pklog.Info("SIGHUP received, reloading configuration")
			if sig.OnReload != nil {
				sig.OnReload()
			}
		default:
			pklog.Info("shutdown signal received", "signal", s.String())
			if sig.OnShutdown != nil {
				sig.OnShutdown()
			}
			return
		}
	}
}
