package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/darqos/pk/internal/pkadmin"
	"github.com/darqos/pk/internal/pkconfig"
	"github.com/darqos/pk/internal/pkd/router"
	"github.com/darqos/pk/internal/pkevent"
	"github.com/darqos/pk/internal/pklog"
	"github.com/darqos/pk/internal/pkprofile"
	"github.com/darqos/pk/internal/pkservice"
	"github.com/darqos/pk/internal/pktelemetry"
)

var pidFile string

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "path to PID file")
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pK daemon",
	Long: `Start the pK daemon: binds the client-facing TCP listener
(default :11000) and the read-only admin HTTP surface, then routes
messages between ports until a Shutdown message arrives or the process
receives SIGTERM/SIGINT.`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := pkconfig.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := pklog.Init(pklog.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := pktelemetry.Init(ctx, pktelemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "pkd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			pklog.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := pkprofile.Init(pkprofile.Config{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "pkd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("init profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			pklog.Error("profiling shutdown error", "error", err)
		}
	}()

	pidCleanup, err := pkservice.PidFile(pidFile)
	if err != nil {
		return err
	}
	defer pidCleanup()

	router.Banner()

	loop, err := newLoop()
	if err != nil {
		return fmt.Errorf("create event loop: %w", err)
	}

	rtr := router.New(loop, rebootHook())
	if err := rtr.Listen(cfg.Listen); err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}

	var adminSrv *http.Server
	if cfg.Admin.Enabled {
		adminSrv = &http.Server{Addr: cfg.Admin.Addr, Handler: pkadmin.NewRouter(rtr)}
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				pklog.Error("admin server error", "error", err)
			}
		}()
		pklog.Info("admin surface listening", "address", cfg.Admin.Addr)
	}

	routerDone := make(chan error, 1)
	go func() { routerDone <- rtr.Run() }()

	// Hot-reload of the logging section when the config file changes on
	// disk, alongside the SIGHUP path below.
	if cfgFile != "" {
		stopWatch, err := pkconfig.Watch(cfgFile,
			func(reloaded *pkconfig.Config) {
				pklog.SetLevel(reloaded.Logging.Level)
				pklog.SetFormat(reloaded.Logging.Format)
				pklog.Info("configuration reloaded", "level", reloaded.Logging.Level, "format", reloaded.Logging.Format)
			},
			func(err error) {
				pklog.Warn("config watch error", "error", err)
			})
		if err != nil {
			pklog.Warn("config file watching disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}

	pklog.Info("pkd is running", "listen", cfg.Listen)

	shutdown := func() {
		rtr.Stop()
		if adminSrv != nil {
			_ = adminSrv.Close()
		}
	}

	done := make(chan struct{})
	go func() {
		pkservice.WaitForSignal(pkservice.Signals{
			OnShutdown: shutdown,
			OnReload: func() {
				reloaded, err := pkconfig.Load(cfgFile)
				if err != nil {
					pklog.Error("config reload failed", "error", err)
					return
				}
				pklog.SetLevel(reloaded.Logging.Level)
				pklog.SetFormat(reloaded.Logging.Format)
			},
		})
		close(done)
	}()

	select {
	case <-done:
	case err := <-routerDone:
		if err != nil {
			pklog.Error("router stopped with error", "error", err)
			return err
		}
	}
	return nil
}

// newLoop selects the epoll-backed pollLoop on Linux and the portable
// chanLoop elsewhere.
func newLoop() (pkevent.Loop, error) {
	if runtime.GOOS == "linux" {
		return pkevent.NewPollLoop()
	}
	return pkevent.NewChanLoop(), nil
}

// rebootHook re-execs the running binary, keeping process replacement out
// of the router itself.
func rebootHook() router.RebootHook {
	return func() {
		exe, err := os.Executable()
		if err != nil {
			pklog.Error("reboot: cannot resolve executable path", "error", err)
			return
		}
		pklog.Info("rebooting", "executable", exe)
		c := exec.Command(exe, os.Args[1:]...)
		c.Stdout, c.Stderr, c.Stdin = os.Stdout, os.Stderr, os.Stdin
		if err := c.Start(); err != nil {
			pklog.Error("reboot: failed to start replacement process", "error", err)
			return
		}
		os.Exit(0)
	}
}
