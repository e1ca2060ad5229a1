// Command pkboot is the peripheral boot helper: it locates the
// environment's service entry-points under DARQ_ROOT (or the current
// working directory when unset) and starts them in manifest order.
//
// pkboot is not part of the pK core and is run separately; cmd/pkd's
// RebootHook does not invoke it (it restarts the pkd binary itself).
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/darqos/pk/internal/pklog"
)

// Service describes one entry-point to start.
type Service struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Order   int      `yaml:"order"`
}

type manifest struct {
	Services []Service `yaml:"services"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pkboot:", err)
		os.Exit(1)
	}
}

func run() error {
	root := os.Getenv("DARQ_ROOT")
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
	}
	pklog.Info("booting", "root", root)

	services, err := loadManifest(filepath.Join(root, "services.yaml"))
	if err != nil {
		return err
	}

	sort.SliceStable(services, func(i, j int) bool { return services[i].Order < services[j].Order })

	for _, svc := range services {
		pid, err := startService(root, svc)
		if err != nil {
			pklog.Error("failed to start service", "name", svc.Name, "error", err)
			continue
		}
		pklog.Info("started service", "name", svc.Name, "pid", pid)
	}

	pklog.Info("system up")
	return nil
}

func loadManifest(path string) ([]Service, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		pklog.Warn("no services manifest found, nothing to start", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m.Services, nil
}

func startService(root string, svc Service) (int, error) {
	cmdPath := svc.Command
	if !filepath.IsAbs(cmdPath) {
		cmdPath = filepath.Join(root, cmdPath)
	}
	c := exec.Command(cmdPath, svc.Args...)
	c.Stdout, c.Stderr = os.Stdout, os.Stderr
	c.Dir = root
	if err := c.Start(); err != nil {
		return 0, err
	}
	// Services are expected to outlive pkboot; the Wait here only reaps
	// them if they exit early.
	go func(name string) {
		if err := c.Wait(); err != nil {
			pklog.Warn("service exited", "name", name, "error", err)
		}
	}(svc.Name)
	return c.Process.Pid, nil
}
