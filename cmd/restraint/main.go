package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haukened/restraint/internal/block/cli"
	"github.com/haukened/restraint/internal/block/common/clock"
	"github.com/haukened/restraint/internal/block/common/log"
	"github.com/haukened/restraint/internal/block/config"
	"github.com/haukened/restraint/internal/block/gateways/elevation"
	"github.com/haukened/restraint/internal/block/infra/guard"
	"github.com/haukened/restraint/internal/block/repos/blocklist"
	"github.com/haukened/restraint/internal/block/repos/hostsfile"
	"github.com/haukened/restraint/internal/block/repos/region"
	"github.com/haukened/restraint/internal/block/repos/session"
	"github.com/haukened/restraint/internal/block/services/engine"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "restraint"
)

func main() {
	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals; a block in progress is left to the service
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Debug(map[string]any{"signal": sig.String()}, "shutdown_signal_received")
		cancel()
	}()

	if err := cli.NewRootCommand(buildApplication, version).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*cli.Application, error) {
	logger := log.GetLogger().Named(appName)

	// Build repository layer
	repos, err := buildRepositories(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}

	// Build service layer
	codec := region.NewCodec()
	eng, err := engine.New(engine.Options{
		Hosts:         repos.hosts,
		Codec:         codec,
		Lock:          repos.lock,
		Clock:         &clock.RealClock{},
		Logger:        logger.Named("engine"),
		MaxDuration:   cfg.MaxDuration,
		RetryInterval: cfg.RetryInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	g, err := guard.New(cfg.GuardPath())
	if err != nil {
		return nil, fmt.Errorf("failed to build instance guard: %w", err)
	}

	log.Debug(map[string]any{
		"hosts_path": cfg.HostsPath,
		"hosts_mode": repos.hosts.Mode(),
		"state_dir":  cfg.StateDir,
		"lock":       cfg.LockPath(),
	}, "application_built")

	return &cli.Application{
		Config:    cfg,
		Engine:    eng,
		Hosts:     repos.hosts,
		Codec:     codec,
		Lock:      repos.lock,
		Guard:     g,
		Blocklist: repos.blocklist,
		Logger:    logger,
	}, nil
}

// repositories holds all repository implementations
type repositories struct {
	hosts     *hostsfile.Store
	lock      *session.BoltStore
	blocklist *blocklist.FileSource
}

// buildRepositories creates and configures all repository implementations
func buildRepositories(cfg *config.AppConfig, logger log.Logger) (*repositories, error) {
	mode, err := hostsfile.ParseMode(cfg.HostsMode)
	if err != nil {
		return nil, err
	}
	hosts, err := hostsfile.New(hostsfile.Options{
		Path:       cfg.HostsPath,
		Mode:       mode,
		StagingDir: cfg.StagingDir,
		Elevator:   elevation.NewCommandElevator(cfg.ElevateCommand, logger.Named("elevation")),
		Logger:     logger.Named("hosts"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create hosts store: %w", err)
	}

	lock, err := session.New(cfg.LockPath(), logger.Named("lock"))
	if err != nil {
		return nil, fmt.Errorf("failed to create block lock: %w", err)
	}

	list, err := blocklist.NewFileSource(cfg.Blocklist, logger.Named("blocklist"))
	if err != nil {
		return nil, fmt.Errorf("failed to create blocklist: %w", err)
	}

	return &repositories{hosts: hosts, lock: lock, blocklist: list}, nil
}
