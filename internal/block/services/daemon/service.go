package daemon

import (
	"fmt"
	"os"
	"time"

	"github.com/kardianos/service"

	"github.com/haukened/restraint/internal/block/common/log"
)

// ServiceName is the OS service identifier.
const ServiceName = "restraint"

const stopTimeout = 10 * time.Second

// program adapts a Daemon to service.Interface.
type program struct {
	daemon *Daemon
	logger log.Logger
}

func (p *program) Start(service.Service) error {
	p.logger.Info(nil, "service_start")
	p.daemon.Start()
	return nil
}

func (p *program) Stop(service.Service) error {
	p.logger.Info(nil, "service_stop")
	return p.daemon.Stop(stopTimeout)
}

// Manager installs and controls the restraint background service.
type Manager struct {
	service service.Service
}

// NewManager describes the service that runs "restraint service run" at boot
// with env in its environment.
func NewManager(d *Daemon, env map[string]string, logger log.Logger) (*Manager, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	cfg := &service.Config{
		Name:        ServiceName,
		DisplayName: "Restraint",
		Description: "Restores the hosts file when a restraint block expires",
		Executable:  execPath,
		Arguments:   []string{"service", "run"},
		EnvVars:     env,
		Option: service.KeyValue{
			"RunAtLoad": true,
			"KeepAlive": true,
			"Restart":   "always",
		},
	}
	svc, err := service.New(&program{daemon: d, logger: logger}, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return &Manager{service: svc}, nil
}

func (m *Manager) Install() error   { return m.service.Install() }
func (m *Manager) Uninstall() error { return m.service.Uninstall() }
func (m *Manager) Start() error     { return m.service.Start() }
func (m *Manager) Stop() error      { return m.service.Stop() }

// Run blocks until the service manager (or an interrupt when run interactively)
// stops the service.
func (m *Manager) Run() error { return m.service.Run() }

// Status returns a human readable service status.
func (m *Manager) Status() (string, error) {
	status, err := m.service.Status()
	if err != nil {
		return "Unknown", err
	}
	return statusString(status), nil
}

// Platform names the service system in use, e.g. "linux-systemd".
func Platform() string { return service.Platform() }

func statusString(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "Running"
	case service.StatusStopped:
		return "Stopped"
	case service.StatusUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}
