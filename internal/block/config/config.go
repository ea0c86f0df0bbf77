package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/haukened/restraint/internal/block/repos/hostsfile"
)

// EnvPrefix is the prefix of every configuration environment variable.
const EnvPrefix = "RESTRAINT_"

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// LogFile, when set, receives a copy of every log entry.
	LogFile string `koanf:"log_file"`

	// HostsPath is the system hosts file.
	HostsPath string `koanf:"hosts_path" validate:"required"`

	// HostsMode is "auto", "direct" or "staged". auto picks direct when running privileged.
	HostsMode string `koanf:"hosts_mode" validate:"required,oneof=auto direct staged"`

	// StagingDir holds the staged hosts copy. Defaults to <state_dir>/staging.
	StagingDir string `koanf:"staging_dir"`

	// StateDir holds the lock database, the instance guard and the default blocklist.
	StateDir string `koanf:"state_dir" validate:"required"`

	// Blocklist is the list file of sites to block. Defaults to <state_dir>/blocklist.txt.
	Blocklist string `koanf:"blocklist"`

	// ElevateCommand prefixes the privileged copy in staged mode, e.g. "sudo".
	ElevateCommand []string `koanf:"elevate_command" validate:"omitempty,dive,required"`

	// MaxDuration is the longest block Start accepts.
	MaxDuration time.Duration `koanf:"max_duration" validate:"gt=0s"`

	// TickInterval is the countdown and expiry check period.
	TickInterval time.Duration `koanf:"tick_interval" validate:"gt=0s,ltfield=MaxDuration"`

	// RetryInterval spaces restore attempts after a failure.
	RetryInterval time.Duration `koanf:"retry_interval" validate:"gt=0s"`

	// PollInterval is how often the background service looks for a block to manage.
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0s"`
}

// LockPath is the persistent block lock database.
func (c *AppConfig) LockPath() string { return filepath.Join(c.StateDir, "session.db") }

// GuardPath is the single-instance lock file.
func (c *AppConfig) GuardPath() string { return filepath.Join(c.StateDir, "restraint.lock") }

// DEFAULT_APP_CONFIG holds the platform defaults applied before the environment.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:            "prod",
	LogLevel:       "info",
	HostsPath:      hostsfile.DefaultPath(),
	HostsMode:      string(hostsfile.ModeAuto),
	StateDir:       defaultStateDir(),
	ElevateCommand: defaultElevateCommand(runtime.GOOS),
	MaxDuration:    24 * time.Hour,
	TickInterval:   time.Second,
	RetryInterval:  30 * time.Second,
	PollInterval:   15 * time.Second,
}

// listKeys are split on spaces and commas; every other value is kept whole so
// paths containing spaces survive.
var listKeys = map[string]bool{"elevate_command": true}

func defaultStateDir() string {
	return stateDirFor(runtime.GOOS, os.Getenv, lookupHome, os.UserConfigDir)
}

func lookupHome(name string) (string, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return "", err
	}
	return u.HomeDir, nil
}

// stateDirFor resolves the default state directory. Under sudo it is the
// invoking user's directory, so elevated commands such as "service install"
// share the lock that the user's own commands write.
func stateDirFor(goos string, getenv func(string) string, home func(string) (string, error), configDir func() (string, error)) string {
	if goos != "windows" {
		if name := getenv("SUDO_USER"); name != "" && name != "root" {
			if dir, err := home(name); err == nil && dir != "" {
				return filepath.Join(userConfigDirUnder(goos, dir), "restraint")
			}
		}
	}
	if dir, err := configDir(); err == nil {
		return filepath.Join(dir, "restraint")
	}
	return filepath.Join(os.TempDir(), "restraint")
}

// userConfigDirUnder mirrors os.UserConfigDir for a home other than $HOME.
// XDG_CONFIG_HOME is not consulted since under sudo it belongs to root.
func userConfigDirUnder(goos, home string) string {
	switch goos {
	case "darwin", "ios":
		return filepath.Join(home, "Library", "Application Support")
	case "plan9":
		return filepath.Join(home, "lib")
	default:
		return filepath.Join(home, ".config")
	}
}

func defaultElevateCommand(goos string) []string {
	switch goos {
	case "windows":
		return nil
	default:
		return []string{"sudo"}
	}
}

// validStagedAccess requires an elevation command whenever the store may run staged.
func validStagedAccess(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(AppConfig)
	if cfg.HostsMode == string(hostsfile.ModeStaged) && len(cfg.ElevateCommand) == 0 {
		sl.ReportError(cfg.ElevateCommand, "ElevateCommand", "elevate_command", "staged_requires_elevate", "")
	}
}

// envLoader loads environment variables with the prefix "RESTRAINT_".
// It transforms the keys to lowercase and removes the prefix,
// and can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
			value = strings.TrimSpace(value)

			if value == "" || !listKeys[key] {
				return key, value
			}
			return key, strings.FieldsFunc(value, func(r rune) bool {
				return r == ' ' || r == ','
			})
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the cross-field staged access rule.
var registerValidation = func(v *validator.Validate) error {
	v.RegisterStructValidation(validStagedAccess, AppConfig{})
	return nil
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values, derives dependent paths and runs validation.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if cfg.StagingDir == "" && cfg.StateDir != "" {
		cfg.StagingDir = filepath.Join(cfg.StateDir, "staging")
	}
	if cfg.Blocklist == "" && cfg.StateDir != "" {
		cfg.Blocklist = filepath.Join(cfg.StateDir, "blocklist.txt")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &cfg, nil
}

// Environ returns the RESTRAINT_ variables that reproduce the path settings of
// c, for handing to a process started elsewhere such as the background service.
func (c *AppConfig) Environ() map[string]string {
	return map[string]string{
		EnvPrefix + "HOSTS_PATH":      c.HostsPath,
		EnvPrefix + "HOSTS_MODE":      c.HostsMode,
		EnvPrefix + "STATE_DIR":       c.StateDir,
		EnvPrefix + "STAGING_DIR":     c.StagingDir,
		EnvPrefix + "BLOCKLIST":       c.Blocklist,
		EnvPrefix + "LOG_LEVEL":       c.LogLevel,
		EnvPrefix + "LOG_FILE":        c.LogFile,
		EnvPrefix + "ELEVATE_COMMAND": strings.Join(c.ElevateCommand, " "),
		EnvPrefix + "POLL_INTERVAL":   c.PollInterval.String(),
		EnvPrefix + "RETRY_INTERVAL":  c.RetryInterval.String(),
		EnvPrefix + "MAX_DURATION":    c.MaxDuration.String(),
	}
}
