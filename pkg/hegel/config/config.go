package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// InstrumentConfig describes one instrument entry in the config file.
type InstrumentConfig struct {
	// Resource is the VISA-style resource name, e.g.
	// "TCPIP0::192.168.1.20::5025::SOCKET" or "SIM::source".
	Resource string `mapstructure:"resource"`

	// Driver selects the driver table entry. Empty means "scpi" for
	// network resources and the simulator model for SIM resources.
	Driver string `mapstructure:"driver"`

	// Timeout overrides the transport timeout for this instrument.
	Timeout time.Duration `mapstructure:"timeout"`

	// Termination overrides the read termination character.
	Termination string `mapstructure:"termination"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// DaemonConfig configures the hegeld session daemon.
type DaemonConfig struct {
	AutoStart  bool   `mapstructure:"auto_start"`
	BinaryPath string `mapstructure:"binary_path"` // path to hegeld (auto-discovered if empty)
	SocketPath string `mapstructure:"socket_path"`
	PIDPath    string `mapstructure:"pid_path"`
}

// SweepConfig holds defaults for the sweep and record engines.
type SweepConfig struct {
	BeforeWait time.Duration `mapstructure:"before_wait"`
	Async      bool          `mapstructure:"async"`
	Filename   string        `mapstructure:"filename"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Config represents the application configuration.
type Config struct {
	DataPath    string                      `mapstructure:"data_path"`
	LockDir     string                      `mapstructure:"lock_dir"`
	Timeout     time.Duration               `mapstructure:"timeout"`
	Instruments map[string]InstrumentConfig `mapstructure:"instruments"`
	Sweep       SweepConfig                 `mapstructure:"sweep"`
	History     HistoryConfig               `mapstructure:"history"`
	Logging     LoggingConfig               `mapstructure:"logging"`
	Daemon      DaemonConfig                `mapstructure:"daemon"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/hegel/config.yaml
//   - $HOME/.config/hegel/config.yaml
//
// Environment variables are prefixed with HEGEL_ (e.g. HEGEL_DATA_PATH).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "hegel"))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "hegel"))

	v.SetEnvPrefix("HEGEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataPath, err = ExpandPath(cfg.DataPath); err != nil {
		return nil, err
	}
	if cfg.History.Path, err = ExpandPath(cfg.History.Path); err != nil {
		return nil, err
	}
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath()
	}
	if len(cfg.Instruments) == 0 {
		cfg.Instruments = DefaultInstruments
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_path", DefaultDataPath)
	v.SetDefault("lock_dir", DefaultLockDir())
	v.SetDefault("timeout", DefaultTimeout)

	v.SetDefault("sweep.before_wait", DefaultBeforeWait)
	v.SetDefault("sweep.async", false)
	v.SetDefault("sweep.filename", DefaultFilename)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "") // empty means DefaultHistoryPath
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // empty means DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"visa":   "info",
		"sweep":  "info",
		"daemon": "info",
		"store":  "warn",
	})

	v.SetDefault("daemon.auto_start", false)
	v.SetDefault("daemon.socket_path", "") // empty means default XDG path
	v.SetDefault("daemon.pid_path", "")
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "hegel"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "hegel"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault writes a default config file if none exists.
// Returns nil if a config file already exists. This replaces the old
// copy-a-template-on-first-launch behavior of the console launcher.
func WriteDefault() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configDir, err := ConfigDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# Hegel instrument control configuration

# Where data files are written. Relative sweep/record filenames are
# joined to this path.
data_path: %s

# Directory for cross-process resource lock files (empty means default).
lock_dir: ""

# Transport timeout for instrument exchanges.
timeout: %s

# Instruments by name. The resource is a VISA-style name; SIM resources
# are simulated in-process and need no hardware.
instruments:
  src:
    resource: SIM::source
  dmm:
    resource: SIM::meter
  # nanovolt:
  #   resource: TCPIP0::192.168.1.20::5025::SOCKET
  #   timeout: 10s

# Sweep and record engine defaults
sweep:
  before_wait: %s
  async: false
  filename: "%s"

# Run history settings
history:
  enabled: true
  path: ""            # empty means $XDG_DATA_HOME/hegel/history.db
  retention_days: %d

# Logging configuration
logging:
  level: info
  path: ""            # empty means $XDG_STATE_HOME/hegel/hegel.log
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    visa: info
    sweep: info
    daemon: info
    store: warn

# Session daemon configuration
daemon:
  auto_start: false
  socket_path: ""     # empty means $XDG_DATA_HOME/hegel/hegeld.sock
  pid_path: ""        # empty means $XDG_DATA_HOME/hegel/hegeld.pid
`, DefaultDataPath, DefaultTimeout, DefaultBeforeWait, DefaultFilename, DefaultRetentionDays)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	return nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/hegel/ for database, socket, and pid files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "hegel")
}

// StateDir returns $XDG_STATE_HOME/hegel/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "hegel")
}

// DefaultLockDir returns the default directory for resource lock files.
// It must be shared by every process on the machine, so it lives under
// the data dir rather than a per-process temp dir.
func DefaultLockDir() string {
	return filepath.Join(DataDir(), "locks")
}

// DefaultSocketPath returns the default Unix socket path for hegeld.
func DefaultSocketPath() string {
	return filepath.Join(DataDir(), "hegeld.sock")
}

// DefaultPIDPath returns the default PID file path for hegeld.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), "hegeld.pid")
}

// DefaultHistoryPath returns the default run history database path.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}

// EnsureLockDir creates the lock directory if it doesn't exist.
func EnsureLockDir(dir string) (string, error) {
	if dir == "" {
		dir = DefaultLockDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating lock directory: %w", err)
	}
	return dir, nil
}
