// Package config provides configuration management for remotepad.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"remotepad/internal/logger"
)

var log = logger.For("config")

// Mode selects which role the process plays on the network.
type Mode string

const (
	ModeController Mode = "controller"
	ModeReceiver   Mode = "receiver"
)

// Valid reports whether m names a known role.
func (m Mode) Valid() bool {
	return m == ModeController || m == ModeReceiver
}

// ParseMode converts a user supplied string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q (want controller or receiver)", s)
	}
	return m, nil
}

const (
	ServiceAirType   = "_airtype._tcp"
	ServiceControlla = "_controlla._tcp"
)

// Config represents the application configuration
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Receiver   ReceiverConfig   `yaml:"receiver"`
	Controller ControllerConfig `yaml:"controller"`
	API        APIConfig        `yaml:"api"`
	Log        LogConfig        `yaml:"log"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// Mode is the persisted role, restored on the next start
	Mode Mode `yaml:"mode"`

	// DeviceName is the advertised instance name. Empty means the host name.
	DeviceName string `yaml:"device_name,omitempty"`

	// Pro unlocks text entry and key presses on the controller side
	Pro bool `yaml:"pro"`

	// StartOnBoot determines if app starts on user login
	StartOnBoot bool `yaml:"start_on_boot"`

	// Tray shows the status icon while running as a service
	Tray bool `yaml:"tray"`
}

// DiscoveryConfig controls DNS-SD advertising and browsing.
type DiscoveryConfig struct {
	ServiceType string `yaml:"service_type"`
	Domain      string `yaml:"domain"`

	// AdvertiseAddresses publishes explicit A records for every usable interface
	AdvertiseAddresses bool `yaml:"advertise_addresses"`

	// ResolveTimeout bounds the transient connection used to resolve an instance
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`

	// FallbackPort is used with "<name>.local" when resolution fails
	FallbackPort int `yaml:"fallback_port"`

	// BrowseTimeout is how long one-shot listings wait for results
	BrowseTimeout time.Duration `yaml:"browse_timeout"`
}

// ReceiverConfig contains settings for the receiving side.
type ReceiverConfig struct {
	// ListenAddr is the TCP bind address. Port 0 lets the OS pick.
	ListenAddr string `yaml:"listen_addr"`

	// AdvertiseIPs overrides the interface scan when non-empty
	AdvertiseIPs []string `yaml:"advertise_ips,omitempty"`

	KeyInterval time.Duration `yaml:"key_interval"`
	KeyHold     time.Duration `yaml:"key_hold"`
	ClickHold   time.Duration `yaml:"click_hold"`
}

// ControllerConfig contains settings for the sending side.
type ControllerConfig struct {
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MoveStep is the pad's arrow-key mouse step
	MoveStep int `yaml:"move_step"`
}

// APIConfig configures the local status API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`

	// Token is an optional bearer token for API requests
	Token string `yaml:"token,omitempty"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			Mode: ModeReceiver,
			Tray: true,
		},
		Discovery: DiscoveryConfig{
			ServiceType:        ServiceAirType,
			Domain:             "local.",
			AdvertiseAddresses: true,
			ResolveTimeout:     3 * time.Second,
			FallbackPort:       8080,
			BrowseTimeout:      3 * time.Second,
		},
		Receiver: ReceiverConfig{
			ListenAddr:  ":0",
			KeyInterval: 10 * time.Millisecond,
			KeyHold:     10 * time.Millisecond,
			ClickHold:   50 * time.Millisecond,
		},
		Controller: ControllerConfig{
			DialTimeout:  5 * time.Second,
			WriteTimeout: 2 * time.Second,
			MoveStep:     10,
		},
		API: APIConfig{
			Enabled: true,
			Addr:    "127.0.0.1:18080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
}

// NewManager creates a configuration manager backed by the per-user config file.
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(configPath), nil
}

// NewManagerAt creates a manager that reads and writes path.
func NewManagerAt(path string) *Manager {
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}
}

// Path returns the file the manager persists to
func (m *Manager) Path() string {
	return m.configPath
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "remotepad")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "remotepad")
	default:
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(dir, "remotepad")
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(configDir, "config.yaml"), nil
}

// Load reads the configuration from disk. A missing file keeps the defaults.
func (m *Manager) Load() error {
	m.mu.Lock()
	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("parse %s: %w", m.configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("invalid %s: %w", m.configPath, err)
	}
	m.config = cfg
	cb := m.onChanged
	m.mu.Unlock()

	if cb != nil {
		cb()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}

	log.Debugf("Saving configuration to %s (%d bytes)", m.configPath, len(data))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := *m.config
	cfg.Receiver.AdvertiseIPs = append([]string(nil), m.config.Receiver.AdvertiseIPs...)
	return cfg
}

// Set replaces the configuration
func (m *Manager) Set(cfg Config) {
	m.mu.Lock()
	m.config = &cfg
	cb := m.onChanged
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// SetMode records the role and persists it.
func (m *Manager) SetMode(mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", mode)
	}
	m.mu.Lock()
	m.config.General.Mode = mode
	m.mu.Unlock()
	return m.Save()
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}

// Validate checks the fields that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if !c.General.Mode.Valid() {
		return fmt.Errorf("general.mode: unknown mode %q", c.General.Mode)
	}
	if c.Discovery.ServiceType == "" {
		return fmt.Errorf("discovery.service_type must not be empty")
	}
	if c.Discovery.FallbackPort <= 0 || c.Discovery.FallbackPort > 65535 {
		return fmt.Errorf("discovery.fallback_port out of range: %d", c.Discovery.FallbackPort)
	}
	if c.Receiver.KeyInterval < 0 || c.Receiver.KeyHold < 0 || c.Receiver.ClickHold < 0 {
		return fmt.Errorf("receiver delays must not be negative")
	}
	return nil
}
