// Package config handles configuration file parsing and hot-reloading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// Supported host drivers.
const (
	DriverTDengine     = "tdengine"
	DriverTDengineREST = "tdengine-rest"
	DriverPostgres     = "postgres"
	DriverSQLite       = "sqlite"
)

// KeyringService is the service name used for secrets stored in the OS keyring.
const KeyringService = "tsbrowse"

// Config represents the application configuration.
type Config struct {
	Name    string `yaml:"name" toml:"name"`
	DataDir string `yaml:"data_dir" toml:"data_dir"`

	// Hosts to browse, in display order
	Hosts []Host `yaml:"hosts" toml:"hosts"`

	// Sources is the legacy flat host list (ip/port/ssh_user/...).
	// It is folded into Hosts on load.
	Sources []Source `yaml:"sources" toml:"sources"`

	Browse  BrowseConfig  `yaml:"browse" toml:"browse"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Server  ServerConfig  `yaml:"server" toml:"server"`

	// Anonymous access level for SSH server mode (none, read-only)
	AnonymousAccess string `yaml:"anonymous_access" toml:"anonymous_access"`

	// Allow keyless SSH connections
	AllowKeyless bool `yaml:"allow_keyless" toml:"allow_keyless"`

	// Users and their host visibility rules
	Users []User `yaml:"users" toml:"users"`

	// Internal: path to the config file
	path string

	// Internal: last modified time
	modTime time.Time

	mu sync.RWMutex
}

// Host describes one database endpoint. It is never mutated after load.
type Host struct {
	Name     string    `yaml:"name" toml:"name"`
	Address  string    `yaml:"address" toml:"address"`
	Port     int       `yaml:"port" toml:"port"`
	Driver   string    `yaml:"driver" toml:"driver"`
	User     string    `yaml:"user" toml:"user"`
	Password string    `yaml:"password" toml:"password"`
	Keyring  bool      `yaml:"keyring" toml:"keyring"`
	Database string    `yaml:"database" toml:"database"`
	Catalog  string    `yaml:"catalog" toml:"catalog"`
	Tables   []string  `yaml:"tables" toml:"tables"`
	SSH      SSHTunnel `yaml:"ssh" toml:"ssh"`
}

// SSHTunnel configures an SSH local port-forward in front of a host.
type SSHTunnel struct {
	User       string `yaml:"user" toml:"user"`
	Password   string `yaml:"password" toml:"password"`
	Keyring    bool   `yaml:"keyring" toml:"keyring"`
	Port       int    `yaml:"port" toml:"port"`
	LocalPort  int    `yaml:"local_port" toml:"local_port"`
	KnownHosts string `yaml:"known_hosts" toml:"known_hosts"`
}

// Source is the legacy host entry format.
type Source struct {
	IP string `yaml:"ip" toml:"ip"`
	// Port is the remote native TDengine port (6030). It is kept for
	// compatibility and never dialed; see AdapterPort.
	Port        int    `yaml:"port" toml:"port"`
	SSHUser     string `yaml:"ssh_user" toml:"ssh_user"`
	SSHPassword string `yaml:"ssh_password" toml:"ssh_password"`
	LocalPort   int    `yaml:"local_port" toml:"local_port"`
	DB          string `yaml:"db" toml:"db"`
	// AdapterPort is where taosAdapter listens on the source host; zero
	// means the adapter default.
	AdapterPort int `yaml:"adapter_port" toml:"adapter_port"`
}

// BrowseConfig contains settings applied by the query controller.
type BrowseConfig struct {
	PageSize     int    `yaml:"page_size" toml:"page_size"`
	FilterColumn string `yaml:"filter_column" toml:"filter_column"`
	TimeColumn   string `yaml:"time_column" toml:"time_column"`
	TimeFormat   string `yaml:"time_format" toml:"time_format"`
	QueryTimeout string `yaml:"query_timeout" toml:"query_timeout"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	File   string `yaml:"file" toml:"file"`
	Format string `yaml:"format" toml:"format"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	SSH SSHConfig `yaml:"ssh" toml:"ssh"`
}

// SSHConfig contains SSH server configuration.
type SSHConfig struct {
	Listen      string `yaml:"listen" toml:"listen"`
	HostKeyPath string `yaml:"host_key_path" toml:"host_key_path"`
	IdleTimeout string `yaml:"idle_timeout" toml:"idle_timeout"`
	MaxTimeout  string `yaml:"max_timeout" toml:"max_timeout"`
}

// DefaultBrowse returns the default browse settings.
func DefaultBrowse() BrowseConfig {
	return BrowseConfig{
		PageSize:     20,
		FilterColumn: "robot_id",
		TimeColumn:   "ts",
		TimeFormat:   "2006-01-02 15:04:05",
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "tsbrowse",
		DataDir: ".tsbrowse",
		Hosts:   []Host{},
		Browse:  DefaultBrowse(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			SSH: SSHConfig{
				Listen:      ":2222",
				HostKeyPath: ".tsbrowse/host_key",
				IdleTimeout: "30m",
				MaxTimeout:  "24h",
			},
		},
		AnonymousAccess: "none",
		AllowKeyless:    false,
		Users:           []User{},
	}
}

// Load reads and parses a configuration file. Files ending in .toml are
// decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	cfg, err := parseFile(absPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.path = absPath

	// Get file modification time
	info, err := os.Stat(absPath)
	if err == nil {
		cfg.modTime = info.ModTime()
	}

	return cfg, nil
}

// Parse decodes configuration data in the given format ("yaml" or "toml").
func Parse(data []byte, format string) (*Config, error) {
	cfg := DefaultConfig()

	switch format {
	case "toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.foldSources()
	cfg.applyDefaults()
	return cfg, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = "toml"
	}
	return Parse(data, format)
}

// foldSources converts legacy sources into hosts. Legacy sources spoke the
// native protocol on port 6030; hosts use the websocket driver, so they are
// pointed at taosAdapter instead and the native port is dropped.
func (c *Config) foldSources() {
	for _, src := range c.Sources {
		port := src.AdapterPort
		if port == 0 {
			port = DefaultPort(DriverTDengine)
		}
		c.Hosts = append(c.Hosts, Host{
			Address:  src.IP,
			Port:     port,
			Driver:   DriverTDengine,
			Database: src.DB,
			SSH: SSHTunnel{
				User:      src.SSHUser,
				Password:  src.SSHPassword,
				LocalPort: src.LocalPort,
			},
		})
	}
	c.Sources = nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultBrowse()
	if c.Browse.PageSize <= 0 {
		c.Browse.PageSize = defaults.PageSize
	}
	if c.Browse.FilterColumn == "" {
		c.Browse.FilterColumn = defaults.FilterColumn
	}
	if c.Browse.TimeColumn == "" {
		c.Browse.TimeColumn = defaults.TimeColumn
	}
	if c.Browse.TimeFormat == "" {
		c.Browse.TimeFormat = defaults.TimeFormat
	}

	for i := range c.Hosts {
		h := &c.Hosts[i]
		if h.Driver == "" {
			h.Driver = DriverTDengine
		}
		if h.Port == 0 {
			h.Port = DefaultPort(h.Driver)
		}
		if h.Driver == DriverTDengine || h.Driver == DriverTDengineREST {
			if h.User == "" {
				h.User = "root"
			}
			if h.Password == "" && !h.Keyring {
				h.Password = "taosdata"
			}
			if h.Catalog == "" {
				h.Catalog = "stables"
			}
		}
		if h.SSH.User != "" && h.SSH.Port == 0 {
			h.SSH.Port = 22
		}
	}
}

// DefaultPort returns the default service port for a driver.
func DefaultPort(driver string) int {
	switch driver {
	case DriverTDengine, DriverTDengineREST:
		return 6041
	case DriverPostgres:
		return 5432
	default:
		return 0
	}
}

// Validate checks the host list for problems that make a descriptor unusable.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Hosts))
	var errs []error

	for i, h := range c.Hosts {
		if err := h.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("hosts[%d]: %w", i, err))
			continue
		}
		if seen[h.ID()] {
			errs = append(errs, fmt.Errorf("hosts[%d]: duplicate host %q", i, h.ID()))
		}
		seen[h.ID()] = true
	}

	if _, err := c.parseQueryTimeout(); err != nil {
		errs = append(errs, fmt.Errorf("browse.query_timeout: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks a single host descriptor.
func (h Host) Validate() error {
	if strings.TrimSpace(h.Address) == "" {
		return errors.New("address is required")
	}

	switch h.Driver {
	case DriverTDengine, DriverTDengineREST, DriverPostgres:
	case DriverSQLite:
		if h.Tunneled() {
			return errors.New("sqlite hosts cannot use an ssh tunnel")
		}
	default:
		return fmt.Errorf("unknown driver %q", h.Driver)
	}

	if h.Catalog != "" && h.Catalog != "stables" && h.Catalog != "tables" {
		return fmt.Errorf("unknown catalog %q", h.Catalog)
	}

	if h.Tunneled() && h.SSH.LocalPort < 0 {
		return fmt.Errorf("invalid ssh.local_port %d", h.SSH.LocalPort)
	}
	return nil
}

// ID returns the identity used to select the host at runtime.
func (h Host) ID() string {
	if h.Name != "" {
		return h.Name
	}
	return h.Address
}

// Tunneled reports whether the host is reached through an SSH tunnel.
func (h Host) Tunneled() bool {
	return h.SSH.User != ""
}

// Path returns the path to the config file.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// Reload reloads the configuration from disk. The host list is fixed for the
// lifetime of the process; only browse, logging and user settings change.
func (c *Config) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	newCfg, err := parseFile(c.path)
	if err != nil {
		return err
	}
	if err := newCfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if !sameHosts(c.Hosts, newCfg.Hosts) {
		log.Warn("host list changed on disk; restart to apply", "path", c.path)
	}

	c.Name = newCfg.Name
	c.Browse = newCfg.Browse
	c.Logging = newCfg.Logging
	c.AnonymousAccess = newCfg.AnonymousAccess
	c.AllowKeyless = newCfg.AllowKeyless
	c.Users = newCfg.Users

	info, err := os.Stat(c.path)
	if err == nil {
		c.modTime = info.ModTime()
	}

	return nil
}

func sameHosts(a, b []Host) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID() != b[i].ID() || a[i].Address != b[i].Address || a[i].Port != b[i].Port {
			return false
		}
	}
	return true
}

// HasChanged checks if the config file has been modified.
func (c *Config) HasChanged() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, err := os.Stat(c.path)
	if err != nil {
		return false
	}
	return info.ModTime().After(c.modTime)
}

// GetBrowse returns a copy of the current browse settings.
func (c *Config) GetBrowse() BrowseConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Browse
}

// GetLogging returns the current logging settings.
func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// GetQueryTimeout returns the per-fetch timeout, zero meaning none.
func (c *Config) GetQueryTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, _ := c.parseQueryTimeout()
	return d
}

func (c *Config) parseQueryTimeout() (time.Duration, error) {
	if c.Browse.QueryTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Browse.QueryTimeout)
}

// ResolveSecrets fills passwords flagged with keyring from the OS keyring.
// Database passwords are stored under "db:<host id>", tunnel passwords under
// "ssh:<host id>".
func (c *Config) ResolveSecrets() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.Hosts {
		h := &c.Hosts[i]
		if h.Keyring && h.Password == "" {
			secret, err := keyring.Get(KeyringService, "db:"+h.ID())
			if err != nil {
				return fmt.Errorf("host %s: failed to read database password from keyring: %w", h.ID(), err)
			}
			h.Password = secret
		}
		if h.SSH.Keyring && h.SSH.Password == "" {
			secret, err := keyring.Get(KeyringService, "ssh:"+h.ID())
			if err != nil {
				return fmt.Errorf("host %s: failed to read ssh password from keyring: %w", h.ID(), err)
			}
			h.SSH.Password = secret
		}
	}
	return nil
}

// GetIdleTimeout parses and returns the idle timeout duration.
func (c *Config) GetIdleTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, err := time.ParseDuration(c.Server.SSH.IdleTimeout)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// GetMaxTimeout parses and returns the max timeout duration.
func (c *Config) GetMaxTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, err := time.ParseDuration(c.Server.SSH.MaxTimeout)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// GetDataDir returns the data directory path (for history, keys, logs).
func (c *Config) GetDataDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.DataDir == "" {
		return ".tsbrowse"
	}
	return c.DataDir
}
