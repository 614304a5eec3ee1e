package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	GRPC     GRPCConfig     `yaml:"grpc" json:"grpc"`
	Process  ProcessConfig  `yaml:"process" json:"process"`
	Console  ConsoleConfig  `yaml:"console" json:"console"`
	Backup   BackupConfig   `yaml:"backup" json:"backup"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Security SecurityConfig `yaml:"security" json:"security"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string    `yaml:"host" json:"host"`
	Port int       `yaml:"port" json:"port"`
	TLS  TLSConfig `yaml:"tls" json:"tls"`
}

// TLSConfig contains TLS/HTTPS settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
	// SelfSigned issues a certificate under data_dir/tls when no files are set
	SelfSigned bool `yaml:"self_signed" json:"self_signed"`
}

// GRPCConfig contains the control plane listener settings
type GRPCConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
	// TLS serves gRPC with the server.tls certificate
	TLS bool `yaml:"tls" json:"tls"`
}

// ProcessConfig describes the supervised game server
type ProcessConfig struct {
	Executable   string        `yaml:"executable" json:"executable"`
	Args         []string      `yaml:"args" json:"args"`
	WorkingDir   string        `yaml:"working_dir" json:"working_dir"`
	Env          []string      `yaml:"env" json:"env"`
	StopCommand  string        `yaml:"stop_command" json:"stop_command"`
	StopTimeout  time.Duration `yaml:"stop_timeout" json:"stop_timeout"`
	KillGrace    time.Duration `yaml:"kill_grace" json:"kill_grace"`
	ReadyTimeout time.Duration `yaml:"ready_timeout" json:"ready_timeout"`
	EchoTimeout  time.Duration `yaml:"echo_timeout" json:"echo_timeout"`
	WaitReady    bool          `yaml:"wait_ready" json:"wait_ready"`
	ExitOnStop   bool          `yaml:"exit_on_stop" json:"exit_on_stop"`
	ConsoleInput bool          `yaml:"console_input" json:"console_input"`
}

// ConsoleConfig contains output handling settings
type ConsoleConfig struct {
	HistoryLines  int    `yaml:"history_lines" json:"history_lines"`
	SinkBuffer    int    `yaml:"sink_buffer" json:"sink_buffer"`
	Echo          bool   `yaml:"echo" json:"echo"`
	LogFile       string `yaml:"log_file" json:"log_file"`
	LogMaxSize    int    `yaml:"log_max_size" json:"log_max_size"`
	LogMaxBackups int    `yaml:"log_max_backups" json:"log_max_backups"`
	LogMaxAge     int    `yaml:"log_max_age" json:"log_max_age"`
}

// BackupConfig contains world backup settings
type BackupConfig struct {
	WorldDir       string              `yaml:"world_dir" json:"world_dir"`
	ArchiveDir     string              `yaml:"archive_dir" json:"archive_dir"`
	Schedule       string              `yaml:"schedule" json:"schedule"`
	Compression    CompressionConfig   `yaml:"compression" json:"compression"`
	Exclude        []string            `yaml:"exclude" json:"exclude"`
	RetentionCount int                 `yaml:"retention_count" json:"retention_count"`
	Verify         bool                `yaml:"verify" json:"verify"`
	Destinations   []DestinationConfig `yaml:"destinations" json:"destinations"`
}

// CompressionConfig selects the archive codec
type CompressionConfig struct {
	Type  string `yaml:"type" json:"type"`
	Level int    `yaml:"level" json:"level"`
}

// DestinationConfig describes one upload target for archives
type DestinationConfig struct {
	Type string `yaml:"type" json:"type"`
	Path string `yaml:"path" json:"path"`

	// S3
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`

	// SFTP
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password      string `yaml:"password" json:"-"`
	KeyPath       string `yaml:"key_path" json:"key_path"`
	KeyPassphrase string `yaml:"key_passphrase" json:"-"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path           string `yaml:"path" json:"path"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	SSH       SSHConfig       `yaml:"ssh" json:"ssh"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
}

// RateLimitConfig contains per-client request limits for the HTTP API
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// SSHConfig contains SSH security settings
type SSHConfig struct {
	KnownHostsPath  string `yaml:"known_hosts_path" json:"known_hosts_path"`
	TrustOnFirstUse bool   `yaml:"trust_on_first_use" json:"trust_on_first_use"`
}

// StorageConfig contains storage paths
type StorageConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
}

// MetricsConfig contains prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 6969,
		},
		GRPC: GRPCConfig{
			Enabled: true,
			Address: "127.0.0.1:6970",
		},
		Process: ProcessConfig{
			Executable:   "java",
			Args:         []string{"-jar", "server.jar", "nogui"},
			WorkingDir:   ".",
			StopCommand:  "stop",
			StopTimeout:  60 * time.Second,
			KillGrace:    10 * time.Second,
			ReadyTimeout: 120 * time.Second,
			EchoTimeout:  5 * time.Second,
			WaitReady:    true,
			ExitOnStop:   true,
			ConsoleInput: true,
		},
		Console: ConsoleConfig{
			HistoryLines:  1000,
			SinkBuffer:    1024,
			Echo:          true,
			LogMaxSize:    50,
			LogMaxBackups: 5,
			LogMaxAge:     14,
		},
		Backup: BackupConfig{
			WorldDir: "world",
			Compression: CompressionConfig{
				Type:  "gzip",
				Level: 6,
			},
			Exclude:        []string{"session.lock"},
			RetentionCount: 10,
			Verify:         true,
		},
		Database: DatabaseConfig{
			Path:           "./data/wrapper.db",
			MaxConnections: 4,
		},
		Security: SecurityConfig{
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:5173"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 120,
			},
			SSH: SSHConfig{
				TrustOnFirstUse: true,
			},
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	configPath := GetConfigPath()
	return LoadFile(configPath)
}

// LoadFile loads configuration from an explicit path. A missing file yields
// the defaults.
func LoadFile(configPath string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	// Normalize storage paths based on config location
	cfg.normalizeStoragePaths(configPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		c.Database.Path = dbPath
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDir = dataDir
	}

	if backupDir := os.Getenv("BACKUP_DIR"); backupDir != "" {
		c.Backup.ArchiveDir = backupDir
	}

	if worldDir := os.Getenv("WORLD_DIR"); worldDir != "" {
		c.Backup.WorldDir = worldDir
	}

	if knownHostsPath := os.Getenv("KNOWN_HOSTS_PATH"); knownHostsPath != "" {
		c.Security.SSH.KnownHostsPath = knownHostsPath
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if port := os.Getenv("WRAPPER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Process.Executable) == "" {
		return fmt.Errorf("process.executable is required")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535")
	}

	hasCert := c.Server.TLS.SelfSigned || (c.Server.TLS.CertFile != "" && c.Server.TLS.KeyFile != "")
	if c.Server.TLS.Enabled && !hasCert {
		return fmt.Errorf("TLS is enabled but cert_file or key_file is missing")
	}
	if c.GRPC.Enabled && c.GRPC.TLS && !hasCert {
		return fmt.Errorf("grpc.tls needs server.tls cert_file and key_file, or self_signed")
	}

	if c.Process.StopTimeout <= 0 || c.Process.KillGrace <= 0 || c.Process.ReadyTimeout <= 0 {
		return fmt.Errorf("process timeouts must be positive")
	}

	if strings.TrimSpace(c.Process.StopCommand) == "" {
		return fmt.Errorf("process.stop_command is required")
	}

	if c.Console.SinkBuffer <= 0 {
		return fmt.Errorf("console.sink_buffer must be positive")
	}

	switch strings.ToLower(c.Backup.Compression.Type) {
	case "", "gzip", "zstd", "lz4", "none":
	default:
		return fmt.Errorf("unsupported backup compression %q", c.Backup.Compression.Type)
	}

	for i, dest := range c.Backup.Destinations {
		switch strings.ToLower(dest.Type) {
		case "local":
			if dest.Path == "" {
				return fmt.Errorf("backup destination %d: local path is required", i)
			}
		case "s3":
			if dest.Bucket == "" {
				return fmt.Errorf("backup destination %d: s3 bucket is required", i)
			}
		case "sftp":
			if dest.Host == "" || dest.Username == "" {
				return fmt.Errorf("backup destination %d: sftp host and username are required", i)
			}
		default:
			return fmt.Errorf("backup destination %d: unsupported type %q", i, dest.Type)
		}
	}

	return nil
}

// Address returns the HTTP listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func resolveConfigPath() string {
	candidates := []string{"../configs/config.yaml", "./configs/config.yaml"}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "./configs/config.yaml"
}

// GetConfigPath returns the resolved config path
func GetConfigPath() string {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}
	return configPath
}

// Save writes the configuration back to disk
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) normalizeStoragePaths(configPath string) {
	baseDir := filepath.Dir(configPath)
	if !filepath.IsAbs(baseDir) {
		if absBase, err := filepath.Abs(baseDir); err == nil {
			baseDir = absBase
		}
	}

	rootDir := baseDir
	if filepath.Base(baseDir) == "configs" {
		rootDir = filepath.Dir(baseDir)
	}

	resolvePath := func(base, value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		if filepath.IsAbs(trimmed) {
			return filepath.Clean(trimmed)
		}
		return filepath.Clean(filepath.Join(base, trimmed))
	}

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = filepath.Join(rootDir, "data")
	}
	c.Storage.DataDir = resolvePath(rootDir, c.Storage.DataDir)

	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = filepath.Join(c.Storage.DataDir, "wrapper.db")
	}
	c.Database.Path = resolvePath(rootDir, c.Database.Path)

	if strings.TrimSpace(c.Process.WorkingDir) == "" {
		c.Process.WorkingDir = "."
	}
	c.Process.WorkingDir = resolvePath(rootDir, c.Process.WorkingDir)

	// The world lives inside the server's working directory.
	if strings.TrimSpace(c.Backup.WorldDir) == "" {
		c.Backup.WorldDir = "world"
	}
	c.Backup.WorldDir = resolvePath(c.Process.WorkingDir, c.Backup.WorldDir)

	if strings.TrimSpace(c.Backup.ArchiveDir) == "" {
		c.Backup.ArchiveDir = filepath.Join(c.Storage.DataDir, "backups")
	}
	c.Backup.ArchiveDir = resolvePath(rootDir, c.Backup.ArchiveDir)

	for i := range c.Backup.Destinations {
		if strings.EqualFold(c.Backup.Destinations[i].Type, "local") {
			c.Backup.Destinations[i].Path = resolvePath(rootDir, c.Backup.Destinations[i].Path)
		}
	}

	if strings.TrimSpace(c.Console.LogFile) != "" {
		c.Console.LogFile = resolvePath(rootDir, c.Console.LogFile)
	}

	if strings.TrimSpace(c.Security.SSH.KnownHostsPath) == "" {
		c.Security.SSH.KnownHostsPath = filepath.Join(c.Storage.DataDir, "known_hosts")
	}
	c.Security.SSH.KnownHostsPath = resolvePath(rootDir, c.Security.SSH.KnownHostsPath)
}
