package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from either a Go duration
// string ("3s", "800ms") or a bare number of seconds ("3", "1.5").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	raw := node.Value
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	return fmt.Errorf("invalid duration: %q", raw)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the complete application configuration
type Config struct {
	Bot      BotConfig      `yaml:"bot" json:"bot"`
	Jobs     JobsConfig     `yaml:"jobs" json:"jobs"`
	Progress ProgressConfig `yaml:"progress" json:"progress"`
	Cleanup  CleanupConfig  `yaml:"cleanup" json:"cleanup"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// BotConfig holds the messaging platform credentials
type BotConfig struct {
	Token       string   `yaml:"token" json:"-"`
	OwnerID     int64    `yaml:"ownerId" json:"ownerId"`
	PollTimeout Duration `yaml:"pollTimeout" json:"pollTimeout"`
}

// JobsConfig holds per-job pipeline tuning
type JobsConfig struct {
	DownloadDir      string   `yaml:"downloadDir" json:"downloadDir"`
	StabilityWindow  Duration `yaml:"stabilityWindow" json:"stabilityWindow"`
	StabilityPoll    Duration `yaml:"stabilityPoll" json:"stabilityPoll"`
	DrainPoll        Duration `yaml:"drainPoll" json:"drainPoll"`
	UpdateInterval   Duration `yaml:"updateInterval" json:"updateInterval"`
	MaxConcurrent    int      `yaml:"maxConcurrent" json:"maxConcurrent"`
	RetrievalRetries int      `yaml:"retrievalRetries" json:"retrievalRetries"`
	MaxRelayBytes    int64    `yaml:"maxRelayBytes" json:"maxRelayBytes"`
}

// ProgressConfig holds status rendering options
type ProgressConfig struct {
	BarLength int `yaml:"barLength" json:"barLength"`
}

// CleanupConfig holds workspace reaping options
type CleanupConfig struct {
	MaxAge       Duration `yaml:"maxAge" json:"maxAge"`
	Interval     Duration `yaml:"interval" json:"interval"`
	SweepOnStart bool     `yaml:"sweepOnStart" json:"sweepOnStart"`
}

// ServerConfig holds the admin API listener configuration
type ServerConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Address string   `yaml:"address" json:"address"`
	Port    int      `yaml:"port" json:"port"`
	Timeout Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// DefaultConfig creates a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			PollTimeout: Duration(30 * time.Second),
		},
		Jobs: JobsConfig{
			DownloadDir:      "./downloads",
			StabilityWindow:  Duration(3 * time.Second),
			StabilityPoll:    Duration(1 * time.Second),
			DrainPoll:        Duration(800 * time.Millisecond),
			UpdateInterval:   Duration(1 * time.Second),
			MaxConcurrent:    0, // unbounded
			RetrievalRetries: 3,
			MaxRelayBytes:    2 * 1024 * 1024 * 1024,
		},
		Progress: ProgressConfig{
			BarLength: 24,
		},
		Cleanup: CleanupConfig{
			MaxAge:       Duration(6 * time.Hour),
			Interval:     Duration(1 * time.Hour),
			SweepOnStart: true,
		},
		Server: ServerConfig{
			Enabled: true,
			Address: "127.0.0.1",
			Port:    8091,
			Timeout: Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
	}
}

// LoadConfig loads configuration from multiple sources in order of precedence:
// 1. Environment variables (highest precedence)
// 2. Configuration file
// 3. Default values (lowest precedence)
func LoadConfig() (*Config, string, error) {
	config := DefaultConfig()

	path, err := loadFromFile(config)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config file: %w", err)
	}

	loadFromEnv(config)

	if e := config.Validate(); e != nil {
		return nil, "", fmt.Errorf("configuration validation failed: %w", e)
	}

	return config, path, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(config *Config) (string, error) {
	configPaths := []string{
		os.Getenv("RELAYBOT_CONFIG_PATH"), // Custom path from environment
		"./config.yaml",                   // Current directory
		"./config/config.yaml",            // Config subdirectory
		"/etc/relaybot/config.yaml",       // System-wide
	}

	for _, path := range configPaths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return "", fmt.Errorf("failed to parse config file %s: %w", path, err)
		}

		return path, nil
	}

	return "built-in defaults (no config file found)", nil
}

// loadFromEnv loads configuration from environment variables. The names
// match what the shell wrapper scripts have always exported, so a plain
// .env file keeps working; malformed values keep the current setting.
func loadFromEnv(config *Config) {
	if val := os.Getenv("BOT_TOKEN"); val != "" {
		config.Bot.Token = val
	}
	if val := os.Getenv("BOT_OWNER_ID"); val != "" {
		if id, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Bot.OwnerID = id
		}
	}
	if val := os.Getenv("RELAYBOT_POLL_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Bot.PollTimeout = Duration(d)
		}
	}

	if val := os.Getenv("DOWNLOAD_DIR"); val != "" {
		config.Jobs.DownloadDir = val
	}
	if d, ok := secondsEnv("STABLE_SECONDS"); ok {
		config.Jobs.StabilityWindow = Duration(d)
	}
	if d, ok := secondsEnv("DOWNLOAD_POLL_INTERVAL"); ok {
		config.Jobs.StabilityPoll = Duration(d)
	}
	if d, ok := secondsEnv("UPLOAD_PROGRESS_UPDATE_INTERVAL"); ok {
		config.Jobs.UpdateInterval = Duration(d)
	}
	if val := os.Getenv("RELAYBOT_DRAIN_POLL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Jobs.DrainPoll = Duration(d)
		}
	}
	if val := os.Getenv("RELAYBOT_MAX_CONCURRENT_JOBS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Jobs.MaxConcurrent = n
		}
	}
	if val := os.Getenv("MEGATOOLS_RETRY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Jobs.RetrievalRetries = n
		}
	}
	if val := os.Getenv("RELAYBOT_MAX_RELAY_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Jobs.MaxRelayBytes = n
		}
	}

	if val := os.Getenv("PROGRESS_BAR_LEN"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Progress.BarLength = n
		}
	}

	if val := os.Getenv("CLEANUP_AGE_HOURS"); val != "" {
		if hours, err := strconv.ParseFloat(val, 64); err == nil {
			config.Cleanup.MaxAge = Duration(hours * float64(time.Hour))
		}
	}
	if val := os.Getenv("RELAYBOT_CLEANUP_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Cleanup.Interval = Duration(d)
		}
	}
	if val := os.Getenv("RELAYBOT_SWEEP_ON_START"); val != "" {
		config.Cleanup.SweepOnStart = val == "true" || val == "1"
	}

	if val := os.Getenv("RELAYBOT_SERVER_ENABLED"); val != "" {
		config.Server.Enabled = val == "true" || val == "1"
	}
	if val := os.Getenv("RELAYBOT_SERVER_ADDRESS"); val != "" {
		config.Server.Address = val
	}
	if val := os.Getenv("RELAYBOT_SERVER_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.Port = port
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_OUTPUT"); val != "" {
		config.Logging.Output = val
	}
}

// secondsEnv reads an environment variable holding a decimal number of
// seconds, the unit the original deployment scripts used.
func secondsEnv(key string) (time.Duration, bool) {
	val := os.Getenv(key)
	if val == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("bot token is required (set BOT_TOKEN or bot.token)")
	}
	if c.Bot.OwnerID <= 0 {
		return fmt.Errorf("invalid owner id: %d", c.Bot.OwnerID)
	}

	if c.Jobs.DownloadDir == "" {
		return fmt.Errorf("download directory is required")
	}
	if c.Jobs.StabilityWindow <= 0 {
		return fmt.Errorf("invalid stability window: %v", c.Jobs.StabilityWindow.Std())
	}
	if c.Jobs.StabilityPoll <= 0 {
		return fmt.Errorf("invalid stability poll interval: %v", c.Jobs.StabilityPoll.Std())
	}
	if c.Jobs.DrainPoll <= 0 {
		return fmt.Errorf("invalid drain poll interval: %v", c.Jobs.DrainPoll.Std())
	}
	if c.Jobs.UpdateInterval <= 0 {
		return fmt.Errorf("invalid progress update interval: %v", c.Jobs.UpdateInterval.Std())
	}
	if c.Jobs.MaxConcurrent < 0 {
		return fmt.Errorf("invalid max concurrent jobs: %d", c.Jobs.MaxConcurrent)
	}
	if c.Jobs.RetrievalRetries < 1 {
		return fmt.Errorf("invalid retrieval retries: %d", c.Jobs.RetrievalRetries)
	}
	if c.Jobs.MaxRelayBytes < 1 {
		return fmt.Errorf("invalid max relay bytes: %d", c.Jobs.MaxRelayBytes)
	}

	if c.Progress.BarLength < 4 {
		return fmt.Errorf("invalid progress bar length: %d", c.Progress.BarLength)
	}

	if c.Cleanup.MaxAge <= 0 {
		return fmt.Errorf("invalid cleanup max age: %v", c.Cleanup.MaxAge.Std())
	}

	if c.Server.Enabled {
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			return fmt.Errorf("invalid server port: %d", c.Server.Port)
		}
	}

	validLevels := map[string]bool{
		"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true,
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// WorkdirFor returns the per-job working directory under the download
// root. The layout is user_<ownerID>_<jobID> so a crashed run's
// directories can be recognized and swept later.
func (c *Config) WorkdirFor(userID int64, jobID string) string {
	return filepath.Join(c.Jobs.DownloadDir, fmt.Sprintf("user_%d_%s", userID, jobID))
}

func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) SaveToFile(path string) error {
	data, err := c.ToYAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadFromFile loads a specific configuration file
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// GenerateDefaultConfig creates a default configuration file
func GenerateDefaultConfig(path string) error {
	return DefaultConfig().SaveToFile(path)
}
