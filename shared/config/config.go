package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AI         AIConfig         `yaml:"ai"`
	Vision     VisionConfig     `yaml:"vision"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Frames     FramesConfig     `yaml:"frames"`
	Storage    StorageConfig    `yaml:"storage"`
	Email      EmailConfig      `yaml:"email"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Videos     []string         `yaml:"videos"`
	Schedule   string           `yaml:"schedule"`
	LogLevel   string           `yaml:"log_level"`
}

// AIConfig configures the text-completion engine. An empty key means no
// narrative engine is configured.
type AIConfig struct {
	GeminiAPIKey   string `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type VisionConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key" env:"VISION_API_KEY"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type PipelineConfig struct {
	BatchSize      int  `yaml:"batch_size"`
	BatchDelayMs   int  `yaml:"batch_delay_ms"`
	MaxAttempts    int  `yaml:"max_attempts"`
	BackoffMs      int  `yaml:"backoff_ms"`
	ScoreDiversity bool `yaml:"score_diversity"`
}

type FramesConfig struct {
	WorkDir                string  `yaml:"work_dir"`
	Scale                  float64 `yaml:"scale"`
	JPEGQuality            int     `yaml:"jpeg_quality"`
	DownloadTimeoutSeconds int     `yaml:"download_timeout_seconds"`
}

type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	PostgresDSN string `yaml:"postgres_dsn" env:"DATABASE_URL"`
	MaxAgeHours int    `yaml:"max_age_hours"`
}

type EmailConfig struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username" env:"EMAIL_USERNAME"`
	Password   string `yaml:"password" env:"EMAIL_PASSWORD"`
	FromEmail  string `yaml:"from_email"`
	ToEmail    string `yaml:"to_email"`
}

type MonitoringConfig struct {
	HealthPort int `yaml:"health_port"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return Parse(data)
}

// Parse builds a Config from YAML bytes, then applies environment overrides
// and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if c.AI.GeminiAPIKey == "" {
		c.AI.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Vision.APIKey == "" {
		c.Vision.APIKey = os.Getenv("VISION_API_KEY")
	}
	if c.Vision.Endpoint == "" {
		c.Vision.Endpoint = os.Getenv("VISION_ENDPOINT")
	}
	if c.Storage.PostgresDSN == "" {
		c.Storage.PostgresDSN = os.Getenv("DATABASE_URL")
	}
	if c.Email.Username == "" {
		c.Email.Username = os.Getenv("EMAIL_USERNAME")
	}
	if c.Email.Password == "" {
		c.Email.Password = os.Getenv("EMAIL_PASSWORD")
	}
}

func (c *Config) applyDefaults() {
	if c.AI.Model == "" {
		c.AI.Model = "gemini-2.0-flash"
	}
	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = 30
	}
	if c.Vision.TimeoutSeconds <= 0 {
		c.Vision.TimeoutSeconds = 30
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 2
	}
	if c.Pipeline.BatchDelayMs <= 0 {
		c.Pipeline.BatchDelayMs = 1000
	}
	if c.Pipeline.MaxAttempts <= 0 {
		c.Pipeline.MaxAttempts = 3
	}
	if c.Pipeline.BackoffMs <= 0 {
		c.Pipeline.BackoffMs = 2000
	}
	if c.Frames.Scale <= 0 {
		c.Frames.Scale = 1.0
	}
	if c.Frames.JPEGQuality <= 0 {
		c.Frames.JPEGQuality = 85
	}
	if c.Frames.DownloadTimeoutSeconds <= 0 {
		c.Frames.DownloadTimeoutSeconds = 300
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.MaxAgeHours <= 0 {
		c.Storage.MaxAgeHours = 7 * 24
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Monitoring.HealthPort == 0 {
		c.Monitoring.HealthPort = 8080
	}
	if c.Schedule == "" {
		c.Schedule = "0 0 * * * *" // Hourly
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Vision.Endpoint == "" {
		return fmt.Errorf("vision endpoint is required (set VISION_ENDPOINT or vision.endpoint)")
	}
	if c.Frames.Scale > 1 {
		return fmt.Errorf("frames.scale must be within (0, 1], got %.2f", c.Frames.Scale)
	}
	if c.Frames.JPEGQuality > 100 {
		return fmt.Errorf("frames.jpeg_quality must be within 1-100, got %d", c.Frames.JPEGQuality)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// NarrativeEnabled reports whether a text-completion engine is configured
func (c *Config) NarrativeEnabled() bool {
	return c.AI.GeminiAPIKey != ""
}

// EmailEnabled reports whether digests should be mailed after scheduled runs
func (c *Config) EmailEnabled() bool {
	return c.Email.SMTPServer != "" && c.Email.ToEmail != ""
}

func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.Pipeline.BatchDelayMs) * time.Millisecond
}

func (c *Config) Backoff() time.Duration {
	return time.Duration(c.Pipeline.BackoffMs) * time.Millisecond
}

func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.Storage.MaxAgeHours) * time.Hour
}

// ParseLevel maps the log_level setting onto a slog level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
