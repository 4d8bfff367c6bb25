package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/image-labeler/pkg/strategy"
)

// EnvPrefix prefixes environment overrides, e.g. LABELER_PREDICTION_MODEL.
const EnvPrefix = "LABELER"

// Backends supported for model-assisted labeling.
const (
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// Config holds the application configuration
type Config struct {
	IO         IOConfig         `mapstructure:"io" yaml:"io"`
	Prediction PredictionConfig `mapstructure:"prediction" yaml:"prediction"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// IOConfig holds configuration for imports and exports
type IOConfig struct {
	Workers       int    `mapstructure:"workers" yaml:"workers"`
	DefaultFormat string `mapstructure:"default_format" yaml:"default_format"`
	// CacheTTL is how long image dimensions stay cached, in seconds.
	CacheTTL int `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// PredictionConfig holds configuration for the prediction backend
type PredictionConfig struct {
	Backend  string  `mapstructure:"backend" yaml:"backend"`
	URL      string  `mapstructure:"url" yaml:"url"`
	Model    string  `mapstructure:"model" yaml:"model"`
	MinScore float64 `mapstructure:"min_score" yaml:"min_score"`
	// MaxSize bounds the longest side of images sent to the model.
	MaxSize int `mapstructure:"max_size" yaml:"max_size"`
	Quality int `mapstructure:"quality" yaml:"quality"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level    string `mapstructure:"level" yaml:"level"`
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
}

// MetricsConfig toggles IO metrics
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		IO: IOConfig{
			Workers:       0,
			DefaultFormat: string(strategy.FormatXML),
			CacheTTL:      600,
		},
		Prediction: PredictionConfig{
			Backend:  BackendOllama,
			URL:      "http://localhost:11434",
			Model:    "qwen2.5vl:7b",
			MinScore: 0.3,
			MaxSize:  1024,
			Quality:  85,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
		Metrics: MetricsConfig{Enabled: false},
	}
}

// SetDefaults registers the defaults of Default on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("io.workers", d.IO.Workers)
	v.SetDefault("io.default_format", d.IO.DefaultFormat)
	v.SetDefault("io.cache_ttl", d.IO.CacheTTL)

	v.SetDefault("prediction.backend", d.Prediction.Backend)
	v.SetDefault("prediction.url", d.Prediction.URL)
	v.SetDefault("prediction.model", d.Prediction.Model)
	v.SetDefault("prediction.min_score", d.Prediction.MinScore)
	v.SetDefault("prediction.max_size", d.Prediction.MaxSize)
	v.SetDefault("prediction.quality", d.Prediction.Quality)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.encoding", d.Log.Encoding)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
}

// NewViper returns a viper instance with defaults and LABELER_ environment
// overrides. A .env file in the working directory is loaded first when present.
func NewViper() *viper.Viper {
	// variables already set in the environment win over .env
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional YAML file at path into v and decodes the result.
// An empty path looks for config.yaml in the working directory and the
// default config directory; a missing file there is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Dir(GetConfigPath()))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	return Load(NewViper(), filename)
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.IO.Workers < 0 {
		return fmt.Errorf("io.workers must not be negative")
	}

	if _, err := strategy.ParseFormatType(c.IO.DefaultFormat); err != nil {
		return fmt.Errorf("io.default_format: %w", err)
	}

	if c.IO.CacheTTL < 0 {
		return fmt.Errorf("io.cache_ttl must not be negative")
	}

	switch c.Prediction.Backend {
	case BackendOllama, BackendLlamaCpp:
	default:
		return fmt.Errorf("prediction.backend must be %q or %q", BackendOllama, BackendLlamaCpp)
	}

	if c.Prediction.MinScore < 0 || c.Prediction.MinScore > 1 {
		return fmt.Errorf("prediction.min_score must be between 0 and 1")
	}

	if c.Prediction.MaxSize < 0 {
		return fmt.Errorf("prediction.max_size must not be negative")
	}

	if c.Prediction.Quality < 1 || c.Prediction.Quality > 100 {
		return fmt.Errorf("prediction.quality must be between 1 and 100")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "image-labeler", "config.yaml")
}
