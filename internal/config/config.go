package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Environments accepted in Config.Environment.
const (
	Development = "development"
	Staging     = "staging"
	Production  = "production"
)

// EnvPrefix namespaces environment overrides, e.g. REVLENS_OLLAMA_MODEL.
const EnvPrefix = "REVLENS"

// Config holds all configuration for the review tools.
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`

	Ollama   OllamaConfig   `mapstructure:"ollama"`
	Data     DataConfig     `mapstructure:"data"`
	Database DatabaseConfig `mapstructure:"database"`
}

// OllamaConfig locates the language model server used for narratives.
type OllamaConfig struct {
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	// RatePerSecond throttles generation calls; 0 disables throttling.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

// DataConfig names the default input files.
type DataConfig struct {
	Dir          string `mapstructure:"dir"`
	ProductsFile string `mapstructure:"products_file"`
	ReviewsFile  string `mapstructure:"reviews_file"`
	BatchSize    int    `mapstructure:"batch_size"`
}

// DatabaseConfig covers the local SQLite store and the connection parts of
// an external PostgreSQL database.
type DatabaseConfig struct {
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// Load reads configuration from defaults, an optional YAML file and
// REVLENS_* environment variables, in increasing precedence. With an empty
// path, revlens.yaml is looked up in the working directory and ./config;
// a missing file is not an error. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("revlens")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", Development)
	v.SetDefault("log_level", "info")

	v.SetDefault("ollama.host", "http://localhost")
	v.SetDefault("ollama.port", 11434)
	v.SetDefault("ollama.model", "llama3.2")
	v.SetDefault("ollama.timeout", "60s")
	v.SetDefault("ollama.rate_per_second", 0)

	v.SetDefault("data.dir", "data")
	v.SetDefault("data.products_file", "fakestore.json")
	v.SetDefault("data.reviews_file", "reviews.jsonl")
	v.SetDefault("data.batch_size", 100)

	v.SetDefault("database.path", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "review_intelligence")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
}

func validate(cfg *Config) error {
	switch cfg.Environment {
	case Development, Staging, Production:
	default:
		return fmt.Errorf("environment must be one of %s, %s, %s; got %q", Development, Staging, Production, cfg.Environment)
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if cfg.Ollama.Port <= 0 || cfg.Ollama.Port > 65535 {
		return fmt.Errorf("ollama port out of range: %d", cfg.Ollama.Port)
	}
	if cfg.Ollama.Timeout <= 0 {
		return fmt.Errorf("ollama timeout must be positive, got %v", cfg.Ollama.Timeout)
	}
	if cfg.Ollama.RatePerSecond < 0 {
		return fmt.Errorf("ollama rate must not be negative, got %v", cfg.Ollama.RatePerSecond)
	}
	if cfg.Data.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", cfg.Data.BatchSize)
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		return fmt.Errorf("database port out of range: %d", cfg.Database.Port)
	}
	return nil
}

// IsProduction reports whether the production environment is selected.
func (c *Config) IsProduction() bool { return c.Environment == Production }

// IsDevelopment reports whether the development environment is selected.
func (c *Config) IsDevelopment() bool { return c.Environment == Development }

// Level returns the parsed log level. Load has already validated it.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// ProductsPath is the default product catalog location.
func (c *Config) ProductsPath() string { return filepath.Join(c.Data.Dir, c.Data.ProductsFile) }

// ReviewsPath is the default review file location.
func (c *Config) ReviewsPath() string { return filepath.Join(c.Data.Dir, c.Data.ReviewsFile) }

// BaseURL joins host and port, e.g. "http://localhost:11434".
func (o OllamaConfig) BaseURL() string {
	return strings.TrimRight(o.Host, "/") + ":" + strconv.Itoa(o.Port)
}

// URL renders a PostgreSQL connection string. The password is omitted when
// empty.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme: "postgresql",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else {
		u.User = url.User(d.User)
	}
	return u.String()
}
