package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigRelPath = ".ollamabench/config.yaml"
	defaultStoreRelPath  = ".ollamabench/history.db"
)

type OllamaConfig struct {
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	Seed           int64  `yaml:"seed"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type BenchConfig struct {
	ThrottleSeconds int  `yaml:"throttle_seconds"`
	SkipMalformed   bool `yaml:"skip_malformed"`
}

type OutputConfig struct {
	CSVPath string `yaml:"csv_path"`
}

type StoreConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Ollama OllamaConfig `yaml:"ollama"`
	Bench  BenchConfig  `yaml:"bench"`
	Output OutputConfig `yaml:"output"`
	Store  StoreConfig  `yaml:"store"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// Load loads YAML config, then .env, then env overrides.
// A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	applyEnvOverrides(cfg)
	cfg.SetDefaults()
	return cfg, nil
}

// DefaultPath returns ~/.ollamabench/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, defaultConfigRelPath), nil
}

func (c *Config) SetDefaults() {
	if c.Ollama.URL == "" {
		c.Ollama.URL = "http://localhost:11434/api/generate"
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = "qwen2.5:0.5b"
	}
	if c.Ollama.Seed == 0 {
		c.Ollama.Seed = 42
	}
	if c.Ollama.TimeoutSeconds == 0 {
		c.Ollama.TimeoutSeconds = 600
	}
	if c.Bench.ThrottleSeconds == 0 {
		c.Bench.ThrottleSeconds = 2
	}
	if c.Output.CSVPath == "" {
		c.Output.CSVPath = "go_ollama_log.csv"
	}
	if c.Store.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Store.Path = filepath.Join(home, defaultStoreRelPath)
		} else {
			c.Store.Path = "ollamabench.db"
		}
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Ollama.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ollama.url is not an absolute url: %q", c.Ollama.URL)
	}
	if strings.TrimSpace(c.Ollama.Model) == "" {
		return errors.New("ollama.model cannot be empty")
	}
	if c.Ollama.TimeoutSeconds < 0 {
		return errors.New("ollama.timeout_seconds cannot be negative")
	}
	if c.Bench.ThrottleSeconds < 0 {
		return errors.New("bench.throttle_seconds cannot be negative")
	}
	if strings.TrimSpace(c.Output.CSVPath) == "" {
		return errors.New("output.csv_path cannot be empty")
	}
	return nil
}

// Timeout is the bound on a single inference request.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Ollama.TimeoutSeconds) * time.Second
}

// Throttle is the pause after every prompt.
func (c *Config) Throttle() time.Duration {
	return time.Duration(c.Bench.ThrottleSeconds) * time.Second
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func applyEnvOverrides(c *Config) {
	setString(&c.Ollama.URL, "OLLAMABENCH_OLLAMA_URL")
	setString(&c.Ollama.Model, "OLLAMABENCH_OLLAMA_MODEL")
	setInt64(&c.Ollama.Seed, "OLLAMABENCH_OLLAMA_SEED")
	setInt(&c.Ollama.TimeoutSeconds, "OLLAMABENCH_OLLAMA_TIMEOUT_SECONDS")
	setInt(&c.Bench.ThrottleSeconds, "OLLAMABENCH_THROTTLE_SECONDS")
	setBool(&c.Bench.SkipMalformed, "OLLAMABENCH_SKIP_MALFORMED")
	setString(&c.Output.CSVPath, "OLLAMABENCH_CSV_PATH")
	setString(&c.Store.Path, "OLLAMABENCH_STORE_PATH")
	setBool(&c.Store.Disabled, "OLLAMABENCH_STORE_DISABLED")
	setString(&c.Server.Host, "OLLAMABENCH_SERVER_HOST")
	setInt(&c.Server.Port, "OLLAMABENCH_SERVER_PORT")
	setString(&c.Log.Level, "OLLAMABENCH_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
