package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"kemono-scraper/internal/extract"
)

const defaultConfigFile = "kemono.yaml"

// Config holds the settings shared by the fetch, extract and download steps.
type Config struct {
	BaseURL           string  `yaml:"base_url"`
	OutputDir         string  `yaml:"output_dir"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	PageSize          int     `yaml:"page_size"`
	QueueFile         string  `yaml:"queue_file"`
	LogLevel          string  `yaml:"log_level"`
	SkipDownload      bool    `yaml:"skip_download"`
	HTMLFallback      bool    `yaml:"html_fallback"`
}

// LoadConfig reads the optional YAML file at path, then applies .env and
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config %s", path)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("KEMONO_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("KEMONO_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("KEMONO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("KEMONO_QUEUE_FILE"); v != "" {
		cfg.QueueFile = v
	}
	if v := os.Getenv("KEMONO_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid KEMONO_RPS %q", v)
		}
		cfg.RequestsPerSecond = rps
	}
	return nil
}

func applyDefaults(cfg *Config) {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = extract.DefaultBaseURL
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 50
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate checks the values defaults cannot repair.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return errors.Errorf("base_url must be an http(s) origin, got %q", c.BaseURL)
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("requests_per_second must not be negative")
	}
	if c.PageSize < 0 {
		return errors.New("page_size must not be negative")
	}
	return nil
}
