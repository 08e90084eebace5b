package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Environment variables recognized by Load. They override values from the
// YAML file when set.
const (
	EnvLLMBaseURL = "LLAMA_BASE_URL"
	EnvLLMModel   = "LLAMA_MODEL"
	EnvLLMAPIKey  = "RELAY_LLM_API_KEY"
	EnvListenAddr = "RELAY_LISTEN_ADDR"
	EnvSearchURL  = "RELAY_SEARCH_URL"
	EnvStaticDir  = "RELAY_STATIC_DIR"
	EnvLogLevel   = "RELAY_LOG_LEVEL"
	EnvConfigPath = "RELAY_CONFIG"
)

// SSLConfig controls TLS termination for the HTTP server.
type SSLConfig struct {
	Enabled      bool
	Mode         string // "manual" or "acme"
	CertFile     string
	KeyFile      string
	AcmeDomains  []string
	AcmeEmail    string
	AcmeCacheDir string
}

// Config is the resolved service configuration. It is built once by Load
// and never mutated afterwards.
type Config struct {
	ListenAddr string
	LogLevel   string
	StaticDir  string

	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string

	SearchBaseURL string

	MaxRounds    int
	RoundTimeout time.Duration

	ThrottleRPS   float64
	ThrottleBurst int

	SSL SSLConfig
}

// yamlConfig mirrors the on-disk format.
type yamlConfig struct {
	Server struct {
		Address   string `yaml:"address"`
		LogLevel  string `yaml:"log_level"`
		StaticDir string `yaml:"static_dir"`
		SSL       struct {
			Enabled      bool     `yaml:"enabled"`
			Mode         string   `yaml:"mode"`
			CertFile     string   `yaml:"cert_file"`
			KeyFile      string   `yaml:"key_file"`
			AcmeDomains  []string `yaml:"acme_domains"`
			AcmeEmail    string   `yaml:"acme_email"`
			AcmeCacheDir string   `yaml:"acme_cache_dir"`
		} `yaml:"ssl"`
		Throttle struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"throttle"`
	} `yaml:"server"`

	LLM struct {
		BaseURL      string `yaml:"base_url"`
		Model        string `yaml:"model"`
		APIKey       string `yaml:"api_key"`
		MaxRounds    int    `yaml:"max_rounds"`
		RoundTimeout string `yaml:"round_timeout"`
	} `yaml:"llm"`

	Search struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"search"`
}

func defaults() *Config {
	return &Config{
		ListenAddr:    ":3000",
		LogLevel:      "info",
		StaticDir:     "dist",
		LLMBaseURL:    "http://127.0.0.1:8080",
		LLMModel:      "local-model",
		LLMAPIKey:     "no-key",
		SearchBaseURL: "http://127.0.0.1:8888",
		MaxRounds:     8,
		RoundTimeout:  120 * time.Second,
		SSL: SSLConfig{
			Mode:         "manual",
			AcmeCacheDir: "./.autocert-cache",
		},
	}
}

// Load builds the configuration from the YAML file at path, then applies
// environment overrides. A missing file is not an error; the service can
// run entirely from defaults and environment variables.
func Load(path string, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var y yamlConfig
		if err := yaml.Unmarshal(data, &y); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if err := applyYAML(cfg, &y); err != nil {
			return nil, err
		}
		logger.Debug("Loaded configuration file", zap.String("path", path))
	case os.IsNotExist(err):
		logger.Debug("Config file not found, using defaults", zap.String("path", path))
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyYAML(cfg *Config, y *yamlConfig) error {
	if y.Server.Address != "" {
		cfg.ListenAddr = y.Server.Address
	}
	if y.Server.LogLevel != "" {
		cfg.LogLevel = y.Server.LogLevel
	}
	if y.Server.StaticDir != "" {
		cfg.StaticDir = y.Server.StaticDir
	}
	cfg.ThrottleRPS = y.Server.Throttle.RPS
	cfg.ThrottleBurst = y.Server.Throttle.Burst

	cfg.SSL.Enabled = y.Server.SSL.Enabled
	if y.Server.SSL.Mode != "" {
		cfg.SSL.Mode = y.Server.SSL.Mode
	}
	if y.Server.SSL.CertFile != "" {
		cfg.SSL.CertFile = y.Server.SSL.CertFile
	}
	if y.Server.SSL.KeyFile != "" {
		cfg.SSL.KeyFile = y.Server.SSL.KeyFile
	}
	if len(y.Server.SSL.AcmeDomains) > 0 {
		cfg.SSL.AcmeDomains = y.Server.SSL.AcmeDomains
	}
	if y.Server.SSL.AcmeEmail != "" {
		cfg.SSL.AcmeEmail = y.Server.SSL.AcmeEmail
	}
	if y.Server.SSL.AcmeCacheDir != "" {
		cfg.SSL.AcmeCacheDir = y.Server.SSL.AcmeCacheDir
	}

	if y.LLM.BaseURL != "" {
		cfg.LLMBaseURL = y.LLM.BaseURL
	}
	if y.LLM.Model != "" {
		cfg.LLMModel = y.LLM.Model
	}
	if y.LLM.APIKey != "" {
		cfg.LLMAPIKey = y.LLM.APIKey
	}
	if y.LLM.MaxRounds > 0 {
		cfg.MaxRounds = y.LLM.MaxRounds
	}
	if y.LLM.RoundTimeout != "" {
		d, err := time.ParseDuration(y.LLM.RoundTimeout)
		if err != nil {
			return fmt.Errorf("invalid llm.round_timeout %q: %w", y.LLM.RoundTimeout, err)
		}
		cfg.RoundTimeout = d
	}

	if y.Search.BaseURL != "" {
		cfg.SearchBaseURL = y.Search.BaseURL
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvLLMBaseURL); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv(EnvLLMModel); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv(EnvLLMAPIKey); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvSearchURL); v != "" {
		cfg.SearchBaseURL = v
	}
	if v := os.Getenv(EnvStaticDir); v != "" {
		cfg.StaticDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}

func validate(cfg *Config) error {
	if cfg.SSL.Enabled {
		switch cfg.SSL.Mode {
		case "manual":
			if cfg.SSL.CertFile == "" || cfg.SSL.KeyFile == "" {
				return fmt.Errorf("ssl mode 'manual' requires cert_file and key_file")
			}
		case "acme":
			if len(cfg.SSL.AcmeDomains) == 0 {
				return fmt.Errorf("ssl mode 'acme' requires at least one domain in acme_domains")
			}
		default:
			return fmt.Errorf("unknown ssl mode %q", cfg.SSL.Mode)
		}
	}
	if cfg.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be at least 1, got %d", cfg.MaxRounds)
	}
	if cfg.RoundTimeout < 0 {
		return fmt.Errorf("round_timeout must not be negative")
	}
	return nil
}
