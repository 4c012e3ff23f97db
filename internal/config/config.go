// Package config loads process-wide configuration from environment
// variables, in the style of kalambet-tbyd/internal/config: a defaults()
// struct literal overridden by env vars read once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the process-wide, read-only-after-init configuration.
type Config struct {
	Provider ProviderConfig
	Scraping ScrapingConfig
	Server   ServerConfig
}

// ProviderConfig holds the LLM provider settings.
type ProviderConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float64
	MaxTokensShape  int
	MaxTokensPlan   int
}

// ScrapingConfig holds the settings used by the sandbox's HTTP fetcher.
// They are not included in the plan-generation prompt or in generated
// plans.
type ScrapingConfig struct {
	RequestTimeout time.Duration
	UserAgent      string
}

// ServerConfig holds the embedded HTTP server's bind settings.
type ServerConfig struct {
	Port           int
	PortFallbacks  int
	DBPath         string
	BaseURL        string
}

func defaults() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL:        "https://api.deepseek.com",
			Model:          "deepseek-chat",
			Temperature:    0.3,
			MaxTokensShape: 8000,
			MaxTokensPlan:  4000,
		},
		Scraping: ScrapingConfig{
			RequestTimeout: 30 * time.Second,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Server: ServerConfig{
			Port:          8080,
			PortFallbacks: 10,
			DBPath:        "scrapeapi.db",
			BaseURL:       "http://127.0.0.1:8080",
		},
	}
}

// Load reads configuration from the environment. DEEPSEEK_API_KEY is
// required; initialization fails fast if it is absent.
func Load() (Config, error) {
	cfg := defaults()

	cfg.Provider.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	if cfg.Provider.APIKey == "" {
		return Config{}, fmt.Errorf("configuration: DEEPSEEK_API_KEY is required")
	}

	if v := os.Getenv("DEEPSEEK_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("DEEPSEEK_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("DEEPSEEK_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("configuration: bad DEEPSEEK_TEMPERATURE: %w", err)
		}
		cfg.Provider.Temperature = f
	}
	if v := os.Getenv("DEEPSEEK_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("configuration: bad DEEPSEEK_MAX_TOKENS: %w", err)
		}
		cfg.Provider.MaxTokensShape = n
	}

	if v := os.Getenv("SCRAPING_REQUEST_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("configuration: bad SCRAPING_REQUEST_TIMEOUT: %w", err)
		}
		cfg.Scraping.RequestTimeout = time.Duration(n) * time.Second
	}
	if v := os.Getenv("SCRAPING_USER_AGENT"); v != "" {
		cfg.Scraping.UserAgent = v
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("configuration: bad SERVER_PORT: %w", err)
		}
		cfg.Server.Port = n
		cfg.Server.BaseURL = fmt.Sprintf("http://127.0.0.1:%d", n)
	}
	if v := os.Getenv("SCRAPEAPI_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}

	return cfg, nil
}
