package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	SMTP struct {
		Host          string `yaml:"host"`
		Port          int    `yaml:"port"`
		From          string `yaml:"from"`
		Username      string `yaml:"username"`
		Password      string `yaml:"password"`
		RatePerMinute int    `yaml:"rate_per_minute"`
	} `yaml:"smtp"`

	Reminders struct {
		AppURL           string `yaml:"app_url"`
		Icon             string `yaml:"icon"`
		Badge            string `yaml:"badge"`
		AutoCloseSeconds int    `yaml:"auto_close_seconds"`
		LeadMinutes      int    `yaml:"lead_minutes"`
	} `yaml:"reminders"`

	API struct {
		Enabled bool   `yaml:"enabled"`
		Port    int    `yaml:"port"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/revia.db"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) AutoClose() time.Duration {
	if c.Reminders.AutoCloseSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Reminders.AutoCloseSeconds) * time.Second
}

func (c *Config) RedisCacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}
