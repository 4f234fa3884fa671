package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fleetsim/internal/constraint"
	"fleetsim/internal/sim"
)

// Config is the whole service configuration. Every field has a working
// default so an empty file (or no file) boots a usable in-memory service.
type Config struct {
	Server     Server            `yaml:"server"`
	Optimizer  Optimizer         `yaml:"optimizer"`
	Constraint constraint.Config `yaml:"constraints"`
	Scenario   sim.Scenario      `yaml:"scenario"`
}

// Server holds the HTTP layer tunables.
type Server struct {
	Port        string  `yaml:"port"`
	DatabaseURL string  `yaml:"databaseUrl"`
	RedisURL    string  `yaml:"redisUrl"`
	RatePerSec  float64 `yaml:"ratePerSec"`
	RateBurst   int     `yaml:"rateBurst"`
}

// Optimizer holds the improvement-phase tunables.
type Optimizer struct {
	Improve      bool `yaml:"improve"`
	MaxPasses    int  `yaml:"maxPasses"`
	TimeBudgetMs int  `yaml:"timeBudgetMs"`
	CacheSize    int  `yaml:"distanceCacheSize"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			RatePerSec: 50,
			RateBurst:  100,
		},
		Optimizer: Optimizer{
			Improve:      true,
			TimeBudgetMs: 2000,
		},
		Constraint: constraint.DefaultConfig(),
		Scenario:   sim.MediumUniform(),
	}
}

// Load reads a yaml file over the defaults, then applies env overrides.
// An empty path skips the file and uses defaults + env.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv is Load with the CONFIG_FILE env var as the path.
func FromEnv() (Config, error) { return Load(os.Getenv("CONFIG_FILE")) }

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Server.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Server.RedisURL = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("config: server.port is required")
	}
	if c.Constraint.AverageSpeedKph <= 0 {
		return fmt.Errorf("config: constraints.averageSpeedKph must be > 0")
	}
	if c.Constraint.MaxShiftHours <= 0 {
		return fmt.Errorf("config: constraints.maxShiftHours must be > 0")
	}
	if c.Optimizer.MaxPasses < 0 || c.Optimizer.TimeBudgetMs < 0 {
		return fmt.Errorf("config: optimizer budgets must be >= 0")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return ":" + c.Server.Port }
