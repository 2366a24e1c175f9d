package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CLANREG_CONFIG is not set.
const DefaultPath = "config/clanserver.yaml"

// Clans holds clan policy and prices.
type Clans struct {
	RequireVerification bool     `yaml:"require_verification" env:"CLANREG_REQUIRE_VERIFICATION"`
	TagMinLength        int      `yaml:"tag_min_length" env:"CLANREG_TAG_MIN_LENGTH"`
	TagMaxLength        int      `yaml:"tag_max_length" env:"CLANREG_TAG_MAX_LENGTH"`
	UnrivableClans      []string `yaml:"unrivable_clans" env:"CLANREG_UNRIVABLE_CLANS"`

	PurchaseCreation     bool    `yaml:"purchase_creation" env:"CLANREG_PURCHASE_CREATION"`
	CreationPrice        float64 `yaml:"creation_price" env:"CLANREG_CREATION_PRICE"`
	PurchaseVerification bool    `yaml:"purchase_verification" env:"CLANREG_PURCHASE_VERIFICATION"`
	VerificationPrice    float64 `yaml:"verification_price" env:"CLANREG_VERIFICATION_PRICE"`
}

// Registry holds durability settings.
type Registry struct {
	FlushInterval  time.Duration `yaml:"flush_interval" env:"CLANREG_FLUSH_INTERVAL"`   // retry queued writes (default: 30s)
	PersistTimeout time.Duration `yaml:"persist_timeout" env:"CLANREG_PERSIST_TIMEOUT"` // per store call (default: 5s)
	GateTimeout    time.Duration `yaml:"gate_timeout" env:"CLANREG_GATE_TIMEOUT"`       // per purchase charge (default: 2s)
}

// Ops holds the operational HTTP endpoint settings.
type Ops struct {
	BindAddress string `yaml:"bind_address" env:"CLANREG_OPS_ADDR"`
}

// ClanServer holds all configuration for the clan registry service.
type ClanServer struct {
	LogLevel string `yaml:"log_level" env:"CLANREG_LOG_LEVEL"`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Clans    Clans          `yaml:"clans"`
	Registry Registry       `yaml:"registry"`
	Ops      Ops            `yaml:"ops"`
}

// DefaultClanServer returns ClanServer config with sensible defaults.
func DefaultClanServer() ClanServer {
	return ClanServer{
		LogLevel: "info",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "clanreg",
			Password: "clanreg",
			DBName:   "clanreg",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Clans: Clans{
			RequireVerification:  true,
			TagMinLength:         2,
			TagMaxLength:         5,
			PurchaseCreation:     false,
			CreationPrice:        100,
			PurchaseVerification: false,
			VerificationPrice:    1000,
		},
		Registry: Registry{
			FlushInterval:  30 * time.Second,
			PersistTimeout: 5 * time.Second,
			GateTimeout:    2 * time.Second,
		},
		Ops: Ops{
			BindAddress: "127.0.0.1:9100",
		},
	}
}

// Path returns the config file location: CLANREG_CONFIG or DefaultPath.
func Path() string {
	if p := os.Getenv("CLANREG_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// LoadClanServer loads config from a YAML file, then applies environment
// overrides. If the file doesn't exist, defaults are used.
func LoadClanServer(path string) (ClanServer, error) {
	cfg := DefaultClanServer()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would make the service misbehave.
func (c ClanServer) Validate() error {
	if c.Clans.TagMinLength < 1 {
		return fmt.Errorf("clans.tag_min_length must be positive, got %d", c.Clans.TagMinLength)
	}
	if c.Clans.TagMaxLength < c.Clans.TagMinLength {
		return fmt.Errorf("clans.tag_max_length %d is below tag_min_length %d",
			c.Clans.TagMaxLength, c.Clans.TagMinLength)
	}
	if c.Clans.CreationPrice < 0 || c.Clans.VerificationPrice < 0 {
		return fmt.Errorf("clan prices must not be negative")
	}
	if c.Registry.FlushInterval <= 0 {
		return fmt.Errorf("registry.flush_interval must be positive, got %s", c.Registry.FlushInterval)
	}
	if c.Registry.PersistTimeout <= 0 {
		return fmt.Errorf("registry.persist_timeout must be positive, got %s", c.Registry.PersistTimeout)
	}
	if c.Registry.GateTimeout <= 0 {
		return fmt.Errorf("registry.gate_timeout must be positive, got %s", c.Registry.GateTimeout)
	}
	return nil
}
