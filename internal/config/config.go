package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"CLANREG_DB_HOST"`
	Port     int    `yaml:"port" env:"CLANREG_DB_PORT"`
	User     string `yaml:"user" env:"CLANREG_DB_USER"`
	Password string `yaml:"password" env:"CLANREG_DB_PASSWORD"`
	DBName   string `yaml:"dbname" env:"CLANREG_DB_NAME"`
	SSLMode  string `yaml:"sslmode" env:"CLANREG_DB_SSLMODE"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds the ban list connection. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `yaml:"url" env:"CLANREG_REDIS_URL"`
	PoolSize     int           `yaml:"pool_size" env:"CLANREG_REDIS_POOL_SIZE"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"CLANREG_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"CLANREG_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"CLANREG_REDIS_WRITE_TIMEOUT"`
}

// ParseEnv overlays configuration from environment variables.
// Fields whose variable is unset keep their current value.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
