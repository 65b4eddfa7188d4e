package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete server configuration, loaded from a TOML file
// with environment overrides applied in main.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Catalog     CatalogConfig     `toml:"catalog"`
	TenantStore TenantStoreConfig `toml:"tenant_store"`
	Redis       RedisConfig       `toml:"redis"`
	Backup      BackupConfig      `toml:"backup"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// CatalogConfig points at the shared catalog database.
type CatalogConfig struct {
	DatabaseURL string `toml:"database_url"`
}

// TenantStoreConfig controls the per-agency database files.
type TenantStoreConfig struct {
	DataDir           string `toml:"data_dir"`
	ContextStackDepth int    `toml:"context_stack_depth"`
	MaxIdleMinutes    int    `toml:"max_idle_minutes"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type BackupConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// MaxIdle returns the idle-connection threshold with a sane floor.
func (c *TenantStoreConfig) MaxIdle() time.Duration {
	if c.MaxIdleMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.MaxIdleMinutes) * time.Minute
}

// Load loads configuration from a TOML file.
func Load(filename string) (*Config, error) {
	config := &Config{}
	_, err := toml.DecodeFile(filename, config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	return config, nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server:      ServerConfig{Addr: ":8080"},
		TenantStore: TenantStoreConfig{DataDir: "./data/agencies"},
	}
}
