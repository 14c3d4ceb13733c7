package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Env            string      `yaml:"env" env:"ENV" env-default:"local"`
	Storage        string      `yaml:"storage" env:"STORAGE" env-default:"postgres"`
	StoragePath    string      `yaml:"storage_path" env:"STORAGE_PATH"`
	MigrationsPath string      `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"internal/repo/postgres/migrations"`
	AutoMigrate    bool        `yaml:"auto_migrate" env:"AUTO_MIGRATE" env-default:"false"`
	HTTP           HTTPConfig  `yaml:"http"`
	Auth           AuthConfig  `yaml:"auth"`
	CORS           CORSConfig  `yaml:"cors"`
	Polls          PollsConfig `yaml:"polls"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"5s"`
}

type AuthConfig struct {
	Secret          string        `yaml:"secret" env:"AUTH_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_ttl" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_ttl" env-default:"720h"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:","`
}

type PollsConfig struct {
	PageSize     int           `yaml:"page_size" env-default:"20"`
	RecentWindow time.Duration `yaml:"recent_window" env-default:"24h"`
}

// Load reads the YAML file at path and applies environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad loads the config from the -config flag or CONFIG_PATH and panics
// on failure.
func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}

	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.StoragePath == "" {
			return fmt.Errorf("storage_path is required for %s storage", StoragePostgres)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}
	return nil
}

// fetchConfigPath prefers the command line flag over the environment.
func fetchConfigPath() string {
	var res string

	if f := flag.Lookup("config"); f != nil {
		res = f.Value.String()
	} else {
		flag.StringVar(&res, "config", "", "path to config file")
		flag.Parse()
	}

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
