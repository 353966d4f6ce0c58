package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ASKWEB_BACKEND_URL.
const EnvPrefix = "ASKWEB"

// Config holds all application configuration
type Config struct {
	// Search backend
	BackendURL     string
	BackendTimeout time.Duration

	// History settings
	HistoryKey string
	MaxRecords int

	// Storage settings
	StorageDriver string
	StoragePath   string

	// Credit ledger
	LedgerDriver  string
	DatabaseURL   string
	SignupCredits int

	ProgressInterval time.Duration
	RequireLogin     bool

	// Local HTTP surface
	ServerAddr  string
	CORSOrigins []string

	LogPath string
	Verbose bool
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "http://127.0.0.1:5000")
	v.SetDefault("backend.timeout", time.Duration(0))

	v.SetDefault("history.key", "searchHistory")
	v.SetDefault("history.max_records", 50)

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", "~/.askweb")

	v.SetDefault("ledger.driver", "local")
	v.SetDefault("ledger.database_url", "")
	v.SetDefault("ledger.signup_credits", 10)

	v.SetDefault("progress.interval", 2*time.Second)
	v.SetDefault("auth.require_login", true)

	v.SetDefault("server.addr", "127.0.0.1:8787")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})

	v.SetDefault("log.path", "")
	v.SetDefault("verbose", false)
}

// NewViper returns a viper instance with defaults, environment overrides and
// the optional config file under ~/.askweb wired in. A .env file in the
// working directory is loaded into the environment first; a missing one is
// fine.
func NewViper(configFile string) (*viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(expandHome(configFile))
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(expandHome("~/.askweb"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	return v, nil
}

// FromViper builds a Config from v.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		BackendURL:       strings.TrimSpace(v.GetString("backend.url")),
		BackendTimeout:   v.GetDuration("backend.timeout"),
		HistoryKey:       v.GetString("history.key"),
		MaxRecords:       v.GetInt("history.max_records"),
		StorageDriver:    strings.ToLower(v.GetString("storage.driver")),
		StoragePath:      expandHome(v.GetString("storage.path")),
		LedgerDriver:     strings.ToLower(v.GetString("ledger.driver")),
		DatabaseURL:      v.GetString("ledger.database_url"),
		SignupCredits:    v.GetInt("ledger.signup_credits"),
		ProgressInterval: v.GetDuration("progress.interval"),
		RequireLogin:     v.GetBool("auth.require_login"),
		ServerAddr:       v.GetString("server.addr"),
		CORSOrigins:      v.GetStringSlice("server.cors_origins"),
		LogPath:          expandHome(v.GetString("log.path")),
		Verbose:          v.GetBool("verbose"),
	}
	if cfg.LogPath == "" {
		cfg.LogPath = filepath.Join(cfg.StoragePath, "askweb.log")
	}
	return cfg
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	return FromViper(v)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return errors.New("backend URL cannot be empty")
	}
	if c.BackendTimeout < 0 {
		return errors.New("backend timeout cannot be negative")
	}
	if c.MaxRecords < 1 {
		return errors.New("history max records must be at least 1")
	}
	if c.HistoryKey == "" {
		return errors.New("history key cannot be empty")
	}
	if c.ProgressInterval <= 0 {
		return errors.New("progress interval must be positive")
	}
	if c.SignupCredits < 0 {
		return errors.New("signup credits cannot be negative")
	}

	switch c.StorageDriver {
	case "file", "sqlite":
	default:
		return errors.Errorf("unknown storage driver %q (want file or sqlite)", c.StorageDriver)
	}

	switch c.LedgerDriver {
	case "local":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("ledger.database_url is required for the postgres ledger")
		}
	default:
		return errors.Errorf("unknown ledger driver %q (want local or postgres)", c.LedgerDriver)
	}

	return nil
}

// expandHome expands the ~ in file paths to the user's home directory
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
