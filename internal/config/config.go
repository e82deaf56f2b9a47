// Package config loads application configuration from file and environment
// and owns global logger initialization.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Env     string        `yaml:"env" mapstructure:"env"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Import  ImportConfig  `yaml:"import" mapstructure:"import"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the query API server.
type ServerConfig struct {
	Port         int      `yaml:"port" mapstructure:"port"`
	RateWindowMS int      `yaml:"rate_window_ms" mapstructure:"rate_window_ms"`
	RateMax      int      `yaml:"rate_max" mapstructure:"rate_max"`
	CORSOrigins  []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// SourceConfig holds the upstream job search API settings. AppID and AppKey
// form the application identity credential pair required by the API.
type SourceConfig struct {
	AppID       string  `yaml:"app_id" mapstructure:"app_id"`
	AppKey      string  `yaml:"app_key" mapstructure:"app_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Country     string  `yaml:"country" mapstructure:"country"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RPS         float64 `yaml:"rps" mapstructure:"rps"`
}

// GeocodeConfig configures the geocoding provider chain and its cache.
type GeocodeConfig struct {
	MapboxToken string          `yaml:"mapbox_token" mapstructure:"mapbox_token"`
	Nominatim   NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	Cache       CacheConfig     `yaml:"cache" mapstructure:"cache"`
}

// NominatimConfig holds settings for the public fallback geocoder. The
// throttle budget is CallsPerInterval starts per IntervalMS.
type NominatimConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	CallsPerInterval int    `yaml:"calls_per_interval" mapstructure:"calls_per_interval"`
	IntervalMS       int    `yaml:"interval_ms" mapstructure:"interval_ms"`
}

// CacheConfig selects the geocode cache backend.
type CacheConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"` // "memory" or "redis"
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ImportConfig configures scheduled and triggered imports.
type ImportConfig struct {
	Pages        int    `yaml:"pages" mapstructure:"pages"`
	PerPage      int    `yaml:"per_page" mapstructure:"per_page"`
	What         string `yaml:"what" mapstructure:"what"`
	Where        string `yaml:"where" mapstructure:"where"`
	Secret       string `yaml:"secret" mapstructure:"secret"`
	Schedule     string `yaml:"schedule" mapstructure:"schedule"`
	ProfilesPath string `yaml:"profiles_path" mapstructure:"profiles_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// IsProduction reports whether the app runs with production strictness.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate enforces hard configuration requirements. In production a missing
// source credential pair is fatal; in development the source client runs
// unauthenticated and logs a warning instead.
func (c *Config) Validate() error {
	if c.IsProduction() && (c.Source.AppID == "" || c.Source.AppKey == "") {
		return eris.New("config: source app_id/app_key are required in production (set JOBATLAS_SOURCE_APP_ID and JOBATLAS_SOURCE_APP_KEY)")
	}
	if c.IsProduction() && c.Import.Secret == "" {
		return eris.New("config: import.secret is required in production")
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("JOBATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("env", "development")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_window_ms", 60000)
	v.SetDefault("server.rate_max", 60)
	v.SetDefault("source.base_url", "https://api.adzuna.com/v1/api/jobs")
	v.SetDefault("source.country", "fr")
	v.SetDefault("source.timeout_secs", 20)
	v.SetDefault("source.rps", 2)
	v.SetDefault("geocode.nominatim.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.nominatim.user_agent", "jobatlas/1.0 (ops@sellsadvisors.com)")
	v.SetDefault("geocode.nominatim.calls_per_interval", 1)
	v.SetDefault("geocode.nominatim.interval_ms", 1000)
	v.SetDefault("geocode.cache.driver", "memory")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "jobatlas.db")
	v.SetDefault("import.pages", 2)
	v.SetDefault("import.per_page", 50)
	v.SetDefault("import.what", "developer")
	v.SetDefault("import.where", "paris")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
