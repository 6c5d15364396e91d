package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
	Reveal    RevealConfig    `mapstructure:"reveal"`
	Proximity ProximityConfig `mapstructure:"proximity"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// StorageConfig selects the note and history backends.
type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type ValkeyConfig struct {
	Addr        string `mapstructure:"addr"`
	Enabled     bool   `mapstructure:"enabled"`
	NotifiedKey string `mapstructure:"notified_key"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
	// Exporter is "otlp" or "stdout".
	Exporter string `mapstructure:"exporter"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RevealConfig tunes the reveal gate.
type RevealConfig struct {
	DefaultRadiusM   float64       `mapstructure:"default_radius_m"`
	DefaultAngleDeg  float64       `mapstructure:"default_angle_deg"`
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	ProgressStep     int           `mapstructure:"progress_step"`
	RequireSightline bool          `mapstructure:"require_sightline"`
}

// ProximityConfig tunes the proximity notifier.
type ProximityConfig struct {
	RadiusM         float64       `mapstructure:"radius_m"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	PruneInterval   time.Duration `mapstructure:"prune_interval"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: GHOSTNOTES_DATABASE_HOST → database.host
	v.SetEnvPrefix("GHOSTNOTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ghostnotes")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "ghostnotes")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.enabled", true)
	v.SetDefault("valkey.notified_key", "ghostnotes:notified")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "otlp")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("reveal.default_radius_m", 35.0)
	v.SetDefault("reveal.default_angle_deg", 25.0)
	v.SetDefault("reveal.tick_interval", "200ms")
	v.SetDefault("reveal.progress_step", 10)
	v.SetDefault("reveal.require_sightline", true)

	v.SetDefault("proximity.radius_m", 100.0)
	v.SetDefault("proximity.cooldown", "60s")
	v.SetDefault("proximity.dispatch_timeout", "5s")
	v.SetDefault("proximity.idle_ttl", "30m")
	v.SetDefault("proximity.prune_interval", "5m")
}

func positiveFinite(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Storage.Driver {
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("storage.driver must be postgres or memory, got %q", c.Storage.Driver))
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Telemetry.Exporter != "otlp" && c.Telemetry.Exporter != "stdout" {
		errs = append(errs, fmt.Sprintf("telemetry.exporter must be otlp or stdout, got %q", c.Telemetry.Exporter))
	}

	if !positiveFinite(c.Reveal.DefaultRadiusM) {
		errs = append(errs, "reveal.default_radius_m must be positive")
	}
	if !positiveFinite(c.Reveal.DefaultAngleDeg) || c.Reveal.DefaultAngleDeg > 180 {
		errs = append(errs, "reveal.default_angle_deg must be in (0,180]")
	}
	if c.Reveal.TickInterval <= 0 {
		errs = append(errs, "reveal.tick_interval must be positive")
	}
	if c.Reveal.ProgressStep <= 0 || c.Reveal.ProgressStep > 100 {
		errs = append(errs, "reveal.progress_step must be 1-100")
	}

	if !positiveFinite(c.Proximity.RadiusM) {
		errs = append(errs, "proximity.radius_m must be positive")
	}
	if c.Proximity.Cooldown < 0 {
		errs = append(errs, "proximity.cooldown must not be negative")
	}
	if c.Proximity.DispatchTimeout <= 0 {
		errs = append(errs, "proximity.dispatch_timeout must be positive")
	}
	if c.Proximity.IdleTTL <= 0 {
		errs = append(errs, "proximity.idle_ttl must be positive")
	}
	if c.Proximity.PruneInterval <= 0 {
		errs = append(errs, "proximity.prune_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
