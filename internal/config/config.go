package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	ormdriver "github.com/faciam-dev/goquent/orm/driver"
	"github.com/faciam-dev/goquent/orm/query"
	"gopkg.in/yaml.v3"
)

// DefaultTablePrefix is used when no prefix is configured.
const DefaultTablePrefix = "gcdisk_"

// Config holds global configuration values.
type Config struct {
	Addr           string   `yaml:"addr"`
	Driver         string   `yaml:"driver"`
	DSN            string   `yaml:"dsn"`
	TablePrefix    string   `yaml:"table_prefix"`
	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	EventsConfig   string   `yaml:"events_config"`
	DiskTypesFile  string   `yaml:"disk_types_file"`
	UsageCron      string   `yaml:"usage_cron"`
	LogFormat      string   `yaml:"log_format"`
	LogLevel       string   `yaml:"log_level"`
}

// Default returns a Config with every optional value filled in.
func Default() Config {
	return Config{
		Addr:           ":8080",
		Driver:         "postgres",
		TablePrefix:    DefaultTablePrefix,
		AllowedOrigins: []string{"http://localhost:5173"},
		UsageCron:      "*/15 * * * *",
		LogFormat:      "text",
		LogLevel:       "info",
	}
}

// Load reads an optional YAML file on top of the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.DSN, "DISK_DB_DSN")
	set(&c.Driver, "DISK_DB_DRIVER")
	set(&c.TablePrefix, "TABLE_PREFIX")
	set(&c.JWTSecret, "JWT_SECRET")
	set(&c.EventsConfig, "DISK_EVENTS_CONFIG")
	set(&c.DiskTypesFile, "DISK_TYPES_FILE")
	set(&c.LogLevel, "LOG_LEVEL")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
}

// T prefixes the given table name with the configured prefix.
func (c *Config) T(name string) string {
	if c.TablePrefix == "" {
		return DefaultTablePrefix + name
	}
	return c.TablePrefix + name
}

// CheckPrefix verifies that tables with the configured prefix exist in the
// connected database. It returns an error if none are found.
func CheckPrefix(ctx context.Context, db *sql.DB, dialect ormdriver.Dialect, prefix string) error {
	q := query.New(db, "information_schema.tables", dialect).
		SelectRaw("COUNT(*) AS cnt").
		WhereRaw("table_name LIKE :p", map[string]any{"p": prefix + "%"}).
		WithContext(ctx)

	var res struct{ Cnt int }
	if err := q.First(&res); err != nil {
		return err
	}
	if res.Cnt == 0 {
		return fmt.Errorf("no tables with prefix %q found; run migrations or set TABLE_PREFIX correctly", prefix)
	}
	return nil
}
