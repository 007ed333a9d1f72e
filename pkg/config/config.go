// Package config loads sqlbridge settings from .env, an optional YAML file
// and the process environment, in that order of increasing priority.
//
// The database provider is picked the same way the chat backend always did:
// DATABASE_URL selects PostgreSQL, otherwise the discrete SQL_* variables
// select SQL Server. DB_PROVIDER overrides the choice.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ruslano69/sqlbridge/pkg/adapters"
	"github.com/ruslano69/sqlbridge/pkg/audit"
	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
	"github.com/ruslano69/sqlbridge/pkg/logging"
)

// Config is the full application configuration.
type Config struct {
	Database adapters.Config `yaml:"database"`
	Log      logging.Config  `yaml:"log"`
	Cache    CacheConfig     `yaml:"cache,omitempty"`
	Audit    AuditConfig     `yaml:"audit,omitempty"`
}

// CacheConfig configures the optional Redis result cache.
type CacheConfig struct {
	// URL - redis://[user:pass@]host:port/db. Empty disables the cache.
	URL    string        `yaml:"url"`
	TTL    time.Duration `yaml:"ttl"`
	Prefix string        `yaml:"prefix"`
}

// DefaultCacheTTL is used when the cache is enabled without a TTL.
const DefaultCacheTTL = time.Minute

// Enabled reports whether a cache URL is configured.
func (c CacheConfig) Enabled() bool {
	return c.URL != ""
}

// AuditConfig configures the optional statement audit log.
type AuditConfig struct {
	// File - путь к JSON lines файлу, or a comma separated list of them;
	// "-" writes readable lines to stderr. Empty disables auditing.
	File       string `yaml:"file"`
	Level      string `yaml:"level"` // minimal, standard, full
	MaxSizeMB  int64  `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Enabled reports whether an audit file is configured.
func (a AuditConfig) Enabled() bool {
	return a.File != ""
}

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load reads .env from the working directory when present, then delegates
// to LoadFrom with the process environment. Variables already set in the
// environment win over .env.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	return LoadFrom(os.LookupEnv)
}

// LoadDotEnv copies .env into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// LoadFrom builds the configuration from lookup. When SQLBRIDGE_CONFIG names
// a YAML file it is read first and the environment is layered on top.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}
	if path, ok := lookup("SQLBRIDGE_CONFIG"); ok && path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	return cfg.finish()
}

// LoadFile reads a YAML configuration file without applying the environment.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

func (c *Config) finish() (*Config, error) {
	if c.Database.Type == "" {
		return nil, errors.New("no database configured: set DATABASE_URL or SQL_SERVER")
	}
	d, err := tsql.ParseDialect(string(c.Database.Type))
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	c.Database.Type = d

	if c.Database.Type == tsql.Postgres && c.Database.SSLMode == "" && logging.IsProduction(c.Log.Env) {
		c.Database.SSLMode = "require"
	}

	c.Database = c.Database.WithDefaults()
	if err := c.Database.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	if c.Cache.Enabled() && c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.TTL < 0 {
		return nil, fmt.Errorf("invalid cache ttl %s", c.Cache.TTL)
	}
	if _, err := audit.ParseLevel(c.Audit.Level); err != nil {
		return nil, err
	}
	return c, nil
}

// env wraps lookup and remembers the first parse error.
type env struct {
	lookup LookupFunc
	err    error
}

func (e *env) str(key string, dst *string) bool {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return false
	}
	*dst = v
	return true
}

func (e *env) integer(key string, dst *int) bool {
	var s string
	if !e.str(key, &s) {
		return false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		e.fail(key, s)
		return false
	}
	*dst = n
	return true
}

func (e *env) boolean(key string, dst *bool) bool {
	var s string
	if !e.str(key, &s) {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		e.fail(key, s)
		return false
	}
	*dst = b
	return true
}

// duration accepts Go durations ("30s") or bare milliseconds ("30000").
func (e *env) duration(key string, dst *time.Duration) {
	var s string
	if !e.str(key, &s) {
		return
	}
	s = strings.TrimSpace(s)
	if ms, err := strconv.Atoi(s); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		e.fail(key, s)
		return
	}
	*dst = d
}

func (e *env) fail(key, value string) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid value %q for %s", value, key)
	}
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	e := &env{lookup: lookup}
	db := &cfg.Database

	if e.str("DATABASE_URL", &db.DSN) {
		db.Type = tsql.Postgres
	}

	sqlServer := e.str("SQL_SERVER", &db.Host)
	e.integer("SQL_PORT", &db.Port)
	e.str("SQL_USER", &db.User)
	e.str("SQL_PASSWORD", &db.Password)
	e.str("SQL_DATABASE", &db.Database)
	e.boolean("SQL_ENCRYPT", &db.Encrypt)
	e.boolean("SQL_TRUST_CERT", &db.TrustServerCertificate)
	if sqlServer && db.Type == "" {
		db.Type = tsql.SQLServer
	}

	var provider string
	if e.str("DB_PROVIDER", &provider) {
		d, err := tsql.ParseDialect(provider)
		if err != nil {
			return fmt.Errorf("DB_PROVIDER: %w", err)
		}
		db.Type = d
	}

	e.integer("DB_MAX_CONNS", &db.MaxConns)
	e.integer("DB_MIN_CONNS", &db.MinConns)
	e.duration("DB_IDLE_TIMEOUT", &db.IdleTimeout)
	e.duration("DB_CONNECT_TIMEOUT", &db.ConnectTimeout)
	e.duration("DB_QUERY_TIMEOUT", &db.QueryTimeout)
	e.str("DB_APP_NAME", &db.AppName)

	var ssl string
	if e.str("DB_SSL", &ssl) {
		db.SSLMode = sslMode(ssl)
	}

	if !e.str("APP_ENV", &cfg.Log.Env) {
		e.str("NODE_ENV", &cfg.Log.Env)
	}
	e.str("LOG_LEVEL", &cfg.Log.Level)
	e.str("LOG_FORMAT", &cfg.Log.Format)

	e.str("REDIS_URL", &cfg.Cache.URL)
	e.duration("CACHE_TTL", &cfg.Cache.TTL)
	e.str("CACHE_PREFIX", &cfg.Cache.Prefix)

	e.str("AUDIT_FILE", &cfg.Audit.File)
	e.str("AUDIT_LEVEL", &cfg.Audit.Level)

	return e.err
}

// sslMode maps DB_SSL onto a libpq sslmode. Booleans are shorthands for
// require and disable; anything else is passed through.
func sslMode(v string) string {
	if b, err := strconv.ParseBool(v); err == nil {
		if b {
			return "require"
		}
		return "disable"
	}
	return strings.ToLower(v)
}
