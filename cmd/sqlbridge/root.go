package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ruslano69/sqlbridge/pkg/adapters"
	_ "github.com/ruslano69/sqlbridge/pkg/adapters/mssql"
	_ "github.com/ruslano69/sqlbridge/pkg/adapters/postgres"
	"github.com/ruslano69/sqlbridge/pkg/audit"
	"github.com/ruslano69/sqlbridge/pkg/cache"
	"github.com/ruslano69/sqlbridge/pkg/config"
	"github.com/ruslano69/sqlbridge/pkg/logging"
	"github.com/ruslano69/sqlbridge/pkg/resilience"
	"github.com/ruslano69/sqlbridge/pkg/retry"
)

// app carries global flags and the hooks tests replace.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	dotenv bool
	lookup config.LookupFunc
	open   func(ctx context.Context, cfg adapters.Config, opts ...adapters.Option) (*adapters.DB, error)
}

func newApp() *app {
	return &app{dotenv: true, lookup: os.LookupEnv, open: adapters.Open}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sqlbridge",
		Short: "Run T-SQL templates on SQL Server or PostgreSQL",
		Long: `sqlbridge binds @name parameters and rewrites T-SQL templates into
PostgreSQL (TOP, OFFSET/FETCH, APPLY, OUTPUT INSERTED, GETDATE, DATEADD, ISNULL...).
With SQL Server selected the templates run as written.

The database is selected from the environment: DATABASE_URL selects PostgreSQL,
SQL_SERVER/SQL_USER/SQL_PASSWORD/SQL_DATABASE select SQL Server. A .env file in
the working directory and a YAML file (--config or SQLBRIDGE_CONFIG) are read too.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML config file (overrides SQLBRIDGE_CONFIG)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: console or json (overrides LOG_FORMAT)")

	root.AddCommand(newTranslateCommand(a))
	root.AddCommand(newExecCommand(a))
	root.AddCommand(newPingCommand(a))
	return root
}

// loadConfig reads .env, the YAML file and the environment.
func (a *app) loadConfig() (*config.Config, error) {
	lookup := a.lookup
	if a.configPath != "" {
		lookup = func(key string) (string, bool) {
			if key == "SQLBRIDGE_CONFIG" {
				return a.configPath, true
			}
			return a.lookup(key)
		}
	}

	if a.dotenv {
		if err := config.LoadDotEnv(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadFrom(lookup)
	if err != nil {
		return nil, err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	return cfg, nil
}

func (a *app) logger(cfg *config.Config, w io.Writer) zerolog.Logger {
	return logging.New(cfg.Log, w)
}

// connect opens the database, retrying connectivity failures when
// attempts > 1.
func (a *app) connect(ctx context.Context, cfg *config.Config, log zerolog.Logger, attempts int, delay time.Duration) (*adapters.DB, error) {
	var db *adapters.DB
	err := a.withRetry(ctx, log, attempts, delay, func(ctx context.Context) error {
		var err error
		db, err = a.open(ctx, cfg.Database, adapters.WithLogger(log))
		return err
	})
	return db, err
}

func (a *app) withRetry(ctx context.Context, log zerolog.Logger, attempts int, delay time.Duration, fn retry.RetryableFunc) error {
	if attempts < 1 {
		attempts = 1
	}
	rc := retry.Attempts(attempts, delay)
	rc.OnRetry = func(attempt int, err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("retrying")
	}
	return retry.Do(ctx, rc, fn)
}

// newCache wraps db with the Redis result cache when one is configured. The
// returned cleanup closes the cache and its client.
func newCache(cfg *config.Config, db *adapters.DB, log zerolog.Logger) (adapters.Querier, func(), error) {
	if !cfg.Cache.Enabled() {
		return db, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.Cache.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	breaker := resilience.DefaultConfig("redis")
	breaker.OnStateChange = func(name string, from, to resilience.State) {
		log.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("cache breaker state changed")
	}

	c, err := cache.New(client, db,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithPrefix(cfg.Cache.Prefix),
		cache.WithLogger(log),
		cache.WithBreaker(breaker))
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return c, func() {
		c.Close()
		client.Close()
	}, nil
}

// newAuditor opens the audit log when one is configured. A nil logger means
// auditing is off.
func newAuditor(cfg *config.Config, log zerolog.Logger, stderr io.Writer) (*audit.AuditLogger, error) {
	if !cfg.Audit.Enabled() {
		return nil, nil
	}
	level, err := audit.ParseLevel(cfg.Audit.Level)
	if err != nil {
		return nil, err
	}

	appender, err := audit.OpenTargets(cfg.Audit.File, audit.FileAppenderConfig{
		MaxSize:    cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
		Level:      level,
	}, stderr)
	if err != nil {
		return nil, err
	}

	lc := audit.DefaultConfig()
	lc.DefaultUser = currentUser()
	lc.OnError = func(err error) {
		log.Error().Err(err).Msg("audit write failed")
	}
	return audit.NewLogger(lc, appender), nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, key := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "unknown"
}
