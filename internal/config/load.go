package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile apunta al YAML cuando no se pasa --config.
const EnvConfigFile = "CONSENT_CONFIG"

// Load aplica, en orden: defaults, YAML, .env + entorno, flags. Cada capa
// pisa sólo lo que define.
func Load(args []string) (*Config, error) {
	path, envFile, err := preParse(args)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.LoadDefaults()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	// .env no pisa variables ya exportadas; que falte no es error.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	fs := newFlagSet(cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// preParse sólo extrae --config y --env-file; el resto de los flags se
// aplican al final para que ganen sobre archivo y entorno.
func preParse(args []string) (path, envFile string, err error) {
	fs := pflag.NewFlagSet("consent-ledger", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "")
	fs.StringVar(&envFile, "env-file", ".env", "")
	fs.BoolP("help", "h", false, "")

	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	return path, envFile, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func newFlagSet(cfg *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("consent-ledger", pflag.ContinueOnError)

	fs.String("config", "", "YAML config file (or "+EnvConfigFile+")")
	fs.String("env-file", ".env", "dotenv file loaded before reading the environment")

	fs.StringVar(&cfg.HTTP.Addr, "http-addr", cfg.HTTP.Addr, "HTTP listen address")
	fs.DurationVar(&cfg.HTTP.ReadTimeout, "http-read-timeout", cfg.HTTP.ReadTimeout, "HTTP read timeout")
	fs.DurationVar(&cfg.HTTP.WriteTimeout, "http-write-timeout", cfg.HTTP.WriteTimeout, "HTTP write timeout")
	fs.DurationVar(&cfg.HTTP.ShutdownTimeout, "shutdown-timeout", cfg.HTTP.ShutdownTimeout, "graceful shutdown timeout")

	fs.StringVar(&cfg.Storage.Driver, "storage", cfg.Storage.Driver, "storage driver: memory|postgres|leveldb")
	fs.StringVarP(&cfg.Storage.DatabaseDSN, "database-dsn", "d", cfg.Storage.DatabaseDSN, "PostgreSQL DSN")
	fs.StringVar(&cfg.Storage.LevelDBPath, "leveldb-path", cfg.Storage.LevelDBPath, "LevelDB directory")

	fs.DurationVar(&cfg.Grants.MaxTTL, "max-ttl", cfg.Grants.MaxTTL, "maximum grant TTL (0 = unlimited)")
	fs.IntVar(&cfg.Grants.CASAttempts, "cas-attempts", cfg.Grants.CASAttempts, "CAS attempts before conflict")

	fs.DurationVar(&cfg.Sweep.Interval, "sweep-interval", cfg.Sweep.Interval, "expiry sweep interval")
	fs.IntVar(&cfg.Sweep.Parallelism, "sweep-parallelism", cfg.Sweep.Parallelism, "concurrent reconciliations per sweep")

	fs.StringVar(&cfg.Auth.JWTSecret, "jwt-secret", cfg.Auth.JWTSecret, "HS256 secret for bearer tokens")
	fs.StringVar(&cfg.Auth.RemoteURL, "identity-url", cfg.Auth.RemoteURL, "remote identity service base URL")
	fs.StringVar(&cfg.Auth.RemoteAPIKey, "identity-api-key", cfg.Auth.RemoteAPIKey, "remote identity service API key")
	fs.StringSliceVar(&cfg.Auth.RemoteRoles, "identity-roles", cfg.Auth.RemoteRoles, "roles accepted from the identity service (default all)")
	fs.BoolVar(&cfg.Auth.DevMode, "dev-auth", cfg.Auth.DevMode, "accept X-Debug-User-ID / X-Debug-Role headers")

	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug|info|warn|error")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "text|json")

	return fs
}

type lookupFunc func(string) (string, bool)

// applyEnv lee CONSENT_*. Un valor mal formado es error, no se ignora.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err))
				return
			}
			*dst = b
		}
	}

	str("CONSENT_HTTP_ADDR", &cfg.HTTP.Addr)
	dur("CONSENT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	dur("CONSENT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	dur("CONSENT_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)

	str("CONSENT_STORAGE_DRIVER", &cfg.Storage.Driver)
	str("CONSENT_DATABASE_DSN", &cfg.Storage.DatabaseDSN)
	str("CONSENT_LEVELDB_PATH", &cfg.Storage.LevelDBPath)

	dur("CONSENT_MAX_TTL", &cfg.Grants.MaxTTL)
	num("CONSENT_CAS_ATTEMPTS", &cfg.Grants.CASAttempts)

	dur("CONSENT_SWEEP_INTERVAL", &cfg.Sweep.Interval)
	num("CONSENT_SWEEP_PARALLELISM", &cfg.Sweep.Parallelism)

	str("CONSENT_JWT_SECRET", &cfg.Auth.JWTSecret)
	str("CONSENT_IDENTITY_URL", &cfg.Auth.RemoteURL)
	str("CONSENT_IDENTITY_API_KEY", &cfg.Auth.RemoteAPIKey)
	if v, ok := lookup("CONSENT_IDENTITY_ROLES"); ok {
		cfg.Auth.RemoteRoles = splitList(v)
	}
	flag("CONSENT_DEV_AUTH", &cfg.Auth.DevMode)

	str("CONSENT_LOG_LEVEL", &cfg.Log.Level)
	str("CONSENT_LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
