// Package config arma la configuración del servicio: defaults, archivo YAML
// opcional, .env + variables de entorno y por último flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"consent-ledger/internal/ports/auth"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverLevelDB  = "leveldb"
)

type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Storage StorageConfig `yaml:"storage"`
	Grants  GrantsConfig  `yaml:"grants"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	// Driver: memory | postgres | leveldb.
	Driver      string `yaml:"driver"`
	DatabaseDSN string `yaml:"database_dsn"`
	LevelDBPath string `yaml:"leveldb_path"`
}

type GrantsConfig struct {
	// MaxTTL == 0 => sin tope.
	MaxTTL      time.Duration `yaml:"max_ttl"`
	CASAttempts int           `yaml:"cas_attempts"`
}

type SweepConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Parallelism int           `yaml:"parallelism"`
}

// AuthConfig: si hay JWTSecret se usa JWT; si no, RemoteURL; si no, DevMode
// (headers X-Debug-*).
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	RemoteURL    string `yaml:"remote_url"`
	RemoteAPIKey string `yaml:"remote_api_key"`
	// Roles que acepta el verificador remoto; vacío = todos.
	RemoteRoles []string `yaml:"remote_roles"`
	DevMode     bool     `yaml:"dev_mode"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadDefaults deja una config usable en desarrollo: memoria + auth por headers.
func (c *Config) LoadDefaults() {
	c.HTTP = HTTPConfig{
		Addr:            ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
	c.Storage = StorageConfig{
		Driver:      DriverMemory,
		LevelDBPath: "data/grants.ldb",
	}
	c.Grants = GrantsConfig{
		MaxTTL:      365 * 24 * time.Hour,
		CASAttempts: 3,
	}
	c.Sweep = SweepConfig{
		Interval:    time.Minute,
		Parallelism: 4,
	}
	c.Auth = AuthConfig{DevMode: true}
	c.Log = LogConfig{Level: "info", Format: "text"}
}

var ErrInvalid = errors.New("invalid config")

func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if strings.TrimSpace(c.HTTP.Addr) == "" {
		add("http.addr is required")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.Storage.DatabaseDSN) == "" {
			add("storage.database_dsn is required for driver %q", c.Storage.Driver)
		}
	case DriverLevelDB:
		if strings.TrimSpace(c.Storage.LevelDBPath) == "" {
			add("storage.leveldb_path is required for driver %q", c.Storage.Driver)
		}
	default:
		add("unknown storage.driver %q", c.Storage.Driver)
	}

	if c.Grants.MaxTTL < 0 {
		add("grants.max_ttl must not be negative")
	}
	if c.Grants.CASAttempts <= 0 {
		add("grants.cas_attempts must be positive")
	}
	if c.Sweep.Interval <= 0 {
		add("sweep.interval must be positive")
	}
	if c.Sweep.Parallelism <= 0 {
		add("sweep.parallelism must be positive")
	}

	if c.Auth.JWTSecret == "" && c.Auth.RemoteURL == "" && !c.Auth.DevMode {
		add("no identity verifier: set auth.jwt_secret, auth.remote_url or auth.dev_mode")
	}
	for _, r := range c.Auth.RemoteRoles {
		if !auth.Role(r).Valid() {
			add("auth.remote_roles: unknown role %q", r)
		}
	}

	return errors.Join(errs...)
}
