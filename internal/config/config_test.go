package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noDotenv(t *testing.T) string {
	t.Helper()
	return "--env-file=" + filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, DriverMemory, c.Storage.Driver)
	assert.Equal(t, 3, c.Grants.CASAttempts)
	assert.Equal(t, 365*24*time.Hour, c.Grants.MaxTTL)
	assert.Equal(t, time.Minute, c.Sweep.Interval)
	assert.Equal(t, 4, c.Sweep.Parallelism)
	assert.True(t, c.Auth.DevMode)
	assert.Equal(t, "info", c.Log.Level)
	require.NoError(t, c.Validate())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	c, err := Load([]string{noDotenv(t)})
	require.NoError(t, err)

	var want Config
	want.LoadDefaults()
	assert.Equal(t, &want, c)
}

func TestLoad_LayerPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "consent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
storage:
  driver: leveldb
  leveldb_path: /var/lib/consent
sweep:
  interval: 30s
  parallelism: 8
log:
  level: debug
`), 0o600))

	t.Setenv("CONSENT_SWEEP_INTERVAL", "10s")
	t.Setenv("CONSENT_LOG_FORMAT", "json")

	c, err := Load([]string{noDotenv(t), "--config", path, "--sweep-parallelism", "2"})
	require.NoError(t, err)

	// archivo
	assert.Equal(t, ":9000", c.HTTP.Addr)
	assert.Equal(t, DriverLevelDB, c.Storage.Driver)
	assert.Equal(t, "/var/lib/consent", c.Storage.LevelDBPath)
	assert.Equal(t, "debug", c.Log.Level)
	// entorno sobre archivo
	assert.Equal(t, 10*time.Second, c.Sweep.Interval)
	assert.Equal(t, "json", c.Log.Format)
	// flag sobre todo
	assert.Equal(t, 2, c.Sweep.Parallelism)
	// default intacto
	assert.Equal(t, 3, c.Grants.CASAttempts)
}

func TestLoad_ConfigFromEnvPointer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grants:\n  max_ttl: 720h\n"), 0o600))
	t.Setenv(EnvConfigFile, path)

	c, err := Load([]string{noDotenv(t)})
	require.NoError(t, err)
	assert.Equal(t, 720*time.Hour, c.Grants.MaxTTL)
}

func TestLoad_Dotenv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CONSENT_JWT_SECRET=from-dotenv\nCONSENT_DEV_AUTH=false\n"), 0o600))

	// godotenv no pisa lo exportado; se registran para que t.Setenv las limpie.
	t.Setenv("CONSENT_JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("CONSENT_JWT_SECRET"))
	t.Setenv("CONSENT_DEV_AUTH", "")
	require.NoError(t, os.Unsetenv("CONSENT_DEV_AUTH"))

	c, err := Load([]string{"--env-file", envFile})
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", c.Auth.JWTSecret)
	assert.False(t, c.Auth.DevMode)
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "unknown driver", args: []string{"--storage", "redis"}},
		{name: "postgres without dsn", args: []string{"--storage", "postgres"}},
		{name: "bad duration env", env: map[string]string{"CONSENT_MAX_TTL": "forever"}},
		{name: "bad int env", env: map[string]string{"CONSENT_CAS_ATTEMPTS": "three"}},
		{name: "zero parallelism", args: []string{"--sweep-parallelism", "0"}},
		{name: "no verifier", args: []string{"--dev-auth=false"}},
		{name: "missing config file", args: []string{"--config", "/nonexistent/consent.yaml"}},
		{name: "unknown flag", args: []string{"--nope"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(append([]string{noDotenv(t)}, tc.args...))
			assert.Error(t, err)
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	var c Config
	c.LoadDefaults()
	c.Storage.Driver = DriverLevelDB
	c.Storage.LevelDBPath = ""
	c.Sweep.Interval = 0

	err := c.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "leveldb_path")
	assert.Contains(t, err.Error(), "sweep.interval")
}

func TestLoad_IdentityRoles(t *testing.T) {
	t.Setenv("CONSENT_IDENTITY_ROLES", "doctor, system,")
	c, err := Load([]string{noDotenv(t)})
	require.NoError(t, err)
	assert.Equal(t, []string{"doctor", "system"}, c.Auth.RemoteRoles)

	c, err = Load([]string{noDotenv(t), "--identity-roles=patient"})
	require.NoError(t, err)
	assert.Equal(t, []string{"patient"}, c.Auth.RemoteRoles)

	_, err = Load([]string{noDotenv(t), "--identity-roles=root"})
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "remote_roles")
}
