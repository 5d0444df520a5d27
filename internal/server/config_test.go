package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"taskhub/internal/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG", "")
	t.Setenv("ENV", "local")
	t.Setenv("PORT", "8080")
	t.Setenv("STORAGE", "memory")
	t.Setenv("PASSWORD_HASHER", "bcrypt")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_STR", "")
	for _, k := range []string{"DB_USER", "DB_PASSWORD", "DB_HOST", "DB_PORT", "DB_NAME"} {
		t.Setenv(k, "")
	}
}

func TestReadConfig(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		args  []string
		check func(t *testing.T, cfg *Config)
		want  struct {
			err error
		}
	}{
		{
			name: "defaults in local env",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
				assert.Equal(t, localJWTSecret, cfg.JWTSecret)
				assert.Equal(t, 168*time.Hour, cfg.TokenTTL)
				assert.Equal(t, "token", cfg.CookieName)
				assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
				assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
			},
		},
		{
			name: "flags override environment",
			env:  map[string]string{"PORT": "9000", "STORAGE": "postgres"},
			args: []string{"-port", "9100", "-storage", "mongo", "-mongouri", "mongodb://db:27017"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9100, cfg.Port)
				assert.Equal(t, StorageMongo, cfg.Storage)
				assert.Equal(t, "mongodb://db:27017", cfg.MongoURI)
			},
		},
		{
			name: "dsn flag takes precedence over dbstr",
			args: []string{"-dbstr", "postgresql://a", "-dbdsn", "postgresql://b"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgresql://b", cfg.DBStr)
			},
		},
		{
			name: "connection string assembled from parts",
			env: map[string]string{
				"DB_USER": "u", "DB_PASSWORD": "p", "DB_HOST": "h", "DB_PORT": "5433", "DB_NAME": "n",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgresql://u:p@h:5433/n?sslmode=disable", cfg.DBStr)
			},
		},
		{
			name: "comma separated origins",
			env:  map[string]string{"CORS_ORIGINS": "http://a.test,http://b.test"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
			},
		},
		{
			name: "prod requires a secret",
			env:  map[string]string{"ENV": "prod"},
			want: struct{ err error }{err: errors.ErrConfigInvalid},
		},
		{
			name: "unknown storage",
			args: []string{"-storage", "sqlite"},
			want: struct{ err error }{err: errors.ErrConfigInvalid},
		},
		{
			name: "unknown hasher",
			env:  map[string]string{"PASSWORD_HASHER": "md5"},
			want: struct{ err error }{err: errors.ErrConfigInvalid},
		},
		{
			name: "missing config file",
			args: []string{"-c", "/nonexistent/taskhub.yaml"},
			want: struct{ err error }{err: errors.ErrConfigFileReadFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := ReadConfig(tt.args)
			if tt.want.err != nil {
				assert.ErrorIs(t, err, tt.want.err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestReadConfigFile(t *testing.T) {
	setBaseEnv(t)
	os.Unsetenv("PORT")
	os.Unsetenv("STORAGE")

	path := filepath.Join(t.TempDir(), "taskhub.yaml")
	content := "env: dev\nport: 7070\nstorage: memory\njwtSecret: from-file\ncorsOrigins:\n  - http://app.test\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("ENV", "dev")
	t.Setenv("JWT_SECRET", "from-file")

	cfg, err := ReadConfig([]string{"-c", path})
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, []string{"http://app.test"}, cfg.CORSOrigins)
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Env: "dev", Port: 8080, Storage: StorageMemory, PasswordHasher: "argon2id", JWTSecret: "s"}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   bool
	}{
		{name: "valid", mutate: func(*Config) {}, want: true},
		{name: "port zero", mutate: func(c *Config) { c.Port = 0 }},
		{name: "port too large", mutate: func(c *Config) { c.Port = 70000 }},
		{name: "unknown env", mutate: func(c *Config) { c.Env = "staging" }},
		{name: "empty secret", mutate: func(c *Config) { c.JWTSecret = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.want {
				require.NoError(t, err)
				assert.Equal(t, "token", c.CookieName)
				return
			}
			assert.ErrorIs(t, err, errors.ErrConfigInvalid)
		})
	}
}
