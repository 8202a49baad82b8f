package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbeam-ai/sitegate/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name               string
		configContent      string
		expectedListenAddr string
		expectedContact    config.RateRule
		expectError        bool
	}{
		{
			name: "full config",
			configContent: `
server:
  listenAddress: ":9090"
rateLimit:
  contact:
    windowMs: 1000
    maxRequests: 2
auth:
  jwtSecret: "0123456789abcdef0123456789abcdef"
`,
			expectedListenAddr: ":9090",
			expectedContact:    config.RateRule{WindowMS: 1000, MaxRequests: 2},
		},
		{
			name:               "empty config falls back to defaults",
			configContent:      ``,
			expectedListenAddr: ":8080",
			expectedContact:    config.RateRule{WindowMS: time.Hour.Milliseconds(), MaxRequests: 5},
		},
		{
			name:          "invalid YAML",
			configContent: `invalid: yaml: content [`,
			expectError:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, tt.configContent))
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedListenAddr, cfg.Server.ListenAddress)
			assert.Equal(t, tt.expectedContact, cfg.RateLimit.Contact)
		})
	}
}

func TestLoadMissingFiles(t *testing.T) {
	t.Run("explicit path must exist", func(t *testing.T) {
		_, err := config.Load("/nonexistent/path/config.yaml")
		require.Error(t, err)
	})

	t.Run("env path must exist", func(t *testing.T) {
		t.Setenv(config.ConfigPathEnv, "/nonexistent/path/config.yaml")
		_, err := config.Load()
		require.Error(t, err)
	})

	t.Run("missing default file is fine", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.RateLimit.API.MaxRequests)
	})

	t.Run("env path is used", func(t *testing.T) {
		t.Setenv(config.ConfigPathEnv, writeConfig(t, "server:\n  listenAddress: \":7000\"\n"))
		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, ":7000", cfg.Server.ListenAddress)
	})
}

func TestDefaults(t *testing.T) {
	var cfg config.Config
	cfg.Defaults()

	assert.Equal(t, config.RateRule{WindowMS: 15 * 60 * 1000, MaxRequests: 100}, cfg.RateLimit.API)
	assert.Equal(t, config.RateRule{WindowMS: 60 * 60 * 1000, MaxRequests: 5}, cfg.RateLimit.Contact)
	assert.Equal(t, config.RateRule{WindowMS: 15 * 60 * 1000, MaxRequests: 200}, cfg.RateLimit.Admin)
	assert.Equal(t, config.RateRule{WindowMS: 15 * 60 * 1000, MaxRequests: 50}, cfg.RateLimit.Login)
	assert.Equal(t, 10, cfg.Security.SuspicionThreshold)
	assert.True(t, cfg.Security.ProbesEscalate())
	assert.True(t, cfg.Auth.SecureCookie())
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "none", cfg.Telemetry.Exporter)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.API.Window())
}

func TestDefaultsPickPostgresWhenURLSet(t *testing.T) {
	cfg := config.Config{Database: config.Database{URL: "postgres://localhost/site"}}
	cfg.Defaults()
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func envMap(m map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	t.Run("overrides rate limits and credentials", func(t *testing.T) {
		var cfg config.Config
		err := config.ApplyEnv(&cfg, envMap(map[string]string{
			"RATE_LIMIT_CONTACT_WINDOW_MS":    "1000",
			"RATE_LIMIT_CONTACT_MAX_REQUESTS": "2",
			"RATE_LIMIT_LOGIN_MAX_REQUESTS":   " 7 ",
			"SITEGATE_JWT_SECRET":             "secret",
			"ADMIN_USERNAME":                  "admin",
			"ADMIN_PASSWORD_HASH":             "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
			"ADMIN_EMAIL":                     "admin@example.com",
			"SMTP_PORT":                       "2525",
			"REDIS_URL":                       "redis://localhost:6379/0",
			"AUDIT_WEBHOOK_SECRET":            "hook-secret",
		}))
		require.NoError(t, err)
		assert.Equal(t, config.RateRule{WindowMS: 1000, MaxRequests: 2}, cfg.RateLimit.Contact)
		assert.Equal(t, 7, cfg.RateLimit.Login.MaxRequests)
		assert.Equal(t, "secret", cfg.Auth.JWTSecret)
		require.Len(t, cfg.Auth.Admins, 1)
		assert.Equal(t, "admin@example.com", cfg.Auth.Admins[0].Email)
		assert.Equal(t, 2525, cfg.Mail.Port)
		assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
		assert.Equal(t, "hook-secret", cfg.Audit.Webhook.Secret)
	})

	t.Run("admin override replaces account with same username", func(t *testing.T) {
		cfg := config.Config{Auth: config.Auth{Admins: []config.AdminAccount{{Username: "admin", PasswordHash: "old"}}}}
		require.NoError(t, config.ApplyEnv(&cfg, envMap(map[string]string{
			"ADMIN_USERNAME":      "admin",
			"ADMIN_PASSWORD_HASH": "new",
		})))
		require.Len(t, cfg.Auth.Admins, 1)
		assert.Equal(t, "new", cfg.Auth.Admins[0].PasswordHash)
	})

	for _, tc := range []struct{ key, value string }{
		{"RATE_LIMIT_API_WINDOW_MS", "fast"},
		{"RATE_LIMIT_API_WINDOW_MS", "-5"},
		{"RATE_LIMIT_ADMIN_MAX_REQUESTS", "1.5"},
		{"RATE_LIMIT_CONTACT_MAX_REQUESTS", "0"},
		{"SMTP_PORT", "70000"},
	} {
		t.Run("rejects "+tc.key+"="+tc.value, func(t *testing.T) {
			var cfg config.Config
			err := config.ApplyEnv(&cfg, envMap(map[string]string{tc.key: tc.value}))
			require.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestLoadAppliesEnvironment(t *testing.T) {
	t.Setenv("RATE_LIMIT_API_MAX_REQUESTS", "3")
	cfg, err := config.Load(writeConfig(t, "rateLimit:\n  api:\n    maxRequests: 50\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.RateLimit.API.MaxRequests)

	t.Setenv("RATE_LIMIT_API_MAX_REQUESTS", "many")
	_, err = config.Load(writeConfig(t, ""))
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SITEGATE_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("SITEGATE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("SITEGATE_TEST_DOTENV"))

	require.NoError(t, config.LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("SITEGATE_TEST_DOTENV"))

	require.NoError(t, config.LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func validConfig() config.Config {
	cfg := config.Config{Auth: config.Auth{JWTSecret: "0123456789abcdef0123456789abcdef"}}
	cfg.Defaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*config.Config) {}},
		{name: "short secret", mutate: func(c *config.Config) { c.Auth.JWTSecret = "short" }, wantErr: true},
		{name: "plaintext admin password", mutate: func(c *config.Config) {
			c.Auth.Admins = []config.AdminAccount{{Username: "admin", PasswordHash: "hunter2"}}
		}, wantErr: true},
		{name: "postgres without url", mutate: func(c *config.Config) { c.Database.Driver = "postgres" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *config.Config) { c.Database.Driver = "mongo" }, wantErr: true},
		{name: "unknown exporter", mutate: func(c *config.Config) { c.Telemetry.Exporter = "jaeger" }, wantErr: true},
		{name: "mail without inbox", mutate: func(c *config.Config) { c.Mail.Host = "smtp.example.com" }, wantErr: true},
		{name: "kafka without topic", mutate: func(c *config.Config) { c.Audit.Kafka.Brokers = []string{"localhost:9092"} }, wantErr: true},
		{name: "unknown forward severity", mutate: func(c *config.Config) { c.Audit.ForwardSeverity = "loud" }, wantErr: true},
		{name: "bad duration", mutate: func(c *config.Config) { c.Auth.TokenTTL = "forever" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, config.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty string returns default", "", 30 * time.Second},
		{"valid duration string", "45s", 45 * time.Second},
		{"valid duration in hours", "1h", time.Hour},
		{"invalid duration returns default", "not-a-duration", 30 * time.Second},
		{"negative duration returns default", "-5s", 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, config.ParseDurationOrDefault(tt.value, 30*time.Second))
		})
	}
}
