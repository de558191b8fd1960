package app

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/facilitydesk/testing"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", "")
	t.Setenv("BACKEND_BASE_URL", "https://pms.example.test/api")
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")
	t.Setenv("APP_ENV", "development")
	t.Chdir(t.TempDir())
}

func TestLoadConfigDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 15, cfg.ListPageSize)
	require.Equal(t, 1, cfg.BackendRetries)
	require.Equal(t, 15*time.Second, cfg.BackendTimeout)
	require.False(t, cfg.SelectionRetain)
	require.Equal(t, "en-IN", cfg.Locale)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SESSION_SECRET", "")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "session secret")

	cfg, err := LoadToolConfig()
	require.NoError(t, err, "tools hold no sessions")
	require.Equal(t, "https://pms.example.test/api", cfg.BackendBaseURL)
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "facilitydesk.env")
	require.NoError(t, os.WriteFile(path, []byte("LIST_PAGE_SIZE=25\nSELECTION_RETAIN=true\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	for _, key := range []string{"LIST_PAGE_SIZE", "SELECTION_RETAIN"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 25, cfg.ListPageSize)
	require.True(t, cfg.SelectionRetain)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := Config{
		BackendBaseURL:  "http://pms.local",
		ListPageSize:    15,
		BackendRetries:  1,
		BulkConcurrency: 4,
		SessionSecret:   "s",
		CSRFSecret:      "c",
	}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"backend base url": func(c *Config) { c.BackendBaseURL = "pms.local/api" },
		"list page size":   func(c *Config) { c.ListPageSize = 0 },
		"backend retries":  func(c *Config) { c.BackendRetries = 4 },
		"bulk concurrency": func(c *Config) { c.BulkConcurrency = 0 },
		"csrf secret":      func(c *Config) { c.CSRFSecret = "" },
		"backend token":    func(c *Config) { c.AppEnv = "production" },
	}
	for want, mutate := range cases {
		t.Run(want, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), want)
		})
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := Config{TimeZone: "Asia/Kolkata", CORSAllowedOrigins: []string{" https://a.test ", "", "https://b.test"}}
	require.Equal(t, "Asia/Kolkata", cfg.Location().String())
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.AllowedOrigins())

	cfg.TimeZone = "Mars/Olympus"
	require.Equal(t, time.UTC, cfg.Location())
}

func TestLoggerHonoursLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogLevel: "warn", LogFormat: "json", AppEnv: "test"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("view", "assets"))

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"msg":"shown"`)
	require.Contains(t, out, `"env":"test"`)
	require.Equal(t, 1, strings.Count(out, "\n"))
}

func TestTestModeGuard(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())
}
