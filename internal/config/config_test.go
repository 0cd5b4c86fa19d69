package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api", cfg.APIBaseURL)
	assert.Equal(t, "http://localhost:9080/realms/sharkbox", cfg.OIDCAuthority)
	assert.Equal(t, "sharkbox-client", cfg.OIDCClientID)
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, 5, cfg.UI.Lookahead)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `api_base_url: https://forum.example.com/api
page_size: 50
timeout: 5s
ui:
  theme: light
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv(EnvPageSize, "25")
	t.Setenv(EnvOIDCClientID, "cli")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://forum.example.com/api", cfg.APIBaseURL)
	assert.Equal(t, 25, cfg.PageSize, "environment wins over file")
	assert.Equal(t, "cli", cfg.OIDCClientID)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "light", cfg.UI.Theme)
	assert.Equal(t, 5, cfg.UI.Lookahead, "unset keys keep defaults")
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"broken yaml":   "api_base_url: [",
		"relative url":  "api_base_url: /api",
		"zero pagesize": "page_size: 0",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestApplyEnvBadPageSize(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(func(k string) string {
		if k == EnvPageSize {
			return "twenty"
		}
		return ""
	})
	assert.ErrorContains(t, err, EnvPageSize)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.APIBaseURL = "https://sharkbox.dev/api"
	cfg.Timeout = 12 * time.Second

	require.NoError(t, cfg.Save(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.APIBaseURL, loaded.APIBaseURL)
	assert.Equal(t, cfg.Timeout, loaded.Timeout)
}

func TestDataPaths(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/sb"}
	assert.Equal(t, "/tmp/sb/session.json", cfg.SessionPath())
	assert.Equal(t, "/tmp/sb/sharkbox.db", cfg.DBPath())
	assert.Equal(t, "/tmp/sb/events.jsonl", cfg.EventsPath())
}
