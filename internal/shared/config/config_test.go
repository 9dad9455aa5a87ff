package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir switches the working directory for the duration of one test so Load
// picks up (or misses) a config file deterministically.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoad(t *testing.T) {
	t.Run("Defaults apply without a config file", func(t *testing.T) {
		chdir(t, t.TempDir())

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.Server.Address)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, "IMAGEN_3_5", cfg.Probe.ImageModel)
		assert.Equal(t, "VEO_2_0", cfg.Probe.VideoModel)
		assert.Equal(t, "LANDSCAPE", cfg.Probe.CropAspectRatio)
		assert.Equal(t, 5*time.Second, cfg.Probe.PollInterval)
		assert.Equal(t, 120, cfg.Probe.MaxPollAttempts)
		assert.Equal(t, uint32(5), cfg.Health.FailureThreshold)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Empty(t, cfg.Fleet)
	})

	t.Run("Reads the fleet from a config file", func(t *testing.T) {
		dir := t.TempDir()
		data := `
server:
  address: ":9090"
fleet:
  - id: prod
    name: Production
    base_url: https://prod.example.com
  - id: staging
    base_url: https://staging.example.com
probe:
  max_poll_attempts: 10
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(data), 0644))
		chdir(t, dir)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, ":9090", cfg.Server.Address)
		require.Len(t, cfg.Fleet, 2)
		assert.Equal(t, "prod", cfg.Fleet[0].ID)
		assert.Equal(t, "Production", cfg.Fleet[0].Name)
		assert.Equal(t, "https://prod.example.com", cfg.Fleet[0].BaseURL)
		assert.Equal(t, 10, cfg.Probe.MaxPollAttempts)
		assert.Equal(t, 5*time.Second, cfg.Probe.PollInterval, "unset keys keep defaults")
	})

	t.Run("Auth token comes only from the environment", func(t *testing.T) {
		dir := t.TempDir()
		// A token in the file must be ignored.
		data := "authtoken: from-file\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(data), 0644))
		chdir(t, dir)
		t.Setenv("MEDIAPROBE_AUTH_TOKEN", "from-env")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.AuthToken)
	})

	t.Run("Missing auth token leaves the field empty", func(t *testing.T) {
		chdir(t, t.TempDir())
		t.Setenv("MEDIAPROBE_AUTH_TOKEN", "")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Empty(t, cfg.AuthToken)
	})

	t.Run("Malformed yaml is an error", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: ["), 0644))
		chdir(t, dir)

		_, err := Load()
		assert.Error(t, err)
	})
}
