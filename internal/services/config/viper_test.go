package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gabrielcapilla/sdrtune/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestViperConfigService_WritesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yml")

	cfg, err := NewViperConfigService(path).Load()
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "A missing config file is created")

	require.Equal(t, "sidecar", cfg.Backend.Mode)
	require.Equal(t, 3*time.Second, cfg.Backend.StopTimeout)
	require.Equal(t, []string{"rtl_test", "-t"}, cfg.Devices.ProbeCommand)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, 10*time.Second, cfg.StatsInterval)
	require.Equal(t, domain.DefaultTuning(domain.KindAM), cfg.Tuning["am"])
	require.Empty(t, cfg.Remote.Listen)
}

func TestViperConfigService_FileAndEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `
backend:
  mode: sim
  commands:
    fm: ["rtl_fm", "-f", "{freq_hz}"]
devices:
  static:
    - serial: "00000001"
      label: Kitchen dongle
remote:
  listen: ":8080"
tuning:
  fm:
    volume: 0.9
    gain: 30
    sampleRate: 170000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("SDRTUNE_LOG_LEVEL", "debug")

	cfg, err := NewViperConfigService(path).Load()
	require.NoError(t, err)

	require.Equal(t, "sim", cfg.Backend.Mode)
	require.Equal(t, []string{"rtl_fm", "-f", "{freq_hz}"}, cfg.Backend.Commands["fm"])
	require.Equal(t, []domain.DeviceConfig{{Serial: "00000001", Label: "Kitchen dongle"}}, cfg.Devices.Static)
	require.Equal(t, ":8080", cfg.Remote.Listen)
	require.Equal(t, domain.TuningParams{Volume: 0.9, Gain: 30, SampleRate: 170000}, cfg.Tuning["fm"])
	require.Equal(t, "debug", cfg.Log.Level, "Environment overrides the file")
}
