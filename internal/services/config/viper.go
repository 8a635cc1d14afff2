package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/logger"
	"github.com/gabrielcapilla/sdrtune/internal/ports"

	"github.com/spf13/viper"
)

var _ ports.ConfigService = (*ViperConfigService)(nil)

const envPrefix = "SDRTUNE"

type ViperConfigService struct {
	v    *viper.Viper
	file string
}

// NewViperConfigService reads config.yml from the user config dir or the
// working directory, or from file when it is set.
func NewViperConfigService(file string) *ViperConfigService {
	v := viper.New()

	appDir := ""
	configDir, err := os.UserConfigDir()
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Could not find user config directory, using current directory")
	}

	if configDir != "" {
		appDir = filepath.Join(configDir, "sdrtune")
		if err := os.MkdirAll(appDir, 0755); err != nil {
			logger.Log.Error().Err(err).Msg("Could not create sdrtune config directory")
			appDir = ""
		} else {
			v.AddConfigPath(appDir)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, appDir)
	return &ViperConfigService{v: v, file: file}
}

func setDefaults(v *viper.Viper, appDir string) {
	v.SetDefault("backend.mode", "sidecar")
	v.SetDefault("backend.commands", map[string][]string{})
	v.SetDefault("backend.stopTimeout", "3s")
	v.SetDefault("backend.simDelay", "300ms")

	v.SetDefault("devices.static", []map[string]string{})
	v.SetDefault("devices.probeCommand", []string{"rtl_test", "-t"})
	v.SetDefault("devices.refreshEvery", "0s")

	v.SetDefault("storage.path", filepath.Join(appDir, "sdrtune.db"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")

	v.SetDefault("remote.listen", "")
	v.SetDefault("remote.corsOrigins", []string{"*"})

	tuning := map[string]any{}
	for _, k := range domain.Kinds {
		p := domain.DefaultTuning(k)
		tuning[k.String()] = map[string]any{
			"volume":     p.Volume,
			"gain":       p.Gain,
			"sampleRate": p.SampleRate,
		}
	}
	v.SetDefault("tuning", tuning)
	v.SetDefault("statsInterval", "10s")
}

func (s *ViperConfigService) Load() (domain.Config, error) {
	var cfg domain.Config

	if err := s.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &configFileNotFoundError):
			logger.Log.Info().Msg("Config file not found, creating with default values.")
			if err := s.v.SafeWriteConfig(); err != nil {
				return cfg, err
			}
		case s.file != "" && errors.Is(err, fs.ErrNotExist):
			logger.Log.Info().Str("path", s.file).Msg("Config file not found, creating with default values.")
			if err := s.v.SafeWriteConfigAs(s.file); err != nil {
				return cfg, err
			}
		default:
			return cfg, err
		}
	}

	if err := s.v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// ConfigFile is the file the configuration was read from or written to.
func (s *ViperConfigService) ConfigFile() string {
	return s.v.ConfigFileUsed()
}
