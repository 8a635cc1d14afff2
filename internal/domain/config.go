package domain

import "time"

type Config struct {
	Backend       BackendConfig           `mapstructure:"backend"`
	Devices       DevicesConfig           `mapstructure:"devices"`
	Storage       StorageConfig           `mapstructure:"storage"`
	Log           LogConfig               `mapstructure:"log"`
	Remote        RemoteConfig            `mapstructure:"remote"`
	Tuning        map[string]TuningParams `mapstructure:"tuning"`
	StatsInterval time.Duration           `mapstructure:"statsInterval"`
}

type BackendConfig struct {
	Mode        string              `mapstructure:"mode"`
	Commands    map[string][]string `mapstructure:"commands"`
	StopTimeout time.Duration       `mapstructure:"stopTimeout"`
	SimDelay    time.Duration       `mapstructure:"simDelay"`
}

type DevicesConfig struct {
	Static       []DeviceConfig `mapstructure:"static"`
	ProbeCommand []string       `mapstructure:"probeCommand"`
	RefreshEvery time.Duration  `mapstructure:"refreshEvery"`
}

type DeviceConfig struct {
	Serial string `mapstructure:"serial"`
	Label  string `mapstructure:"label"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

type RemoteConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"corsOrigins"`
}

// TuningParams accompany a start command. Volume is 0..1, Gain in dB and
// SampleRate in Hz.
type TuningParams struct {
	Volume     float64 `mapstructure:"volume" json:"volume"`
	Gain       float64 `mapstructure:"gain" json:"gain"`
	SampleRate float64 `mapstructure:"sampleRate" json:"sampleRate"`
}

func DefaultTuning(k Kind) TuningParams {
	switch k {
	case KindAM:
		return TuningParams{Volume: 0.5, Gain: 0, SampleRate: 48000}
	case KindADSB:
		return TuningParams{Volume: 0, Gain: 0, SampleRate: 2e6}
	default:
		return TuningParams{Volume: 0.5, Gain: 12, SampleRate: 48000}
	}
}
