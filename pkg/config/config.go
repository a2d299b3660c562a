package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// EnvPresets is the environment variable that may carry a JSON preset
// blob overriding the radio section of the config file. Deployments that
// quote the blob with single quotes (docker-compose, systemd drop-ins)
// are accepted; see normalizeJSON.
const EnvPresets = "RADIOD_PRESETS"

// Preset is a named frequency with optional per-preset squelch and gain.
type Preset struct {
	MHz     float64  `yaml:"mhz" json:"mhz"`
	Squelch *float64 `yaml:"squelch,omitempty" json:"squelch,omitempty"`
	Gain    *float64 `yaml:"gain,omitempty" json:"gain,omitempty"`
}

// FrequencyHz returns the preset frequency in Hz, rounded to the
// nearest Hz so values like 128.0005 do not truncate a hertz low.
func (p Preset) FrequencyHz() int64 {
	return int64(math.Round(p.MHz * 1e6))
}

// Config represents the radiod configuration.
type Config struct {
	Radio struct {
		Mode           string            `yaml:"mode" json:"mode"`
		DefaultSquelch float64           `yaml:"default_squelch" json:"default_squelch"`
		DefaultGain    *float64          `yaml:"default_gain" json:"default_gain"`
		NFMDeviationHz int               `yaml:"nfm_deviation_hz" json:"nfm_deviation_hz"`
		PPM            int               `yaml:"ppm" json:"ppm"`
		Presets        map[string]Preset `yaml:"presets" json:"presets"`
	} `yaml:"radio" json:"radio"`

	Device struct {
		Index       int     `yaml:"index"`
		SampleRate  int     `yaml:"sample_rate"`
		BandwidthHz int     `yaml:"bandwidth_hz"`
		MinHz       int64   `yaml:"min_hz"`
		MaxHz       int64   `yaml:"max_hz"`
		MinGainDB   float64 `yaml:"min_gain_db"`
		MaxGainDB   float64 `yaml:"max_gain_db"`
	} `yaml:"device"`

	Tuner struct {
		SettleMs        int `yaml:"settle_ms"`
		FinalSettleMs   int `yaml:"final_settle_ms"`
		JitterUpHz      int `yaml:"jitter_up_hz"`
		JitterDownHz    int `yaml:"jitter_down_hz"`
		LockToleranceHz int `yaml:"lock_tolerance_hz"`
		LockRetries     int `yaml:"lock_retries"`
		RetryDelayMs    int `yaml:"retry_delay_ms"`
	} `yaml:"tuner"`

	Audio struct {
		SampleRate int `yaml:"sample_rate"`
		BlockSize  int `yaml:"block_size"`
		PrimingMs  int `yaml:"priming_ms"`
	} `yaml:"audio"`

	Web struct {
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
	} `yaml:"web"`

	API struct {
		UnixSocket string `yaml:"unix_socket"`
	} `yaml:"api"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
		MaxEvents    int    `yaml:"max_events"`
	} `yaml:"storage"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		Console    bool   `yaml:"console"`
		Structured bool   `yaml:"structured"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
}

// Default returns the built-in configuration matching the deployed
// station: NFM public-safety monitoring with the stock preset bank.
func Default() *Config {
	cfg := &Config{}
	cfg.Radio.Mode = "nfm"
	cfg.Radio.DefaultSquelch = 0.02
	cfg.Radio.NFMDeviationHz = 2500
	cfg.Radio.Presets = map[string]Preset{
		"navfire": {MHz: 154.1075},
		"navmed":  {MHz: 154.2350},
		"fg1":     {MHz: 155.4000},
		"fg2":     {MHz: 155.2950},
		"so1":     {MHz: 155.1000},
	}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig loads configuration from a YAML file. A missing or
// malformed file is an error; the caller decides whether that is fatal.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// ApplyEnvPresets merges a preset blob from the environment into cfg.
// Malformed blobs are reported but never fatal: the existing config
// stands. Returns true when the environment supplied anything.
func (c *Config) ApplyEnvPresets() (bool, error) {
	raw := os.Getenv(EnvPresets)
	if raw == "" {
		return false, nil
	}

	var env struct {
		Mode           string            `json:"mode"`
		DefaultSquelch *float64          `json:"default_squelch"`
		DefaultGain    *float64          `json:"default_gain"`
		NFMDeviationHz int               `json:"nfm_deviation_hz"`
		PPM            int               `json:"ppm"`
		Presets        map[string]Preset `json:"presets"`
	}
	if err := json.Unmarshal([]byte(normalizeJSON(raw)), &env); err != nil {
		return true, fmt.Errorf("failed to parse %s: %w", EnvPresets, err)
	}

	if env.Mode != "" {
		c.Radio.Mode = env.Mode
	}
	if env.DefaultSquelch != nil {
		c.Radio.DefaultSquelch = *env.DefaultSquelch
	}
	if env.DefaultGain != nil {
		c.Radio.DefaultGain = env.DefaultGain
	}
	if env.NFMDeviationHz > 0 {
		c.Radio.NFMDeviationHz = env.NFMDeviationHz
	}
	if env.PPM != 0 {
		c.Radio.PPM = env.PPM
	}
	if len(env.Presets) > 0 {
		c.Radio.Presets = env.Presets
	}
	return true, nil
}

// normalizeJSON rewrites single-quoted pseudo-JSON into valid JSON when
// the blob is predominantly single-quoted. Blobs that already look like
// JSON pass through untouched.
func normalizeJSON(raw string) string {
	if strings.Count(raw, "'") > strings.Count(raw, `"`) {
		return strings.ReplaceAll(raw, "'", `"`)
	}
	return raw
}

func applyDefaults(cfg *Config) {
	if cfg.Radio.Mode == "" {
		cfg.Radio.Mode = "nfm"
	}
	cfg.Radio.Mode = strings.ToLower(cfg.Radio.Mode)
	if cfg.Radio.NFMDeviationHz == 0 {
		cfg.Radio.NFMDeviationHz = 2500
	}
	if cfg.Radio.Presets == nil {
		cfg.Radio.Presets = map[string]Preset{}
	}
	if cfg.Device.SampleRate == 0 {
		cfg.Device.SampleRate = 2048000
	}
	if cfg.Device.BandwidthHz == 0 {
		cfg.Device.BandwidthHz = 1200000
	}
	if cfg.Device.MinHz == 0 {
		cfg.Device.MinHz = 24000000
	}
	if cfg.Device.MaxHz == 0 {
		cfg.Device.MaxHz = 1766000000
	}
	if cfg.Device.MinGainDB == 0 && cfg.Device.MaxGainDB == 0 {
		cfg.Device.MinGainDB = 0.0
		cfg.Device.MaxGainDB = 49.6
	}
	if cfg.Tuner.SettleMs == 0 {
		cfg.Tuner.SettleMs = 60
	}
	if cfg.Tuner.FinalSettleMs == 0 {
		cfg.Tuner.FinalSettleMs = 120
	}
	if cfg.Tuner.JitterUpHz == 0 {
		cfg.Tuner.JitterUpHz = 50000
	}
	if cfg.Tuner.JitterDownHz == 0 {
		cfg.Tuner.JitterDownHz = 25000
	}
	if cfg.Tuner.LockToleranceHz == 0 {
		cfg.Tuner.LockToleranceHz = 3000
	}
	if cfg.Tuner.LockRetries == 0 {
		cfg.Tuner.LockRetries = 3
	}
	if cfg.Tuner.RetryDelayMs == 0 {
		cfg.Tuner.RetryDelayMs = 80
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 48000
	}
	if cfg.Audio.BlockSize == 0 {
		cfg.Audio.BlockSize = 960 // 20ms at 48kHz
	}
	if cfg.Audio.PrimingMs == 0 {
		cfg.Audio.PrimingMs = 60
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Web.BindAddress == "" {
		cfg.Web.BindAddress = "0.0.0.0"
	}
	if cfg.API.UnixSocket == "" {
		cfg.API.UnixSocket = "/tmp/radiod.sock"
	}
	if cfg.Storage.MaxEvents == 0 {
		cfg.Storage.MaxEvents = 10000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSize == 0 {
		cfg.Logging.MaxSize = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAge == 0 {
		cfg.Logging.MaxAge = 30
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Radio.Mode {
	case "nfm", "wfm":
	default:
		return fmt.Errorf("radio mode must be nfm or wfm, got %q", c.Radio.Mode)
	}
	if c.Radio.DefaultSquelch < 0 {
		return fmt.Errorf("default squelch must be >= 0, got %f", c.Radio.DefaultSquelch)
	}
	if c.Radio.NFMDeviationHz <= 0 {
		return fmt.Errorf("nfm deviation must be > 0, got %d", c.Radio.NFMDeviationHz)
	}
	if c.Device.MinHz >= c.Device.MaxHz {
		return fmt.Errorf("device tunable range is empty: min %d >= max %d", c.Device.MinHz, c.Device.MaxHz)
	}
	for name, p := range c.Radio.Presets {
		if name == "" {
			return fmt.Errorf("preset with empty name")
		}
		hz := p.FrequencyHz()
		if hz < c.Device.MinHz || hz > c.Device.MaxHz {
			return fmt.Errorf("preset %q frequency %.4f MHz outside tunable range", name, p.MHz)
		}
		if p.Squelch != nil && *p.Squelch < 0 {
			return fmt.Errorf("preset %q squelch must be >= 0", name)
		}
	}
	return nil
}

// DefaultGainDB returns the configured default RF gain, or the moderate
// bring-up gain used when the operator has not picked one.
func (c *Config) DefaultGainDB() float64 {
	if c.Radio.DefaultGain != nil {
		return *c.Radio.DefaultGain
	}
	return 29.7
}

// PresetNames returns the preset names in no particular order.
func (c *Config) PresetNames() []string {
	names := make([]string, 0, len(c.Radio.Presets))
	for name := range c.Radio.Presets {
		names = append(names, name)
	}
	return names
}
