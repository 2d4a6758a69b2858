package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable pointing at an optional config file.
const FileEnv = "CLIPCHAIN_CONFIG"

// IndexFileName is the chain index file created inside the clip directory
// when no index path is configured.
const IndexFileName = ".chain.db"

// Config holds all runtime configuration. Values come from defaults, then an
// optional TOML or YAML file, then environment variables.
type Config struct {
	// Storage
	ClipDir         string `toml:"clip_dir" yaml:"clip_dir"`
	IndexPath       string `toml:"index_path" yaml:"index_path"`
	RequireMetadata bool   `toml:"require_metadata" yaml:"require_metadata"`

	// Server
	Port        int    `toml:"port" yaml:"port"`
	MaxUploadMB int    `toml:"max_upload_mb" yaml:"max_upload_mb"`
	STUNServer  string `toml:"stun_server" yaml:"stun_server"` // empty for host candidates only

	// Live monitoring
	MonitorBuffer  int `toml:"monitor_buffer" yaml:"monitor_buffer"`   // peaks buffered per listener
	WaveformHeight int `toml:"waveform_height" yaml:"waveform_height"` // pixels

	// Logging
	LogLevel  string `toml:"log_level" yaml:"log_level"`
	LogFormat string `toml:"log_format" yaml:"log_format"` // auto, text, json
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ClipDir:         "/home/node/audio",
		RequireMetadata: true,
		Port:            3000,
		MaxUploadMB:     32,
		MonitorBuffer:   256,
		WaveformHeight:  100,
		LogLevel:        "info",
		LogFormat:       "auto",
	}
}

// Load builds the configuration. path names a TOML or YAML file; when empty
// the file named by CLIPCHAIN_CONFIG is used, if any.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()
	if cfg.IndexPath == "" {
		cfg.IndexPath = filepath.Join(cfg.ClipDir, IndexFileName)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode TOML %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode YAML %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported extension (want .toml, .yaml or .yml)", path)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ClipDir = envStr("CLIPCHAIN_CLIP_DIR", c.ClipDir)
	c.IndexPath = envStr("CLIPCHAIN_INDEX_PATH", c.IndexPath)
	c.RequireMetadata = envBool("CLIPCHAIN_REQUIRE_METADATA", c.RequireMetadata)

	c.Port = envInt("CLIPCHAIN_PORT", c.Port)
	c.MaxUploadMB = envInt("CLIPCHAIN_MAX_UPLOAD_MB", c.MaxUploadMB)
	c.STUNServer = envStr("CLIPCHAIN_STUN_SERVER", c.STUNServer)

	c.MonitorBuffer = envInt("CLIPCHAIN_MONITOR_BUFFER", c.MonitorBuffer)
	c.WaveformHeight = envInt("CLIPCHAIN_WAVEFORM_HEIGHT", c.WaveformHeight)

	c.LogLevel = envStr("CLIPCHAIN_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("CLIPCHAIN_LOG_FORMAT", c.LogFormat)
}

// Validate reports settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ClipDir) == "" {
		errs = append(errs, errors.New("clip_dir is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.MaxUploadMB < 1 {
		errs = append(errs, fmt.Errorf("max_upload_mb must be positive, got %d", c.MaxUploadMB))
	}
	if c.MonitorBuffer < 1 {
		errs = append(errs, fmt.Errorf("monitor_buffer must be positive, got %d", c.MonitorBuffer))
	}
	if c.WaveformHeight < 2 {
		errs = append(errs, fmt.Errorf("waveform_height must be at least 2, got %d", c.WaveformHeight))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
