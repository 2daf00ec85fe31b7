// Package config provides configuration management for the Heimdex analyzer.
// Configuration is loaded from environment variables with sensible defaults.
// A .env file in the working directory is honoured but never overrides
// variables already present in the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 8790
	DefaultLogLevel = "info"
	DefaultDataDir  = ".heimdex-analyzer"

	DefaultMaxUploadBytes  = 100 * 1024 * 1024 // 100MB
	DefaultRequestTimeout  = 300               // seconds
	DefaultFrameFanout     = 4
	DefaultModelsTimeout   = 120  // seconds
	DefaultScratchSweepAge = 3600 // seconds

	DefaultFFmpeg    = "ffmpeg"
	DefaultFFprobe   = "ffprobe"
	DefaultTesseract = "tesseract"

	// Environment variable names
	EnvHost           = "HEIMDEX_HOST"
	EnvPort           = "HEIMDEX_PORT"
	EnvLogLevel       = "HEIMDEX_LOG_LEVEL"
	EnvDataDir        = "HEIMDEX_DATA_DIR"
	EnvScratchDir     = "HEIMDEX_SCRATCH_DIR"
	EnvMaxUploadBytes = "HEIMDEX_MAX_UPLOAD_BYTES"
	EnvRequestTimeout = "HEIMDEX_REQUEST_TIMEOUT"
	EnvFrameFanout    = "HEIMDEX_FRAME_FANOUT"
	EnvSweepAge       = "HEIMDEX_SCRATCH_SWEEP_AGE"

	// Media tooling
	EnvFFmpeg    = "HEIMDEX_FFMPEG"
	EnvFFprobe   = "HEIMDEX_FFPROBE"
	EnvTesseract = "HEIMDEX_TESSERACT"

	// Model sidecar
	EnvModelsURL     = "HEIMDEX_MODELS_URL"
	EnvModelsToken   = "HEIMDEX_MODELS_TOKEN"
	EnvModelsTimeout = "HEIMDEX_MODELS_TIMEOUT"
)

// Config defines the application configuration interface
type Config interface {
	Host() string
	Port() int
	LogLevel() string
	DataDir() string
	ScratchDir() string
	MaxUploadBytes() int64
	RequestTimeout() time.Duration
	FrameFanout() int
	ScratchSweepAge() time.Duration
	FFmpeg() string
	FFprobe() string
	Tesseract() string
	ModelsURL() string
	ModelsToken() string
	ModelsTimeout() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	host           string
	port           int
	logLevel       string
	dataDir        string
	scratchDir     string
	maxUploadBytes int64
	requestTimeout time.Duration
	frameFanout    int
	sweepAge       time.Duration

	ffmpeg    string
	ffprobe   string
	tesseract string

	modelsURL     string
	modelsToken   string
	modelsTimeout time.Duration
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		host:           DefaultHost,
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		dataDir:        defaultDataDir(),
		maxUploadBytes: DefaultMaxUploadBytes,
		requestTimeout: time.Duration(DefaultRequestTimeout) * time.Second,
		frameFanout:    DefaultFrameFanout,
		sweepAge:       time.Duration(DefaultScratchSweepAge) * time.Second,
		ffmpeg:         DefaultFFmpeg,
		ffprobe:        DefaultFFprobe,
		tesseract:      DefaultTesseract,
		modelsTimeout:  time.Duration(DefaultModelsTimeout) * time.Second,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if h := strings.TrimSpace(os.Getenv(EnvHost)); h != "" {
		cfg.host = h
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.scratchDir = os.Getenv(EnvScratchDir)

	if v := os.Getenv(EnvMaxUploadBytes); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvMaxUploadBytes)
		}
		cfg.maxUploadBytes = n
	}

	var err error
	if cfg.requestTimeout, err = secondsFromEnv(EnvRequestTimeout, cfg.requestTimeout); err != nil {
		return nil, err
	}
	if cfg.modelsTimeout, err = secondsFromEnv(EnvModelsTimeout, cfg.modelsTimeout); err != nil {
		return nil, err
	}
	if cfg.sweepAge, err = secondsFromEnv(EnvSweepAge, cfg.sweepAge); err != nil {
		return nil, err
	}

	if v := os.Getenv(EnvFrameFanout); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvFrameFanout)
		}
		cfg.frameFanout = n
	}

	if v := os.Getenv(EnvFFmpeg); v != "" {
		cfg.ffmpeg = v
	}
	if v := os.Getenv(EnvFFprobe); v != "" {
		cfg.ffprobe = v
	}
	if v := os.Getenv(EnvTesseract); v != "" {
		cfg.tesseract = v
	}

	cfg.modelsURL = strings.TrimRight(os.Getenv(EnvModelsURL), "/")
	cfg.modelsToken = os.Getenv(EnvModelsToken)

	return cfg, nil
}

func secondsFromEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: must be a positive number of seconds", name)
	}
	return time.Duration(n) * time.Second, nil
}

// Host returns the interface the HTTP server binds to
func (c *EnvConfig) Host() string {
	return c.host
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// ScratchDir returns the directory used for transient decode files
func (c *EnvConfig) ScratchDir() string {
	if c.scratchDir != "" {
		return c.scratchDir
	}
	return filepath.Join(c.dataDir, "scratch")
}

// MaxUploadBytes returns the largest accepted content payload
func (c *EnvConfig) MaxUploadBytes() int64 {
	return c.maxUploadBytes
}

func (c *EnvConfig) RequestTimeout() time.Duration {
	return c.requestTimeout
}

// FrameFanout returns how many video frames may be analysed concurrently
func (c *EnvConfig) FrameFanout() int {
	return c.frameFanout
}

func (c *EnvConfig) ScratchSweepAge() time.Duration {
	return c.sweepAge
}

func (c *EnvConfig) FFmpeg() string {
	return c.ffmpeg
}

func (c *EnvConfig) FFprobe() string {
	return c.ffprobe
}

func (c *EnvConfig) Tesseract() string {
	return c.tesseract
}

// ModelsURL returns the model sidecar base URL; empty disables model capabilities
func (c *EnvConfig) ModelsURL() string {
	return c.modelsURL
}

func (c *EnvConfig) ModelsToken() string {
	return c.modelsToken
}

func (c *EnvConfig) ModelsTimeout() time.Duration {
	return c.modelsTimeout
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
