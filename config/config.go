package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/INLOpen/nexuscommit/compressors"
	"github.com/INLOpen/nexuscommit/fsqueue"
)

// QueueConfig holds the file-system queue configurations.
type QueueConfig struct {
	Directory             string `yaml:"directory"`
	BatchSize             int    `yaml:"batch_size"`
	MaxPerFolder          int    `yaml:"max_per_folder"`
	CommitLeftoversOnInit bool   `yaml:"commit_leftovers_on_init"`
	MaxRetries            int    `yaml:"max_retries"`
	RetryDelay            string `yaml:"retry_delay"`           // e.g., "5s", "500ms"
	SplitBatch            string `yaml:"split_batch"`           // "off", "half", or "one"
	IgnoreErrors          bool   `yaml:"ignore_errors"`
	Compression           string `yaml:"compression"`           // "none", "snappy", "lz4", or "zstd"
	AsyncConsume          bool   `yaml:"async_consume"`
	DiskMonitorInterval   string `yaml:"disk_monitor_interval"` // "0" disables the monitor
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol string `yaml:"protocol"` // "grpc" or "http"
}

// Config is the top-level configuration struct.
type Config struct {
	Queue   QueueConfig   `yaml:"queue"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	// Set default values
	cfg := &Config{
		Queue: QueueConfig{
			Directory:             "./committer-work",
			BatchSize:             fsqueue.DefaultBatchSize,
			MaxPerFolder:          fsqueue.DefaultMaxPerFolder,
			CommitLeftoversOnInit: false,
			MaxRetries:            0,
			RetryDelay:            "",
			SplitBatch:            "off",
			IgnoreErrors:          false,
			Compression:           "none",
			AsyncConsume:          false,
			DiskMonitorInterval:   "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "nexuscommit.log",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
	}

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	// Read all data from the reader
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}

	// If data is empty, return defaults.
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	return cfg, nil
}

// LoadFile reads configuration from a YAML file by path.
func LoadFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// QueueOptions converts the queue section into fsqueue.Options. Enum and
// duration strings are resolved here so a bad value fails before the queue
// touches disk.
func (c *Config) QueueOptions(logger *slog.Logger) (fsqueue.Options, error) {
	policy, err := fsqueue.ParseSplitPolicy(c.Queue.SplitBatch)
	if err != nil {
		return fsqueue.Options{}, fmt.Errorf("queue.split_batch: %w", err)
	}
	comp, err := compressors.ParseType(c.Queue.Compression)
	if err != nil {
		return fsqueue.Options{}, fmt.Errorf("queue.compression: %w", err)
	}
	return fsqueue.Options{
		Dir:                   c.Queue.Directory,
		BatchSize:             c.Queue.BatchSize,
		MaxPerFolder:          c.Queue.MaxPerFolder,
		CommitLeftoversOnInit: c.Queue.CommitLeftoversOnInit,
		MaxRetries:            c.Queue.MaxRetries,
		RetryDelay:            ParseDuration(c.Queue.RetryDelay, 0, logger),
		SplitBatch:            policy,
		IgnoreErrors:          c.Queue.IgnoreErrors,
		Compression:           comp,
		AsyncConsume:          c.Queue.AsyncConsume,
		DiskMonitorInterval:   ParseDuration(c.Queue.DiskMonitorInterval, 0, logger),
		Logger:                logger,
	}, nil
}

// NewLogger creates a slog.Logger based on the provided configuration.
func NewLogger(cfg LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path is specified")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		output = file
		closer = file // The file handle is the closer.
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}
