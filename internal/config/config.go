// Package config loads the settings of the HTTP service from a JSON file.
//
// Fields missing from the file keep their defaults, so an empty object is a
// valid configuration:
//
//	{
//	    "addr": ":8080",
//	    "max_upload_size": "50MB",
//	    "process_timeout": "60s",
//	    "log_format": "json"
//	}
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tsawler/pdfreplace/logging"
)

// Config holds the service settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `json:"addr"`

	// MaxUploadSize bounds request bodies, e.g. "50MB".
	MaxUploadSize string `json:"max_upload_size"`

	// MemoryThreshold is the part of a multipart upload kept in memory;
	// the rest is staged to temporary files.
	MemoryThreshold string `json:"memory_threshold"`

	// ProcessTimeout bounds the processing of one document, e.g. "60s".
	ProcessTimeout string `json:"process_timeout"`

	// MaxConnections limits concurrent connections; zero means no limit.
	MaxConnections int `json:"max_connections"`

	LineBreakThreshold float64 `json:"line_break_threshold"`

	// Workers is the number of pages processed in parallel per document;
	// zero selects the number of CPUs.
	Workers int `json:"workers"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Addr:            ":8080",
		MaxUploadSize:   "50MB",
		MemoryThreshold: "10MB",
		ProcessTimeout:  "60s",
		MaxConnections:  100,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load reads and validates the configuration file.
//
// Example:
//
//	cfg, err := config.Load("config.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file '%s': %w", filename, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("config file '%s' is empty", filename)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config (invalid JSON): %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field of cfg.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.Addr) == "" {
		errs = append(errs, errors.New("config error: addr must not be empty"))
	}
	if n, err := ParseFileSize(cfg.MaxUploadSize); err != nil {
		errs = append(errs, fmt.Errorf("config error: invalid max_upload_size: %w", err))
	} else if n == 0 {
		errs = append(errs, errors.New("config error: max_upload_size must be positive"))
	}
	if _, err := ParseFileSize(cfg.MemoryThreshold); err != nil {
		errs = append(errs, fmt.Errorf("config error: invalid memory_threshold: %w", err))
	}
	if d, err := time.ParseDuration(cfg.ProcessTimeout); err != nil {
		errs = append(errs, fmt.Errorf("config error: invalid process_timeout '%s': %w", cfg.ProcessTimeout, err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("config error: process_timeout must be positive, got '%s'", cfg.ProcessTimeout))
	}
	if cfg.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("config error: max_connections cannot be negative, got %d", cfg.MaxConnections))
	}
	if cfg.LineBreakThreshold < 0 {
		errs = append(errs, fmt.Errorf("config error: line_break_threshold cannot be negative, got %g", cfg.LineBreakThreshold))
	}
	if cfg.Workers < 0 {
		errs = append(errs, fmt.Errorf("config error: workers cannot be negative, got %d", cfg.Workers))
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("config error: %w", err))
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config error: log_format must be 'text' or 'json', got '%s'", cfg.LogFormat))
	}

	return errors.Join(errs...)
}

// UploadLimit returns MaxUploadSize in bytes. cfg must be valid.
func (c *Config) UploadLimit() int64 {
	n, _ := ParseFileSize(c.MaxUploadSize)
	return n
}

// MemoryLimit returns MemoryThreshold in bytes. cfg must be valid.
func (c *Config) MemoryLimit() int64 {
	n, _ := ParseFileSize(c.MemoryThreshold)
	return n
}

// Timeout returns ProcessTimeout. cfg must be valid.
func (c *Config) Timeout() time.Duration {
	d, _ := time.ParseDuration(c.ProcessTimeout)
	return d
}

// ParseFileSize converts a size such as "100MB" to bytes. Supported
// suffixes are B, KB, MB and GB. The empty string is zero.
//
// Examples:
//
//	ParseFileSize("100MB")  => 104857600, nil
//	ParseFileSize("1GB")    => 1073741824, nil
//	ParseFileSize("")       => 0, nil
//	ParseFileSize("100XB")  => 0, error
func ParseFileSize(sizeStr string) (int64, error) {
	sizeStr = strings.ToUpper(strings.TrimSpace(sizeStr))
	if sizeStr == "" {
		return 0, nil
	}

	// Longest suffixes first so "MB" is not read as "B".
	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}

	for _, s := range suffixes {
		if !strings.HasSuffix(sizeStr, s.suffix) {
			continue
		}
		numStr := strings.TrimSpace(strings.TrimSuffix(sizeStr, s.suffix))
		num, err := strconv.ParseInt(numStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size format '%s': cannot parse number", sizeStr)
		}
		if num < 0 {
			return 0, fmt.Errorf("invalid size '%s': size cannot be negative", sizeStr)
		}
		if num > (1<<63-1)/s.multiplier {
			return 0, fmt.Errorf("invalid size '%s': value too large", sizeStr)
		}
		return num * s.multiplier, nil
	}

	return 0, fmt.Errorf("invalid size format '%s': must end with B, KB, MB, or GB", sizeStr)
}

// FormatBytes converts bytes to a human-readable size.
//
// Examples:
//
//	FormatBytes(500)       => "500 B"
//	FormatBytes(1024)      => "1.00 KB"
//	FormatBytes(52428800)  => "50.00 MB"
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	sizes := []string{"KB", "MB", "GB", "TB", "PB", "EB"}
	return fmt.Sprintf("%.2f %s", float64(bytes)/float64(div), sizes[exp])
}
