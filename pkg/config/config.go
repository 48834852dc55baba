// Package config provides configuration handling for the mirage responder.
package config

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/irctrakz/mirage/pkg/core"
	"github.com/irctrakz/mirage/pkg/logging"
	"gopkg.in/yaml.v3"
)

// Config represents the complete responder configuration.
type Config struct {
	// Responder contains the responder identity configuration.
	Responder core.ResponderConfig `json:"responder" yaml:"responder"`

	// Capture contains the packet capture configuration.
	Capture core.CaptureConfig `json:"capture" yaml:"capture"`

	// Logging contains the logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LoggingConfig contains configuration for logging.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// File is the log file path.
	File string `json:"file" yaml:"file"`

	// MaxSize is the maximum size of the log file in megabytes.
	MaxSize int `json:"maxSize" yaml:"maxSize"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `json:"maxBackups" yaml:"maxBackups"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `json:"maxAge" yaml:"maxAge"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Responder: core.ResponderConfig{
			Interface: "",
			MAC:       "",
			Addresses: nil,
			SynAckKey: nil,
			Debug:     false,
		},
		Capture: core.CaptureConfig{
			Mode:       "raw",
			TUNName:    "mirage0",
			MTU:        1500,
			Workers:    4,
			QueueCap:   1000,
			EnableUDP:  true,
			EnableICMP: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// LoadFromFile loads configuration from a file.
func LoadFromFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Determine file format based on extension
	switch {
	case strings.HasSuffix(path, ".json"):
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(config *Config) {
	// Responder config
	if val := os.Getenv("RESPONDER_IFACE"); val != "" {
		config.Responder.Interface = val
	}
	if val := os.Getenv("RESPONDER_MAC"); val != "" {
		config.Responder.MAC = val
	}
	if val := os.Getenv("RESPONDER_ADDRESSES"); val != "" {
		config.Responder.Addresses = splitList(val)
	}
	if val := os.Getenv("RESPONDER_SYNACK_KEY"); val != "" {
		config.Responder.SynAckKey = splitList(val)
	}
	if val := os.Getenv("RESPONDER_DEBUG"); val != "" {
		config.Responder.Debug = val == "true" || val == "1"
	}

	// Capture config
	if val := os.Getenv("CAPTURE_MODE"); val != "" {
		config.Capture.Mode = val
	}
	if val := os.Getenv("CAPTURE_TUN_NAME"); val != "" {
		config.Capture.TUNName = val
	}
	if val := os.Getenv("CAPTURE_MTU"); val != "" {
		if mtu, err := strconv.Atoi(val); err == nil {
			config.Capture.MTU = mtu
		}
	}
	if val := os.Getenv("CAPTURE_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Capture.Workers = n
		}
	}
	if val := os.Getenv("CAPTURE_QUEUE_CAP"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Capture.QueueCap = n
		}
	}
	if val := os.Getenv("CAPTURE_UDP"); val != "" {
		config.Capture.EnableUDP = val == "true" || val == "1"
	}
	if val := os.Getenv("CAPTURE_ICMP"); val != "" {
		config.Capture.EnableICMP = val == "true" || val == "1"
	}

	// Logging config
	if val := os.Getenv("LOGGING_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOGGING_FILE"); val != "" {
		config.Logging.File = val
	}
	if val := os.Getenv("LOGGING_MAX_SIZE"); val != "" {
		if maxSize, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxSize = maxSize
		}
	}
	if val := os.Getenv("LOGGING_MAX_BACKUPS"); val != "" {
		if maxBackups, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxBackups = maxBackups
		}
	}
	if val := os.Getenv("LOGGING_MAX_AGE"); val != "" {
		if maxAge, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxAge = maxAge
		}
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate Responder config
	if c.Responder.MAC != "" {
		if _, err := net.ParseMAC(c.Responder.MAC); err != nil {
			return fmt.Errorf("invalid responder MAC address %q: %w", c.Responder.MAC, err)
		}
	}
	for _, a := range c.Responder.Addresses {
		if net.ParseIP(a) == nil {
			return fmt.Errorf("invalid responder address: %s", a)
		}
	}
	if n := len(c.Responder.SynAckKey); n != 0 && n != 2 {
		return fmt.Errorf("synack key must be two 64-bit hex words, got %d", n)
	}
	for _, w := range c.Responder.SynAckKey {
		if _, err := strconv.ParseUint(strings.TrimPrefix(w, "0x"), 16, 64); err != nil {
			return fmt.Errorf("invalid synack key word %q: %w", w, err)
		}
	}

	// Validate Capture config
	switch c.Capture.Mode {
	case "raw", "tun":
		// Valid modes
	default:
		return fmt.Errorf("invalid capture mode: %s", c.Capture.Mode)
	}
	if c.Capture.Mode == "tun" && c.Capture.TUNName == "" {
		return fmt.Errorf("TUN capture mode requires a TUN device name")
	}
	if c.Capture.MTU <= 0 {
		return fmt.Errorf("invalid MTU: %d", c.Capture.MTU)
	}
	if c.Capture.Workers <= 0 {
		return fmt.Errorf("invalid worker count: %d", c.Capture.Workers)
	}
	if c.Capture.QueueCap <= 0 {
		return fmt.Errorf("invalid queue capacity: %d", c.Capture.QueueCap)
	}

	// Validate Logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// SynAckKey returns the configured secret key words, generating a random key
// when none is pinned in the configuration. Runs with a generated key answer
// correctly but issue cookies that do not survive a restart.
func (c *Config) SynAckKey() ([2]uint64, error) {
	var key [2]uint64
	if len(c.Responder.SynAckKey) == 0 {
		var raw [16]byte
		if _, err := rand.Read(raw[:]); err != nil {
			return key, fmt.Errorf("failed to generate synack key: %w", err)
		}
		key[0] = binary.BigEndian.Uint64(raw[0:8])
		key[1] = binary.BigEndian.Uint64(raw[8:16])
		logging.Warnf("no synack key configured, generated a random one; cookies will not survive restart")
		return key, nil
	}
	if len(c.Responder.SynAckKey) != 2 {
		return key, fmt.Errorf("synack key must be two 64-bit hex words")
	}
	for i, w := range c.Responder.SynAckKey {
		v, err := strconv.ParseUint(strings.TrimPrefix(w, "0x"), 16, 64)
		if err != nil {
			return key, fmt.Errorf("invalid synack key word %q: %w", w, err)
		}
		key[i] = v
	}
	return key, nil
}

// ResponderIdentity builds the process-wide responder identity from the
// configuration. The identity is immutable once built; per-packet code only
// reads it.
func (c *Config) ResponderIdentity() (*core.Responder, error) {
	r := &core.Responder{Interface: c.Responder.Interface}

	if c.Responder.MAC != "" {
		mac, err := net.ParseMAC(c.Responder.MAC)
		if err != nil {
			return nil, fmt.Errorf("invalid responder MAC address %q: %w", c.Responder.MAC, err)
		}
		r.MAC = mac
	}

	for _, a := range c.Responder.Addresses {
		ip := net.ParseIP(a)
		if ip == nil {
			return nil, fmt.Errorf("invalid responder address: %s", a)
		}
		r.Addresses = append(r.Addresses, ip)
	}

	key, err := c.SynAckKey()
	if err != nil {
		return nil, err
	}
	r.SynAckKey = key
	return r, nil
}

// ApplyLogging applies the logging configuration.
func (c *Config) ApplyLogging() error {
	// Set log level
	var level logging.Level
	switch c.Logging.Level {
	case "debug":
		level = logging.DebugLevel
	case "info":
		level = logging.InfoLevel
	case "warn":
		level = logging.WarnLevel
	case "error":
		level = logging.ErrorLevel
	default:
		level = logging.InfoLevel
	}
	logging.SetLevel(level)

	// Enable file logging if configured
	if c.Logging.File != "" {
		dir := "."
		filename := c.Logging.File
		if lastSlash := strings.LastIndex(c.Logging.File, "/"); lastSlash != -1 {
			dir = c.Logging.File[:lastSlash]
			filename = c.Logging.File[lastSlash+1:]
		}

		err := logging.EnableFileLogging(
			dir,
			filename,
			c.Logging.MaxSize,
			c.Logging.MaxBackups,
			c.Logging.MaxAge,
		)
		if err != nil {
			return fmt.Errorf("failed to enable file logging: %w", err)
		}
	}

	return nil
}

// SaveToFile saves the configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	// Determine file format based on extension
	switch {
	case strings.HasSuffix(path, ".json"):
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	// Create directory if it doesn't exist
	if lastSlash := strings.LastIndex(path, "/"); lastSlash != -1 {
		dir := path[:lastSlash]
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
