// Package config manages espd daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete espd configuration.
type Config struct {
	Transport TransportConfig `koanf:"transport"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	SAs       []SAConfig      `koanf:"sas"`
}

// TransportConfig holds the ESP-over-UDP listener configuration.
type TransportConfig struct {
	// Addr is the UDP listen address (e.g., ":4500", the conventional
	// NAT-T ESP port).
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics/status endpoint
	// (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// SAConfig describes one statically provisioned, unidirectional security
// association. Each entry installs an SA on daemon startup and SIGHUP
// reload. IKE negotiation is out of scope for this engine, so SA keys
// arrive fully formed here -- see cmd/espctl's keygen subcommand for
// generating demo key material.
type SAConfig struct {
	// SPI is the security parameter index, hex-encoded (e.g. "deadbeef").
	SPI string `koanf:"spi" yaml:"spi" json:"spi"`

	// Direction is "in" or "out": whether this engine uses the SA to
	// decrypt received datagrams or encrypt outgoing ones.
	Direction string `koanf:"direction" yaml:"direction" json:"direction"`

	// Cipher selects the Encryptor: "aes-cbc" or "blowfish-cbc".
	Cipher string `koanf:"cipher" yaml:"cipher" json:"cipher"`

	// CipherKeyHex is the cipher key, hex-encoded.
	CipherKeyHex string `koanf:"cipher_key_hex" yaml:"cipher_key_hex" json:"cipher_key_hex"`

	// MAC selects the MAC: "hmac-sha1-96" or "hmac-sha256-128".
	MAC string `koanf:"mac" yaml:"mac" json:"mac"`

	// MACKeyHex is the MAC key, hex-encoded.
	MACKeyHex string `koanf:"mac_key_hex" yaml:"mac_key_hex" json:"mac_key_hex"`

	// WindowSize is the anti-replay bitmap width; 0 selects the engine
	// default.
	WindowSize uint32 `koanf:"window_size" yaml:"window_size,omitempty" json:"window_size,omitempty"`
}

// SPIValue decodes SPI as a 4-byte big-endian security parameter index.
func (sc SAConfig) SPIValue() (uint32, error) {
	b, err := hex.DecodeString(sc.SPI)
	if err != nil {
		return 0, fmt.Errorf("parse spi %q: %w", sc.SPI, err)
	}
	if len(b) != 4 {
		return 0, fmt.Errorf("spi %q: decoded to %d bytes, want 4: %w", sc.SPI, len(b), ErrInvalidSPI)
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// CipherKey decodes CipherKeyHex.
func (sc SAConfig) CipherKey() ([]byte, error) {
	b, err := hex.DecodeString(sc.CipherKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse cipher key: %w", err)
	}
	return b, nil
}

// MACKey decodes MACKeyHex.
func (sc SAConfig) MACKey() ([]byte, error) {
	b, err := hex.DecodeString(sc.MACKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse mac key: %w", err)
	}
	return b, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Addr: ":4500",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for espd configuration.
// Variables are named ESPD_<section>_<key>, e.g., ESPD_TRANSPORT_ADDR.
const envPrefix = "ESPD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (ESPD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	ESPD_TRANSPORT_ADDR -> transport.addr
//	ESPD_METRICS_ADDR    -> metrics.addr
//	ESPD_METRICS_PATH    -> metrics.path
//	ESPD_LOG_LEVEL       -> log.level
//	ESPD_LOG_FORMAT      -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms ESPD_TRANSPORT_ADDR -> transport.addr.
// Strips the ESPD_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"transport.addr": defaults.Transport.Addr,
		"metrics.addr":   defaults.Metrics.Addr,
		"metrics.path":   defaults.Metrics.Path,
		"log.level":      defaults.Log.Level,
		"log.format":     defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyTransportAddr indicates the UDP listen address is empty.
	ErrEmptyTransportAddr = errors.New("transport.addr must not be empty")

	// ErrInvalidSPI indicates an SA's spi field did not decode to 4 bytes.
	ErrInvalidSPI = errors.New("sa spi must decode to exactly 4 bytes")

	// ErrInvalidDirection indicates an SA's direction was neither "in"
	// nor "out".
	ErrInvalidDirection = errors.New("sa direction must be \"in\" or \"out\"")

	// ErrUnknownCipher indicates an SA named a cipher this engine does
	// not implement.
	ErrUnknownCipher = errors.New("sa cipher must be \"aes-cbc\" or \"blowfish-cbc\"")

	// ErrUnknownMAC indicates an SA named a MAC this engine does not
	// implement.
	ErrUnknownMAC = errors.New("sa mac must be \"hmac-sha1-96\" or \"hmac-sha256-128\"")

	// ErrDuplicateSPIDirection indicates two SAs share the same
	// (spi, direction) pair.
	ErrDuplicateSPIDirection = errors.New("duplicate sa spi+direction")
)

// ValidCiphers lists the recognized cipher strings.
var ValidCiphers = map[string]bool{
	"aes-cbc":      true,
	"blowfish-cbc": true,
}

// ValidMACs lists the recognized MAC strings.
var ValidMACs = map[string]bool{
	"hmac-sha1-96":    true,
	"hmac-sha256-128": true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Transport.Addr == "" {
		return ErrEmptyTransportAddr
	}

	if err := validateSAs(cfg.SAs); err != nil {
		return err
	}

	return nil
}

// validateSAs checks each declarative SA entry for correctness.
func validateSAs(sas []SAConfig) error {
	seen := make(map[string]struct{}, len(sas))

	for i, sc := range sas {
		if _, err := sc.SPIValue(); err != nil {
			return fmt.Errorf("sas[%d]: %w", i, err)
		}

		if sc.Direction != "in" && sc.Direction != "out" {
			return fmt.Errorf("sas[%d] direction %q: %w", i, sc.Direction, ErrInvalidDirection)
		}

		if !ValidCiphers[sc.Cipher] {
			return fmt.Errorf("sas[%d] cipher %q: %w", i, sc.Cipher, ErrUnknownCipher)
		}

		if !ValidMACs[sc.MAC] {
			return fmt.Errorf("sas[%d] mac %q: %w", i, sc.MAC, ErrUnknownMAC)
		}

		key := sc.SPI + "|" + sc.Direction
		if _, dup := seen[key]; dup {
			return fmt.Errorf("sas[%d] key %q: %w", i, key, ErrDuplicateSPIDirection)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
