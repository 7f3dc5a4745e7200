// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and saves the libshare key = value configuration
// file kept in the data directory.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the client configuration.
type Config struct {
	DataDir  string // data directory: key file, blob store, databases
	Network  string // "mainnet" or "testnet"
	LogLevel string // "debug", "info", "warn", "error"
	LogFile  string // empty logs to stderr

	// ListenAddr is where "libshare serve" exposes the local blob store.
	ListenAddr string

	// HashFunction names the multihash function new blobs are addressed
	// with ("sha2-256", "sha3-256", "blake3").
	HashFunction string

	// Gateways are base URLs blobs missing locally are fetched from.
	Gateways []string

	// DirectoryZone, if set, adds a DNS directory at "<identity>.<zone>".
	DirectoryZone string

	// DNSUpstream is the DNSSEC-validating resolver for DirectoryZone.
	// Empty uses the system resolver without DNSSEC.
	DNSUpstream string

	// UnshareRetries bounds stale-index retries on unshare and restore.
	UnshareRetries int
}

// Environment overrides applied by ApplyEnv.
const (
	EnvDataDir  = "LIBSHARE_DATA_DIR"
	EnvLogLevel = "LIBSHARE_LOG_LEVEL"
)

// DefaultDataDir returns ~/.libshare, or .libshare if the home directory
// cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".libshare"
	}
	return filepath.Join(home, ".libshare")
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:        DefaultDataDir(),
		Network:        "mainnet",
		LogLevel:       "info",
		ListenAddr:     ":8080",
		HashFunction:   "sha2-256",
		UnshareRetries: 3,
	}
}

// ConfigPath returns the config file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config")
}

// LoadConfig reads path over DefaultConfig. Unknown keys are ignored so
// older binaries can read newer files.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		if err := cfg.set(key, value); err != nil {
			return cfg, fmt.Errorf("%w: line %d: %w", ErrInvalidConfigLine, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// parseKeyValue splits "key = value" on the first '='.
func parseKeyValue(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", ErrInvalidConfigLine
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, strings.TrimSpace(value), nil
}

func (c *Config) set(key, value string) error {
	switch key {
	case "datadir":
		c.DataDir = value
	case "network":
		c.Network = value
	case "loglevel":
		c.LogLevel = value
	case "logfile":
		c.LogFile = value
	case "listen":
		c.ListenAddr = value
	case "hash":
		c.HashFunction = value
	case "gateways":
		c.Gateways = splitList(value)
	case "directoryzone":
		c.DirectoryZone = value
	case "dnsupstream":
		c.DNSUpstream = value
	case "unshareretries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("unshareretries: %w", err)
		}
		c.UnshareRetries = n
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// SaveConfig writes cfg to path, creating parent directories.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# libshare configuration\n\n")
	fmt.Fprintf(&b, "datadir = %s\n", cfg.DataDir)
	fmt.Fprintf(&b, "network = %s\n", cfg.Network)
	fmt.Fprintf(&b, "loglevel = %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "logfile = %s\n", cfg.LogFile)
	fmt.Fprintf(&b, "listen = %s\n", cfg.ListenAddr)
	fmt.Fprintf(&b, "hash = %s\n", cfg.HashFunction)
	fmt.Fprintf(&b, "gateways = %s\n", strings.Join(cfg.Gateways, ","))
	fmt.Fprintf(&b, "directoryzone = %s\n", cfg.DirectoryZone)
	fmt.Fprintf(&b, "dnsupstream = %s\n", cfg.DNSUpstream)
	fmt.Fprintf(&b, "unshareretries = %d\n", cfg.UnshareRetries)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from LIBSHARE_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}

// SlogLevel maps LogLevel to a slog level. Unknown levels map to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Mainnet reports whether the configured network is mainnet.
func (c Config) Mainnet() bool { return c.Network == "mainnet" }
