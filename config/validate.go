// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/bitfsorg/libshare-go/multihash"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if cfg.Network != "mainnet" && cfg.Network != "testnet" {
		return ErrInvalidNetwork
	}

	if err := validateAddr(cfg.ListenAddr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidListenAddr, err)
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	if _, err := HashCode(cfg); err != nil {
		return err
	}

	for _, gw := range cfg.Gateways {
		u, err := url.Parse(gw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidGateway, gw)
		}
	}

	if cfg.DNSUpstream != "" {
		if err := validateAddr(cfg.DNSUpstream); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDNSUpstream, err)
		}
	}

	if cfg.UnshareRetries < 0 {
		return ErrInvalidRetries
	}

	return nil
}

// HashCode resolves HashFunction to a multihash code whose digest fits the
// ledger's 32-byte locator field.
func HashCode(cfg Config) (multihash.Code, error) {
	code, err := multihash.ParseCode(cfg.HashFunction)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHashFunction, cfg.HashFunction)
	}
	if code.DigestLength() > multihash.DigestFieldSize {
		return 0, fmt.Errorf("%w: %s digest does not fit a locator triple", ErrInvalidHashFunction, code)
	}
	return code, nil
}

// validateAddr checks that addr is a valid host:port address.
func validateAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	return err
}
