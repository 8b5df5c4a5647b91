// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads projector configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Config is the projector's runtime configuration.
type Config struct {
	// Port is the HTTP port of the read API.
	Port int `validate:"required,min=1,max=65535"`

	// RelayURL is the relay WebSocket endpoint.
	RelayURL string `validate:"required"`

	// RelayKinds filters the subscription. Empty subscribes to all kinds.
	RelayKinds []int

	// RelayLimit bounds the stored-event backlog requested on subscribe.
	RelayLimit int `validate:"min=0"`

	// DgraphTarget is the Dgraph Alpha gRPC address.
	DgraphTarget string `validate:"required"`

	// AllowStartDegraded lets the projector start while Dgraph is down.
	AllowStartDegraded bool

	// SeenCachePath is the BadgerDB directory for the seen-event cache.
	// Empty disables the cache.
	SeenCachePath string

	// OTelEndpoint is the OpenTelemetry collector gRPC endpoint.
	OTelEndpoint string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// FromEnv builds the configuration from environment variables.
//
// Variables:
//
//   - PROJECTOR_PORT: HTTP port of the read API (default: 12340)
//   - RELAY_URL: relay WebSocket endpoint (required)
//   - RELAY_KINDS: comma-separated kind filter (default: empty, all kinds)
//   - RELAY_LIMIT: stored-event backlog on subscribe (default: 0)
//   - DGRAPH_TARGET: Dgraph Alpha gRPC address (default: localhost:9080)
//   - DGRAPH_ALLOW_DEGRADED: start while Dgraph is down (default: false)
//   - SEEN_CACHE_PATH: seen-cache directory, empty disables (default: empty)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: collector address (default: localhost:4317)
//   - LOG_LEVEL: debug|info|warn|error (default: info)
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:               getEnvInt("PROJECTOR_PORT", 12340),
		RelayURL:           os.Getenv("RELAY_URL"),
		RelayLimit:         getEnvInt("RELAY_LIMIT", 0),
		DgraphTarget:       getEnvString("DGRAPH_TARGET", "localhost:9080"),
		AllowStartDegraded: getEnvBool("DGRAPH_ALLOW_DEGRADED"),
		SeenCachePath:      os.Getenv("SEEN_CACHE_PATH"),
		OTelEndpoint:       getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		LogLevel:           getEnvString("LOG_LEVEL", "info"),
	}

	kinds, err := parseKinds(os.Getenv("RELAY_KINDS"))
	if err != nil {
		return nil, err
	}
	cfg.RelayKinds = kinds

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseKinds parses a comma-separated kind list.
func parseKinds(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var kinds []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("RELAY_KINDS: %q is not an integer", part)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns true for "1", "true", or "yes" (case-insensitive).
func getEnvBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
