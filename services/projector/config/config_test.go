// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("RELAY_URL", "wss://relay.example/")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 12340, cfg.Port)
	assert.Equal(t, "wss://relay.example/", cfg.RelayURL)
	assert.Equal(t, "localhost:9080", cfg.DgraphTarget)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.RelayKinds)
	assert.False(t, cfg.AllowStartDegraded)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("RELAY_URL", "wss://relay.example/")
	t.Setenv("PROJECTOR_PORT", "8099")
	t.Setenv("RELAY_KINDS", "0, 1,3,2323")
	t.Setenv("DGRAPH_TARGET", "alpha:9080")
	t.Setenv("DGRAPH_ALLOW_DEGRADED", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8099, cfg.Port)
	assert.Equal(t, []int{0, 1, 3, 2323}, cfg.RelayKinds)
	assert.Equal(t, "alpha:9080", cfg.DgraphTarget)
	assert.True(t, cfg.AllowStartDegraded)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestFromEnv_MissingRelayURL(t *testing.T) {
	t.Setenv("RELAY_URL", "")

	_, err := FromEnv()
	assert.Error(t, err)
}

func TestFromEnv_BadKinds(t *testing.T) {
	t.Setenv("RELAY_URL", "wss://relay.example/")
	t.Setenv("RELAY_KINDS", "1,abc")

	_, err := FromEnv()
	assert.Error(t, err)
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := &Config{
		Port:         12340,
		RelayURL:     "wss://relay.example/",
		DgraphTarget: "localhost:9080",
		LogLevel:     "loud",
	}

	assert.Error(t, cfg.Validate())
}
