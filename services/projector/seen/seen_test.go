// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package seen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_MarkThenSeen(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	seen, err := c.Seen(ctx, "ev1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, c.Mark(ctx, "ev1"))

	seen, err = c.Seen(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestCache_MarkIsIdempotent(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Mark(ctx, "ev1"))
	require.NoError(t, c.Mark(ctx, "ev1"))

	seen, err := c.Seen(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestCache_IdsAreIndependent(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Mark(ctx, "ev1"))

	seen, err := c.Seen(ctx, "ev2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestOpen_PersistentRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_PersistentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.GCInterval = -1

	c, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Mark(ctx, "ev1"))
	require.NoError(t, c.Close())

	c, err = Open(cfg)
	require.NoError(t, err)
	defer c.Close()

	seen, err := c.Seen(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, seen)
}
