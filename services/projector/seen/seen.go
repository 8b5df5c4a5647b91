// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package seen provides a BadgerDB-backed cache of projected event ids.
//
// The cache is a fast path in front of the graph store's idempotency
// lookup, not a source of truth: a cache miss falls through to the store,
// and losing the cache directory costs only extra lookups on replay.
// Entries expire by TTL so the value log does not grow with the stream.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package seen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the seen-event cache.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// TTL is how long a seen entry is kept. Zero keeps entries forever.
	// Default: 30 days.
	TTL time.Duration

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to a negative value to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5.
	GCDiscardRatio float64

	// Logger for cache operations. BadgerDB's internal logging is
	// disabled when nil.
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		TTL:            30 * 24 * time.Hour,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for testing.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		TTL:        time.Hour,
		GCInterval: -1,
	}
}

// Cache records event ids that have already been projected.
//
// Thread Safety: Safe for concurrent use.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open creates the cache, opening (or creating) the BadgerDB directory.
// Caller must Close when done.
func Open(cfg Config) (*Cache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent cache")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.GCInterval == 0 {
		cfg.GCInterval = DefaultConfig().GCInterval
	}
	if cfg.GCDiscardRatio == 0 {
		cfg.GCDiscardRatio = DefaultConfig().GCDiscardRatio
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open seen cache: %w", err)
	}

	c := &Cache{
		db:     db,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
		gcStop: make(chan struct{}),
		gcDone: make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		go c.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	} else {
		close(c.gcDone)
	}
	return c, nil
}

// Seen reports whether the event id was marked earlier.
func (c *Cache) Seen(_ context.Context, id string) (bool, error) {
	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("seen lookup: %w", err)
	}
	return true, nil
}

// Mark records an event id, refreshing its TTL if already present.
func (c *Cache) Mark(_ context.Context, id string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(id), nil)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("seen mark: %w", err)
	}
	return nil
}

// Close stops the GC loop and closes the database.
func (c *Cache) Close() error {
	close(c.gcStop)
	<-c.gcDone
	return c.db.Close()
}

// runGC periodically reclaims value log space from expired entries.
func (c *Cache) runGC(interval time.Duration, ratio float64) {
	defer close(c.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.gcStop:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there is nothing
			// worth collecting; that is the common case.
			err := c.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && c.logger != nil {
				c.logger.Warn("seen cache gc failed", slog.String("error", err.Error()))
			}
		}
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
