// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package relay consumes the event stream from a relay over WebSocket.
//
// The feed opens one subscription and applies events strictly in arrival
// order: the next frame is not read until the current event's projection
// has finished. Transient store failures retry the same event in place,
// so ordering survives store outages. Connection loss triggers reconnect
// with exponential backoff and a fresh subscription.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/CausalityGraph/services/projector/event"
	"github.com/AleutianAI/CausalityGraph/services/projector/graph"
	"github.com/AleutianAI/CausalityGraph/services/projector/observability"
)

// Applier projects one event. Implemented by the graph projector.
type Applier interface {
	Apply(ctx context.Context, e *event.Event) error
}

// Config configures the feed consumer.
type Config struct {
	// URL is the relay WebSocket endpoint (e.g., "wss://relay.example/").
	URL string

	// Kinds filters the subscription to these event kinds. Empty
	// subscribes to everything.
	Kinds []int

	// Limit asks the relay for at most this many stored events on
	// subscribe. Zero sends no limit.
	Limit int

	// HandshakeTimeout bounds the WebSocket dial.
	// Default: 10s
	HandshakeTimeout time.Duration

	// ReconnectBackoff is the initial delay before redialing.
	// Default: 1s
	ReconnectBackoff time.Duration

	// MaxReconnectBackoff caps the reconnect delay.
	// Default: 1m
	MaxReconnectBackoff time.Duration

	// RetryBackoff is the delay between retries of one event after a
	// transient store failure.
	// Default: 2s
	RetryBackoff time.Duration

	// ApplyTimeout bounds one projection attempt. The attempt runs on a
	// context detached from the run context, so shutdown never cancels
	// an in-flight mutation.
	// Default: 30s
	ApplyTimeout time.Duration

	// Logger for feed operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// Metrics records frames, outcomes, and reconnects. Optional.
	Metrics *observability.ProjectorMetrics
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReconnectBackoff == 0 {
		c.ReconnectBackoff = time.Second
	}
	if c.MaxReconnectBackoff == 0 {
		c.MaxReconnectBackoff = time.Minute
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.ApplyTimeout == 0 {
		c.ApplyTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Feed is a single-subscription relay consumer.
//
// Run owns the connection; Feed is not safe for concurrent Runs.
type Feed struct {
	config  Config
	applier Applier
	logger  *slog.Logger
}

// NewFeed builds a feed over an applier.
func NewFeed(config Config, applier Applier) (*Feed, error) {
	if config.URL == "" {
		return nil, errors.New("relay url must not be empty")
	}
	if applier == nil {
		return nil, errors.New("applier must not be nil")
	}
	config.applyDefaults()

	return &Feed{
		config:  config,
		applier: applier,
		logger:  config.Logger.With(slog.String("component", "relay_feed")),
	}, nil
}

// Run consumes the relay until ctx is cancelled. The in-flight event
// finishes before Run returns; the next frame is never read early.
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.config.ReconnectBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := f.connect(ctx)
		if err != nil {
			f.logger.Warn("relay dial failed",
				slog.String("url", f.config.URL),
				slog.Duration("retry_in", backoff),
				slog.String("error", err.Error()))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, f.config.MaxReconnectBackoff)
			continue
		}
		backoff = f.config.ReconnectBackoff

		err = f.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if f.config.Metrics != nil {
			f.config.Metrics.RecordReconnect()
		}
		f.logger.Warn("relay connection lost, reconnecting",
			slog.String("error", err.Error()))
	}
}

// connect dials the relay and sends the subscription request.
func (f *Feed) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: f.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	subID := uuid.New().String()
	filters := map[string]any{}
	if len(f.config.Kinds) > 0 {
		filters["kinds"] = f.config.Kinds
	}
	if f.config.Limit > 0 {
		filters["limit"] = f.config.Limit
	}

	req := []any{"REQ", subID, filters}
	if err := conn.WriteJSON(req); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send subscription: %w", err)
	}

	f.logger.Info("subscribed to relay",
		slog.String("url", f.config.URL),
		slog.String("subscription_id", subID),
		slog.Any("kinds", f.config.Kinds))
	return conn, nil
}

// consume reads frames until the connection breaks or ctx is cancelled.
func (f *Feed) consume(ctx context.Context, conn *websocket.Conn) error {
	// Unblock the blocking read on shutdown.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}

		frame, err := event.DecodeFrame(data)
		if err != nil {
			if errors.Is(err, event.ErrNotEventFrame) {
				f.recordFrame("skipped")
				continue
			}
			f.recordFrame("invalid")
			f.logger.Warn("dropping undecodable frame", slog.String("error", err.Error()))
			continue
		}
		f.recordFrame("event")

		if err := f.apply(ctx, &frame.Event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// apply projects one event, retrying in place on transient store
// failures. Permanent failures drop the event; the stream moves on.
// Duplicate deliveries and unhandled kinds count as handled.
func (f *Feed) apply(ctx context.Context, e *event.Event) error {
	for {
		// The in-flight event finishes even when ctx is cancelled:
		// the projection runs on a detached context with its own
		// deadline, and ctx only gates the retry wait below.
		applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.config.ApplyTimeout)
		start := time.Now()
		err := f.applier.Apply(applyCtx, e)
		cancel()
		f.observe(e.Kind, time.Since(start), err)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, graph.ErrDuplicateEvent):
			f.logger.Debug("skipping duplicate delivery", slog.String("id", e.ID))
			return nil
		case errors.Is(err, graph.ErrUnhandledKind):
			return nil
		case graph.IsPermanent(err):
			f.logger.Warn("dropping event",
				slog.String("id", e.ID),
				slog.Int("kind", e.Kind),
				slog.String("error", err.Error()))
			return nil
		default:
			f.logger.Error("projection failed, retrying event",
				slog.String("id", e.ID),
				slog.Int("kind", e.Kind),
				slog.Duration("retry_in", f.config.RetryBackoff),
				slog.String("error", err.Error()))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.config.RetryBackoff):
			}
		}
	}
}

func (f *Feed) recordFrame(disposition string) {
	if f.config.Metrics != nil {
		f.config.Metrics.RecordFrame(disposition)
	}
}

func (f *Feed) observe(kind int, elapsed time.Duration, err error) {
	if f.config.Metrics == nil {
		return
	}
	f.config.Metrics.ObserveProjection(kind, elapsed.Seconds())
	f.config.Metrics.RecordEvent(kind, outcomeFor(err))
}

func outcomeFor(err error) observability.Outcome {
	switch {
	case err == nil:
		return observability.OutcomeProjected
	case errors.Is(err, graph.ErrDuplicateEvent):
		return observability.OutcomeDuplicate
	case errors.Is(err, graph.ErrUnhandledKind):
		return observability.OutcomeIgnored
	case errors.Is(err, graph.ErrMalformedEvent), errors.Is(err, graph.ErrMissingKey):
		return observability.OutcomeMalformed
	case errors.Is(err, graph.ErrMissingDependency):
		return observability.OutcomeMissingDependency
	default:
		return observability.OutcomeStoreUnavailable
	}
}
