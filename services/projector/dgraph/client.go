// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dgraph provides a resilient Dgraph client with circuit breaker,
// retry with backoff, and graceful degradation.
//
// Features:
//   - Circuit breaker to prevent thundering herd
//   - Exponential backoff with jitter for retries
//   - Health checking with adaptive intervals
//   - Graceful degradation when Dgraph is unavailable
//   - OpenTelemetry tracing integration
//
// The client satisfies the projection engine's store contract: lookups
// run in read-only transactions, every mutation commits immediately, and
// transport failures surface as the store-unavailable sentinel.
package dgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/dgo/v230"
	"github.com/dgraph-io/dgo/v230/protos/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/AleutianAI/CausalityGraph/services/projector/graph"
	"github.com/AleutianAI/CausalityGraph/services/projector/observability"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open, dgraph requests blocked")

	// ErrClientClosed is returned when operations are called on a closed client.
	ErrClientClosed = errors.New("dgraph client is closed")
)

// ConnectionState represents the current state of the Dgraph connection.
type ConnectionState int32

const (
	// StateConnected indicates normal operation.
	StateConnected ConnectionState = iota
	// StateDegraded indicates Dgraph is unavailable but the client is functional.
	StateDegraded
	// StateCircuitOpen indicates the circuit breaker is open, requests blocked.
	StateCircuitOpen
	// StateHalfOpen indicates the circuit breaker is testing with a single request.
	StateHalfOpen
)

// String returns the string representation of ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateCircuitOpen:
		return "circuit_open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// DegradationHandler is notified when the store becomes unavailable or
// recovers. The read API uses this to shed graph endpoints instead of
// timing out requests.
type DegradationHandler interface {
	OnDegraded(reason string)
	OnRecovered()
}

// ClientConfig configures the resilient Dgraph client.
type ClientConfig struct {
	// Target is the Dgraph Alpha gRPC address (e.g., "localhost:9080").
	Target string

	// RetryAttempts is the number of retry attempts for failed requests.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the initial backoff duration between retries.
	// Default: 100ms
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the exponential backoff.
	// Default: 5s
	MaxRetryBackoff time.Duration

	// RetryJitter adds randomness to backoff (0.0-1.0).
	// Default: 0.25 (±25%)
	RetryJitter float64

	// CircuitThreshold is the number of failures before opening the circuit.
	// Default: 5
	CircuitThreshold int

	// CircuitWindow is the sliding window for counting failures.
	// Default: 30s
	CircuitWindow time.Duration

	// CircuitCooldown is how long the circuit stays open before half-opening.
	// Default: 30s
	CircuitCooldown time.Duration

	// HealthCheckInterval is how often to check health when connected.
	// Default: 10s
	HealthCheckInterval time.Duration

	// DegradedCheckInterval is how often to check health when degraded.
	// Default: 5s
	DegradedCheckInterval time.Duration

	// HealthCheckTimeout prevents health checks from blocking.
	// Default: 5s
	HealthCheckTimeout time.Duration

	// AllowStartDegraded allows starting even if Dgraph is unavailable.
	// Default: false
	AllowStartDegraded bool

	// Metrics records store round trips by operation and status. Optional.
	Metrics *observability.ProjectorMetrics

	// Logger for client operations.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults for production use.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RetryAttempts:         3,
		RetryBackoff:          100 * time.Millisecond,
		MaxRetryBackoff:       5 * time.Second,
		RetryJitter:           0.25,
		CircuitThreshold:      5,
		CircuitWindow:         30 * time.Second,
		CircuitCooldown:       30 * time.Second,
		HealthCheckInterval:   10 * time.Second,
		DegradedCheckInterval: 5 * time.Second,
		HealthCheckTimeout:    5 * time.Second,
		AllowStartDegraded:    false,
		Logger:                slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.Target == "" {
		return errors.New("target must not be empty")
	}
	if c.RetryAttempts < 0 {
		return errors.New("retry_attempts must be non-negative")
	}
	if c.RetryBackoff < 0 {
		return errors.New("retry_backoff must be non-negative")
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return errors.New("retry_jitter must be between 0 and 1")
	}
	if c.CircuitThreshold < 1 {
		return errors.New("circuit_threshold must be at least 1")
	}
	if c.CircuitWindow <= 0 {
		return errors.New("circuit_window must be positive")
	}
	if c.HealthCheckTimeout <= 0 {
		return errors.New("health_check_timeout must be positive")
	}
	return nil
}

// applyDefaults fills in zero values with defaults.
func (c *ClientConfig) applyDefaults() {
	defaults := DefaultClientConfig()
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = defaults.RetryBackoff
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if c.RetryJitter == 0 {
		c.RetryJitter = defaults.RetryJitter
	}
	if c.CircuitThreshold == 0 {
		c.CircuitThreshold = defaults.CircuitThreshold
	}
	if c.CircuitWindow == 0 {
		c.CircuitWindow = defaults.CircuitWindow
	}
	if c.CircuitCooldown == 0 {
		c.CircuitCooldown = defaults.CircuitCooldown
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = defaults.HealthCheckInterval
	}
	if c.DegradedCheckInterval == 0 {
		c.DegradedCheckInterval = defaults.DegradedCheckInterval
	}
	if c.HealthCheckTimeout == 0 {
		c.HealthCheckTimeout = defaults.HealthCheckTimeout
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
}

// ResilientClient wraps a dgo client with resilience features.
//
// Thread Safety: Safe for concurrent use from multiple goroutines.
type ResilientClient struct {
	conn   *grpc.ClientConn
	dgraph *dgo.Dgraph
	config ClientConfig
	logger *slog.Logger

	// State
	state           atomic.Int32
	circuitOpenTime atomic.Int64 // Unix timestamp when circuit opened
	closed          atomic.Bool

	// Circuit breaker - sliding window
	failures   []time.Time // Ring buffer of failure timestamps
	failureIdx int
	failureMu  sync.Mutex

	// Half-open state - only one test request allowed
	halfOpenTest atomic.Bool

	// Lifecycle
	healthCtx    context.Context
	healthCancel context.CancelFunc
	healthWg     sync.WaitGroup

	// Degradation handlers
	handlers   []DegradationHandler
	handlersMu sync.RWMutex
}

// compile-time check: the client is a usable graph store.
var _ graph.Store = (*ResilientClient)(nil)

// NewResilientClient creates a new resilient Dgraph client and verifies
// connectivity unless AllowStartDegraded is set.
func NewResilientClient(config ClientConfig) (*ResilientClient, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	conn, err := grpc.NewClient(config.Target,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("create dgraph connection: %w", err)
	}

	healthCtx, healthCancel := context.WithCancel(context.Background())

	rc := &ResilientClient{
		conn:         conn,
		dgraph:       dgo.NewDgraphClient(api.NewDgraphClient(conn)),
		config:       config,
		logger:       config.Logger.With(slog.String("component", "dgraph_client")),
		failures:     make([]time.Time, config.CircuitThreshold),
		healthCtx:    healthCtx,
		healthCancel: healthCancel,
	}
	rc.state.Store(int32(StateDegraded)) // Start degraded until proven healthy

	if err := rc.checkHealth(context.Background()); err != nil {
		if config.AllowStartDegraded {
			rc.logger.Warn("Dgraph unavailable at startup, starting in degraded mode",
				slog.String("target", config.Target),
				slog.String("error", err.Error()))
			rc.healthWg.Add(1)
			go rc.runHealthChecker()
			return rc, nil
		}
		healthCancel()
		_ = conn.Close()
		return nil, fmt.Errorf("dgraph not available: %w", err)
	}

	rc.transitionState(StateConnected)
	rc.healthWg.Add(1)
	go rc.runHealthChecker()

	rc.logger.Info("Dgraph client initialized",
		slog.String("target", config.Target),
		slog.String("state", rc.GetState().String()))

	return rc, nil
}

// Query runs a read-only query with variables and returns the raw JSON
// response. Transport failures surface as the store-unavailable sentinel
// after retries are exhausted.
func (c *ResilientClient) Query(ctx context.Context, query string, vars map[string]string) ([]byte, error) {
	var out []byte
	err := c.execute(ctx, "dgraph.Query", func(ctx context.Context) error {
		resp, err := c.dgraph.NewReadOnlyTxn().QueryWithVars(ctx, query, vars)
		if err != nil {
			return err
		}
		out = resp.GetJson()
		return nil
	})
	c.recordStoreOp("query", err)
	return out, err
}

// Mutate commits one mutation immediately. Delete docs are applied in the
// same request as the set docs, so snapshot replacement is atomic.
// Returns the uid assignments for blank-node placeholders.
func (c *ResilientClient) Mutate(ctx context.Context, mu *graph.Mutation) (map[string]string, error) {
	req := &api.Mutation{CommitNow: true}

	if len(mu.Set) > 0 {
		setJSON, err := json.Marshal(mu.Set)
		if err != nil {
			return nil, fmt.Errorf("encode set docs: %w", err)
		}
		req.SetJson = setJSON
	}
	if len(mu.Delete) > 0 {
		delJSON, err := json.Marshal(mu.Delete)
		if err != nil {
			return nil, fmt.Errorf("encode delete docs: %w", err)
		}
		req.DeleteJson = delJSON
	}

	var uids map[string]string
	err := c.execute(ctx, "dgraph.Mutate", func(ctx context.Context) error {
		resp, err := c.dgraph.NewTxn().Mutate(ctx, req)
		if err != nil {
			return err
		}
		uids = resp.GetUids()
		return nil
	})
	c.recordStoreOp("mutate", err)
	return uids, err
}

// Alter applies a schema operation. Used at startup and by the admin CLI.
func (c *ResilientClient) Alter(ctx context.Context, op *api.Operation) error {
	err := c.execute(ctx, "dgraph.Alter", func(ctx context.Context) error {
		return c.dgraph.Alter(ctx, op)
	})
	c.recordStoreOp("alter", err)
	return err
}

// recordStoreOp counts one finished store round trip.
func (c *ResilientClient) recordStoreOp(op string, err error) {
	if c.config.Metrics != nil {
		c.config.Metrics.RecordStoreOp(op, err == nil)
	}
}

// IsAvailable returns true if Dgraph is available for requests.
func (c *ResilientClient) IsAvailable() bool {
	state := ConnectionState(c.state.Load())
	return state == StateConnected || state == StateHalfOpen
}

// IsDegraded returns true if operating with reduced functionality.
func (c *ResilientClient) IsDegraded() bool {
	state := ConnectionState(c.state.Load())
	return state == StateDegraded || state == StateCircuitOpen
}

// GetState returns the current connection state.
func (c *ResilientClient) GetState() ConnectionState {
	return ConnectionState(c.state.Load())
}

// RegisterHandler registers a degradation handler.
func (c *ResilientClient) RegisterHandler(handler DegradationHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers = append(c.handlers, handler)

	if c.IsDegraded() {
		handler.OnDegraded("initial state: dgraph unavailable")
	}
}

// WaitForReady blocks until Dgraph is ready or timeout.
func (c *ResilientClient) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("dgraph not ready within %v: %w", timeout, graph.ErrStoreUnavailable)
		case <-ticker.C:
			if c.checkHealth(ctx) == nil {
				return nil
			}
		}
	}
}

// Close releases resources and stops the health checker.
func (c *ResilientClient) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	c.logger.Info("closing dgraph client")
	c.healthCancel()
	c.healthWg.Wait()
	return c.conn.Close()
}

// execute runs an operation with retry and circuit breaker protection.
func (c *ResilientClient) execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	ctx, span := otel.Tracer("dgraph").Start(ctx, op,
		trace.WithAttributes(
			attribute.String("state", c.GetState().String()),
		),
	)
	defer span.End()

	state := c.GetState()
	switch state {
	case StateCircuitOpen:
		if c.shouldTryHalfOpen() {
			c.transitionState(StateHalfOpen)
		} else {
			span.SetStatus(codes.Error, "circuit open")
			return fmt.Errorf("%w: %v", graph.ErrStoreUnavailable, ErrCircuitOpen)
		}
	case StateHalfOpen:
		// Only one test request allowed in half-open
		if !c.halfOpenTest.CompareAndSwap(false, true) {
			span.SetStatus(codes.Error, "circuit open (half-open busy)")
			return fmt.Errorf("%w: %v", graph.ErrStoreUnavailable, ErrCircuitOpen)
		}
		defer c.halfOpenTest.Store(false)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			span.AddEvent("retry", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.Int64("backoff_ms", backoff.Milliseconds()),
			))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			c.recordSuccess()
			span.SetStatus(codes.Ok, "success")
			return nil
		}

		if !isRetryable(lastErr) {
			// Application error (bad query, aborted txn): not the
			// transport's fault, do not trip the breaker.
			span.RecordError(lastErr)
			span.SetStatus(codes.Error, "request failed")
			return fmt.Errorf("dgraph request: %w", lastErr)
		}
	}

	c.recordFailure()
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all retries failed")
	return fmt.Errorf("%w: %v", graph.ErrStoreUnavailable, lastErr)
}

// transitionState changes state and notifies handlers.
func (c *ResilientClient) transitionState(newState ConnectionState) {
	oldState := ConnectionState(c.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}

	c.logger.Info("dgraph state transition",
		slog.String("from", oldState.String()),
		slog.String("to", newState.String()))

	c.handlersMu.RLock()
	handlers := c.handlers
	c.handlersMu.RUnlock()

	wasDegraded := oldState == StateDegraded || oldState == StateCircuitOpen
	isDegraded := newState == StateDegraded || newState == StateCircuitOpen

	if !wasDegraded && isDegraded {
		for _, h := range handlers {
			h.OnDegraded(fmt.Sprintf("state changed to %s", newState.String()))
		}
	} else if wasDegraded && !isDegraded {
		for _, h := range handlers {
			h.OnRecovered()
		}
	}
}

// checkHealth performs a minimal read with timeout against the store.
func (c *ResilientClient) checkHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.HealthCheckTimeout)
	defer cancel()

	ctx, span := otel.Tracer("dgraph").Start(ctx, "dgraph.health_check")
	defer span.End()

	const probe = `{ probe(func: uid(0x1)) { uid } }`
	if _, err := c.dgraph.NewReadOnlyTxn().BestEffort().Query(ctx, probe); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "health check failed")
		return fmt.Errorf("health check failed: %w", err)
	}

	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// runHealthChecker runs periodic health checks.
func (c *ResilientClient) runHealthChecker() {
	defer c.healthWg.Done()

	for {
		interval := c.config.HealthCheckInterval
		if c.IsDegraded() {
			interval = c.config.DegradedCheckInterval
		}

		select {
		case <-c.healthCtx.Done():
			return
		case <-time.After(interval):
			c.performHealthCheck()
		}
	}
}

// performHealthCheck runs a single health check and updates state.
func (c *ResilientClient) performHealthCheck() {
	err := c.checkHealth(c.healthCtx)
	currentState := c.GetState()

	if err == nil {
		switch currentState {
		case StateDegraded, StateHalfOpen:
			c.transitionState(StateConnected)
			c.resetFailures()
		case StateCircuitOpen:
			// Don't transition directly from open to connected.
			// Let a half-open test succeed first.
			if c.shouldTryHalfOpen() {
				c.transitionState(StateHalfOpen)
			}
		}
	} else {
		if currentState == StateConnected {
			c.transitionState(StateDegraded)
		}
	}
}

// recordSuccess records a successful request.
func (c *ResilientClient) recordSuccess() {
	if c.GetState() == StateHalfOpen {
		c.transitionState(StateConnected)
		c.resetFailures()
	}
}

// recordFailure records a failed request.
func (c *ResilientClient) recordFailure() {
	c.failureMu.Lock()
	defer c.failureMu.Unlock()

	now := time.Now()
	c.failures[c.failureIdx] = now
	c.failureIdx = (c.failureIdx + 1) % len(c.failures)

	windowStart := now.Add(-c.config.CircuitWindow)
	count := 0
	for _, t := range c.failures {
		if !t.IsZero() && t.After(windowStart) {
			count++
		}
	}

	if count >= c.config.CircuitThreshold {
		if c.GetState() != StateCircuitOpen {
			c.circuitOpenTime.Store(now.Unix())
			c.transitionState(StateCircuitOpen)
			c.logger.Warn("circuit breaker opened",
				slog.Int("failures", count),
				slog.Duration("window", c.config.CircuitWindow))
		}
	} else if c.GetState() == StateConnected {
		c.transitionState(StateDegraded)
	}
}

// resetFailures clears the failure buffer.
func (c *ResilientClient) resetFailures() {
	c.failureMu.Lock()
	defer c.failureMu.Unlock()
	for i := range c.failures {
		c.failures[i] = time.Time{}
	}
	c.failureIdx = 0
}

// shouldTryHalfOpen checks if cooldown expired.
func (c *ResilientClient) shouldTryHalfOpen() bool {
	openTime := time.Unix(c.circuitOpenTime.Load(), 0)
	return time.Since(openTime) >= c.config.CircuitCooldown
}

// calculateBackoff returns backoff with jitter.
func (c *ResilientClient) calculateBackoff(attempt int) time.Duration {
	backoff := c.config.RetryBackoff * time.Duration(1<<attempt)
	if backoff > c.config.MaxRetryBackoff {
		backoff = c.config.MaxRetryBackoff
	}

	jitterRange := float64(backoff) * c.config.RetryJitter
	jitter := (rand.Float64()*2 - 1) * jitterRange
	backoff = time.Duration(float64(backoff) + jitter)

	if backoff < 0 {
		backoff = c.config.RetryBackoff
	}
	return backoff
}

// isRetryable determines if an error is worth retrying. gRPC status codes
// classify transport-level failures; anything else is an application
// error (bad query, aborted transaction) the caller must handle.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	switch status.Code(err) {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}
