// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/CausalityGraph/services/projector/event"
	"github.com/AleutianAI/CausalityGraph/services/projector/observability"
)

// SeenCache is an optional local fast path for the event-id idempotency
// probe. A miss or an error always falls through to the authoritative
// store lookup, so losing the cache is safe.
type SeenCache interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

// Projector classifies events by kind and applies the matching projection
// rule: resolve referenced entities, merge relationship lists, submit one
// composite mutation.
//
// Apply must not be called concurrently. Each rule performs a read
// (resolve) and a separate write (mutate) with no transaction spanning
// both; two concurrent events referencing the same natural key could both
// observe "not found" and create duplicate nodes. The feed consumer
// applies events strictly one at a time.
type Projector struct {
	store    Store
	resolver *Resolver
	seen     SeenCache
	metrics  *observability.ProjectorMetrics
	logger   *slog.Logger
}

// Option configures a Projector.
type Option func(*Projector)

// WithSeenCache attaches a local seen-event cache.
func WithSeenCache(cache SeenCache) Option {
	return func(p *Projector) { p.seen = cache }
}

// WithLogger sets the projector's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Projector) { p.logger = logger }
}

// WithMetrics records seen-cache lookup results.
func WithMetrics(metrics *observability.ProjectorMetrics) Option {
	return func(p *Projector) { p.metrics = metrics }
}

// New builds a projector over a store.
func New(store Store, opts ...Option) *Projector {
	p := &Projector{
		store:    store,
		resolver: NewResolver(store),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("component", "projector"))
	return p
}

// Apply projects one event into the graph.
//
// Returns nil on success. Duplicate deliveries surface as
// ErrDuplicateEvent and kinds without a rule as ErrUnhandledKind; both
// are skip signals the caller treats as handled. Permanent failures
// (malformed payload, missing key, missing dependency) are reported with
// a sentinel matched by IsPermanent; the caller should drop the event.
// Anything else is a transient store failure, and no partial mutation has
// been committed for the event.
func (p *Projector) Apply(ctx context.Context, e *event.Event) error {
	switch e.Kind {
	case event.KindProfile:
		return p.applyProfile(ctx, e)
	case event.KindPost, event.KindRecord:
		return p.applyPost(ctx, e)
	case event.KindFollowList:
		return p.applyFollowList(ctx, e)
	case event.KindRetweet:
		return p.applyRetweet(ctx, e)
	case event.KindBindTwitter:
		return p.applyBindTwitter(ctx, e)
	case event.KindBindEth:
		return p.applyBindEth(ctx, e)
	case event.KindInvite, event.KindInviteV2:
		return p.applyInvite(ctx, e)
	case event.KindVoteCreate:
		return p.applyVote(ctx, e)
	case event.KindProjectAnnounce:
		return p.applyProject(ctx, e)
	default:
		p.logger.Debug("ignoring unhandled event kind",
			slog.Int("kind", e.Kind), slog.String("id", e.ID))
		return fmt.Errorf("%w: %d", ErrUnhandledKind, e.Kind)
	}
}

// alreadyRecorded runs the idempotency probe for kinds keyed by event id:
// local cache first, then the authoritative store lookup.
func (p *Projector) alreadyRecorded(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: event has no id", ErrMalformedEvent)
	}
	if p.seen != nil {
		hit, err := p.seen.Seen(ctx, id)
		if err != nil {
			p.logger.Debug("seen cache probe failed, falling back to store",
				slog.String("id", id), slog.String("error", err.Error()))
		} else {
			if p.metrics != nil {
				p.metrics.RecordCacheLookup(hit)
			}
			if hit {
				return true, nil
			}
		}
	}
	return p.resolver.LookupEventID(ctx, id)
}

// markRecorded records a projected event id in the local cache. Cache
// write failures are logged and ignored; the store remains authoritative.
func (p *Projector) markRecorded(ctx context.Context, id string) {
	if p.seen == nil {
		return
	}
	if err := p.seen.Mark(ctx, id); err != nil {
		p.logger.Warn("seen cache write failed",
			slog.String("id", id), slog.String("error", err.Error()))
	}
}

// submit sends the event's composite mutation to the store.
func (p *Projector) submit(ctx context.Context, mu *Mutation) error {
	if mu.Empty() {
		return nil
	}
	if _, err := p.store.Mutate(ctx, mu); err != nil {
		return fmt.Errorf("submit mutation: %w", err)
	}
	return nil
}
