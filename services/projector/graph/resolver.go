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
	"encoding/json"
	"fmt"
	"strings"
)

// uidListPredicates are the multi-valued edge predicates a lookup may
// expand. Anything not listed here or in uidScalarPredicates is fetched
// as a scalar attribute.
var uidListPredicates = map[string]bool{
	"posts":           true,
	"mentioned_by":    true,
	"replyed_by":      true,
	"child":           true,
	"follows":         true,
	"retweet":         true,
	"participates_in": true,
	"create_votes":    true,
	"invite":          true,
	"tags":            true,
	"mention_p":       true,
}

// uidScalarPredicates are single-valued edge predicates.
var uidScalarPredicates = map[string]bool{
	"reply":      true,
	"root":       true,
	"author":     true,
	"created_by": true,
}

// Resolved is the outcome of a natural-key lookup: a handle to the node
// (existing or placeholder) plus whatever relation lists and scalar
// attributes the caller asked to fetch alongside it.
type Resolved struct {
	Ref       Ref
	Relations map[string][]Ref
	Attrs     map[string]string
}

// Exists reports whether the lookup found a stored node.
func (r *Resolved) Exists() bool { return r.Ref.Exists() }

// Relation returns a fetched relation list; nil for an absent node or a
// predicate that was not requested.
func (r *Resolved) Relation(pred string) []Ref { return r.Relations[pred] }

// Attr returns a fetched scalar attribute, "" when unset.
func (r *Resolved) Attr(pred string) string { return r.Attrs[pred] }

// Resolver answers "does this entity already exist?" against the store.
// It is read-only; every method maps a (kind, natural key) pair to either
// an existing handle with its current relations or a placeholder for the
// mutation to create.
type Resolver struct {
	store Store
}

// NewResolver builds a resolver over a store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve looks a node up by its kind's natural key predicate. preds
// names the relation lists and scalar attributes to fetch in the same
// lookup. An empty key fails with ErrMissingKey; a store failure
// propagates so the caller commits nothing.
func (r *Resolver) Resolve(ctx context.Context, kind Kind, key string, preds ...string) (*Resolved, error) {
	return r.ResolveKeyed(ctx, kind, kind.KeyPredicate(), key, preds...)
}

// ResolveKeyed is Resolve with an explicit key predicate, for secondary
// natural keys such as a User's lamport_id.
func (r *Resolver) ResolveKeyed(ctx context.Context, kind Kind, keyPred, key string, preds ...string) (*Resolved, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: %s has empty %s", ErrMissingKey, kind, keyPred)
	}

	query := buildLookup(kind, keyPred, "", preds)
	resp, err := r.store.Query(ctx, query, map[string]string{"$key": key})
	if err != nil {
		return nil, fmt.Errorf("resolve %s by %s: %w", kind, keyPred, err)
	}
	return parseResolved(resp, kind, key, preds)
}

// ResolveWhere looks a node up by a (key, filter) predicate pair, for
// compound natural keys such as (platform, account).
func (r *Resolver) ResolveWhere(ctx context.Context, kind Kind, keyPred, key, filterPred, filterVal string, preds ...string) (*Resolved, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: %s has empty %s", ErrMissingKey, kind, keyPred)
	}

	query := buildLookup(kind, keyPred, filterPred, preds)
	vars := map[string]string{"$key": key, "$filter": filterVal}
	resp, err := r.store.Query(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("resolve %s by %s+%s: %w", kind, keyPred, filterPred, err)
	}
	// Compound keys get a compound placeholder so distinct (filter, key)
	// pairs never collapse into one blank node.
	return parseResolved(resp, kind, filterVal+"/"+key, preds)
}

// LookupEventID checks whether any node was created from the given event
// id, regardless of kind. This is the idempotency probe: invites, votes,
// projects and posts all record the event id that created them.
func (r *Resolver) LookupEventID(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: empty event id", ErrMissingKey)
	}

	const query = `query lookup($key: string) {
  node(func: eq(id, $key)) {
    uid
  }
}`
	resp, err := r.store.Query(ctx, query, map[string]string{"$key": id})
	if err != nil {
		return false, fmt.Errorf("lookup event id: %w", err)
	}

	var out struct {
		Node []struct {
			UID string `json:"uid"`
		} `json:"node"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return false, fmt.Errorf("lookup event id: decode response: %w", err)
	}
	return len(out.Node) > 0, nil
}

// buildLookup renders the lookup query. The key rides in a query variable
// so free-text natural keys (tag contents, project names) cannot break
// out of the query.
func buildLookup(kind Kind, keyPred, filterPred string, preds []string) string {
	var b strings.Builder
	b.WriteString("query resolve($key: string")
	if filterPred != "" {
		b.WriteString(", $filter: string")
	}
	b.WriteString(") {\n")
	fmt.Fprintf(&b, "  node(func: eq(%s, $key)) @filter(type(%s)", keyPred, kind)
	if filterPred != "" {
		fmt.Fprintf(&b, " AND eq(%s, $filter)", filterPred)
	}
	b.WriteString(") {\n    uid\n")
	for _, pred := range preds {
		if uidListPredicates[pred] || uidScalarPredicates[pred] {
			fmt.Fprintf(&b, "    %s {\n      uid\n    }\n", pred)
		} else {
			fmt.Fprintf(&b, "    %s\n", pred)
		}
	}
	b.WriteString("  }\n}")
	return b.String()
}

// parseResolved interprets a lookup response. No match yields a
// deterministic placeholder for the (kind, key) pair; more than one match
// means the store already violates the one-node-per-key invariant, and
// the first match is reused rather than deepening the damage.
func parseResolved(resp []byte, kind Kind, key string, preds []string) (*Resolved, error) {
	var out struct {
		Node []map[string]json.RawMessage `json:"node"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("resolve %s: decode response: %w", kind, err)
	}

	if len(out.Node) == 0 {
		return &Resolved{Ref: PlaceholderRef(kind, key)}, nil
	}

	node := out.Node[0]
	resolved := &Resolved{
		Relations: make(map[string][]Ref),
		Attrs:     make(map[string]string),
	}

	var uid string
	if err := json.Unmarshal(node["uid"], &uid); err != nil {
		return nil, fmt.Errorf("resolve %s: decode uid: %w", kind, err)
	}
	resolved.Ref = ExistingRef(uid)

	type refJSON struct {
		UID string `json:"uid"`
	}
	for _, pred := range preds {
		raw, ok := node[pred]
		if !ok {
			continue
		}
		switch {
		case uidListPredicates[pred]:
			var refs []refJSON
			if err := json.Unmarshal(raw, &refs); err != nil {
				// Single-edge lists come back as one object.
				var one refJSON
				if err := json.Unmarshal(raw, &one); err != nil {
					return nil, fmt.Errorf("resolve %s: decode %s: %w", kind, pred, err)
				}
				refs = []refJSON{one}
			}
			for _, ref := range refs {
				resolved.Relations[pred] = append(resolved.Relations[pred], ExistingRef(ref.UID))
			}
		case uidScalarPredicates[pred]:
			var one refJSON
			if err := json.Unmarshal(raw, &one); err != nil {
				return nil, fmt.Errorf("resolve %s: decode %s: %w", kind, pred, err)
			}
			resolved.Relations[pred] = []Ref{ExistingRef(one.UID)}
		default:
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				// Non-string scalar; not needed by any rule, skip.
				continue
			}
			resolved.Attrs[pred] = s
		}
	}
	return resolved, nil
}
