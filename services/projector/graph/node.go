// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph is the projection engine: it classifies relay events by
// kind, resolves the entities they reference against the graph store by
// natural key, and assembles one additive mutation per event.
//
// The engine deliberately splits resolve (read) from mutate (write). The
// store offers no transaction spanning both, so correctness depends on
// strict lookup-before-write discipline and on events being applied one
// at a time; see Projector.
package graph

import (
	"fmt"
	"strings"
)

// Kind enumerates the node types of the property graph.
type Kind string

const (
	KindUser    Kind = "User"
	KindPost    Kind = "Post"
	KindTag     Kind = "Tag"
	KindProject Kind = "Project"
	KindVote    Kind = "Vote"
	KindInvite  Kind = "Invite"
)

// KeyPredicate returns the predicate holding the kind's natural key. Every
// kind the resolver handles has one; Invite and Vote nodes are keyed by
// the event id that created them.
func (k Kind) KeyPredicate() string {
	switch k {
	case KindUser:
		return "pubkey"
	case KindTag:
		return "tag_content"
	case KindProject:
		return "project_name"
	default:
		return "id"
	}
}

// Ref is a typed handle to a graph node: either an identifier assigned by
// the store or a placeholder blank-node reference for a node the current
// mutation will create. The zero Ref is invalid.
type Ref struct {
	uid         string
	placeholder bool
}

// ExistingRef wraps an identifier returned by a store lookup.
func ExistingRef(uid string) Ref {
	return Ref{uid: uid}
}

// PlaceholderRef builds a blank-node reference for a (kind, natural key)
// pair. The name is deterministic, so two rules referencing the same
// missing entity within one mutation converge on a single new node.
func PlaceholderRef(kind Kind, key string) Ref {
	return Ref{uid: "_:" + blankName(kind, key), placeholder: true}
}

// Exists reports whether the ref points at a node already in the store.
func (r Ref) Exists() bool { return !r.placeholder && r.uid != "" }

// UID returns the mutation form of the handle: a store identifier or a
// "_:" blank-node name.
func (r Ref) UID() string { return r.uid }

// blankName sanitizes a natural key into a blank-node label. Keys are
// usually hex strings, but tag contents and project names are free text.
func blankName(kind Kind, key string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(kind)))
	b.WriteByte('-')
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '-', c == '_':
			b.WriteRune(c)
		default:
			fmt.Fprintf(&b, "x%x", c)
		}
	}
	return b.String()
}

// Doc is one node document inside a mutation, in the store's JSON set
// format. Nested Docs express edges created in the same mutation.
type Doc map[string]any

// NewNode starts a node document for a ref.
func NewNode(ref Ref, kind Kind) Doc {
	return Doc{"uid": ref.UID(), "dgraph.type": string(kind)}
}

// Set assigns a predicate and returns the doc for chaining.
func (d Doc) Set(pred string, v any) Doc {
	d[pred] = v
	return d
}

// SetNonEmpty assigns a string predicate only when the value is non-empty,
// so sparse optional fields do not litter the store with empty triples.
func (d Doc) SetNonEmpty(pred, v string) Doc {
	if v != "" {
		d[pred] = v
	}
	return d
}

// UID returns the doc's handle, or "" for a doc built by hand without one.
func (d Doc) UID() string {
	uid, _ := d["uid"].(string)
	return uid
}

// RefEntry builds a minimal relationship-list entry pointing at ref.
func RefEntry(ref Ref) Doc {
	return Doc{"uid": ref.UID()}
}

// Mutation is the composite document submitted once per event. Set is
// additive: stored triples not mentioned are preserved. Delete is used
// only by the follow-snapshot rule, which replaces a list wholesale.
type Mutation struct {
	Set    []Doc
	Delete []Doc
}

// Empty reports whether the mutation carries no changes.
func (m *Mutation) Empty() bool {
	return len(m.Set) == 0 && len(m.Delete) == 0
}
