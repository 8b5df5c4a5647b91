// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package event models the relay event stream: the wire frames delivered
// over the WebSocket subscription, the signed event records inside them,
// and the per-kind tag schemas the projector dispatches on.
//
// Events are schemaless on the wire (tags are ordered string tuples), so
// each kind declares a typed tag schema with its required fields. Decoding
// a schema either yields a fully-populated struct or a descriptive error;
// the projection rules never index into raw tag tuples directly.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Known event kinds. The relay delivers arbitrary kinds; the projector
// only dispatches on the ones listed here and ignores the rest.
const (
	// KindProfile carries a user's profile metadata in the content field.
	KindProfile = 0

	// KindPost is a short text note, optionally tagged with references to
	// other posts (e-tags), mentioned users (p-tags), and topics (t-tags).
	KindPost = 1

	// KindFollowList is a declarative snapshot of the author's follow list.
	KindFollowList = 3

	// KindRetweet mirrors a repost made on an external platform; the user
	// and post it references are keyed by (platform, account/post id).
	KindRetweet = 6

	// KindRecord is a platform record event projected identically to posts.
	KindRecord = 10

	// KindBindTwitter binds a lamport id and Twitter id to the author.
	KindBindTwitter = 2321

	// KindBindEth binds an Ethereum address to the author.
	KindBindEth = 2322

	// KindInvite invites a user into a project. KindInviteV2 is a newer
	// kind number with identical semantics; both map to the same rule.
	KindInvite   = 2323
	KindInviteV2 = 24111

	// KindVoteCreate creates a vote owned by its creator.
	KindVoteCreate = 2410

	// KindProjectAnnounce announces a project with its counters.
	KindProjectAnnounce = 30050
)

// frameEvent is the frame label for event deliveries. Other frame types
// (EOSE, NOTICE, OK, ...) are ignored by the projector.
const frameEvent = "EVENT"

// ErrNotEventFrame is returned by DecodeFrame for well-formed frames that
// are not event deliveries. Callers should skip these without logging.
var ErrNotEventFrame = errors.New("not an EVENT frame")

// Event is one signed, append-only record from the relay feed.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Frame is a decoded EVENT frame: the subscription it belongs to and the
// event record it carries.
type Frame struct {
	SubscriptionID string
	Event          Event
}

// DecodeFrame parses one relay frame.
//
// Frames are JSON arrays of the shape ["EVENT", <subscription-id>,
// <event-object>]. Frames with a different label return ErrNotEventFrame;
// structurally broken frames return a decode error.
func DecodeFrame(data []byte) (*Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if len(parts) == 0 {
		return nil, errors.New("decode frame: empty array")
	}

	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil {
		return nil, fmt.Errorf("decode frame label: %w", err)
	}
	if label != frameEvent {
		return nil, ErrNotEventFrame
	}
	if len(parts) < 3 {
		return nil, fmt.Errorf("EVENT frame has %d elements, want 3", len(parts))
	}

	frame := &Frame{}
	if err := json.Unmarshal(parts[1], &frame.SubscriptionID); err != nil {
		return nil, fmt.Errorf("decode subscription id: %w", err)
	}
	if err := json.Unmarshal(parts[2], &frame.Event); err != nil {
		return nil, fmt.Errorf("decode event object: %w", err)
	}
	return frame, nil
}

// TagValue returns the second element of the first tag whose name matches,
// or "" when the tag is absent. Most named tags are single-valued.
func (e *Event) TagValue(name string) string {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// TagValues returns the second element of every tag whose name matches, in
// arrival order. Used for set-valued tags such as event_type.
func (e *Event) TagValues(name string) []string {
	var values []string
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			values = append(values, tag[1])
		}
	}
	return values
}

// ProfileMetadata is the content document of a KindProfile event. Scalar
// fields only; projection is last-write-wins.
type ProfileMetadata struct {
	Name    string `json:"name"`
	About   string `json:"about"`
	Picture string `json:"picture"`
	NIP05   string `json:"nip05"`
	Website string `json:"website"`
	Lud16   string `json:"lud16"`
}

// DecodeProfile parses the content field of a profile event. An empty
// content document is valid (a profile can be cleared).
func DecodeProfile(e *Event) (*ProfileMetadata, error) {
	meta := &ProfileMetadata{}
	if e.Content == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(e.Content), meta); err != nil {
		return nil, fmt.Errorf("decode profile content: %w", err)
	}
	return meta, nil
}
