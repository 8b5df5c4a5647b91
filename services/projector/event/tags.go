// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package event

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate checks the required-field tags on decoded tag schemas. One
// shared instance; validator.Validate is safe for concurrent use.
var validate = validator.New()

// Reference markers on e-tags. An e-tag without one of these markers is an
// ambiguous reference and records no relation.
const (
	MarkerReply = "reply"
	MarkerRoot  = "root"
)

// ETag references another event, optionally with a relay hint and a
// marker. Wire shape: ["e", <event-id>, <relay-url>?, <marker>?].
type ETag struct {
	EventID string
	Relay   string
	Marker  string
}

// PostTags is the decoded tag set of a post event. All lists preserve
// arrival order.
type PostTags struct {
	Refs     []ETag
	Mentions []string // pubkeys from p-tags
	Topics   []string // topic strings from t-tags
}

// DecodePostTags extracts the post-relevant tags. Unknown tag names are
// ignored; tuples too short to carry a value are skipped.
func DecodePostTags(e *Event) *PostTags {
	tags := &PostTags{}
	for _, tag := range e.Tags {
		if len(tag) < 2 || tag[1] == "" {
			continue
		}
		switch tag[0] {
		case "e":
			ref := ETag{EventID: tag[1]}
			if len(tag) > 2 {
				ref.Relay = tag[2]
			}
			if len(tag) > 3 {
				ref.Marker = tag[3]
			}
			tags.Refs = append(tags.Refs, ref)
		case "p":
			tags.Mentions = append(tags.Mentions, tag[1])
		case "t":
			tags.Topics = append(tags.Topics, tag[1])
		}
	}
	return tags
}

// DecodeFollowTags returns the full list of followed pubkeys declared by a
// follow-list event, deduplicated, in arrival order. The snapshot may be
// empty (unfollow-all is a valid declaration).
func DecodeFollowTags(e *Event) []string {
	seen := make(map[string]struct{})
	var follows []string
	for _, tag := range e.Tags {
		if len(tag) < 2 || tag[0] != "p" || tag[1] == "" {
			continue
		}
		if _, dup := seen[tag[1]]; dup {
			continue
		}
		seen[tag[1]] = struct{}{}
		follows = append(follows, tag[1])
	}
	return follows
}

// RetweetTags identifies an external-platform repost. The platform rides
// in the t-tag for this kind.
type RetweetTags struct {
	Platform  string `validate:"required"`
	Account   string `validate:"required"`
	PostID    string `validate:"required"`
	CreatedAt string
}

// DecodeRetweetTags decodes and validates the tag schema of a retweet
// event.
func DecodeRetweetTags(e *Event) (*RetweetTags, error) {
	tags := &RetweetTags{
		Platform:  e.TagValue("t"),
		Account:   e.TagValue("account"),
		PostID:    e.TagValue("post_id"),
		CreatedAt: e.TagValue("created_at"),
	}
	if err := validate.Struct(tags); err != nil {
		return nil, fmt.Errorf("retweet tags: %w", err)
	}
	return tags, nil
}

// BindTwitterTags is the schema of a Twitter identity binding.
type BindTwitterTags struct {
	LamportID string `validate:"required"`
	TwitterID string `validate:"required"`
}

// DecodeBindTwitterTags decodes and validates a kind 2321 tag set.
func DecodeBindTwitterTags(e *Event) (*BindTwitterTags, error) {
	tags := &BindTwitterTags{
		LamportID: lamportTag(e),
		TwitterID: e.TagValue("Twitter"),
	}
	if err := validate.Struct(tags); err != nil {
		return nil, fmt.Errorf("twitter binding tags: %w", err)
	}
	return tags, nil
}

// BindEthTags is the schema of an Ethereum identity binding.
type BindEthTags struct {
	LamportID  string `validate:"required"`
	EthAddress string `validate:"required"`
	EthSig     string
}

// DecodeBindEthTags decodes and validates a kind 2322 tag set.
func DecodeBindEthTags(e *Event) (*BindEthTags, error) {
	tags := &BindEthTags{
		LamportID:  lamportTag(e),
		EthAddress: e.TagValue("Address"),
		EthSig:     e.TagValue("sig"),
	}
	if err := validate.Struct(tags); err != nil {
		return nil, fmt.Errorf("eth binding tags: %w", err)
	}
	return tags, nil
}

// InviteTags names the inviter and invitee by lamport id and the target
// project by name. The p-tag carries the project name for this kind.
type InviteTags struct {
	Inviter     string `validate:"required"`
	Invitee     string `validate:"required"`
	ProjectName string `validate:"required"`
}

// DecodeInviteTags decodes and validates an invite tag set (kinds 2323
// and 24111 share the schema).
func DecodeInviteTags(e *Event) (*InviteTags, error) {
	tags := &InviteTags{
		Inviter:     lamportTag(e),
		Invitee:     e.TagValue("invitee"),
		ProjectName: e.TagValue("p"),
	}
	if err := validate.Struct(tags); err != nil {
		return nil, fmt.Errorf("invite tags: %w", err)
	}
	return tags, nil
}

// VoteTags is the schema of a vote-creation event. Options are delivered
// comma-separated in a single tag.
type VoteTags struct {
	CreatorLamportID string `validate:"required"`
	VoteID           string `validate:"required"`
	Title            string `validate:"required"`
	Content          string
	Options          []string
}

// DecodeVoteTags decodes and validates a kind 2410 tag set.
func DecodeVoteTags(e *Event) (*VoteTags, error) {
	tags := &VoteTags{
		CreatorLamportID: lamportTag(e),
		VoteID:           e.TagValue("vote_id"),
		Title:            e.TagValue("title"),
		Content:          e.TagValue("content"),
	}
	if raw := e.TagValue("options"); raw != "" {
		for _, opt := range strings.Split(raw, ",") {
			if opt = strings.TrimSpace(opt); opt != "" {
				tags.Options = append(tags.Options, opt)
			}
		}
	}
	if err := validate.Struct(tags); err != nil {
		return nil, fmt.Errorf("vote tags: %w", err)
	}
	return tags, nil
}

// ProjectTags is the schema of a project announcement.
type ProjectTags struct {
	ProjectName  string `validate:"required"`
	UserCount    int
	EventCount   int
	RecordsCount int
	EventTypes   []string
}

// DecodeProjectTags decodes and validates a kind 30050 tag set. Counter
// tags that fail to parse as integers are malformed, not silently zeroed.
func DecodeProjectTags(e *Event) (*ProjectTags, error) {
	tags := &ProjectTags{
		ProjectName: e.TagValue("project_name"),
		EventTypes:  e.TagValues("event_type"),
	}

	var err error
	if tags.UserCount, err = intTag(e, "user_count"); err != nil {
		return nil, err
	}
	if tags.EventCount, err = intTag(e, "event_count"); err != nil {
		return nil, err
	}
	if tags.RecordsCount, err = intTag(e, "records_count"); err != nil {
		return nil, err
	}

	if err := validate.Struct(tags); err != nil {
		return nil, fmt.Errorf("project tags: %w", err)
	}
	return tags, nil
}

// lamportTag returns the lamport id tag regardless of which historical
// spelling the publisher used. Older clients emitted "LamportID" for some
// kinds and "LamportId" for others; both map to the one canonical field.
func lamportTag(e *Event) string {
	if v := e.TagValue("LamportId"); v != "" {
		return v
	}
	return e.TagValue("LamportID")
}

func intTag(e *Event, name string) (int, error) {
	raw := e.TagValue(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("tag %q: %q is not an integer", name, raw)
	}
	return n, nil
}
