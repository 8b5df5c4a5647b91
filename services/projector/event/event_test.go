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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameEvent(t *testing.T) {
	data := []byte(`["EVENT","sub-1",{"id":"ev1","pubkey":"pk1","created_at":1700000000,"kind":1,"tags":[["t","golang"]],"content":"hello","sig":"s"}]`)

	frame, err := DecodeFrame(data)

	require.NoError(t, err)
	assert.Equal(t, "sub-1", frame.SubscriptionID)
	assert.Equal(t, "ev1", frame.Event.ID)
	assert.Equal(t, "pk1", frame.Event.PubKey)
	assert.Equal(t, int64(1700000000), frame.Event.CreatedAt)
	assert.Equal(t, KindPost, frame.Event.Kind)
	assert.Equal(t, "hello", frame.Event.Content)
}

func TestDecodeFrameNonEvent(t *testing.T) {
	for _, data := range []string{
		`["EOSE","sub-1"]`,
		`["NOTICE","slow down"]`,
		`["OK","ev1",true,""]`,
	} {
		_, err := DecodeFrame([]byte(data))
		assert.ErrorIs(t, err, ErrNotEventFrame, "frame %s", data)
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`[]`,
		`["EVENT","sub-1"]`,
		`["EVENT","sub-1","not an object"]`,
		`{"id":"ev1"}`,
	}

	for _, data := range cases {
		_, err := DecodeFrame([]byte(data))
		require.Error(t, err, "frame %s", data)
		assert.NotErrorIs(t, err, ErrNotEventFrame, "frame %s", data)
	}
}

func TestTagValue(t *testing.T) {
	e := &Event{Tags: [][]string{
		{"p", "alice"},
		{"p", "bob"},
		{"short"},
		{"t", "golang"},
	}}

	assert.Equal(t, "alice", e.TagValue("p"))
	assert.Equal(t, "golang", e.TagValue("t"))
	assert.Equal(t, "", e.TagValue("missing"))
	assert.Equal(t, []string{"alice", "bob"}, e.TagValues("p"))
	assert.Nil(t, e.TagValues("missing"))
}

func TestDecodeProfile(t *testing.T) {
	e := &Event{Kind: KindProfile, Content: `{"name":"alice","about":"hi","nip05":"alice@example.com"}`}

	meta, err := DecodeProfile(e)

	require.NoError(t, err)
	assert.Equal(t, "alice", meta.Name)
	assert.Equal(t, "hi", meta.About)
	assert.Equal(t, "alice@example.com", meta.NIP05)
	assert.Empty(t, meta.Picture)
}

func TestDecodeProfileEmptyContent(t *testing.T) {
	meta, err := DecodeProfile(&Event{Kind: KindProfile})

	require.NoError(t, err)
	assert.Equal(t, &ProfileMetadata{}, meta)
}

func TestDecodeProfileBadContent(t *testing.T) {
	_, err := DecodeProfile(&Event{Content: "not json"})

	assert.Error(t, err)
}

func TestDecodePostTags(t *testing.T) {
	e := &Event{Tags: [][]string{
		{"e", "root-ev", "", "root"},
		{"e", "parent-ev", "wss://relay.example", "reply"},
		{"e", "vague-ev"},
		{"p", "bob"},
		{"t", "golang"},
		{"t", ""},
		{"unknown", "x"},
	}}

	tags := DecodePostTags(e)

	require.Len(t, tags.Refs, 3)
	assert.Equal(t, ETag{EventID: "root-ev", Marker: MarkerRoot}, tags.Refs[0])
	assert.Equal(t, ETag{EventID: "parent-ev", Relay: "wss://relay.example", Marker: MarkerReply}, tags.Refs[1])
	assert.Equal(t, ETag{EventID: "vague-ev"}, tags.Refs[2])
	assert.Equal(t, []string{"bob"}, tags.Mentions)
	assert.Equal(t, []string{"golang"}, tags.Topics)
}

func TestDecodeFollowTags(t *testing.T) {
	e := &Event{Kind: KindFollowList, Tags: [][]string{
		{"p", "alice"},
		{"p", "bob"},
		{"p", "alice"},
		{"t", "not-a-follow"},
		{"p", ""},
	}}

	assert.Equal(t, []string{"alice", "bob"}, DecodeFollowTags(e))
}

func TestDecodeFollowTagsEmptySnapshot(t *testing.T) {
	assert.Empty(t, DecodeFollowTags(&Event{Kind: KindFollowList}))
}

func TestDecodeRetweetTags(t *testing.T) {
	e := &Event{Kind: KindRetweet, Tags: [][]string{
		{"t", "twitter"},
		{"account", "alice"},
		{"post_id", "123"},
		{"created_at", "2024-01-01"},
	}}

	tags, err := DecodeRetweetTags(e)

	require.NoError(t, err)
	assert.Equal(t, "twitter", tags.Platform)
	assert.Equal(t, "alice", tags.Account)
	assert.Equal(t, "123", tags.PostID)
	assert.Equal(t, "2024-01-01", tags.CreatedAt)
}

func TestDecodeRetweetTagsMissingField(t *testing.T) {
	e := &Event{Kind: KindRetweet, Tags: [][]string{
		{"t", "twitter"},
		{"account", "alice"},
	}}

	_, err := DecodeRetweetTags(e)

	assert.Error(t, err)
}

func TestLamportTagSpellings(t *testing.T) {
	newSpelling := &Event{Tags: [][]string{{"LamportId", "lam1"}, {"Twitter", "tw1"}}}
	oldSpelling := &Event{Tags: [][]string{{"LamportID", "lam1"}, {"Twitter", "tw1"}}}

	for _, e := range []*Event{newSpelling, oldSpelling} {
		tags, err := DecodeBindTwitterTags(e)
		require.NoError(t, err)
		assert.Equal(t, "lam1", tags.LamportID)
		assert.Equal(t, "tw1", tags.TwitterID)
	}
}

func TestDecodeBindEthTags(t *testing.T) {
	e := &Event{Kind: KindBindEth, Tags: [][]string{
		{"LamportID", "lam1"},
		{"Address", "0xabc"},
		{"sig", "0xsig"},
	}}

	tags, err := DecodeBindEthTags(e)

	require.NoError(t, err)
	assert.Equal(t, "lam1", tags.LamportID)
	assert.Equal(t, "0xabc", tags.EthAddress)
	assert.Equal(t, "0xsig", tags.EthSig)
}

func TestDecodeBindEthTagsMissingAddress(t *testing.T) {
	e := &Event{Kind: KindBindEth, Tags: [][]string{{"LamportId", "lam1"}}}

	_, err := DecodeBindEthTags(e)

	assert.Error(t, err)
}

func TestDecodeInviteTags(t *testing.T) {
	e := &Event{Kind: KindInvite, Tags: [][]string{
		{"LamportId", "inviter-lam"},
		{"invitee", "invitee-lam"},
		{"p", "apollo"},
	}}

	tags, err := DecodeInviteTags(e)

	require.NoError(t, err)
	assert.Equal(t, "inviter-lam", tags.Inviter)
	assert.Equal(t, "invitee-lam", tags.Invitee)
	assert.Equal(t, "apollo", tags.ProjectName)
}

func TestDecodeInviteTagsMissingProject(t *testing.T) {
	e := &Event{Kind: KindInviteV2, Tags: [][]string{
		{"LamportId", "inviter-lam"},
		{"invitee", "invitee-lam"},
	}}

	_, err := DecodeInviteTags(e)

	assert.Error(t, err)
}

func TestDecodeVoteTags(t *testing.T) {
	e := &Event{Kind: KindVoteCreate, Tags: [][]string{
		{"LamportId", "lam1"},
		{"vote_id", "v1"},
		{"title", "release date"},
		{"content", "pick one"},
		{"options", "monday, tuesday,,friday "},
	}}

	tags, err := DecodeVoteTags(e)

	require.NoError(t, err)
	assert.Equal(t, "lam1", tags.CreatorLamportID)
	assert.Equal(t, "v1", tags.VoteID)
	assert.Equal(t, "release date", tags.Title)
	assert.Equal(t, []string{"monday", "tuesday", "friday"}, tags.Options)
}

func TestDecodeVoteTagsMissingTitle(t *testing.T) {
	e := &Event{Kind: KindVoteCreate, Tags: [][]string{
		{"LamportId", "lam1"},
		{"vote_id", "v1"},
	}}

	_, err := DecodeVoteTags(e)

	assert.Error(t, err)
}

func TestDecodeProjectTags(t *testing.T) {
	e := &Event{Kind: KindProjectAnnounce, Tags: [][]string{
		{"project_name", "apollo"},
		{"user_count", "12"},
		{"event_count", "340"},
		{"records_count", "7"},
		{"event_type", "post"},
		{"event_type", "vote"},
	}}

	tags, err := DecodeProjectTags(e)

	require.NoError(t, err)
	assert.Equal(t, "apollo", tags.ProjectName)
	assert.Equal(t, 12, tags.UserCount)
	assert.Equal(t, 340, tags.EventCount)
	assert.Equal(t, 7, tags.RecordsCount)
	assert.Equal(t, []string{"post", "vote"}, tags.EventTypes)
}

func TestDecodeProjectTagsBadCounter(t *testing.T) {
	e := &Event{Kind: KindProjectAnnounce, Tags: [][]string{
		{"project_name", "apollo"},
		{"user_count", "many"},
	}}

	_, err := DecodeProjectTags(e)

	assert.Error(t, err)
}

func TestDecodeProjectTagsMissingCountersDefaultZero(t *testing.T) {
	e := &Event{Kind: KindProjectAnnounce, Tags: [][]string{
		{"project_name", "apollo"},
	}}

	tags, err := DecodeProjectTags(e)

	require.NoError(t, err)
	assert.Zero(t, tags.UserCount)
	assert.Zero(t, tags.EventCount)
	assert.Zero(t, tags.RecordsCount)
}
