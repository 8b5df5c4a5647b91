// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dgraph

import (
	"context"

	"github.com/dgraph-io/dgo/v230/protos/api"
)

// Schema is the property-graph schema the projector writes against.
//
// Natural keys carry hash indexes so the resolver's eq() lookups stay
// index-backed. Relationship lists carry @reverse so membership edges
// written from one side are queryable from both.
const Schema = `
id: string @index(hash) .
content: string .
created_at: int .
kind: int .
sig: string .

pubkey: string @index(hash) .
lamport_id: string @index(hash) .
twitter_id: string @index(hash) .
eth_address: string @index(hash) .
eth_sig: string .
name: string .
about: string .
picture: string .
nip05: string .
website: string .
lud16: string .
platform: string @index(hash) .
account: string @index(hash) .
post_id: string @index(hash) .

tag_content: string @index(hash) .

project_name: string @index(hash) .
user_count: int .
event_count: int .
records_count: int .
event_type: [string] .
created_by: uid .

inviter: string .
invitee: string .
project_info: string .

vote_title: string @index(hash) .
vote_id: string @index(hash) .
vote_options: [string] .

author: uid @reverse .
posts: [uid] @reverse .
reply: uid .
replyed_by: [uid] @reverse .
root: uid .
child: [uid] @reverse .
mention_p: [uid] @reverse .
mentioned_by: [uid] @reverse .
tags: [uid] @reverse .
follows: [uid] @reverse .
retweet: [uid] @reverse .
invite: [uid] @reverse .
participates_in: [uid] @reverse .
create_votes: [uid] @reverse .

type User {
  pubkey
  name
  about
  picture
  nip05
  website
  lud16
  lamport_id
  twitter_id
  eth_address
  eth_sig
  platform
  account
  posts
  mentioned_by
  follows
  retweet
  invite
  participates_in
  create_votes
}

type Post {
  id
  pubkey
  content
  created_at
  kind
  sig
  platform
  post_id
  author
  reply
  replyed_by
  root
  child
  mention_p
  tags
}

type Tag {
  tag_content
}

type Project {
  id
  content
  created_by
  created_at
  project_name
  user_count
  event_count
  records_count
  event_type
}

type Vote {
  id
  pubkey
  kind
  created_at
  content
  sig
  vote_id
  vote_title
  vote_options
}

type Invite {
  id
  pubkey
  kind
  created_at
  content
  sig
  inviter
  invitee
  project_info
}
`

// ApplySchema installs or updates the schema. Alter is additive for new
// predicates and safe to rerun at startup.
func (c *ResilientClient) ApplySchema(ctx context.Context) error {
	return c.Alter(ctx, &api.Operation{Schema: Schema})
}

// DropAll wipes every node and the schema. Admin tooling only.
func (c *ResilientClient) DropAll(ctx context.Context) error {
	return c.Alter(ctx, &api.Operation{DropAll: true})
}
