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
)

// applyProfile upserts the author's User node with the profile metadata
// from the content document. Last write wins; no relations change.
func (p *Projector) applyProfile(ctx context.Context, e *event.Event) error {
	meta, err := event.DecodeProfile(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	user, err := p.resolver.Resolve(ctx, KindUser, e.PubKey)
	if err != nil {
		return err
	}

	doc := NewNode(user.Ref, KindUser).
		Set("pubkey", e.PubKey).
		Set("name", meta.Name).
		Set("about", meta.About).
		Set("picture", meta.Picture).
		Set("nip05", meta.NIP05).
		Set("website", meta.Website).
		Set("lud16", meta.Lud16)

	if err := p.submit(ctx, &Mutation{Set: []Doc{doc}}); err != nil {
		return err
	}
	p.logger.Info("projected profile",
		slog.String("pubkey", e.PubKey), slog.Bool("new_user", !user.Exists()))
	return nil
}

// applyPost creates a Post node for the event and wires its references:
// author, reply/root parents, mentioned users, and topic tags. Replays of
// an already-projected event id succeed without touching the store.
func (p *Projector) applyPost(ctx context.Context, e *event.Event) error {
	dup, err := p.alreadyRecorded(ctx, e.ID)
	if err != nil {
		return err
	}
	if dup {
		p.logger.Debug("duplicate post delivery", slog.String("id", e.ID))
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, e.ID)
	}

	author, err := p.resolver.Resolve(ctx, KindUser, e.PubKey, "posts")
	if err != nil {
		return err
	}

	postRef := PlaceholderRef(KindPost, e.ID)
	post := NewNode(postRef, KindPost).
		Set("id", e.ID).
		Set("pubkey", e.PubKey).
		Set("kind", e.Kind).
		Set("created_at", e.CreatedAt).
		Set("content", e.Content).
		SetNonEmpty("sig", e.Sig).
		Set("author", RefEntry(author.Ref))

	authorDoc := NewNode(author.Ref, KindUser).
		Set("pubkey", e.PubKey).
		Set("posts", MergeRef(author.Relation("posts"), postRef))

	mu := &Mutation{Set: []Doc{post, authorDoc}}

	tags := event.DecodePostTags(e)
	if err := p.wirePostRefs(ctx, e, post, postRef, tags.Refs, mu); err != nil {
		return err
	}
	if err := p.wirePostMentions(ctx, post, postRef, tags.Mentions); err != nil {
		return err
	}
	if err := p.wirePostTopics(ctx, post, tags.Topics); err != nil {
		return err
	}

	if err := p.submit(ctx, mu); err != nil {
		return err
	}
	p.markRecorded(ctx, e.ID)
	p.logger.Info("projected post",
		slog.String("id", e.ID), slog.Int("kind", e.Kind),
		slog.Int("refs", len(tags.Refs)), slog.Int("mentions", len(tags.Mentions)),
		slog.Int("topics", len(tags.Topics)))
	return nil
}

// wirePostRefs connects the post to the events its e-tags reference. The
// first reply marker and the first root marker win; unmarked references
// are ambiguous and record no relation, but never fail the event.
func (p *Projector) wirePostRefs(ctx context.Context, e *event.Event, post Doc, postRef Ref, refs []event.ETag, mu *Mutation) error {
	var haveReply, haveRoot bool
	for _, ref := range refs {
		var forward, reverse string
		switch ref.Marker {
		case event.MarkerReply:
			if haveReply {
				p.logger.Warn("extra reply marker ignored",
					slog.String("id", e.ID), slog.String("target", ref.EventID))
				continue
			}
			haveReply = true
			forward, reverse = "reply", "replyed_by"
		case event.MarkerRoot:
			if haveRoot {
				p.logger.Warn("extra root marker ignored",
					slog.String("id", e.ID), slog.String("target", ref.EventID))
				continue
			}
			haveRoot = true
			forward, reverse = "root", "child"
		default:
			p.logger.Warn("unmarked event reference skipped",
				slog.String("id", e.ID), slog.String("target", ref.EventID))
			continue
		}

		target, err := p.resolver.Resolve(ctx, KindPost, ref.EventID, reverse)
		if err != nil {
			return err
		}
		post.Set(forward, RefEntry(target.Ref))

		targetDoc := NewNode(target.Ref, KindPost).
			Set("id", ref.EventID).
			Set(reverse, MergeRef(target.Relation(reverse), postRef))
		mu.Set = append(mu.Set, targetDoc)
	}
	return nil
}

// wirePostMentions attaches mentioned users to the post's mention list and
// the post to each user's mentioned_by list.
func (p *Projector) wirePostMentions(ctx context.Context, post Doc, postRef Ref, mentions []string) error {
	var entries []Doc
	wired := make(map[string]struct{})
	for _, pubkey := range mentions {
		if _, dup := wired[pubkey]; dup {
			continue
		}
		wired[pubkey] = struct{}{}

		user, err := p.resolver.Resolve(ctx, KindUser, pubkey, "mentioned_by")
		if err != nil {
			return err
		}
		entry := NewNode(user.Ref, KindUser).
			Set("pubkey", pubkey).
			Set("mentioned_by", MergeRef(user.Relation("mentioned_by"), postRef))
		entries = append(entries, entry)
	}
	if len(entries) > 0 {
		post.Set("mention_p", entries)
	}
	return nil
}

// wirePostTopics attaches topic Tag nodes to the post.
func (p *Projector) wirePostTopics(ctx context.Context, post Doc, topics []string) error {
	var entries []Doc
	wired := make(map[string]struct{})
	for _, topic := range topics {
		if _, dup := wired[topic]; dup {
			continue
		}
		wired[topic] = struct{}{}

		tag, err := p.resolver.Resolve(ctx, KindTag, topic)
		if err != nil {
			return err
		}
		entries = append(entries, NewNode(tag.Ref, KindTag).Set("tag_content", topic))
	}
	if len(entries) > 0 {
		post.Set("tags", entries)
	}
	return nil
}

// applyFollowList replaces the author's follow list with the event's
// snapshot. This is the one rule that deletes: the event declares the
// complete list, so edges absent from it are dropped in the same
// mutation that writes the new ones.
func (p *Projector) applyFollowList(ctx context.Context, e *event.Event) error {
	author, err := p.resolver.Resolve(ctx, KindUser, e.PubKey)
	if err != nil {
		return err
	}

	follows := event.DecodeFollowTags(e)

	entries := make([]Doc, 0, len(follows))
	for _, pubkey := range follows {
		followed, err := p.resolver.Resolve(ctx, KindUser, pubkey)
		if err != nil {
			return err
		}
		entries = append(entries, NewNode(followed.Ref, KindUser).Set("pubkey", pubkey))
	}

	authorDoc := NewNode(author.Ref, KindUser).Set("pubkey", e.PubKey)
	if len(entries) > 0 {
		authorDoc.Set("follows", entries)
	}

	mu := &Mutation{Set: []Doc{authorDoc}}
	if author.Exists() {
		mu.Delete = []Doc{{"uid": author.Ref.UID(), "follows": nil}}
	}

	if err := p.submit(ctx, mu); err != nil {
		return err
	}
	p.logger.Info("projected follow snapshot",
		slog.String("pubkey", e.PubKey), slog.Int("follows", len(follows)))
	return nil
}

// applyRetweet records a repost observed on an external platform. Both
// the user and the post are keyed by (platform, external id), so the same
// account name on two platforms stays two distinct nodes.
func (p *Projector) applyRetweet(ctx context.Context, e *event.Event) error {
	tags, err := event.DecodeRetweetTags(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	user, err := p.resolver.ResolveWhere(ctx, KindUser,
		"account", tags.Account, "platform", tags.Platform, "retweet")
	if err != nil {
		return err
	}
	post, err := p.resolver.ResolveWhere(ctx, KindPost,
		"post_id", tags.PostID, "platform", tags.Platform)
	if err != nil {
		return err
	}

	postDoc := NewNode(post.Ref, KindPost).
		Set("platform", tags.Platform).
		Set("post_id", tags.PostID)
	if tags.CreatedAt != "" {
		postDoc.Set("retweet|created_at", tags.CreatedAt)
	}

	userDoc := NewNode(user.Ref, KindUser).
		SetNonEmpty("pubkey", e.PubKey).
		Set("platform", tags.Platform).
		Set("account", tags.Account).
		Set("retweet", Merge(user.Relation("retweet"), postDoc))

	if err := p.submit(ctx, &Mutation{Set: []Doc{userDoc}}); err != nil {
		return err
	}
	p.logger.Info("projected retweet",
		slog.String("platform", tags.Platform), slog.String("account", tags.Account),
		slog.String("post_id", tags.PostID))
	return nil
}

// applyBindTwitter binds a lamport id and Twitter id to the author's User
// node. A user already carrying a Twitter binding is left untouched.
func (p *Projector) applyBindTwitter(ctx context.Context, e *event.Event) error {
	tags, err := event.DecodeBindTwitterTags(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	user, err := p.resolver.Resolve(ctx, KindUser, e.PubKey, "twitter_id")
	if err != nil {
		return err
	}
	if user.Exists() && user.Attr("twitter_id") != "" {
		p.logger.Debug("twitter binding already present", slog.String("pubkey", e.PubKey))
		return nil
	}

	doc := NewNode(user.Ref, KindUser).
		Set("pubkey", e.PubKey).
		Set("lamport_id", tags.LamportID).
		Set("twitter_id", tags.TwitterID).
		Set("created_at", e.CreatedAt).
		SetNonEmpty("content", e.Content).
		SetNonEmpty("sig", e.Sig)

	if err := p.submit(ctx, &Mutation{Set: []Doc{doc}}); err != nil {
		return err
	}
	p.logger.Info("projected twitter binding",
		slog.String("pubkey", e.PubKey), slog.String("lamport_id", tags.LamportID))
	return nil
}

// applyBindEth attaches an Ethereum address to an already-bound user. The
// lamport binding must exist first; without it there is no identity to
// attach the address to.
func (p *Projector) applyBindEth(ctx context.Context, e *event.Event) error {
	tags, err := event.DecodeBindEthTags(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	user, err := p.resolver.Resolve(ctx, KindUser, e.PubKey, "eth_address")
	if err != nil {
		return err
	}
	if !user.Exists() {
		return fmt.Errorf("%w: no user bound for pubkey %s", ErrMissingDependency, e.PubKey)
	}
	if user.Attr("eth_address") != "" {
		p.logger.Debug("eth binding already present", slog.String("pubkey", e.PubKey))
		return nil
	}

	doc := NewNode(user.Ref, KindUser).
		Set("lamport_id", tags.LamportID).
		Set("eth_address", tags.EthAddress).
		SetNonEmpty("eth_sig", tags.EthSig).
		Set("created_at", e.CreatedAt).
		SetNonEmpty("content", e.Content).
		SetNonEmpty("sig", e.Sig)

	if err := p.submit(ctx, &Mutation{Set: []Doc{doc}}); err != nil {
		return err
	}
	p.logger.Info("projected eth binding",
		slog.String("pubkey", e.PubKey), slog.String("lamport_id", tags.LamportID))
	return nil
}

// applyInvite records an invitation of one user into a project. The
// project must already exist; dependency checks run before any document
// is assembled, so a rejected invite leaves nothing behind. The whole
// invite (Invite node, inviter's faceted invite edge, invitee's project
// membership) lands in one mutation.
func (p *Projector) applyInvite(ctx context.Context, e *event.Event) error {
	tags, err := event.DecodeInviteTags(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	dup, err := p.alreadyRecorded(ctx, e.ID)
	if err != nil {
		return err
	}
	if dup {
		p.logger.Debug("duplicate invite delivery", slog.String("id", e.ID))
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, e.ID)
	}

	project, err := p.resolver.Resolve(ctx, KindProject, tags.ProjectName)
	if err != nil {
		return err
	}
	if !project.Exists() {
		return fmt.Errorf("%w: project %q not announced", ErrMissingDependency, tags.ProjectName)
	}

	inviter, err := p.resolver.ResolveKeyed(ctx, KindUser, "lamport_id", tags.Inviter, "invite")
	if err != nil {
		return err
	}
	invitee, err := p.resolver.ResolveKeyed(ctx, KindUser, "lamport_id", tags.Invitee, "participates_in")
	if err != nil {
		return err
	}

	inviteRef := PlaceholderRef(KindInvite, e.ID)
	inviteDoc := NewNode(inviteRef, KindInvite).
		Set("id", e.ID).
		Set("pubkey", e.PubKey).
		Set("kind", e.Kind).
		Set("created_at", e.CreatedAt).
		Set("inviter", tags.Inviter).
		Set("invitee", tags.Invitee).
		Set("project_info", tags.ProjectName).
		SetNonEmpty("content", e.Content).
		SetNonEmpty("sig", e.Sig)

	inviteeDoc := NewNode(invitee.Ref, KindUser).
		Set("lamport_id", tags.Invitee).
		Set("participates_in", MergeRef(invitee.Relation("participates_in"), project.Ref)).
		Set("invite|nostr_id", e.ID).
		Set("invite|project_name", tags.ProjectName).
		Set("invite|created_at", e.CreatedAt)
	if e.Content != "" {
		inviteeDoc.Set("invite|content", e.Content)
	}

	inviterDoc := NewNode(inviter.Ref, KindUser).
		Set("lamport_id", tags.Inviter).
		Set("invite", Merge(inviter.Relation("invite"), inviteeDoc))

	mu := &Mutation{Set: []Doc{inviteDoc, inviterDoc}}
	if err := p.submit(ctx, mu); err != nil {
		return err
	}
	p.markRecorded(ctx, e.ID)
	p.logger.Info("projected invite",
		slog.String("id", e.ID), slog.String("inviter", tags.Inviter),
		slog.String("invitee", tags.Invitee), slog.String("project", tags.ProjectName))
	return nil
}

// applyVote creates a Vote node owned by its creator. The creator must
// already be bound by lamport id.
func (p *Projector) applyVote(ctx context.Context, e *event.Event) error {
	tags, err := event.DecodeVoteTags(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	dup, err := p.alreadyRecorded(ctx, e.ID)
	if err != nil {
		return err
	}
	if dup {
		p.logger.Debug("duplicate vote delivery", slog.String("id", e.ID))
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, e.ID)
	}

	creator, err := p.resolver.ResolveKeyed(ctx, KindUser, "lamport_id", tags.CreatorLamportID, "create_votes")
	if err != nil {
		return err
	}
	if !creator.Exists() {
		return fmt.Errorf("%w: vote creator %q not bound", ErrMissingDependency, tags.CreatorLamportID)
	}

	voteRef := PlaceholderRef(KindVote, e.ID)
	voteDoc := NewNode(voteRef, KindVote).
		Set("id", e.ID).
		Set("pubkey", e.PubKey).
		Set("kind", e.Kind).
		Set("created_at", e.CreatedAt).
		Set("vote_id", tags.VoteID).
		Set("vote_title", tags.Title).
		SetNonEmpty("content", tags.Content).
		SetNonEmpty("sig", e.Sig)
	if len(tags.Options) > 0 {
		voteDoc.Set("vote_options", tags.Options)
	}

	creatorDoc := NewNode(creator.Ref, KindUser).
		Set("lamport_id", tags.CreatorLamportID).
		Set("create_votes", MergeRef(creator.Relation("create_votes"), voteRef))

	if err := p.submit(ctx, &Mutation{Set: []Doc{voteDoc, creatorDoc}}); err != nil {
		return err
	}
	p.markRecorded(ctx, e.ID)
	p.logger.Info("projected vote",
		slog.String("id", e.ID), slog.String("vote_id", tags.VoteID),
		slog.String("creator", tags.CreatorLamportID))
	return nil
}

// applyProject upserts a Project node from an announcement. The announcing
// user must already exist. Re-announcements of the same project name
// update its counters in place rather than minting a second node.
func (p *Projector) applyProject(ctx context.Context, e *event.Event) error {
	tags, err := event.DecodeProjectTags(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	dup, err := p.alreadyRecorded(ctx, e.ID)
	if err != nil {
		return err
	}
	if dup {
		p.logger.Debug("duplicate project delivery", slog.String("id", e.ID))
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, e.ID)
	}

	creator, err := p.resolver.Resolve(ctx, KindUser, e.PubKey)
	if err != nil {
		return err
	}
	if !creator.Exists() {
		return fmt.Errorf("%w: project creator %s unknown", ErrMissingDependency, e.PubKey)
	}

	project, err := p.resolver.Resolve(ctx, KindProject, tags.ProjectName)
	if err != nil {
		return err
	}

	projectDoc := NewNode(project.Ref, KindProject).
		Set("id", e.ID).
		Set("project_name", tags.ProjectName).
		Set("created_at", e.CreatedAt).
		Set("user_count", tags.UserCount).
		Set("event_count", tags.EventCount).
		Set("records_count", tags.RecordsCount).
		SetNonEmpty("content", e.Content).
		Set("created_by", RefEntry(creator.Ref))
	if len(tags.EventTypes) > 0 {
		projectDoc.Set("event_type", tags.EventTypes)
	}

	if err := p.submit(ctx, &Mutation{Set: []Doc{projectDoc}}); err != nil {
		return err
	}
	p.markRecorded(ctx, e.ID)
	p.logger.Info("projected project announcement",
		slog.String("id", e.ID), slog.String("project", tags.ProjectName),
		slog.Bool("new_project", !project.Exists()))
	return nil
}
