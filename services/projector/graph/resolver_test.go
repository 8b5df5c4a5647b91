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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store for rule tests. Query responses are
// keyed by the $key variable; unknown keys resolve to no match.
type fakeStore struct {
	responses map[string]string
	queryErr  error
	mutateErr error
	queries   []map[string]string
	mutations []*Mutation
}

func newFakeStore() *fakeStore {
	return &fakeStore{responses: make(map[string]string)}
}

func (f *fakeStore) Query(_ context.Context, _ string, vars map[string]string) ([]byte, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	copied := make(map[string]string, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	f.queries = append(f.queries, copied)

	if resp, ok := f.responses[vars["$key"]]; ok {
		return []byte(resp), nil
	}
	return []byte(`{"node":[]}`), nil
}

func (f *fakeStore) Mutate(_ context.Context, mu *Mutation) (map[string]string, error) {
	if f.mutateErr != nil {
		return nil, f.mutateErr
	}
	f.mutations = append(f.mutations, mu)
	return map[string]string{}, nil
}

func TestResolve_NoMatchYieldsPlaceholder(t *testing.T) {
	r := NewResolver(newFakeStore())

	got, err := r.Resolve(context.Background(), KindUser, "deadbeef")

	require.NoError(t, err)
	assert.False(t, got.Exists())
	assert.Equal(t, "_:user-deadbeef", got.Ref.UID())
}

func TestResolve_EmptyKeyFails(t *testing.T) {
	r := NewResolver(newFakeStore())

	_, err := r.Resolve(context.Background(), KindUser, "")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestResolve_ExistingNodeWithRelationsAndAttrs(t *testing.T) {
	store := newFakeStore()
	store.responses["deadbeef"] = `{"node":[{
		"uid":"0x10",
		"posts":[{"uid":"0x20"},{"uid":"0x21"}],
		"twitter_id":"42"
	}]}`
	r := NewResolver(store)

	got, err := r.Resolve(context.Background(), KindUser, "deadbeef", "posts", "twitter_id")

	require.NoError(t, err)
	require.True(t, got.Exists())
	assert.Equal(t, "0x10", got.Ref.UID())
	require.Len(t, got.Relation("posts"), 2)
	assert.Equal(t, "0x20", got.Relation("posts")[0].UID())
	assert.Equal(t, "42", got.Attr("twitter_id"))
}

func TestResolve_SingleObjectRelationTolerated(t *testing.T) {
	store := newFakeStore()
	store.responses["deadbeef"] = `{"node":[{"uid":"0x10","posts":{"uid":"0x20"}}]}`
	r := NewResolver(store)

	got, err := r.Resolve(context.Background(), KindUser, "deadbeef", "posts")

	require.NoError(t, err)
	require.Len(t, got.Relation("posts"), 1)
	assert.Equal(t, "0x20", got.Relation("posts")[0].UID())
}

func TestResolve_MultipleMatchesReuseFirst(t *testing.T) {
	store := newFakeStore()
	store.responses["dup"] = `{"node":[{"uid":"0x1"},{"uid":"0x2"}]}`
	r := NewResolver(store)

	got, err := r.Resolve(context.Background(), KindUser, "dup")

	require.NoError(t, err)
	assert.Equal(t, "0x1", got.Ref.UID())
}

func TestResolve_StoreFailurePropagates(t *testing.T) {
	store := newFakeStore()
	store.queryErr = ErrStoreUnavailable
	r := NewResolver(store)

	_, err := r.Resolve(context.Background(), KindUser, "deadbeef")

	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestResolveWhere_CompoundPlaceholder(t *testing.T) {
	r := NewResolver(newFakeStore())

	got, err := r.ResolveWhere(context.Background(), KindUser,
		"account", "alice", "platform", "twitter")

	require.NoError(t, err)
	assert.False(t, got.Exists())
	assert.Equal(t, "_:user-twitterx2falice", got.Ref.UID())
}

func TestLookupEventID(t *testing.T) {
	store := newFakeStore()
	store.responses["ev1"] = `{"node":[{"uid":"0x5"}]}`
	r := NewResolver(store)

	found, err := r.LookupEventID(context.Background(), "ev1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = r.LookupEventID(context.Background(), "ev2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBuildLookup_VariablesAndFilter(t *testing.T) {
	query := buildLookup(KindUser, "account", "platform", []string{"retweet", "twitter_id"})

	assert.Contains(t, query, "$key: string")
	assert.Contains(t, query, "$filter: string")
	assert.Contains(t, query, "func: eq(account, $key)")
	assert.Contains(t, query, "type(User)")
	assert.Contains(t, query, "eq(platform, $filter)")
	assert.Contains(t, query, "retweet {")
	assert.Contains(t, query, "twitter_id")
	assert.NotContains(t, query, "twitter_id {")
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(ErrMalformedEvent))
	assert.True(t, IsPermanent(ErrMissingKey))
	assert.True(t, IsPermanent(ErrMissingDependency))
	assert.False(t, IsPermanent(ErrStoreUnavailable))
	assert.False(t, IsPermanent(errors.New("boom")))
}
