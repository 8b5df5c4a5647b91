// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the read API over the projected graph.
//
// Every view endpoint returns the same {nodes, edges} shape: nodes carry
// the scalar attributes the view queries, edges are lifted out of the
// uid-valued predicates so graph UIs can render them directly.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/CausalityGraph/services/projector/datatypes"
	"github.com/AleutianAI/CausalityGraph/services/projector/graph"
)

// GraphAPI serves the projected-graph views.
type GraphAPI struct {
	store  graph.Store
	logger *slog.Logger
}

// NewGraphAPI builds the read API over a store.
func NewGraphAPI(store graph.Store, logger *slog.Logger) *GraphAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphAPI{
		store:  store,
		logger: logger.With(slog.String("component", "graph_api")),
	}
}

// view describes how one endpoint's query maps into {nodes, edges}.
type view struct {
	// root is the query block name ("user", "post", ...).
	root string

	// edges maps edge predicate to the category label on emitted edges.
	edges map[string]string
}

const userQuery = `
{
  user(func: type(User)) {
    uid
    dgraph.type
    pubkey
    name
    about
    picture
    lamport_id
    twitter_id
    eth_address
    platform
    account
    created_at
    posts { uid id }
    follows { uid pubkey }
    retweet { uid post_id platform }
    invite @facets { uid lamport_id pubkey }
    participates_in { uid project_name }
    create_votes { uid vote_title }
  }
}`

const userByKeyQuery = `
query user($key: string) {
  user(func: eq(lamport_id, $key)) @filter(type(User)) {
    uid
    dgraph.type
    pubkey
    name
    lamport_id
    twitter_id
    eth_address
    created_at
    posts { uid id }
    follows { uid pubkey }
    invite @facets { uid lamport_id pubkey }
    participates_in { uid project_name }
  }
}`

const postQuery = `
{
  post(func: type(Post)) {
    uid
    dgraph.type
    id
    content
    created_at
    kind
    platform
    post_id
    author { uid pubkey }
    reply { uid id }
    root { uid id }
    mention_p { uid pubkey }
    tags { uid tag_content }
  }
}`

const projectQuery = `
{
  project(func: type(Project)) {
    uid
    dgraph.type
    id
    project_name
    content
    created_at
    user_count
    event_count
    records_count
    event_type
    created_by { uid pubkey }
    ~participates_in { uid lamport_id pubkey }
  }
}`

const tagQuery = `
{
  tag(func: type(Tag)) {
    uid
    dgraph.type
    tag_content
    ~tags { uid id }
  }
}`

var (
	userView = view{root: "user", edges: map[string]string{
		"posts":           "posts",
		"follows":         "follows",
		"retweet":         "retweet",
		"invite":          "invite",
		"participates_in": "participates_in",
		"create_votes":    "create_votes",
	}}
	postView = view{root: "post", edges: map[string]string{
		"author":    "author",
		"reply":     "reply",
		"root":      "root",
		"mention_p": "mention_p",
		"tags":      "tags",
	}}
	projectView = view{root: "project", edges: map[string]string{
		"created_by":       "created_by",
		"~participates_in": "participant",
	}}
	tagView = view{root: "tag", edges: map[string]string{
		"~tags": "tagged_post",
	}}
)

// AllUsers returns every User node with its outgoing relationships.
func (a *GraphAPI) AllUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		a.serveView(c, userQuery, nil, userView)
	}
}

// UserByKey returns the user with the given lamport id.
func (a *GraphAPI) UserByKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		result, err := a.collect(c.Request.Context(), userByKeyQuery,
			map[string]string{"$key": key}, userView)
		if err != nil {
			a.fail(c, err)
			return
		}
		if len(result.Nodes) == 0 {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "user not found"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// AllPosts returns every Post node with its reference edges.
func (a *GraphAPI) AllPosts() gin.HandlerFunc {
	return func(c *gin.Context) {
		a.serveView(c, postQuery, nil, postView)
	}
}

// AllProjects returns every Project node with creator and members.
func (a *GraphAPI) AllProjects() gin.HandlerFunc {
	return func(c *gin.Context) {
		a.serveView(c, projectQuery, nil, projectView)
	}
}

// AllTags returns every Tag node with the posts that carry it.
func (a *GraphAPI) AllTags() gin.HandlerFunc {
	return func(c *gin.Context) {
		a.serveView(c, tagQuery, nil, tagView)
	}
}

// AllData returns the combined project and user views in one response.
func (a *GraphAPI) AllData() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		combined := datatypes.GraphView{Nodes: []datatypes.Node{}, Edges: []datatypes.Edge{}}
		projects, err := a.collect(ctx, projectQuery, nil, projectView)
		if err != nil {
			a.fail(c, err)
			return
		}
		combined.Merge(projects)

		users, err := a.collect(ctx, userQuery, nil, userView)
		if err != nil {
			a.fail(c, err)
			return
		}
		combined.Merge(users)

		c.JSON(http.StatusOK, combined)
	}
}

func (a *GraphAPI) serveView(c *gin.Context, query string, vars map[string]string, v view) {
	result, err := a.collect(c.Request.Context(), query, vars, v)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *GraphAPI) fail(c *gin.Context, err error) {
	a.logger.Error("graph view query failed", slog.String("error", err.Error()))
	status := http.StatusInternalServerError
	if graph.IsPermanent(err) {
		status = http.StatusBadRequest
	}
	c.JSON(status, datatypes.ErrorResponse{Error: err.Error()})
}

// collect runs a view query and splits the response into nodes and edges.
func (a *GraphAPI) collect(ctx context.Context, query string, vars map[string]string, v view) (datatypes.GraphView, error) {
	out := datatypes.GraphView{Nodes: []datatypes.Node{}, Edges: []datatypes.Edge{}}

	resp, err := a.store.Query(ctx, query, vars)
	if err != nil {
		return out, fmt.Errorf("query %s view: %w", v.root, err)
	}

	var decoded map[string][]map[string]any
	if err := json.Unmarshal(resp, &decoded); err != nil {
		return out, fmt.Errorf("decode %s view: %w", v.root, err)
	}

	for _, raw := range decoded[v.root] {
		node := datatypes.Node{}
		uid, _ := raw["uid"].(string)

		for pred, value := range raw {
			category, isEdge := v.edges[pred]
			if !isEdge {
				node[pred] = value
				continue
			}
			for _, target := range asObjects(value) {
				out.Edges = append(out.Edges, buildEdge(uid, category, target))
			}
		}
		out.Nodes = append(out.Nodes, node)
	}
	return out, nil
}

// asObjects normalizes an edge predicate value: uid lists arrive as
// object arrays, single-valued edges as one object.
func asObjects(value any) []map[string]any {
	switch v := value.(type) {
	case []any:
		var objects []map[string]any
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				objects = append(objects, obj)
			}
		}
		return objects
	case map[string]any:
		return []map[string]any{v}
	default:
		return nil
	}
}

func buildEdge(source, category string, target map[string]any) datatypes.Edge {
	targetUID, _ := target["uid"].(string)
	edge := datatypes.Edge{
		ID:       source + "_" + targetUID,
		Source:   source,
		Target:   targetUID,
		Label:    targetUID,
		Category: category,
	}

	if name, ok := target["project_name"].(string); ok {
		edge.ProjectName = name
	}
	// Facet payloads ride on "pred|facet" keys in the target object.
	if name, ok := target["invite|project_name"].(string); ok {
		edge.ProjectName = name
	}
	return edge
}
