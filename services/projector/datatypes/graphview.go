// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the wire types of the projector's read API.
package datatypes

// Node is one graph node as returned by the view endpoints: its uid,
// type, and scalar attributes. Edge predicates are lifted out into the
// Edges list of the response.
type Node map[string]any

// UID returns the node's store identifier.
func (n Node) UID() string {
	uid, _ := n["uid"].(string)
	return uid
}

// Type returns the node's graph type, "" when unknown.
func (n Node) Type() string {
	switch v := n["dgraph.type"].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// Edge is one directed relationship for graph rendering. ID is
// "<source>_<target>" so clients can dedupe.
type Edge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Label    string `json:"label"`
	Category string `json:"category"`

	// ProjectName is set on membership and invite edges when known.
	ProjectName string `json:"project_name,omitempty"`
}

// GraphView is the {nodes, edges} response shape shared by every view
// endpoint.
type GraphView struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Merge appends another view into this one.
func (v *GraphView) Merge(other GraphView) {
	v.Nodes = append(v.Nodes, other.Nodes...)
	v.Edges = append(v.Edges, other.Edges...)
}

// ErrorResponse is the error body of the read API.
type ErrorResponse struct {
	Error string `json:"error"`
}
