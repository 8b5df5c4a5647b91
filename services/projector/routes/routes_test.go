// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/CausalityGraph/services/projector/graph"
)

type emptyStore struct{}

func (emptyStore) Query(context.Context, string, map[string]string) ([]byte, error) {
	return []byte(`{}`), nil
}

func (emptyStore) Mutate(context.Context, *graph.Mutation) (map[string]string, error) {
	return nil, graph.ErrStoreUnavailable
}

type alwaysUp struct{}

func (alwaysUp) IsAvailable() bool { return true }

func TestSetupRoutes_Registered(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, emptyStore{}, alwaysUp{},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	paths := []string{
		"/health",
		"/metrics",
		"/v1/graph/users",
		"/v1/graph/posts",
		"/v1/graph/projects",
		"/v1/graph/tags",
		"/v1/graph/data",
	}
	for _, path := range paths {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
