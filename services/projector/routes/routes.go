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
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/CausalityGraph/services/projector/graph"
	"github.com/AleutianAI/CausalityGraph/services/projector/handlers"
)

// SetupRoutes wires the read API onto the router.
func SetupRoutes(router *gin.Engine, store graph.Store, status handlers.StoreStatus, logger *slog.Logger) {
	router.GET("/health", handlers.HealthCheck(status))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := handlers.NewGraphAPI(store, logger)

	// API version 1 group
	v1 := router.Group("/v1")
	{
		graphViews := v1.Group("/graph")
		{
			graphViews.GET("/users", api.AllUsers())
			graphViews.GET("/users/:key", api.UserByKey())
			graphViews.GET("/posts", api.AllPosts())
			graphViews.GET("/projects", api.AllProjects())
			graphViews.GET("/tags", api.AllTags())
			graphViews.GET("/data", api.AllData())
		}
	}
}
