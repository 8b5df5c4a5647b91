// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StoreStatus reports graph store availability for health checks.
// Satisfied by the resilient store client.
type StoreStatus interface {
	IsAvailable() bool
}

// HealthCheck reports process liveness and store availability. The
// process is healthy even when the store is degraded; the body says
// which views will work.
func HealthCheck(store StoreStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		storeState := "available"
		if store == nil || !store.IsAvailable() {
			storeState = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"store":  storeState,
		})
	}
}
