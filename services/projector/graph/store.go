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

import "context"

// Store is the boundary to the remote property graph. The projector needs
// exactly two primitives: a predicate-equality lookup with one level of
// edge expansion, and an atomic apply of one additive mutation document.
//
// Implementations must translate their transport failures into
// ErrStoreUnavailable (wrapped) so the projector can classify them as
// transient.
type Store interface {
	// Query runs a read-only query with GraphQL-style variables and
	// returns the raw JSON response body.
	Query(ctx context.Context, query string, vars map[string]string) ([]byte, error)

	// Mutate applies one mutation document atomically and returns the
	// store-assigned identifiers for the mutation's placeholder refs,
	// keyed by blank-node name.
	Mutate(ctx context.Context, mu *Mutation) (map[string]string, error)
}
