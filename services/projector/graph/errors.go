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

import "errors"

// Error taxonomy for event projection. The feed consumer drops events that
// fail permanently and leaves redelivery of transient failures to the
// transport layer.
var (
	// ErrMalformedEvent marks an event missing a field its kind requires.
	// Dropped, not retried: redelivery cannot change the payload.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrMissingKey marks a lookup attempted with an empty natural key.
	ErrMissingKey = errors.New("missing natural key")

	// ErrMissingDependency marks an event whose rule requires an entity
	// that does not exist yet (project for invites, creator for votes and
	// projects). Dropped, not retried: the prerequisite will not appear
	// without external action, and blind retry reorders the stream.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrStoreUnavailable marks a transient store failure. No partial
	// mutation was committed; the transport owns redelivery policy.
	ErrStoreUnavailable = errors.New("graph store unavailable")

	// ErrDuplicateEvent marks a redelivery of an already-projected event
	// id. Benign: the caller skips the event without mutating anything.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrUnhandledKind marks a kind the projector has no rule for.
	// Benign: the relay delivers arbitrary kinds.
	ErrUnhandledKind = errors.New("unhandled event kind")
)

// IsPermanent reports whether err is a projection failure that redelivery
// cannot fix. ErrDuplicateEvent and ErrUnhandledKind are deliberately not
// permanent: they are skip signals, not failures.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedEvent) ||
		errors.Is(err, ErrMissingKey) ||
		errors.Is(err, ErrMissingDependency)
}
