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

// Merge produces the relationship-list document for a mutation: the new
// entry first (reverse lists read newest-first), followed by every entry
// the lookup returned, with no duplicate target handles.
//
// entry must carry a "uid" key; it may carry nested predicates or facet
// keys that ride along into the mutation. If the target is already
// present in the existing list, the list is returned unchanged (adding an
// already-present target is a no-op, never a duplicate).
//
// Pure function: no I/O, inputs are not modified.
func Merge(existing []Ref, entry Doc) []Doc {
	target := entry.UID()
	for _, ref := range existing {
		if ref.UID() == target {
			return refDocs(existing)
		}
	}

	merged := make([]Doc, 0, len(existing)+1)
	merged = append(merged, entry)
	for _, ref := range existing {
		merged = append(merged, RefEntry(ref))
	}
	return merged
}

// MergeRef is Merge for the common case of a bare target handle.
func MergeRef(existing []Ref, target Ref) []Doc {
	return Merge(existing, RefEntry(target))
}

func refDocs(refs []Ref) []Doc {
	docs := make([]Doc, 0, len(refs))
	for _, ref := range refs {
		docs = append(docs, RefEntry(ref))
	}
	return docs
}
