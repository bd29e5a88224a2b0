// Package sync implements last-write-wins reconciliation between the
// device-local task snapshot and the backend's task table.
//
// # Overview
//
// The mobile side of the app is local-first: saves land in the
// encrypted local snapshot immediately, and the engine later
// reconciles with the remote source of truth:
//
//	Local snapshot (one user's slice)
//	        ↓ filter
//	     Engine ── push newer/new records ──→ Remote task table
//	        ↑                                        │
//	        └──── re-fetch authoritative set ────────┘
//	        ↓
//	Local snapshot (slice replaced, other users preserved)
//
// # Conflict resolution
//
// Conflicts are resolved per whole record on updated_at: the side with
// the later timestamp replaces the other entirely. There is no
// field-level merging. Records with a missing timestamp compare as the
// earliest possible time, so they lose to anything with a real one.
// On an exact tie the remote copy wins; both sides end up identical
// either way.
//
// # Consistency
//
// Reconciliation is eventually consistent, not linearizable. Passes
// triggered by a save and by a change-feed event may overlap; both end
// by pulling the authoritative remote state, so repeated passes
// converge once mutations stop. An authentication or gateway failure
// aborts the pass before any local write, leaving the optimistic
// pre-sync snapshot in place for the next attempt.
package sync
