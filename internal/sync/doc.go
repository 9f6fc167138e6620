// Package sync runs reconciliation for tracked tournaments.
//
// # Manager
//
// Manager.SyncTournament performs one run for one tournament:
//
//  1. Take the per-tournament lock (KeyedMutex). Runs for the same
//     tournament serialise, runs for different tournaments do not.
//  2. Check the tournament is tracked.
//  3. Fetch the roster. A failed fetch is recorded on the tournament and
//     leaves every participant status untouched.
//  4. Reconcile the roster against the stored statuses and apply the
//     resulting plan in one store transaction.
//
// Failures are returned as *Error, which carries a condition type and
// reason (FetchFailed, StorageFailed, NotTracked) next to the cause.
//
// Track and Untrack add and remove tournaments. Untracking deletes the
// stored statuses and change log of the tournament.
//
// # Coordinator Package
//
// The sync/coordinator subpackage schedules batches of runs over every
// tracked tournament on a fixed interval, and serves manual batch triggers.
package sync
