// Package engine evaluates records whose fields are backed by dynamic
// expressions and streams fully merged results to subscribers.
//
// ARCHITECTURE:
//
// Each Collect on a Stream returned by Evaluator.Evaluate starts an
// independent session. The record tree is evaluated in four stages:
//
//  1. Top level: one receiver per dynamic scalar field. Receivers post
//     typed events (valueEvent, invalidatedEvent) into a single state cell
//     owned by the session. The cell emits only at settle points: when
//     nothing is pending, or when something is invalid.
//  2. Timeline entries, then list entries: each entry is evaluated
//     recursively and combined with the top level all-or-nothing.
//  3. Placeholder: attached only when the merged record has kind NO_DATA,
//     or always in keep-dynamic-values mode.
//  4. Consecutive equal emissions are dropped.
//
// STATE CELL:
//
// Session state is an immutable snapshot behind an atomic pointer. Every
// receiver callback is one compare-and-swap transition; a lost race retries
// against the new snapshot, so no update is dropped. The observer wakes on
// a coalescing signal and reads the latest snapshot, so it may skip
// intermediate states but never reorders them.
//
// AFFINITY:
//
// Receivers are bound on the collecting goroutine and started and closed
// on a Looper, a single goroutine draining a FIFO of tasks. All receivers
// are bound before any is started so a synchronous first callback cannot
// settle the session before every receiver is counted as pending.
package engine
