// Package expr is the in-process expression binder used by the engine.
//
// It evaluates ir.DynamicFloat and ir.DynamicString expressions against
// three kinds of data sources:
//   - StateStore: named values set by the host
//   - TimeGateway: the current time, with periodic tick notifications
//   - PlatformDataProvider: sensor readings (heart rate, daily steps)
//
// Binding an expression returns a BoundDynamicType. Nothing is read or
// subscribed until StartEvaluation; after Close returns no new callbacks are
// scheduled, although a callback already handed to the Executor may still
// run.
//
// Thread-safety: every exported type in this package is safe for concurrent
// use. Callbacks for a single binding are serialized.
package expr
