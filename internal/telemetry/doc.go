// Package telemetry holds the observability plumbing shared by the engine
// and the CLI:
//   - logging.go: slog logger construction from flags and environment
//   - metrics.go: Prometheus collectors for evaluation sessions
package telemetry
