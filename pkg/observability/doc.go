// Package observability provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for the identity core.
package observability
