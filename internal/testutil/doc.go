// Package testutil contains helpers used across tests to reduce boilerplate:
// a feature recording the ordered lifecycle events of runs and tools with
// configurable latency, failure and panic behavior. They are not intended
// for production usage.
package testutil
