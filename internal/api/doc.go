// Package api exposes the REST surface for submitting budgeted tasks,
// inspecting their lifecycle and reading the executor's cumulative usage.
// It also serves the Prometheus metrics and health endpoints.
package api
