// Package handler implements the read-only admin HTTP endpoints: the
// assignment table, the policy last compiled, and a liveness probe.
package handler
