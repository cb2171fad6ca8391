// Package logger builds the process-wide slog logger: text output in dev and
// staging, JSON in prod, with the environment and service name attached to
// every record.
package logger
