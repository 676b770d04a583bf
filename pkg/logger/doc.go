// Package logger builds the application's slog.Logger with functional
// options for level, format, output, and static attributes, plus small
// attribute helpers shared across components.
package logger
