// Package logging provides structured logging configuration for bizlog.
//
// This package wraps log/slog so that the assembler, the invocation stack
// and the CLI log the same way. Diagnostics about audit records, such as a
// message template that failed to render, are logged at warn level; the
// audit records themselves go to a record.Sink, never to the logger.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	})
//
//	logger.Warn("audit record degraded", "operation", "ORDER", "error", err)
//
// NewMulti sends every entry to several outputs, for example text on
// stderr and JSON in a file.
//
// # Integration
//
// Components should accept a *slog.Logger in their constructor or via an
// option. If no logger is provided, use logging.Nop() for a no-op logger.
package logging
