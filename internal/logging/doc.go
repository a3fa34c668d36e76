// Package logging provides structured logging utilities for the
// inboxpilot application.
//
// This package centralizes logging patterns to ensure consistent,
// structured logging throughout the codebase using the standard
// library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (email anonymization, token masking)
//   - Consistent attribute naming across the codebase
//   - Query-id correlation across planner rounds and steps
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithQuery(slog.Default(), queryID)
//	logger.Info("step completed",
//	    logging.Capability("search_gmail"),
//	    logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("message found", logging.UserHash(sender))
//
// # Security Considerations
//
//   - Senders and account emails are hashed to prevent PII leakage
//     while allowing correlation
//   - Tokens are never logged directly
package logging
