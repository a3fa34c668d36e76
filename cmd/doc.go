// Package cmd implements the command-line interface for inboxpilot.
//
// This package provides the following commands:
//   - serve: Start the query service (HTTP API, or MCP over stdio)
//   - ask: Answer a single natural-language query and exit
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
package cmd
