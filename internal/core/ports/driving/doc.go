// Package driving defines the operations the CLI and the MCP server call:
// staged ingestion with status polling, similarity queries and settings.
// internal/core/services implements them.
package driving
