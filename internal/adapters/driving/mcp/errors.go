// Package mcp provides an MCP (Model Context Protocol) server adapter for repolens.
// It lets AI assistants ingest GitHub repositories in stages and query the
// resulting collections.
package mcp

import "errors"

// ErrMissingIngestionService is returned when the ingestion service is not provided.
var ErrMissingIngestionService = errors.New("mcp: ingestion service is required")

// ErrHealthUnavailable is returned by the health tool when no health service is configured.
var ErrHealthUnavailable = errors.New("mcp: health service is not configured")
