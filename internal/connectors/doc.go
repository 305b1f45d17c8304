// Package connectors groups the source integrations that produce documents
// for ingestion. The github subpackage provides one fetcher per stage
// (documentation, code, issues and merged pull requests) over a shared,
// rate-limited API client.
package connectors
