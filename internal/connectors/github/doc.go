// Package github fetches repository content from GitHub for ingestion.
//
// Four fetchers share one [Client]:
//
//   - DocsFetcher: README, guides and other documentation files
//   - CodeFetcher: source files split into top-level declarations
//   - IssuesFetcher: issues with their comment threads
//   - PullRequestFetcher: merged pull requests with file diffs
//
// Documentation and code are read from a repository snapshot. By default
// the snapshot is a shallow git clone into a temporary directory, falling
// back to the recursive trees API when git is missing or the clone fails.
//
// # Rate Limiting
//
// The client implements a dual-strategy rate limiting approach:
//
//  1. Proactive throttling: a token bucket limits requests to about
//     1.2 per second, staying under the 5,000/hour authenticated limit.
//
//  2. Reactive handling: X-RateLimit-Remaining and X-RateLimit-Reset are
//     tracked from every response. When the quota runs low the client waits
//     for the reset, or fails with a [RateLimitError] if the reset is too far
//     away.
//
// Transient failures (network errors, 5xx) are retried with exponential
// backoff. Missing or inaccessible repositories unwrap to
// domain.ErrSourceUnavailable and are not retried.
//
// # Pull Request Scan
//
// Merged pull requests can be sparse among closed ones, so the scan is
// bounded three ways: enough merged PRs collected, too many PRs examined,
// or the wall-clock budget spent. The first bound reached is reported as
// the result's termination reason and whatever was collected is kept.
//
// # Limitations
//
//   - Binary files and files over the size limit are skipped with a warning
//   - Unauthenticated access is limited to public repositories
//   - Truncated trees from the API are ingested as far as they go
package github
