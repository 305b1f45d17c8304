// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
//   - IngestionOrchestrator: staged fetch, chunk, embed and store runs
//   - QueryService: similarity queries against ingested collections
//   - SettingsService: defaults, config file and environment
//
// Services depend on ports and the domain, plus the logger and metrics
// packages.
package services
