// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - ConfigStore: TOML-based configuration storage (~/.repolens/config.toml)
//   - LoadDotEnv: .env loading so environment overrides can live beside a project
package file
