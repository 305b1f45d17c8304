// Package memory provides in-memory implementations of the driven store
// ports. They back ephemeral sessions (storage.data_dir set to ":memory:")
// and service tests. Nothing survives the process.
package memory
