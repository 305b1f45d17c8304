package driven

// ConfigStore persists raw configuration values under dotted keys
// ("ingestion.max_prs"). Values keep the type the backing format decoded
// them as; SettingsService converts and validates them.
type ConfigStore interface {
	// Get returns the value stored under key and whether it exists.
	Get(key string) (any, bool)

	// Set stores a value and persists it.
	Set(key string, value any) error

	// Delete removes a key and persists the change. Deleting a missing key
	// is not an error.
	Delete(key string) error

	// Keys returns every stored key, sorted.
	Keys() []string

	// Path describes where the configuration is kept.
	Path() string
}
