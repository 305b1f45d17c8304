package driving

import "github.com/custodia-labs/repolens/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get returns the effective settings: defaults, then config file, then
	// environment.
	Get() (*domain.Settings, error)

	// Set validates and persists one configuration key.
	Set(key, value string) error

	// Reset removes a stored key so its default applies again.
	Reset(key string) error

	// Keys returns the configurable keys with their effective values.
	Keys() (map[string]string, error)

	// Path returns the configuration file path.
	Path() string
}
