package github

import (
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// Default fetcher limits not covered by settings.
const (
	DefaultMaxCommentsPerIssue = 30
	DefaultMaxFilesPerPR       = 20
)

// Config holds the fetcher limits.
type Config struct {
	MaxDocFiles         int
	MaxCodeFiles        int
	MaxFileBytes        int
	MaxDiffBytes        int
	MaxDiscussionBytes  int
	MaxCommentsPerIssue int
	MaxFilesPerPR       int

	// YieldInterval is how often long fetches report progress.
	YieldInterval time.Duration

	// ScanPolicy derives the PR examination limit when a request leaves
	// it unset.
	ScanPolicy domain.ScanPolicy
}

// DefaultConfig returns the default fetcher limits.
func DefaultConfig() Config {
	return ConfigFromSettings(domain.DefaultSettings().Ingestion)
}

// ConfigFromSettings builds fetcher limits from ingestion settings.
func ConfigFromSettings(s domain.IngestionSettings) Config {
	return Config{
		MaxDocFiles:         s.MaxDocFiles,
		MaxCodeFiles:        s.MaxCodeFiles,
		MaxFileBytes:        s.MaxFileBytes,
		MaxDiffBytes:        s.MaxDiffBytes,
		MaxDiscussionBytes:  s.MaxDiscussionBytes,
		MaxCommentsPerIssue: DefaultMaxCommentsPerIssue,
		MaxFilesPerPR:       DefaultMaxFilesPerPR,
		YieldInterval:       s.YieldInterval,
		ScanPolicy:          s.ScanPolicy(),
	}
}
