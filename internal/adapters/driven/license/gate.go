// Package license provides the usage gates consulted before gated actions.
package license

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
)

// Ensure the gates implement the interface.
var (
	_ driven.LicenseGate = (*UsageGate)(nil)
	_ driven.LicenseGate = AllowAll{}
)

// AllowAll permits every action and records nothing.
type AllowAll struct{}

// IsActionPermitted always returns true.
func (AllowAll) IsActionPermitted(context.Context, string) (bool, error) {
	return true, nil
}

// RecordUsage is a no-op.
func (AllowAll) RecordUsage(context.Context, string, domain.RepositoryID) error {
	return nil
}

// UsageGate caps an action per calendar month (UTC) using a usage ledger.
type UsageGate struct {
	usage  driven.UsageStore
	limits map[string]int
	now    func() time.Time
}

// Option configures a UsageGate.
type Option func(*UsageGate)

// WithClock sets the clock used to find the current month.
func WithClock(now func() time.Time) Option {
	return func(g *UsageGate) {
		g.now = now
	}
}

// NewUsageGate creates a gate allowing limits[action] uses per month.
// Actions without a positive limit are unlimited but still recorded.
func NewUsageGate(usage driven.UsageStore, limits map[string]int, opts ...Option) *UsageGate {
	g := &UsageGate{
		usage:  usage,
		limits: limits,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// New returns the gate for a monthly stage limit: AllowAll when the limit
// is zero, otherwise a UsageGate over the ledger.
func New(usage driven.UsageStore, monthlyStageLimit int) driven.LicenseGate {
	if monthlyStageLimit <= 0 || usage == nil {
		return AllowAll{}
	}
	return NewUsageGate(usage, map[string]int{driven.ActionIngestStage: monthlyStageLimit})
}

// monthStart returns the first instant of the current UTC month.
func (g *UsageGate) monthStart() time.Time {
	now := g.now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// IsActionPermitted reports whether the action is under its monthly limit.
func (g *UsageGate) IsActionPermitted(ctx context.Context, action string) (bool, error) {
	limit := g.limits[action]
	if limit <= 0 {
		return true, nil
	}
	used, err := g.usage.CountUsage(ctx, action, g.monthStart())
	if err != nil {
		return false, fmt.Errorf("count usage: %w", err)
	}
	return used < limit, nil
}

// RecordUsage records one use of the action.
func (g *UsageGate) RecordUsage(ctx context.Context, action string, repo domain.RepositoryID) error {
	if err := g.usage.RecordUsage(ctx, action, repo, g.now().UTC()); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}
