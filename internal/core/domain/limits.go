package domain

import "time"

// Default ingestion limits.
const (
	DefaultMaxIssues             = 100
	DefaultMaxPRs                = 15
	DefaultExaminationMultiplier = 10
	DefaultExaminationCap        = 200
	DefaultPRBudget              = 4 * time.Minute
	DefaultYieldInterval         = 5 * time.Second
)

// ScanPolicy bounds how many pull requests a scan may examine.
type ScanPolicy struct {
	ExaminationMultiplier int
	AbsoluteCap           int
}

// DefaultScanPolicy returns the default scan policy.
func DefaultScanPolicy() ScanPolicy {
	return ScanPolicy{
		ExaminationMultiplier: DefaultExaminationMultiplier,
		AbsoluteCap:           DefaultExaminationCap,
	}
}

// MaxToExamine returns min(maxPRs * multiplier, cap).
func (p ScanPolicy) MaxToExamine(maxPRs int) int {
	mult := p.ExaminationMultiplier
	if mult <= 0 {
		mult = DefaultExaminationMultiplier
	}
	limit := maxPRs * mult
	if p.AbsoluteCap > 0 && limit > p.AbsoluteCap {
		limit = p.AbsoluteCap
	}
	return limit
}

// Limits are the per-run bounds passed to a stage.
// Zero values mean "use the configured default".
type Limits struct {
	MaxIssues       int
	MaxPRs          int
	MaxToExamine    int
	WallClockBudget time.Duration
}

// WithDefaults fills zero fields from the given defaults. MaxToExamine is
// derived from the effective MaxPRs through the scan policy.
func (l Limits) WithDefaults(d Limits, policy ScanPolicy) Limits {
	if l.MaxIssues <= 0 {
		l.MaxIssues = d.MaxIssues
	}
	if l.MaxPRs <= 0 {
		l.MaxPRs = d.MaxPRs
	}
	if l.MaxToExamine <= 0 {
		l.MaxToExamine = policy.MaxToExamine(l.MaxPRs)
	}
	if l.WallClockBudget <= 0 {
		l.WallClockBudget = d.WallClockBudget
	}
	return l
}

// TerminationReason records why a bounded fetch stopped.
type TerminationReason string

// Termination reasons.
const (
	TerminationNone             TerminationReason = ""
	TerminationCollectedEnough  TerminationReason = "collected-enough"
	TerminationExaminationLimit TerminationReason = "examination-limit-hit"
	TerminationWallClockLimit   TerminationReason = "wallclock-limit-hit"
	TerminationSourceExhausted  TerminationReason = "source-exhausted"
)

// String returns the string representation.
func (r TerminationReason) String() string {
	return string(r)
}

// FetchProgress is reported by fetchers while they work.
type FetchProgress struct {
	Examined  int
	Collected int
	Elapsed   time.Duration
	Message   string
}

// FetchRequest parameterises one fetch.
type FetchRequest struct {
	Repository RepositoryID
	Limits     Limits

	// OnProgress, when set, is called periodically during long fetches.
	OnProgress func(FetchProgress)
}

// FetchResult is what a fetcher returns.
type FetchResult struct {
	Documents   []Document
	Examined    int
	Collected   int
	Termination TerminationReason

	// Warnings describe silently applied limits (skipped files, truncated
	// threads) so they can be surfaced to the caller.
	Warnings []string
}
