package github

import (
	"context"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// prScan tracks a bounded scan of closed pull requests. It stops on the
// first limit reached: enough merged PRs, too many examined, or the
// wall-clock deadline.
type prScan struct {
	maxCollect int
	maxExamine int
	deadline   time.Time
	now        func() time.Time

	examined  int
	collected int
}

func newPRScan(limits domain.Limits, policy domain.ScanPolicy, start time.Time) *prScan {
	maxCollect := limits.MaxPRs
	if maxCollect <= 0 {
		maxCollect = domain.DefaultMaxPRs
	}
	maxExamine := limits.MaxToExamine
	if maxExamine <= 0 {
		maxExamine = policy.MaxToExamine(maxCollect)
	}

	s := &prScan{maxCollect: maxCollect, maxExamine: maxExamine, now: time.Now}
	if limits.WallClockBudget > 0 {
		s.deadline = start.Add(limits.WallClockBudget)
	}
	return s
}

// stopReason returns why the scan must stop, or TerminationNone.
func (s *prScan) stopReason(ctx context.Context) domain.TerminationReason {
	switch {
	case s.collected >= s.maxCollect:
		return domain.TerminationCollectedEnough
	case s.maxExamine > 0 && s.examined >= s.maxExamine:
		return domain.TerminationExaminationLimit
	case ctx.Err() != nil:
		return domain.TerminationWallClockLimit
	case !s.deadline.IsZero() && !s.now().Before(s.deadline):
		return domain.TerminationWallClockLimit
	default:
		return domain.TerminationNone
	}
}

// pageSize avoids listing far more PRs than may be examined.
func (s *prScan) pageSize() int {
	if s.maxExamine > 0 && s.maxExamine < PerPage {
		return s.maxExamine
	}
	return PerPage
}
