package github

import (
	"context"
	"strconv"
	"sync"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/repolens/internal/logger"
	"github.com/custodia-labs/repolens/internal/metrics"
)

const (
	// GitHubRateLimit is the authenticated core quota per hour.
	GitHubRateLimit = 5000

	// ProactiveRate spreads calls at about 4300 per hour so a long PR scan
	// does not drain the quota in bursts.
	ProactiveRate = 1.2

	// ProactiveBurst lets a stage issue a few calls back to back.
	ProactiveBurst = 5

	// MinBuffer is the reserve left for other stages and the user's own
	// tooling before Wait holds calls until the window resets.
	MinBuffer = 100

	// MaxResetWait is the longest Wait sleeps for a reset before failing
	// with a RateLimitError.
	MaxResetWait = 2 * time.Minute

	headerRetryAfter = "Retry-After"
)

// Quota is the last known state of the GitHub API rate window.
type Quota struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// reserve is the number of calls held back. It shrinks to a tenth of the
// limit for the 60/hour unauthenticated quota.
func (q Quota) reserve(minBuffer int) int {
	if tenth := q.Limit / 10; tenth < minBuffer {
		return tenth
	}
	return minBuffer
}

// exhausted reports whether calls must wait for the reset at now.
func (q Quota) exhausted(minBuffer int, now time.Time) bool {
	return q.Remaining < q.reserve(minBuffer) && now.Before(q.Reset)
}

// RateLimiter paces GitHub calls with a token bucket and holds them once
// the quota reported by GitHub runs low.
type RateLimiter struct {
	mu        sync.Mutex
	quota     Quota
	bucket    *rate.Limiter
	minBuffer int
	maxWait   time.Duration
	now       func() time.Time
}

// NewRateLimiter creates a limiter with the default pacing.
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithRate(ProactiveRate, ProactiveBurst)
}

// NewRateLimiterWithRate creates a limiter with a custom request rate.
// A non-positive rate disables pacing.
func NewRateLimiterWithRate(perSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		quota:     Quota{Limit: GitHubRateLimit, Remaining: GitHubRateLimit},
		bucket:    rate.NewLimiter(limit, max(burst, 1)),
		minBuffer: MinBuffer,
		maxWait:   MaxResetWait,
		now:       time.Now,
	}
}

// Wait blocks until a call may be made. A reset further away than
// MaxResetWait fails fast with a RateLimitError so a stage does not hang
// for most of an hour.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	q := r.quota
	now := r.now()
	exhausted := q.exhausted(r.minBuffer, now)
	r.mu.Unlock()

	if !exhausted {
		return nil
	}

	wait := q.Reset.Sub(now)
	if wait > r.maxWait {
		return &RateLimitError{ResetAt: q.Reset, Remaining: q.Remaining, Limit: q.Limit}
	}

	logger.Debug("GitHub quota low (%d/%d), waiting %s for reset", q.Remaining, q.Limit, wait.Round(time.Second))
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Observe records the quota reported with a response. go-github parses
// the X-RateLimit headers into resp.Rate; a Retry-After from a secondary
// limit empties the quota until it passes.
func (r *RateLimiter) Observe(resp *gh.Response) {
	if resp == nil || resp.Response == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if resp.Rate.Limit > 0 {
		r.quota = Quota{
			Limit:     resp.Rate.Limit,
			Remaining: resp.Rate.Remaining,
			Reset:     resp.Rate.Reset.Time,
		}
	}
	if v := resp.Header.Get(headerRetryAfter); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			r.quota.Remaining = 0
			r.quota.Reset = r.now().Add(time.Duration(seconds) * time.Second)
		}
	}
	metrics.GitHubQuota(r.quota.Remaining)
}

// Quota returns the last known quota.
func (r *RateLimiter) Quota() Quota {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quota
}
