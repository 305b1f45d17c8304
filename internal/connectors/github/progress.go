package github

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// progressReporter calls OnProgress on a fixed interval from its own
// goroutine, so a slow API call does not delay reports.
type progressReporter struct {
	examined  atomic.Int64
	collected atomic.Int64

	start time.Time
	stop  chan struct{}
	wg    sync.WaitGroup
}

// startProgress starts reporting. fn may be nil.
func startProgress(interval time.Duration, message string, fn func(domain.FetchProgress)) *progressReporter {
	p := &progressReporter{start: time.Now(), stop: make(chan struct{})}
	if fn == nil || interval <= 0 {
		return p
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				fn(domain.FetchProgress{
					Examined:  int(p.examined.Load()),
					Collected: int(p.collected.Load()),
					Elapsed:   time.Since(p.start),
					Message:   message,
				})
			}
		}
	}()
	return p
}

// Stop ends reporting and waits for the goroutine to exit.
func (p *progressReporter) Stop() {
	close(p.stop)
	p.wg.Wait()
}
