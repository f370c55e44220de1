package consult

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout bounds one full consultation round.
const DefaultTimeout = 5 * time.Minute

// Coordinator fans a review prompt out to a set of reviewers and
// collects their verdicts.
type Coordinator struct {
	reviewers []Reviewer
	timeout   time.Duration
}

// NewCoordinator creates a coordinator over the given reviewers. A
// non-positive timeout falls back to DefaultTimeout.
func NewCoordinator(reviewers []Reviewer, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{reviewers: reviewers, timeout: timeout}
}

// Run sends the prompt to every reviewer concurrently and returns one
// verdict per reviewer in registration order. A reviewer that fails,
// times out, or replies unparsably contributes a low-confidence COMMENT
// verdict; the round itself never fails. An empty reviewer set returns
// an empty slice.
func (c *Coordinator) Run(ctx context.Context, prompt, role string) []Verdict {
	if len(c.reviewers) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	verdicts := make([]Verdict, len(c.reviewers))
	var wg sync.WaitGroup
	for i, r := range c.reviewers {
		wg.Add(1)
		go func(i int, r Reviewer) {
			defer wg.Done()
			reply, err := r.Invoke(ctx, prompt, role)
			if err != nil {
				verdicts[i] = fallbackVerdict(r.Name(), err.Error())
				return
			}
			verdicts[i] = Parse(r.Name(), reply)
		}(i, r)
	}
	wg.Wait()
	return verdicts
}
