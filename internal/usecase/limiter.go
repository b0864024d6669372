package usecase

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent is the default number of simultaneous pipelines.
const DefaultMaxConcurrent = 5

// ErrNotAdmitted is returned when admission gives up because ctx ended.
var ErrNotAdmitted = errors.New("runner not admitted")

// Limiter bounds how many pipelines run at once. Waiters are served in the
// order they called Admit.
type Limiter struct {
	max      int64
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewLimiter creates a limiter with max slots; max <= 0 uses DefaultMaxConcurrent.
func NewLimiter(max int) *Limiter {
	if max <= 0 {
		max = DefaultMaxConcurrent
	}
	return &Limiter{max: int64(max), sem: semaphore.NewWeighted(int64(max))}
}

// Admit blocks until a slot is free, then runs fn in a new goroutine and frees
// the slot when fn returns. When ctx ends first, fn is not run.
func (l *Limiter) Admit(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return errors.Mark(errors.Wrap(err, "admit"), ErrNotAdmitted)
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return errors.Mark(errors.Wrap(err, "admit"), ErrNotAdmitted)
	}
	l.track(l.inFlight.Add(1))

	go func() {
		defer l.release()
		fn()
	}()
	return nil
}

func (l *Limiter) release() {
	l.inFlight.Add(-1)
	l.sem.Release(1)
}

func (l *Limiter) track(n int64) {
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// Max is the configured slot count.
func (l *Limiter) Max() int {
	return int(l.max)
}

// InFlight is the number of currently running admitted functions.
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

// Peak is the highest InFlight value observed.
func (l *Limiter) Peak() int {
	return int(l.peak.Load())
}
