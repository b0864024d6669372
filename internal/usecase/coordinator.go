package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"DigestScheduler/internal/domain"
)

// DefaultCycleTimeout caps how long a cycle keeps admitting pipelines.
const DefaultCycleTimeout = 9 * time.Minute

// ErrUserInFlight is returned by RunUser when the user's pipeline is already running.
var ErrUserInFlight = errors.New("user pipeline already in flight")

// CoordinatorDeps wires the scheduling components together.
type CoordinatorDeps struct {
	Evaluator     *DueEvaluator
	Runner        *Runner
	MaxConcurrent int
	CycleTimeout  time.Duration
	Logger        *slog.Logger
	Clock         func() time.Time
	NewID         func() string
}

// Coordinator drives scheduling cycles and manual single-user runs.
type Coordinator struct {
	evaluator     *DueEvaluator
	runner        *Runner
	maxConcurrent int
	cycleTimeout  time.Duration
	logger        *slog.Logger
	now           func() time.Time
	newID         func() string

	inflight *inflightSet
	manual   singleflight.Group
}

// NewCoordinator builds a Coordinator; zero values fall back to defaults.
func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	c := &Coordinator{
		evaluator:     deps.Evaluator,
		runner:        deps.Runner,
		maxConcurrent: deps.MaxConcurrent,
		cycleTimeout:  deps.CycleTimeout,
		logger:        deps.Logger,
		now:           deps.Clock,
		newID:         deps.NewID,
		inflight:      newInflightSet(),
	}
	if c.maxConcurrent <= 0 {
		c.maxConcurrent = DefaultMaxConcurrent
	}
	if c.cycleTimeout <= 0 {
		c.cycleTimeout = DefaultCycleTimeout
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// RunCycle evaluates the due set at now, runs every due user's pipeline through
// a bounded limiter and returns the finalized report. It never fails; problems
// are reported in the RunReport.
func (c *Coordinator) RunCycle(ctx context.Context, now time.Time) domain.RunReport {
	start := c.now()
	report := domain.NewRunReport(c.newID(), start)
	log := c.logger.With("cycle_id", report.CycleID)
	log.Info("cycle started", "now", now.Format(time.RFC3339))

	set, err := c.evaluator.Evaluate(ctx, now)
	report.CandidatesChecked = set.Checked
	if err != nil {
		report.Error = err.Error()
		log.Error("due set evaluation failed", "error", err)
		return report.Finalize(c.now())
	}
	report.DueUsers = len(set.UserIDs)

	admit := make([]string, 0, len(set.UserIDs))
	for _, id := range set.UserIDs {
		if !c.inflight.acquire(id) {
			report.Deferred = append(report.Deferred, id)
			log.Warn("user still in flight, deferred", "user_id", id)
			continue
		}
		admit = append(admit, id)
	}
	if len(admit) == 0 {
		final := report.Finalize(c.now())
		log.Info("cycle finished", "due", report.DueUsers, "message", "no users need updates")
		return final
	}

	limiter := NewLimiter(c.maxConcurrent)
	report.MaxConcurrent = min(limiter.Max(), len(admit))

	admitCtx, cancel := context.WithDeadlineCause(ctx, start.Add(c.cycleTimeout), domain.ErrCycleDeadline)
	defer cancel()

	results := make(chan domain.UserOutcome, len(admit))
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for u := range results {
			report.Append(u)
			log.Info("user finished", "user_id", u.UserID, "succeeded", domain.NotifySucceeded(u.Outcomes),
				"completed", len(report.Users), "total", len(admit))
		}
	}()

	var wg sync.WaitGroup
	for i, id := range admit {
		wg.Add(1)
		err := limiter.Admit(admitCtx, func() {
			defer wg.Done()
			defer c.inflight.release(id)
			outcomes := c.runner.RunPipeline(ctx, id, report.CycleID, start)
			results <- domain.UserOutcome{UserID: id, Admitted: true, Outcomes: outcomes}
		})
		if err != nil {
			wg.Done()
			reason := admissionCause(admitCtx)
			log.Warn("admission stopped", "remaining", len(admit)-i, "error", reason)
			for _, rest := range admit[i:] {
				c.inflight.release(rest)
				results <- notAdmitted(rest, reason)
			}
			break
		}
	}

	wg.Wait()
	close(results)
	<-collected

	report.PeakConcurrent = limiter.Peak()
	final := report.Finalize(c.now())
	log.Info("cycle finished",
		"due", final.DueUsers,
		"successful", final.SuccessfulUpdates,
		"failed", final.FailedUpdates,
		"deferred", len(final.Deferred),
		"peak_concurrent", final.PeakConcurrent,
		"elapsed", final.Elapsed(),
	)
	return final
}

// RunUser runs one user's pipeline outside the periodic schedule. Concurrent
// calls for the same user share a single run.
func (c *Coordinator) RunUser(ctx context.Context, userID string) (domain.UserOutcome, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserOutcome{}, errors.New("user id is required")
	}

	v, err, _ := c.manual.Do(userID, func() (any, error) {
		if !c.inflight.acquire(userID) {
			return nil, errors.Wrapf(ErrUserInFlight, "user %s", userID)
		}
		defer c.inflight.release(userID)

		cycleID := "manual-" + c.newID()
		outcomes := c.runner.RunPipeline(ctx, userID, cycleID, c.now())
		return domain.UserOutcome{
			UserID:    userID,
			Admitted:  true,
			Succeeded: domain.NotifySucceeded(outcomes),
			Outcomes:  outcomes,
		}, nil
	})
	if err != nil {
		return domain.UserOutcome{}, err
	}
	return v.(domain.UserOutcome), nil
}

func notAdmitted(userID string, reason error) domain.UserOutcome {
	outcomes := make([]domain.StageOutcome, 0, len(domain.StageOrder))
	for _, name := range domain.StageOrder {
		if name == domain.StageRefresh {
			outcomes = append(outcomes, domain.Failed(name, reason, 0))
			continue
		}
		outcomes = append(outcomes, domain.Skipped(name, reason))
	}
	return domain.UserOutcome{UserID: userID, Outcomes: outcomes}
}

func admissionCause(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}
	if errors.Is(cause, domain.ErrCycleDeadline) {
		return cause
	}
	return errors.Wrap(cause, "cycle cancelled")
}

// inflightSet marks users whose pipeline is running, across cycles and manual runs.
type inflightSet struct {
	mu    sync.Mutex
	users map[string]struct{}
}

func newInflightSet() *inflightSet {
	return &inflightSet{users: map[string]struct{}{}}
}

func (s *inflightSet) acquire(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.users[userID]; busy {
		return false
	}
	s.users[userID] = struct{}{}
	return true
}

func (s *inflightSet) release(userID string) {
	s.mu.Lock()
	delete(s.users, userID)
	s.mu.Unlock()
}
