package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"DigestScheduler/internal/domain"
)

// DefaultUserTimeout bounds one user's pipeline wall time.
const DefaultUserTimeout = 8 * time.Minute

// PriorContentFinder locates content stored by an earlier successful Refresh.
type PriorContentFinder interface {
	LatestContent(ctx context.Context, userID string) (domain.Artifact, bool, error)
}

// RunnerDeps wires the stage implementations into a Runner.
type RunnerDeps struct {
	Stages      Stages
	Prior       PriorContentFinder
	UserTimeout time.Duration
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Runner executes the four stages for one user.
type Runner struct {
	stages      Stages
	prior       PriorContentFinder
	userTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewRunner builds a Runner; zero values fall back to defaults.
func NewRunner(deps RunnerDeps) *Runner {
	r := &Runner{
		stages:      deps.Stages,
		prior:       deps.Prior,
		userTimeout: deps.UserTimeout,
		logger:      deps.Logger,
		now:         deps.Clock,
	}
	if r.userTimeout <= 0 {
		r.userTimeout = DefaultUserTimeout
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// UserTimeout reports the configured per-user deadline offset.
func (r *Runner) UserTimeout() time.Duration {
	return r.userTimeout
}

type stageResult struct {
	artifact domain.Artifact
	err      error
}

// RunPipeline runs Refresh, Report, Podcast and Notify for userID with a
// deadline of start plus the per-user timeout. Scheduled runs pass the cycle
// start, so a user admitted late only gets what is left of that budget. It never
// returns an error: every failure, panic and timeout is represented in the
// returned outcomes.
func (r *Runner) RunPipeline(ctx context.Context, userID, cycleID string, start time.Time) []domain.StageOutcome {
	deadline := start.Add(r.userTimeout)
	ctx, cancel := context.WithDeadlineCause(ctx, deadline, domain.ErrUserDeadline)
	defer cancel()

	log := r.logger.With("user_id", userID, "cycle_id", cycleID)
	pc := domain.NewPipelineContext(userID, cycleID, deadline)
	machine := &pipelineMachine{state: statePending}
	outcomes := make([]domain.StageOutcome, 0, len(domain.StageOrder))

	for _, name := range domain.StageOrder {
		if ctx.Err() != nil {
			machine.expire()
			if len(outcomes) == 0 {
				// Admitted after the deadline: nothing ran.
				outcomes = append(outcomes, domain.Failed(name, stopCause(ctx), 0))
				continue
			}
			outcomes = append(outcomes, domain.Skipped(name, stopCause(ctx)))
			continue
		}
		if !machine.runnable(name) {
			outcomes = append(outcomes, domain.Skipped(name, domain.ErrUpstreamMissing))
			log.Debug("stage skipped", "stage", name, "state", machine.state.String())
			continue
		}

		stage := r.stages.byName(name)
		if stage == nil {
			outcomes = append(outcomes, domain.Failed(name, errors.Newf("stage %s is not configured", name), 0))
			machine.advance(name, eventFailed)
			continue
		}

		began := r.now()
		artifact, err := r.invoke(ctx, stage, pc.Snapshot())
		took := r.now().Sub(began)

		if err == nil {
			pc.Put(name, artifact)
			machine.advance(name, eventSucceeded)
			outcomes = append(outcomes, domain.Succeeded(name, took))
			log.Info("stage succeeded", "stage", name, "duration", took)
			continue
		}

		outcomes = append(outcomes, domain.Failed(name, err, took))
		log.Warn("stage failed", "stage", name, "duration", took, "error", err)

		if ctx.Err() != nil {
			machine.expire()
			continue
		}

		event := eventFailed
		if name == domain.StageRefresh {
			if prior, ok := r.findPrior(ctx, userID, log); ok {
				pc.Put(domain.StageRefresh, prior)
				event = eventFellBack
				log.Info("using prior content", "content_ref", prior.Ref)
			}
		}
		machine.advance(name, event)
	}

	log.Debug("pipeline finished", "state", machine.state.String())
	return outcomes
}

// invoke runs a stage in its own goroutine so the runner can return at the
// deadline without waiting. Panics become errors.
func (r *Runner) invoke(ctx context.Context, stage Stage, pc domain.PipelineContext) (domain.Artifact, error) {
	done := make(chan stageResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- stageResult{err: errors.Newf("stage panicked: %v", rec)}
			}
		}()
		artifact, err := stage.Run(ctx, pc)
		done <- stageResult{artifact: artifact, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil && errors.IsAny(res.err, context.DeadlineExceeded, context.Canceled) {
			return domain.Artifact{}, stopCause(ctx)
		}
		return res.artifact, res.err
	case <-ctx.Done():
		return domain.Artifact{}, stopCause(ctx)
	}
}

func (r *Runner) findPrior(ctx context.Context, userID string, log *slog.Logger) (domain.Artifact, bool) {
	if r.prior == nil {
		return domain.Artifact{}, false
	}
	prior, ok, err := r.prior.LatestContent(ctx, userID)
	if err != nil {
		log.Warn("prior content lookup failed", "error", err)
		return domain.Artifact{}, false
	}
	if !ok || prior.Ref == "" {
		return domain.Artifact{}, false
	}
	prior.Prior = true
	return prior, true
}

// stopCause reports why ctx ended, keeping ErrUserDeadline distinguishable
// from a caller cancellation.
func stopCause(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}
	if errors.Is(cause, domain.ErrUserDeadline) {
		return cause
	}
	return errors.Wrap(cause, "pipeline cancelled")
}
