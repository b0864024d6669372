package usecase

import (
	"context"

	"DigestScheduler/internal/domain"
)

// Stage is one of the four pipeline operations. It receives a snapshot of the
// pipeline context and returns the artifact it produced. The runner owns the
// conversion into a StageOutcome.
type Stage interface {
	Run(ctx context.Context, pc domain.PipelineContext) (domain.Artifact, error)
}

// StageFunc adapts a function to Stage.
type StageFunc func(ctx context.Context, pc domain.PipelineContext) (domain.Artifact, error)

// Run calls f.
func (f StageFunc) Run(ctx context.Context, pc domain.PipelineContext) (domain.Artifact, error) {
	return f(ctx, pc)
}

// Stages binds an implementation to each fixed role.
type Stages struct {
	Refresh Stage
	Report  Stage
	Podcast Stage
	Notify  Stage
}

func (s Stages) byName(name domain.StageName) Stage {
	switch name {
	case domain.StageRefresh:
		return s.Refresh
	case domain.StageReport:
		return s.Report
	case domain.StagePodcast:
		return s.Podcast
	case domain.StageNotify:
		return s.Notify
	default:
		return nil
	}
}
