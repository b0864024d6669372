package domain

import (
	"time"

	"github.com/cockroachdb/errors"
)

// StageName identifies one of the four fixed pipeline stages.
type StageName string

const (
	StageRefresh StageName = "refresh"
	StageReport  StageName = "report"
	StagePodcast StageName = "podcast"
	StageNotify  StageName = "notify"
)

// StageOrder is the only order stages ever execute in.
var StageOrder = []StageName{StageRefresh, StageReport, StagePodcast, StageNotify}

// StageStatus is the recorded result of a stage.
type StageStatus string

const (
	StatusSucceeded StageStatus = "succeeded"
	StatusFailed    StageStatus = "failed"
	StatusSkipped   StageStatus = "skipped"
)

var (
	// ErrUserDeadline marks a pipeline that ran past its per-user timeout.
	ErrUserDeadline = errors.New("per-user deadline exceeded")
	// ErrCycleDeadline marks a user that was never admitted before the cycle deadline.
	ErrCycleDeadline = errors.New("cycle deadline exceeded before admission")
	// ErrDestinationInvalid marks a notification target that can never be delivered to.
	ErrDestinationInvalid = errors.New("notification destination no longer valid")
	// ErrUpstreamMissing is recorded on stages skipped because a required input is absent.
	ErrUpstreamMissing = errors.New("required upstream output missing")
)

// StageOutcome is the immutable result of one stage invocation.
type StageOutcome struct {
	Stage    StageName     `json:"stage"`
	Status   StageStatus   `json:"status"`
	Detail   string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Succeeded builds a successful outcome.
func Succeeded(stage StageName, took time.Duration) StageOutcome {
	return StageOutcome{Stage: stage, Status: StatusSucceeded, Duration: took}
}

// Failed builds a failed outcome carrying err.
func Failed(stage StageName, err error, took time.Duration) StageOutcome {
	return StageOutcome{Stage: stage, Status: StatusFailed, Err: err, Detail: detail(err), Duration: took}
}

// Skipped builds an outcome for a stage that was never attempted.
func Skipped(stage StageName, reason error) StageOutcome {
	return StageOutcome{Stage: stage, Status: StatusSkipped, Err: reason, Detail: detail(reason)}
}

// TimedOut reports whether the outcome was caused by a deadline rather than a service failure.
func (o StageOutcome) TimedOut() bool {
	return errors.IsAny(o.Err, ErrUserDeadline, ErrCycleDeadline)
}

// Terminal reports whether the failure must never be retried.
func (o StageOutcome) Terminal() bool {
	return o.Status == StatusFailed && errors.Is(o.Err, ErrDestinationInvalid)
}

func detail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ArtifactKind tags what an artifact reference points at.
type ArtifactKind string

const (
	ArtifactContent ArtifactKind = "content"
	ArtifactReport  ArtifactKind = "report"
	ArtifactAudio   ArtifactKind = "audio"
	ArtifactReceipt ArtifactKind = "receipt"
)

// Artifact is an opaque reference to something a stage produced.
type Artifact struct {
	Kind ArtifactKind
	Ref  string
	// Note is a short human-readable label, e.g. the report headline.
	Note string
	// Prior is set when the artifact was carried over from an earlier cycle.
	Prior bool
}

// PipelineContext is owned by one runner for the lifetime of one user's pipeline.
type PipelineContext struct {
	UserID    string
	CycleID   string
	Deadline  time.Time
	artifacts map[StageName]Artifact
}

// NewPipelineContext starts an empty context.
func NewPipelineContext(userID, cycleID string, deadline time.Time) *PipelineContext {
	return &PipelineContext{
		UserID:    userID,
		CycleID:   cycleID,
		Deadline:  deadline,
		artifacts: map[StageName]Artifact{},
	}
}

// Put records a stage artifact. Entries are append-only: a second Put for the
// same stage is ignored and reported as false.
func (p *PipelineContext) Put(stage StageName, a Artifact) bool {
	if _, exists := p.artifacts[stage]; exists {
		return false
	}
	p.artifacts[stage] = a
	return true
}

// Artifact returns the artifact recorded for stage.
func (p PipelineContext) Artifact(stage StageName) (Artifact, bool) {
	a, ok := p.artifacts[stage]
	return a, ok
}

// Snapshot returns a copy whose artifact map is independent of the original.
func (p PipelineContext) Snapshot() PipelineContext {
	cp := p
	cp.artifacts = make(map[StageName]Artifact, len(p.artifacts))
	for k, v := range p.artifacts {
		cp.artifacts[k] = v
	}
	return cp
}
