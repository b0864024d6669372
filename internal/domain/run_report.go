package domain

import (
	"sort"
	"time"
)

// UserOutcome is the outcome sequence of one user's pipeline within a cycle.
type UserOutcome struct {
	UserID    string         `json:"user_id"`
	Admitted  bool           `json:"admitted"`
	Succeeded bool           `json:"succeeded"`
	Outcomes  []StageOutcome `json:"outcomes"`
}

// Outcome returns the outcome recorded for stage.
func (u UserOutcome) Outcome(stage StageName) (StageOutcome, bool) {
	for _, o := range u.Outcomes {
		if o.Stage == stage {
			return o, true
		}
	}
	return StageOutcome{}, false
}

// NotifySucceeded is the success classification of a user.
func NotifySucceeded(outcomes []StageOutcome) bool {
	for _, o := range outcomes {
		if o.Stage == StageNotify {
			return o.Status == StatusSucceeded
		}
	}
	return false
}

// RunReport is the only externally observable result of a cycle.
type RunReport struct {
	CycleID           string        `json:"cycle_id"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	CandidatesChecked int           `json:"candidates_checked"`
	DueUsers          int           `json:"due_users"`
	SuccessfulUpdates int           `json:"successful_updates"`
	FailedUpdates     int           `json:"failed_updates"`
	MaxConcurrent     int           `json:"max_concurrent"`
	PeakConcurrent    int           `json:"peak_concurrent"`
	Users             []UserOutcome `json:"users"`
	Deferred          []string      `json:"deferred,omitempty"`
	Error             string        `json:"error,omitempty"`
	closed            bool
}

// NewRunReport opens a report for a cycle.
func NewRunReport(cycleID string, startedAt time.Time) *RunReport {
	return &RunReport{CycleID: cycleID, StartedAt: startedAt}
}

// Append records a finished user and classifies it. Appends after Finalize are dropped.
func (r *RunReport) Append(u UserOutcome) {
	if r.closed {
		return
	}
	u.Succeeded = NotifySucceeded(u.Outcomes)
	if u.Succeeded {
		r.SuccessfulUpdates++
	} else {
		r.FailedUpdates++
	}
	r.Users = append(r.Users, u)
}

// Finalize closes the report.
func (r *RunReport) Finalize(finishedAt time.Time) RunReport {
	r.FinishedAt = finishedAt
	r.closed = true
	return *r
}

// Elapsed is the cycle wall time.
func (r RunReport) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// TriggeredUserIDs lists every user that received a pipeline slot or a deadline outcome.
func (r RunReport) TriggeredUserIDs() []string {
	ids := make([]string, 0, len(r.Users))
	for _, u := range r.Users {
		ids = append(ids, u.UserID)
	}
	sort.Strings(ids)
	return ids
}
