package usecase

import "DigestScheduler/internal/domain"

// pipelineState tracks how far one user's pipeline got.
type pipelineState int

const (
	statePending pipelineState = iota
	stateRefreshed
	stateReported
	stateCast
	stateNotified
	stateAborted
)

func (s pipelineState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateRefreshed:
		return "refreshed"
	case stateReported:
		return "reported"
	case stateCast:
		return "cast"
	case stateNotified:
		return "notified"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// stageEvent is what happened when a stage ran.
type stageEvent int

const (
	eventSucceeded stageEvent = iota
	eventFailed
	// eventFellBack is a failed Refresh for a user that has usable prior content.
	eventFellBack
)

type transitionKey struct {
	from  pipelineState
	stage domain.StageName
	event stageEvent
}

// runnableFrom lists the states in which a stage may be attempted. A stage
// reached in any other state is skipped.
var runnableFrom = map[domain.StageName][]pipelineState{
	domain.StageRefresh: {statePending},
	domain.StageReport:  {stateRefreshed},
	domain.StagePodcast: {stateReported},
	domain.StageNotify:  {stateReported, stateCast},
}

// transitions is the continuation policy. Podcast failure keeps the pipeline in
// Reported so Notify still runs with a report-only payload.
var transitions = map[transitionKey]pipelineState{
	{statePending, domain.StageRefresh, eventSucceeded}: stateRefreshed,
	{statePending, domain.StageRefresh, eventFellBack}:  stateRefreshed,
	{statePending, domain.StageRefresh, eventFailed}:    stateAborted,

	{stateRefreshed, domain.StageReport, eventSucceeded}: stateReported,
	{stateRefreshed, domain.StageReport, eventFailed}:    stateAborted,

	{stateReported, domain.StagePodcast, eventSucceeded}: stateCast,
	{stateReported, domain.StagePodcast, eventFailed}:    stateReported,

	{stateReported, domain.StageNotify, eventSucceeded}: stateNotified,
	{stateReported, domain.StageNotify, eventFailed}:    stateAborted,
	{stateCast, domain.StageNotify, eventSucceeded}:     stateNotified,
	{stateCast, domain.StageNotify, eventFailed}:        stateAborted,
}

type pipelineMachine struct {
	state pipelineState
}

func (m *pipelineMachine) runnable(stage domain.StageName) bool {
	for _, s := range runnableFrom[stage] {
		if s == m.state {
			return true
		}
	}
	return false
}

// advance applies the table; a missing entry aborts.
func (m *pipelineMachine) advance(stage domain.StageName, ev stageEvent) pipelineState {
	next, ok := transitions[transitionKey{from: m.state, stage: stage, event: ev}]
	if !ok {
		next = stateAborted
	}
	m.state = next
	return next
}

// expire aborts the pipeline once its deadline has passed.
func (m *pipelineMachine) expire() {
	if m.state != stateNotified {
		m.state = stateAborted
	}
}
