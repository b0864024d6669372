package domain

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDueRecordIsDue(t *testing.T) {
	now := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		rec  DueRecord
		want bool
	}{
		{"interval not elapsed", DueRecord{LastUpdate: now.Add(-59 * time.Minute), Interval: time.Hour}, false},
		{"exactly at boundary", DueRecord{LastUpdate: now.Add(-time.Hour), Interval: time.Hour}, true},
		{"past boundary", DueRecord{LastUpdate: now.Add(-2 * time.Hour), Interval: time.Hour}, true},
		{"never refreshed", DueRecord{Interval: time.Hour}, true},
		{"no schedule", DueRecord{LastUpdate: now.Add(-48 * time.Hour)}, false},
		{"paused", DueRecord{LastUpdate: now.Add(-2 * time.Hour), Interval: time.Hour, Flags: EligibilityPaused}, false},
		{"deleted", DueRecord{Interval: time.Hour, Flags: EligibilityDeleted}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.rec.IsDue(now))
		})
	}
}

func TestPipelineContextAppendOnly(t *testing.T) {
	pc := NewPipelineContext("u1", "c1", time.Now())

	require.True(t, pc.Put(StageRefresh, Artifact{Kind: ArtifactContent, Ref: "first"}))
	assert.False(t, pc.Put(StageRefresh, Artifact{Kind: ArtifactContent, Ref: "second"}))

	a, ok := pc.Artifact(StageRefresh)
	require.True(t, ok)
	assert.Equal(t, "first", a.Ref)

	snap := pc.Snapshot()
	require.True(t, pc.Put(StageReport, Artifact{Kind: ArtifactReport, Ref: "r"}))
	_, ok = snap.Artifact(StageReport)
	assert.False(t, ok, "snapshot must not observe later puts")
}

func TestStageOutcomeClassification(t *testing.T) {
	timeout := Failed(StagePodcast, errors.Wrap(ErrUserDeadline, "podcast"), time.Second)
	assert.True(t, timeout.TimedOut())
	assert.False(t, timeout.Terminal())

	service := Failed(StagePodcast, errors.New("tts returned 500"), time.Second)
	assert.False(t, service.TimedOut())

	terminal := Failed(StageNotify, errors.Mark(errors.New("410 gone"), ErrDestinationInvalid), 0)
	assert.True(t, terminal.Terminal())
	assert.Equal(t, "410 gone", terminal.Detail)
}

func TestRunReportClassifiesByNotify(t *testing.T) {
	r := NewRunReport("c1", time.Now())
	r.Append(UserOutcome{UserID: "ok", Outcomes: []StageOutcome{
		Succeeded(StageRefresh, 0), Succeeded(StageReport, 0),
		Failed(StagePodcast, errors.New("tts"), 0), Succeeded(StageNotify, 0),
	}})
	r.Append(UserOutcome{UserID: "bad", Outcomes: []StageOutcome{
		Failed(StageRefresh, errors.New("search"), 0), Skipped(StageReport, ErrUpstreamMissing),
		Skipped(StagePodcast, ErrUpstreamMissing), Skipped(StageNotify, ErrUpstreamMissing),
	}})

	final := r.Finalize(time.Now())
	r.Append(UserOutcome{UserID: "late"})

	assert.Equal(t, 1, final.SuccessfulUpdates)
	assert.Equal(t, 1, final.FailedUpdates)
	assert.Len(t, r.Users, 2)
	assert.Equal(t, []string{"bad", "ok"}, final.TriggeredUserIDs())
}

func TestReportScriptSkipsFallbackTopics(t *testing.T) {
	r := Report{Topics: []TopicReport{
		{Topic: "Tech", PickupLine: "Chips are back", Summary: "New fabs opened."},
		{Topic: "Sports", PickupLine: "Discover the latest", Summary: "failed", Fallback: true},
	}}

	script := r.Script("Sam")
	assert.Contains(t, script, "I'm Sam")
	assert.Contains(t, script, "New fabs opened.")
	assert.NotContains(t, script, "failed")
	assert.Equal(t, "Chips are back", r.Headline())
}
