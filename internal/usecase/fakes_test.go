package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"DigestScheduler/internal/domain"
)

type fakeDueStore struct {
	candidates []string
	listErr    error
	records    map[string]domain.DueRecord
	readErrs   map[string]error

	mu    sync.Mutex
	reads int
}

func (f *fakeDueStore) CandidateUsers(context.Context) ([]string, error) {
	return f.candidates, f.listErr
}

func (f *fakeDueStore) DueRecord(_ context.Context, userID string) (domain.DueRecord, error) {
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()
	if err := f.readErrs[userID]; err != nil {
		return domain.DueRecord{}, err
	}
	rec, ok := f.records[userID]
	if !ok {
		return domain.DueRecord{}, errors.Newf("user %s not found", userID)
	}
	return rec, nil
}

// dueStoreFor makes every id due at now.
func dueStoreFor(now time.Time, ids ...string) *fakeDueStore {
	store := &fakeDueStore{records: map[string]domain.DueRecord{}}
	for _, id := range ids {
		store.candidates = append(store.candidates, id)
		store.records[id] = domain.DueRecord{UserID: id, LastUpdate: now.Add(-2 * time.Hour), Interval: time.Hour}
	}
	return store
}

func userIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("user-%02d", i)
	}
	return ids
}

// callLog records stage invocations across goroutines.
type callLog struct {
	mu    sync.Mutex
	calls []domain.StageName
	seen  map[domain.StageName]domain.PipelineContext
}

func (l *callLog) record(name domain.StageName, pc domain.PipelineContext) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
	if l.seen == nil {
		l.seen = map[domain.StageName]domain.PipelineContext{}
	}
	l.seen[name] = pc
}

func (l *callLog) names() []domain.StageName {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.StageName(nil), l.calls...)
}

func (l *callLog) context(name domain.StageName) (domain.PipelineContext, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pc, ok := l.seen[name]
	return pc, ok
}

// okStage succeeds and records the call.
func okStage(log *callLog, name domain.StageName) Stage {
	return StageFunc(func(_ context.Context, pc domain.PipelineContext) (domain.Artifact, error) {
		log.record(name, pc)
		return domain.Artifact{Ref: string(name) + "-" + pc.UserID}, nil
	})
}

// failStage fails with err and records the call.
func failStage(log *callLog, name domain.StageName, err error) Stage {
	return StageFunc(func(_ context.Context, pc domain.PipelineContext) (domain.Artifact, error) {
		log.record(name, pc)
		return domain.Artifact{}, err
	})
}

func allOK(log *callLog) Stages {
	return Stages{
		Refresh: okStage(log, domain.StageRefresh),
		Report:  okStage(log, domain.StageReport),
		Podcast: okStage(log, domain.StagePodcast),
		Notify:  okStage(log, domain.StageNotify),
	}
}

type fakePrior struct {
	artifact domain.Artifact
	found    bool
	err      error
}

func (f fakePrior) LatestContent(context.Context, string) (domain.Artifact, bool, error) {
	return f.artifact, f.found, f.err
}

func statuses(outcomes []domain.StageOutcome) []domain.StageStatus {
	out := make([]domain.StageStatus, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Status
	}
	return out
}

func stageNames(outcomes []domain.StageOutcome) []domain.StageName {
	out := make([]domain.StageName, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Stage
	}
	return out
}

// In-memory collaborators for the default stage implementations.

type memProfiles struct {
	profiles map[string]domain.UserProfile
}

func (m *memProfiles) Profile(_ context.Context, userID string) (domain.UserProfile, error) {
	p, ok := m.profiles[userID]
	if !ok {
		return domain.UserProfile{}, errors.Newf("profile %s not found", userID)
	}
	return p, nil
}

type memContent struct {
	mu        sync.Mutex
	sets      map[string]domain.ContentSet
	latest    map[string]string
	refreshed map[string]time.Time
	saveErr   error
}

func newMemContent() *memContent {
	return &memContent{sets: map[string]domain.ContentSet{}, latest: map[string]string{}, refreshed: map[string]time.Time{}}
}

func (m *memContent) SaveContent(_ context.Context, set domain.ContentSet) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	ref := fmt.Sprintf("content-%d", len(m.sets)+1)
	m.sets[ref] = set
	return ref, nil
}

func (m *memContent) Content(_ context.Context, ref string) (domain.ContentSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[ref]
	if !ok {
		return domain.ContentSet{}, errors.Newf("content %s not found", ref)
	}
	return set, nil
}

func (m *memContent) LatestContent(_ context.Context, userID string) (domain.Artifact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.latest[userID]
	if !ok {
		return domain.Artifact{}, false, nil
	}
	return domain.Artifact{Kind: domain.ArtifactContent, Ref: ref}, true, nil
}

func (m *memContent) MarkRefreshed(_ context.Context, userID string, at time.Time, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed[userID] = at
	m.latest[userID] = ref
	return nil
}

func (m *memContent) refreshedAt(userID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.refreshed[userID]
	return at, ok
}

type memArtifacts struct {
	mu       sync.Mutex
	reports  map[string]domain.Report
	podcasts []domain.Podcast
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{reports: map[string]domain.Report{}}
}

func (m *memArtifacts) SaveReport(_ context.Context, r domain.Report) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := fmt.Sprintf("report-%d", len(m.reports)+1)
	m.reports[ref] = r
	return ref, nil
}

func (m *memArtifacts) Report(_ context.Context, ref string) (domain.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[ref]
	if !ok {
		return domain.Report{}, errors.Newf("report %s not found", ref)
	}
	return r, nil
}

func (m *memArtifacts) SavePodcast(_ context.Context, p domain.Podcast) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.podcasts = append(m.podcasts, p)
	return fmt.Sprintf("podcast-%d", len(m.podcasts)), nil
}

type stubSource struct {
	set domain.ContentSet
	err error
}

func (s stubSource) FetchTopics(context.Context, domain.UserProfile) (domain.ContentSet, error) {
	return s.set, s.err
}

type stubGenerator struct{ err error }

func (g stubGenerator) GenerateReport(_ context.Context, profile domain.UserProfile, content domain.ContentSet) (domain.Report, error) {
	if g.err != nil {
		return domain.Report{}, g.err
	}
	r := domain.Report{Language: profile.Language}
	for _, t := range content.Topics {
		r.Topics = append(r.Topics, domain.TopicReport{Topic: t.Topic, PickupLine: "News on " + t.Topic, Summary: "summary"})
	}
	return r, nil
}

type stubSpeech struct{ err error }

func (s stubSpeech) Synthesize(context.Context, string, string, string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("RIFF"), nil
}

type stubAudio struct{}

func (stubAudio) PutAudio(_ context.Context, userID string, _ []byte) (string, error) {
	return "audio/" + userID + ".wav", nil
}

type recordingPush struct {
	mu   sync.Mutex
	sent []domain.PushMessage
	err  error
}

func (p *recordingPush) Send(_ context.Context, _ string, msg domain.PushMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *recordingPush) messages() []domain.PushMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.PushMessage(nil), p.sent...)
}
