package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"DigestScheduler/internal/domain"
	"DigestScheduler/internal/ports"
)

const (
	notificationTitle = "Your updates are available"
)

// ErrNoContent is returned by Refresh when no topic produced any article.
var ErrNoContent = errors.New("no content fetched")

// StageDeps wires the external collaborators behind the default stages.
type StageDeps struct {
	Profiles  ports.ProfileStore
	Source    ports.ContentSource
	Content   ports.ContentStore
	Artifacts ports.ArtifactStore
	Generator ports.ReportGenerator
	Speech    ports.SpeechSynthesizer
	Audio     ports.AudioStore
	Push      ports.PushSender
	Logger    *slog.Logger
	Clock     func() time.Time
}

// NewStages builds the default Refresh, Report, Podcast and Notify stages.
func NewStages(deps StageDeps) Stages {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return Stages{
		Refresh: &refreshStage{deps: deps},
		Report:  &reportStage{deps: deps},
		Podcast: &podcastStage{deps: deps},
		Notify:  &notifyStage{deps: deps},
	}
}

type refreshStage struct{ deps StageDeps }

// Run fetches topic content, stores it and only then advances the user's
// last update timestamp.
func (s *refreshStage) Run(ctx context.Context, pc domain.PipelineContext) (domain.Artifact, error) {
	profile, err := s.deps.Profiles.Profile(ctx, pc.UserID)
	if err != nil {
		return domain.Artifact{}, errors.Wrap(err, "load profile")
	}
	if len(profile.Topics) == 0 {
		return domain.Artifact{}, errors.Newf("user %s has no topics configured", pc.UserID)
	}

	set, err := s.deps.Source.FetchTopics(ctx, profile)
	if err != nil {
		return domain.Artifact{}, errors.Wrap(err, "fetch topics")
	}
	if set.ArticleCount() == 0 {
		return domain.Artifact{}, ErrNoContent
	}
	set.UserID = pc.UserID
	if set.FetchedAt.IsZero() {
		set.FetchedAt = s.deps.Clock()
	}
	if set.Language == "" {
		set.Language = profile.Language
	}

	ref, err := s.deps.Content.SaveContent(ctx, set)
	if err != nil {
		return domain.Artifact{}, errors.Wrap(err, "save content")
	}
	if err := s.deps.Content.MarkRefreshed(ctx, pc.UserID, s.deps.Clock(), ref); err != nil {
		return domain.Artifact{}, errors.Wrap(err, "mark refreshed")
	}

	s.deps.Logger.Debug("content refreshed", "user_id", pc.UserID, "topics", len(set.Topics), "articles", set.ArticleCount())
	return domain.Artifact{Kind: domain.ArtifactContent, Ref: ref}, nil
}

type reportStage struct{ deps StageDeps }

// Run builds a report from the refreshed content, or from prior content the
// runner carried over when Refresh failed.
func (s *reportStage) Run(ctx context.Context, pc domain.PipelineContext) (domain.Artifact, error) {
	source, ok := pc.Artifact(domain.StageRefresh)
	if !ok {
		return domain.Artifact{}, errors.Wrap(domain.ErrUpstreamMissing, "report needs content")
	}

	profile, err := s.deps.Profiles.Profile(ctx, pc.UserID)
	if err != nil {
		return domain.Artifact{}, errors.Wrap(err, "load profile")
	}
	content, err := s.deps.Content.Content(ctx, source.Ref)
	if err != nil {
		return domain.Artifact{}, errors.Wrapf(err, "load content %s", source.Ref)
	}

	report, err := s.deps.Generator.GenerateReport(ctx, profile, content)
	if err != nil {
		return domain.Artifact{}, errors.Wrap(err, "generate report")
	}
	report.UserID = pc.UserID
	report.ContentRef = source.Ref
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = s.deps.Clock()
	}

	ref, err := s.deps.Artifacts.SaveReport(ctx, report)
	if err != nil {
		return domain.Artifact{}, errors.Wrap(err, "save report")
	}
	return domain.Artifact{Kind: domain.ArtifactReport, Ref: ref, Note: report.Headline()}, nil
}

type podcastStage struct{ deps StageDeps }

// Run narrates the report and stores the synthesized audio.
func (s *podcastStage) Run(ctx context.Context, pc domain.PipelineContext) (domain.Artifact, error) {
	reportArt, ok := pc.Artifact(domain.StageReport)
	if !ok {
		return domain.Artifact{}, errors.Wrap(domain.ErrUpstreamMissing, "podcast needs a report")
	}

	profile, err := s.deps.Profiles.Profile(ctx, pc.UserID)
	if err != nil {
		return domain.Artifact{}, errors.Wrap(err, "load profile")
	}
	report, err := s.deps.Artifacts.Report(ctx, reportArt.Ref)
	if err != nil {
		return domain.Artifact{}, errors.Wrapf(err, "load report %s", reportArt.Ref)
	}

	audio, err := s.deps.Speech.Synthesize(ctx, report.Script(profile.PresenterName), profile.VoiceID, profile.Language)
	if err != nil {
		return domain.Artifact{}, errors.Wrap(err, "synthesize speech")
	}
	if len(audio) == 0 {
		return domain.Artifact{}, errors.New("speech synthesis returned no audio")
	}

	audioRef, err := s.deps.Audio.PutAudio(ctx, pc.UserID, audio)
	if err != nil {
		return domain.Artifact{}, errors.Wrap(err, "store audio")
	}
	if _, err := s.deps.Artifacts.SavePodcast(ctx, domain.Podcast{
		UserID:    pc.UserID,
		ReportRef: reportArt.Ref,
		AudioRef:  audioRef,
		Bytes:     len(audio),
		CreatedAt: s.deps.Clock(),
	}); err != nil {
		return domain.Artifact{}, errors.Wrap(err, "save podcast")
	}

	return domain.Artifact{Kind: domain.ArtifactAudio, Ref: audioRef}, nil
}

type notifyStage struct{ deps StageDeps }

// Run pushes a notification referencing the report and, when present, the audio.
func (s *notifyStage) Run(ctx context.Context, pc domain.PipelineContext) (domain.Artifact, error) {
	reportArt, ok := pc.Artifact(domain.StageReport)
	if !ok {
		return domain.Artifact{}, errors.Wrap(domain.ErrUpstreamMissing, "notify needs a report")
	}

	profile, err := s.deps.Profiles.Profile(ctx, pc.UserID)
	if err != nil {
		return domain.Artifact{}, errors.Wrap(err, "load profile")
	}
	if strings.TrimSpace(profile.PushToken) == "" {
		return domain.Artifact{}, errors.Wrapf(domain.ErrDestinationInvalid, "user %s has no push token", pc.UserID)
	}

	msg := domain.PushMessage{
		Title:     notificationTitle,
		Body:      reportArt.Note,
		ReportRef: reportArt.Ref,
	}
	if audio, ok := pc.Artifact(domain.StagePodcast); ok {
		msg.AudioRef = audio.Ref
	}
	if msg.Body == "" {
		msg.Body = "Fresh news articles are ready!"
	}

	if err := s.deps.Push.Send(ctx, profile.PushToken, msg); err != nil {
		return domain.Artifact{}, errors.Wrap(err, "send push")
	}
	return domain.Artifact{Kind: domain.ArtifactReceipt, Ref: reportArt.Ref}, nil
}
