package ports

import (
	"context"
	"time"

	"DigestScheduler/internal/domain"
)

// DueRecordStore lists candidate users and reads their scheduling records.
type DueRecordStore interface {
	CandidateUsers(ctx context.Context) ([]string, error)
	DueRecord(ctx context.Context, userID string) (domain.DueRecord, error)
}

// ProfileStore reads per-user digest preferences.
type ProfileStore interface {
	Profile(ctx context.Context, userID string) (domain.UserProfile, error)
}

// ContentStore persists refreshed content and the refresh timestamp.
type ContentStore interface {
	SaveContent(ctx context.Context, set domain.ContentSet) (string, error)
	Content(ctx context.Context, ref string) (domain.ContentSet, error)
	// LatestContent returns the handle of the most recently stored content, if any.
	LatestContent(ctx context.Context, userID string) (domain.Artifact, bool, error)
	MarkRefreshed(ctx context.Context, userID string, at time.Time, contentRef string) error
}

// ArtifactStore persists report and podcast records.
type ArtifactStore interface {
	SaveReport(ctx context.Context, report domain.Report) (string, error)
	Report(ctx context.Context, ref string) (domain.Report, error)
	SavePodcast(ctx context.Context, podcast domain.Podcast) (string, error)
}

// ContentSource pulls fresh articles for every topic of a user.
type ContentSource interface {
	FetchTopics(ctx context.Context, profile domain.UserProfile) (domain.ContentSet, error)
}

// ReportGenerator turns raw content into a structured report (LLM-backed).
type ReportGenerator interface {
	GenerateReport(ctx context.Context, profile domain.UserProfile, content domain.ContentSet) (domain.Report, error)
}

// SpeechSynthesizer converts narration text into audio bytes.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID, language string) ([]byte, error)
}

// AudioStore keeps synthesized audio and returns a reference to it.
type AudioStore interface {
	PutAudio(ctx context.Context, userID string, audio []byte) (string, error)
}

// PushSender delivers a notification to a device token. Destinations that can
// never be delivered to are reported with domain.ErrDestinationInvalid.
type PushSender interface {
	Send(ctx context.Context, token string, msg domain.PushMessage) error
}

// Scheduler controls when cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
