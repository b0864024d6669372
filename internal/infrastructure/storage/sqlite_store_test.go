package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DigestScheduler/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedUser(t *testing.T, s *SQLiteStore, id string, interval time.Duration) domain.UserProfile {
	t.Helper()
	profile := domain.UserProfile{
		UserID:        id,
		Language:      "en",
		Country:       "us",
		PresenterName: "Sam",
		VoiceID:       "voice-1",
		PushToken:     "token-" + id,
		Topics:        []domain.Topic{{Name: "ai", Queries: []string{"llm", "agents"}, Provider: "newsapi"}},
	}
	require.NoError(t, s.SaveUser(context.Background(), profile, interval, 0))
	return profile
}

func TestUserRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	want := seedUser(t, s, "u1", time.Hour)
	seedUser(t, s, "u0", 2*time.Hour)

	ids, err := s.CandidateUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u0", "u1"}, ids)

	got, err := s.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	rec, err := s.DueRecord(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, rec.Interval)
	assert.True(t, rec.LastUpdate.IsZero())
	assert.True(t, rec.IsDue(time.Now()))
}

func TestMissingUser(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.DueRecord(ctx, "ghost")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Profile(ctx, "ghost")
	assert.True(t, errors.Is(err, ErrNotFound))
	err = s.MarkRefreshed(ctx, "ghost", time.Now(), "c1")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, found, err := s.LatestContent(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMarkRefreshedAdvancesDueRecord(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedUser(t, s, "u1", time.Hour)

	fetched := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	ref, err := s.SaveContent(ctx, domain.ContentSet{
		UserID:    "u1",
		FetchedAt: fetched,
		Topics:    []domain.TopicContent{{Topic: "ai", Articles: []domain.Article{{ID: "a", Title: "T", URL: "https://x"}}}},
	})
	require.NoError(t, err)
	require.NoError(t, s.MarkRefreshed(ctx, "u1", fetched, ref))

	rec, err := s.DueRecord(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rec.LastUpdate.Equal(fetched))
	assert.False(t, rec.IsDue(fetched.Add(59*time.Minute)))
	assert.True(t, rec.IsDue(fetched.Add(time.Hour)))

	latest, found, err := s.LatestContent(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ref, latest.Ref)

	set, err := s.Content(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, set.ArticleCount())
	assert.True(t, set.FetchedAt.Equal(fetched))
}

func TestSaveUserKeepsScheduleState(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	profile := seedUser(t, s, "u1", time.Hour)
	at := time.Now().UTC()
	require.NoError(t, s.MarkRefreshed(ctx, "u1", at, "c1"))

	profile.PushToken = "rotated"
	require.NoError(t, s.SaveUser(ctx, profile, time.Hour, domain.EligibilityPaused))

	rec, err := s.DueRecord(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rec.LastUpdate.Equal(at))
	assert.Equal(t, domain.EligibilityPaused, rec.Flags)

	got, err := s.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.PushToken)
}

func TestReportsAndPodcasts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	report := domain.Report{
		UserID:      "u1",
		ContentRef:  "c1",
		Language:    "en",
		GeneratedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		Topics:      []domain.TopicReport{{Topic: "ai", PickupLine: "New models", Summary: "..."}},
	}
	ref, err := s.SaveReport(ctx, report)
	require.NoError(t, err)

	loaded, err := s.Report(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "New models", loaded.Headline())
	assert.True(t, loaded.GeneratedAt.Equal(report.GeneratedAt))

	_, err = s.Report(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	for i := range 2 {
		_, err := s.SavePodcast(ctx, domain.Podcast{
			UserID: "u1", ReportRef: ref, AudioRef: "audio/u1.wav", Bytes: 100 + i,
			CreatedAt: time.Date(2026, 4, 1, 9, i, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}
	podcasts, err := s.Podcasts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, podcasts, 2)
	assert.Equal(t, 101, podcasts[0].Bytes)
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "digest.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(context.Background(), " ")
	assert.Error(t, err)
}
