package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DigestScheduler/internal/config"
	"DigestScheduler/internal/domain"
	"DigestScheduler/internal/logging"
)

const usersYAML = `
- id: u1
  language: en
  country: us
  presenterName: Sam
  pushToken: token-1
  interval: 1h
  topics:
    - name: ai
      queries: ["artificial intelligence"]
- id: u2
  language: en
  pushToken: token-2
  interval: 1h
  paused: true
  topics:
    - name: space
      queries: ["rockets"]
`

type fakeUpstreams struct {
	mu     sync.Mutex
	pushed []string
}

func (f *fakeUpstreams) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"news_results": []map[string]any{
				{"title": "Model release", "link": "https://example.com/a1", "snippet": "New model", "source": map[string]string{"name": "Example"}},
			},
		})
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		content := `{"pickup_line":"AI moves fast","summary":"A new model shipped."}`
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	})
	mux.HandleFunc("/tts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("RIFFdata"))
	})
	mux.HandleFunc("/push", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message struct {
				Token string `json:"token"`
			} `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode push: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.pushed = append(f.pushed, body.Message.Token)
		f.mu.Unlock()
	})
	return mux
}

func (f *fakeUpstreams) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pushed...)
}

func newTestApp(t *testing.T) (*Application, *fakeUpstreams) {
	t.Helper()
	upstreams := &fakeUpstreams{}
	srv := httptest.NewServer(upstreams.handler(t))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Database.Path = ":memory:"
	cfg.Audio.Dir = t.TempDir()
	cfg.Search.SerpAPI = config.ProviderConfig{BaseURL: srv.URL + "/search", APIKey: "serp"}
	cfg.ChatGPT.Endpoint = srv.URL + "/chat"
	cfg.ChatGPT.APIKey = "openai"
	cfg.TTS.Endpoint = srv.URL + "/tts"
	cfg.TTS.APIKey = "cartesia"
	cfg.Push.Endpoint = srv.URL + "/push"
	cfg.Push.RatePerSecond = 0

	application, err := New(context.Background(), cfg, logging.NewWithWriter(os.Stderr, "error", "text"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })
	return application, upstreams
}

func importUsers(t *testing.T, application *Application) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(usersYAML), 0o600))
	n, err := application.ImportUsers(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestRunOnceDeliversDigestToDueUsers(t *testing.T) {
	application, upstreams := newTestApp(t)
	importUsers(t, application)

	report := application.RunOnce(context.Background())

	assert.Empty(t, report.Error)
	assert.Equal(t, 2, report.CandidatesChecked)
	assert.Equal(t, 1, report.DueUsers)
	assert.Equal(t, 1, report.SuccessfulUpdates)
	assert.Equal(t, []string{"token-1"}, upstreams.tokens())

	podcasts, err := application.store.Podcasts(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, podcasts, 1)
	assert.FileExists(t, filepath.Join(application.cfg.Audio.Dir, filepath.FromSlash(podcasts[0].AudioRef)))
}

func TestRunOnceSkipsUsersUpdatedWithinInterval(t *testing.T) {
	application, upstreams := newTestApp(t)
	importUsers(t, application)

	first := application.RunOnce(context.Background())
	require.Equal(t, 1, first.SuccessfulUpdates)

	second := application.RunOnce(context.Background())
	assert.Equal(t, 0, second.DueUsers)
	assert.Len(t, upstreams.tokens(), 1)
}

func TestRunUserIgnoresSchedule(t *testing.T) {
	application, upstreams := newTestApp(t)
	importUsers(t, application)

	outcome, err := application.RunUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded)

	notify, ok := outcome.Outcome(domain.StageNotify)
	require.True(t, ok)
	assert.Equal(t, domain.StatusSucceeded, notify.Status)
	assert.Equal(t, []string{"token-1"}, upstreams.tokens())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.MaxConcurrent = 0

	_, err := New(context.Background(), cfg, logging.NewWithWriter(os.Stderr, "error", "text"))
	assert.Error(t, err)
}

func TestImportUsersRejectsMalformedFile(t *testing.T) {
	application, _ := newTestApp(t)
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id: [unterminated"), 0o600))

	_, err := application.ImportUsers(context.Background(), path)
	assert.Error(t, err)
}

func TestShutdownGraceCoversLongestCycle(t *testing.T) {
	s := config.Default().Scheduler
	assert.Greater(t, shutdownGrace(s), s.CycleTimeout)

	s.UserTimeout = 20 * time.Minute
	assert.Greater(t, shutdownGrace(s), s.UserTimeout)
}
