package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"DigestScheduler/internal/config"
	"DigestScheduler/internal/domain"
	"DigestScheduler/internal/infrastructure/blob"
	"DigestScheduler/internal/infrastructure/extract"
	"DigestScheduler/internal/infrastructure/llm"
	"DigestScheduler/internal/infrastructure/news"
	"DigestScheduler/internal/infrastructure/push"
	"DigestScheduler/internal/infrastructure/scheduler"
	"DigestScheduler/internal/infrastructure/storage"
	"DigestScheduler/internal/infrastructure/tts"
	"DigestScheduler/internal/logging"
	"DigestScheduler/internal/search"
	"DigestScheduler/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	store       *storage.SQLiteStore
	coordinator *usecase.Coordinator
	scheduler   *usecase.Scheduler
}

// New opens the store and builds every adapter from cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings() {
		baseLogger.Warn("config", "warning", w)
	}

	store, err := storage.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}

	registry := newSearchRegistry(cfg.Search, baseLogger)
	var extractor news.BodyExtractor
	if cfg.Search.ExtractContent {
		extractor = extract.NewExtractor(nil, cfg.Search.ExtractMaxChars)
	}
	source := news.NewTopicSource(registry, extractor, news.TopicSourceConfig{
		Window:           cfg.Search.Window,
		ArticlesPerTopic: cfg.Search.MaxArticles,
		Parallel:         cfg.Search.Parallel,
	}, baseLogger.With("component", "source"))

	stages := usecase.NewStages(usecase.StageDeps{
		Profiles:  store,
		Source:    source,
		Content:   store,
		Artifacts: store,
		Generator: llm.NewChatGPTClient(cfg.ChatGPT, baseLogger.With("component", "llm")),
		Speech:    tts.NewClient(cfg.TTS),
		Audio:     blob.NewFileStore(cfg.Audio.Dir),
		Push:      push.NewSender(cfg.Push),
		Logger:    baseLogger.With("component", "stages"),
	})

	runner := usecase.NewRunner(usecase.RunnerDeps{
		Stages:      stages,
		Prior:       store,
		UserTimeout: cfg.Scheduler.UserTimeout,
		Logger:      baseLogger.With("component", "runner"),
	})
	coordinator := usecase.NewCoordinator(usecase.CoordinatorDeps{
		Evaluator:     usecase.NewDueEvaluator(store, cfg.Scheduler.ExcludedUsers, baseLogger.With("component", "due")),
		Runner:        runner,
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		CycleTimeout:  cfg.Scheduler.CycleTimeout,
		Logger:        baseLogger.With("component", "coordinator"),
	})

	driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), baseLogger.With("component", "cron"))

	return &Application{
		cfg:         cfg,
		logger:      baseLogger,
		store:       store,
		coordinator: coordinator,
		scheduler:   usecase.NewScheduler(driver, coordinator, baseLogger.With("component", "scheduler"), nil),
	}, nil
}

func newSearchRegistry(cfg config.SearchConfig, logger *slog.Logger) *search.Registry {
	serp := news.NewSerpAPI(news.SerpAPIConfig{
		APIKey:   cfg.SerpAPI.APIKey,
		BaseURL:  cfg.SerpAPI.BaseURL,
		Interval: cfg.SerpAPI.Interval,
	}, nil, logger.With("component", "search.serpapi"))
	newsAPI := news.NewNewsAPI(news.NewsAPIConfig{
		APIKey:  cfg.NewsAPI.APIKey,
		BaseURL: cfg.NewsAPI.BaseURL,
	}, nil, logger.With("component", "search.newsapi"))

	// The first registered provider serves topics that do not name one.
	registry := search.NewRegistry()
	if cfg.DefaultProvider == newsAPI.Name() {
		registry.Register(newsAPI)
		registry.Register(serp)
	} else {
		registry.Register(serp)
		registry.Register(newsAPI)
	}
	return registry
}

// RunOnce executes a single cycle now.
func (a *Application) RunOnce(ctx context.Context) domain.RunReport {
	return a.coordinator.RunCycle(ctx, time.Now().In(a.cfg.Scheduler.Location()))
}

// RunUser runs one user's pipeline immediately.
func (a *Application) RunUser(ctx context.Context, userID string) (domain.UserOutcome, error) {
	return a.coordinator.RunUser(ctx, userID)
}

// Serve runs cycles on the configured schedule until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace(a.cfg.Scheduler))
	defer cancel()
	return a.scheduler.Stop(stopCtx)
}

// shutdownGrace is how long Serve waits for a running cycle. Admission stops at
// the cycle timeout and every admitted pipeline ends by cycle start plus the
// user timeout, so the longer of the two bounds the cycle.
func shutdownGrace(s config.SchedulerConfig) time.Duration {
	return max(s.CycleTimeout, s.UserTimeout) + time.Second
}

// UserSeed is one entry of a users import file.
type UserSeed struct {
	ID            string         `yaml:"id"`
	Language      string         `yaml:"language"`
	Country       string         `yaml:"country"`
	PresenterName string         `yaml:"presenterName"`
	VoiceID       string         `yaml:"voiceId"`
	PushToken     string         `yaml:"pushToken"`
	Interval      time.Duration  `yaml:"interval"`
	Paused        bool           `yaml:"paused"`
	Topics        []domain.Topic `yaml:"topics"`
}

// ImportUsers upserts the users listed in a YAML file and returns how many were saved.
func (a *Application) ImportUsers(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "read users %s", path)
	}
	var seeds []UserSeed
	if err := yaml.Unmarshal(raw, &seeds); err != nil {
		return 0, errors.Wrapf(err, "parse users %s", path)
	}

	for i, seed := range seeds {
		var flags domain.Eligibility
		if seed.Paused {
			flags |= domain.EligibilityPaused
		}
		profile := domain.UserProfile{
			UserID:        seed.ID,
			Language:      seed.Language,
			Country:       seed.Country,
			PresenterName: seed.PresenterName,
			VoiceID:       seed.VoiceID,
			PushToken:     seed.PushToken,
			Topics:        seed.Topics,
		}
		if err := a.store.SaveUser(ctx, profile, seed.Interval, flags); err != nil {
			return i, err
		}
	}
	a.logger.Info("users imported", "count", len(seeds), "path", path)
	return len(seeds), nil
}

// Close releases the store.
func (a *Application) Close() error {
	return a.store.Close()
}
