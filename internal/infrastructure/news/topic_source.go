package news

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"DigestScheduler/internal/domain"
	"DigestScheduler/internal/ports"
	"DigestScheduler/internal/search"
)

// BodyExtractor fills in article text the search provider did not return.
type BodyExtractor interface {
	Extract(ctx context.Context, pageURL string) (string, error)
}

// TopicSourceConfig tunes how topics are fetched.
type TopicSourceConfig struct {
	Window           time.Duration
	ArticlesPerTopic int
	// Parallel is how many topics are searched at once.
	Parallel int
}

// TopicSource implements ContentSource via registered search providers.
type TopicSource struct {
	registry  *search.Registry
	extractor BodyExtractor
	cfg       TopicSourceConfig
	logger    *slog.Logger
}

var _ ports.ContentSource = (*TopicSource)(nil)

// NewTopicSource wires the provider registry. extractor may be nil.
func NewTopicSource(reg *search.Registry, extractor BodyExtractor, cfg TopicSourceConfig, logger *slog.Logger) *TopicSource {
	if cfg.ArticlesPerTopic <= 0 {
		cfg.ArticlesPerTopic = defaultLimit
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 3
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TopicSource{registry: reg, extractor: extractor, cfg: cfg, logger: logger}
}

// FetchTopics searches every topic of the profile. A topic that fails is
// logged and left empty; only when every topic fails is an error returned.
func (s *TopicSource) FetchTopics(ctx context.Context, profile domain.UserProfile) (domain.ContentSet, error) {
	if s.registry == nil {
		return domain.ContentSet{}, errors.New("search registry is not configured")
	}

	s.logger.Debug("fetch topics", "user_id", profile.UserID, "topics", len(profile.Topics))

	results := make([]domain.TopicContent, len(profile.Topics))
	var (
		mu       sync.Mutex
		failures []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallel)
	for i, topic := range profile.Topics {
		g.Go(func() error {
			articles, err := s.fetchTopic(gctx, topic, profile)
			if err != nil {
				s.logger.Warn("topic fetch failed", "user_id", profile.UserID, "topic", topic.Name, "error", err)
				mu.Lock()
				failures = append(failures, errors.Wrapf(err, "topic %s", topic.Name))
				mu.Unlock()
			}
			results[i] = domain.TopicContent{Topic: topic.Name, Articles: articles}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return domain.ContentSet{}, err
	}
	if len(profile.Topics) > 0 && len(failures) == len(profile.Topics) {
		return domain.ContentSet{}, errors.Wrap(errors.Join(failures...), "every topic failed")
	}

	set := domain.ContentSet{
		UserID:   profile.UserID,
		Language: profile.Language,
		Topics:   results,
	}
	s.logger.Debug("topic source done", "user_id", profile.UserID, "articles", set.ArticleCount())
	return set, nil
}

func (s *TopicSource) fetchTopic(ctx context.Context, topic domain.Topic, profile domain.UserProfile) ([]domain.Article, error) {
	provider, err := s.registry.Resolve(topic.Provider)
	if err != nil {
		return nil, err
	}

	queries := topic.Queries
	if len(queries) == 0 {
		queries = []string{topic.Name}
	}

	seen := map[string]struct{}{}
	collected := make([]domain.Article, 0, s.cfg.ArticlesPerTopic)
	var lastErr error
	for _, text := range queries {
		if len(collected) >= s.cfg.ArticlesPerTopic {
			break
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		found, err := provider.Search(ctx, search.Query{
			Text:     text,
			Language: profile.Language,
			Country:  profile.Country,
			Window:   s.cfg.Window,
			Limit:    s.cfg.ArticlesPerTopic,
		})
		if err != nil {
			lastErr = err
			continue
		}
		for _, article := range found {
			key := dedupKey(article)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if article.Source == "" {
				article.Source = provider.Name()
			}
			collected = append(collected, article)
			if len(collected) >= s.cfg.ArticlesPerTopic {
				break
			}
		}
	}

	if len(collected) == 0 && lastErr != nil {
		return nil, lastErr
	}
	s.fillBodies(ctx, collected)
	return collected, nil
}

// fillBodies is best effort: extraction errors leave the snippet as the only text.
func (s *TopicSource) fillBodies(ctx context.Context, articles []domain.Article) {
	if s.extractor == nil {
		return
	}
	for i := range articles {
		if articles[i].Body != "" || articles[i].URL == "" {
			continue
		}
		body, err := s.extractor.Extract(ctx, articles[i].URL)
		if err != nil {
			s.logger.Debug("body extraction skipped", "url", articles[i].URL, "error", err)
			continue
		}
		articles[i].Body = body
	}
}

func dedupKey(a domain.Article) string {
	if a.URL != "" {
		return strings.TrimSuffix(strings.ToLower(a.URL), "/")
	}
	return a.ID
}
