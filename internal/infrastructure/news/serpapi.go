package news

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"DigestScheduler/internal/domain"
	"DigestScheduler/internal/search"
)

const (
	serpAPIBaseURL   = "https://serpapi.com/search.json"
	serpAPIDateStyle = "01/02/2006, 03:04 PM, -0700 MST"
	defaultLimit     = 10
)

// SerpAPIConfig configures the Google News engine of SerpAPI.
type SerpAPIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// Interval spaces consecutive requests; zero disables throttling.
	Interval time.Duration
}

// SerpAPI searches Google News through serpapi.com.
type SerpAPI struct {
	cfg     SerpAPIConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ search.Searcher = (*SerpAPI)(nil)

// NewSerpAPI builds the provider; a nil client gets one with cfg.Timeout.
func NewSerpAPI(cfg SerpAPIConfig, client *http.Client, logger *slog.Logger) *SerpAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = serpAPIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &SerpAPI{cfg: cfg, client: client, logger: logger}
	if cfg.Interval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(cfg.Interval), 1)
	}
	return s
}

// Name identifies the provider inside the registry.
func (s *SerpAPI) Name() string {
	return "serpapi"
}

// Search runs the query; when a time-filtered search finds nothing it is
// retried once without the filter.
func (s *SerpAPI) Search(ctx context.Context, q search.Query) ([]domain.Article, error) {
	if s.cfg.APIKey == "" {
		return nil, errors.New("serpapi api key is not configured")
	}

	articles, err := s.search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 && q.Window > 0 {
		s.logger.Debug("serpapi retry without time filter", "query", q.Text, "window", q.Window)
		q.Window = 0
		return s.search(ctx, q)
	}
	return articles, nil
}

type serpStory struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
	Source  struct {
		Name string `json:"name"`
	} `json:"source"`
	Stories []serpStory `json:"stories"`
}

type serpResponse struct {
	Error       string      `json:"error"`
	NewsResults []serpStory `json:"news_results"`
}

func (s *SerpAPI) search(ctx context.Context, q search.Query) ([]domain.Article, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "serpapi throttle")
		}
	}

	endpoint, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid serpapi url %s", s.cfg.BaseURL)
	}
	params := endpoint.Query()
	params.Set("engine", "google_news")
	params.Set("api_key", s.cfg.APIKey)
	params.Set("q", q.Text)
	if q.Language != "" {
		params.Set("hl", q.Language)
	}
	if q.Country != "" {
		params.Set("gl", strings.ToLower(q.Country))
	}
	if when := windowParam(q.Window); when != "" {
		params.Set("when", when)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "serpapi request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("serpapi returned %s", resp.Status)
	}

	var payload serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decode serpapi response")
	}
	if payload.Error != "" {
		// "hasn't returned any results" is how SerpAPI reports an empty search.
		if strings.Contains(payload.Error, "any results") {
			return nil, nil
		}
		return nil, errors.Newf("serpapi: %s", payload.Error)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	articles := make([]domain.Article, 0, limit)
	for _, item := range flattenStories(payload.NewsResults) {
		if len(articles) >= limit {
			break
		}
		if item.Link == "" || item.Title == "" {
			continue
		}
		articles = append(articles, domain.Article{
			ID:          articleID(item.Link),
			Title:       strings.TrimSpace(item.Title),
			Snippet:     strings.TrimSpace(item.Snippet),
			URL:         item.Link,
			Source:      item.Source.Name,
			PublishedAt: parseSerpDate(item.Date),
		})
	}
	return articles, nil
}

// flattenStories expands grouped results into their member stories.
func flattenStories(items []serpStory) []serpStory {
	out := make([]serpStory, 0, len(items))
	for _, item := range items {
		if len(item.Stories) > 0 && item.Link == "" {
			out = append(out, item.Stories...)
			continue
		}
		out = append(out, item)
	}
	return out
}

func windowParam(window time.Duration) string {
	switch {
	case window <= 0:
		return ""
	case window <= time.Hour:
		return "1h"
	case window < 24*time.Hour:
		return fmt.Sprintf("%dh", int((window+time.Hour-1)/time.Hour))
	default:
		return fmt.Sprintf("%dd", int((window+24*time.Hour-1)/(24*time.Hour)))
	}
}

func parseSerpDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(serpAPIDateStyle, raw); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
