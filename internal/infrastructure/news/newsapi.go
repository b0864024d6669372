package news

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"DigestScheduler/internal/domain"
	"DigestScheduler/internal/search"
)

const (
	newsAPIBaseURL   = "https://newsapi.org/v2"
	newsAPIMaxPage   = 100
	newsAPIDefWindow = 48 * time.Hour
)

// NewsAPIConfig configures the newsapi.org client.
type NewsAPIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewsAPI searches the /everything endpoint of newsapi.org.
type NewsAPI struct {
	cfg    NewsAPIConfig
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

var _ search.Searcher = (*NewsAPI)(nil)

// NewNewsAPI builds the provider; a nil client gets one with cfg.Timeout.
func NewNewsAPI(cfg NewsAPIConfig, client *http.Client, logger *slog.Logger) *NewsAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = newsAPIBaseURL
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
	return &NewsAPI{cfg: cfg, client: client, logger: logger, now: time.Now}
}

// Name identifies the provider inside the registry.
func (n *NewsAPI) Name() string {
	return "newsapi"
}

type newsAPIArticle struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

// Search looks up articles published within the query window, newest first.
func (n *NewsAPI) Search(ctx context.Context, q search.Query) ([]domain.Article, error) {
	if n.cfg.APIKey == "" {
		return nil, errors.New("newsapi api key is not configured")
	}

	window := q.Window
	if window <= 0 {
		window = newsAPIDefWindow
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	now := n.now().UTC()

	endpoint, err := url.Parse(strings.TrimSuffix(n.cfg.BaseURL, "/") + "/everything")
	if err != nil {
		return nil, errors.Wrapf(err, "invalid newsapi url %s", n.cfg.BaseURL)
	}
	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("from", now.Add(-window).Format(time.RFC3339))
	params.Set("to", now.Format(time.RFC3339))
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", strconv.Itoa(min(limit, newsAPIMaxPage)))
	if q.Language != "" {
		params.Set("language", q.Language)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("X-Api-Key", n.cfg.APIKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "newsapi request")
	}
	defer resp.Body.Close()

	var payload newsAPIResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&payload)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, errors.New("newsapi authentication failed")
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.New("newsapi rate limit exceeded")
	case resp.StatusCode != http.StatusOK:
		if payload.Message != "" {
			return nil, errors.Newf("newsapi returned %s: %s", resp.Status, payload.Message)
		}
		return nil, errors.Newf("newsapi returned %s", resp.Status)
	case decodeErr != nil:
		return nil, errors.Wrap(decodeErr, "decode newsapi response")
	}

	articles := make([]domain.Article, 0, len(payload.Articles))
	for _, item := range payload.Articles {
		if len(articles) >= limit {
			break
		}
		// Removed articles come back with this placeholder title.
		if item.URL == "" || item.Title == "" || item.Title == "[Removed]" {
			continue
		}
		articles = append(articles, domain.Article{
			ID:          articleID(item.URL),
			Title:       strings.TrimSpace(item.Title),
			Snippet:     strings.TrimSpace(item.Description),
			Body:        strings.TrimSpace(item.Content),
			URL:         item.URL,
			Source:      item.Source.Name,
			PublishedAt: item.PublishedAt,
		})
	}
	n.logger.Debug("newsapi search done", "query", q.Text, "count", len(articles))
	return articles, nil
}

// articleID derives a stable identifier from the article URL.
func articleID(link string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(link)).String()
}
