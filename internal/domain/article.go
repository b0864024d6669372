package domain

import "time"

// Article is a single content item returned by a search provider.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	Body        string    `json:"body,omitempty"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// TopicContent groups the articles fetched for one configured topic.
type TopicContent struct {
	Topic    string    `json:"topic"`
	Articles []Article `json:"articles"`
}

// ContentSet is what a successful Refresh persists for a user.
type ContentSet struct {
	UserID    string         `json:"user_id"`
	FetchedAt time.Time      `json:"fetched_at"`
	Language  string         `json:"language"`
	Topics    []TopicContent `json:"topics"`
}

// ArticleCount sums articles over all topics.
func (c ContentSet) ArticleCount() int {
	total := 0
	for _, t := range c.Topics {
		total += len(t.Articles)
	}
	return total
}
